package email

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/textproto"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/config"
)

// MockEmailKey is where RedisSender stores the last message of a kind sent to an address.
func MockEmailKey(to, kind string) string {
	return fmt.Sprintf("mockemail:%s:%s", to, kind)
}

// RedisSender implements the Sender interface by storing emails in Redis.
// The service API reads them back for end-to-end tests.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
	ttl    time.Duration
}

func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{client: client, cfg: cfg, ttl: 5 * time.Minute}
}

func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	kind := "unknown"
	body := string(rawMessage)
	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(rawMessage)))
	if header, err := reader.ReadMIMEHeader(); err == nil {
		if v := header.Get(KindHeader); v != "" {
			kind = v
		}
		if idx := bytes.Index(rawMessage, []byte("\r\n\r\n")); idx >= 0 {
			body = string(rawMessage[idx+4:])
		}
	}

	emailData := map[string]interface{}{
		"to":      strings.Join(to, ", "),
		"from":    s.cfg.SmtpFromAddress,
		"subject": subject,
		"body":    body,
		"kind":    kind,
		"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	for _, addr := range to {
		key := MockEmailKey(addr, kind)
		if err := s.client.Set(ctx, key, jsonData, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
		}
		log.Printf("Mock email stored in Redis key '%s' (Subject: %s)", key, subject)
	}
	return nil
}
