package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"text/template"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/email"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/repository"
)

// NotificationKind selects the e-mail template.
type NotificationKind string

const (
	NotifyPropertyApproved  NotificationKind = "property_approved"
	NotifyPropertyRejected  NotificationKind = "property_rejected"
	NotifyOfferSubmitted    NotificationKind = "offer_submitted"
	NotifyOfferAccepted     NotificationKind = "offer_accepted"
	NotifyOfferRejected     NotificationKind = "offer_rejected"
	NotifyPropertyEvaluated NotificationKind = "property_evaluated"
	NotifyPropertyCompleted NotificationKind = "property_completed"
)

// Notification is the payload of TypeNotification tasks. Recipients are given either as
// user ids or contractor profile ids and resolved to e-mail addresses by the worker.
type Notification struct {
	Kind          NotificationKind       `json:"kind"`
	PropertyID    string                 `json:"property_id"`
	UserIDs       []string               `json:"user_ids,omitempty"`
	ContractorIDs []string               `json:"contractor_ids,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

type notificationTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustTemplate(kind NotificationKind, subject, body string) notificationTemplate {
	return notificationTemplate{
		subject: template.Must(template.New(string(kind) + "_subject").Parse(subject)),
		body:    template.Must(template.New(string(kind) + "_body").Parse(body)),
	}
}

var notificationTemplates = map[NotificationKind]notificationTemplate{
	NotifyPropertyApproved: mustTemplate(NotifyPropertyApproved,
		`Your property "{{.PropertyTitle}}" was approved`,
		"Hello {{.Name}},\n\nYour property \"{{.PropertyTitle}}\" has been approved and is now open for contractor offers.\n\n{{.AppName}}"),
	NotifyPropertyRejected: mustTemplate(NotifyPropertyRejected,
		`Your property "{{.PropertyTitle}}" was not approved`,
		"Hello {{.Name}},\n\nYour property \"{{.PropertyTitle}}\" was reviewed and rejected.\n\n{{.AppName}}"),
	NotifyOfferSubmitted: mustTemplate(NotifyOfferSubmitted,
		`New offer on "{{.PropertyTitle}}"`,
		"Hello {{.Name}},\n\nA contractor offered {{.Amount}} for \"{{.PropertyTitle}}\".\n{{if .Description}}\n{{.Description}}\n{{end}}\n{{.AppName}}"),
	NotifyOfferAccepted: mustTemplate(NotifyOfferAccepted,
		`Your offer on "{{.PropertyTitle}}" was accepted`,
		"Hello {{.Name}},\n\nThe homeowner accepted your offer of {{.Amount}} for \"{{.PropertyTitle}}\". The job is now in progress.\n\n{{.AppName}}"),
	NotifyOfferRejected: mustTemplate(NotifyOfferRejected,
		`Your offer on "{{.PropertyTitle}}" was declined`,
		"Hello {{.Name}},\n\nYour offer for \"{{.PropertyTitle}}\" was declined.\n\n{{.AppName}}"),
	NotifyPropertyEvaluated: mustTemplate(NotifyPropertyEvaluated,
		`"{{.PropertyTitle}}" has been evaluated`,
		"Hello {{.Name}},\n\nYour contractor rated \"{{.PropertyTitle}}\" {{.Rating}}/5.\n\n{{.Report}}\n\n{{.AppName}}"),
	NotifyPropertyCompleted: mustTemplate(NotifyPropertyCompleted,
		`Work on "{{.PropertyTitle}}" is complete`,
		"Hello {{.Name}},\n\nThe contractor marked \"{{.PropertyTitle}}\" as completed.\n\n{{.Note}}\n\n{{.AppName}}"),
}

type recipient struct {
	name  string
	email string
}

// HandleNotificationTask renders the notification for each recipient and sends it.
func (p *TaskProcessor) HandleNotificationTask(ctx context.Context, t *asynq.Task) error {
	var n Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil {
		return fmt.Errorf("failed to unmarshal notification payload: %v: %w", err, asynq.SkipRetry)
	}
	tmpl, ok := notificationTemplates[n.Kind]
	if !ok {
		return fmt.Errorf("unknown notification kind %q: %w", n.Kind, asynq.SkipRetry)
	}

	data := map[string]interface{}{}
	for k, v := range n.Data {
		data[k] = v
	}
	data["AppName"] = p.cfg.AppName

	if n.PropertyID != "" {
		propertyID, err := primitive.ObjectIDFromHex(n.PropertyID)
		if err != nil {
			return fmt.Errorf("invalid property id %q: %w", n.PropertyID, asynq.SkipRetry)
		}
		property, err := p.properties.FindByID(ctx, propertyID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("property %s not found: %w", n.PropertyID, asynq.SkipRetry)
			}
			return err
		}
		data["PropertyTitle"] = property.Title
	}

	recipients, err := p.resolveRecipients(ctx, n)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		log.Printf("WARN: notification %s for property %s has no reachable recipients", n.Kind, n.PropertyID)
		return nil
	}

	for _, r := range recipients {
		data["Name"] = r.name
		subject, body, err := tmpl.render(data)
		if err != nil {
			return fmt.Errorf("failed to render %s notification: %v: %w", n.Kind, err, asynq.SkipRetry)
		}
		raw := p.buildMessage(r.email, subject, body, n.Kind)
		if err := p.emailSender.Send(ctx, []string{r.email}, subject, raw); err != nil {
			return fmt.Errorf("failed to send %s notification: %w", n.Kind, err)
		}
	}
	log.Printf("Notification %s sent to %d recipient(s)", n.Kind, len(recipients))
	return nil
}

func (nt notificationTemplate) render(data map[string]interface{}) (string, string, error) {
	var subject, body bytes.Buffer
	if err := nt.subject.Execute(&subject, data); err != nil {
		return "", "", err
	}
	if err := nt.body.Execute(&body, data); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}

func (p *TaskProcessor) resolveRecipients(ctx context.Context, n Notification) ([]recipient, error) {
	userIDs := append([]string(nil), n.UserIDs...)
	for _, hex := range n.ContractorIDs {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			return nil, fmt.Errorf("invalid contractor id %q: %w", hex, asynq.SkipRetry)
		}
		c, err := p.contractors.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				log.Printf("WARN: contractor %s not found for notification %s", hex, n.Kind)
				continue
			}
			return nil, err
		}
		userIDs = append(userIDs, c.UserID.Hex())
	}

	var out []recipient
	for _, hex := range userIDs {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", hex, asynq.SkipRetry)
		}
		u, err := p.users.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				log.Printf("WARN: user %s not found for notification %s", hex, n.Kind)
				continue
			}
			return nil, err
		}
		if u.Email == "" {
			continue
		}
		name := strings.TrimSpace(u.FirstName + " " + u.LastName)
		if name == "" {
			name = u.Username
		}
		out = append(out, recipient{name: name, email: u.Email})
	}
	return out, nil
}

func (p *TaskProcessor) buildMessage(to, subject, body string, kind NotificationKind) []byte {
	from := p.cfg.SmtpFromAddress
	if from == "" {
		from = "noreply@example.com"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", to))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", from))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	sb.WriteString(fmt.Sprintf("%s: %s\r\n", email.KindHeader, kind))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}
