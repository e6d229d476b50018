package db

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

const duplicateKeyCode = 11000

// DuplicateKeyField returns the indexed field named in a duplicate key error (code 11000),
// or "" for any other error.
func DuplicateKeyField(err error) string {
	var messages []string
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == duplicateKeyCode {
				messages = append(messages, e.Message)
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == duplicateKeyCode {
				messages = append(messages, e.Message)
			}
		}
	}
	for _, msg := range messages {
		// E11000 duplicate key error collection: db.users index: email_1 dup key: { ... }
		idx := strings.Index(msg, "index: ")
		if idx < 0 {
			return "_id"
		}
		name := strings.Fields(msg[idx+len("index: "):])
		if len(name) == 0 {
			return "_id"
		}
		return strings.TrimSuffix(name[0], "_1")
	}
	return ""
}
