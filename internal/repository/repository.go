// Package repository holds the Mongo persistence of the marketplace documents.
package repository

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/db"
)

var (
	// ErrNotFound is returned when a lookup matches no document.
	ErrNotFound = errors.New("document not found")
	// ErrStale is returned when a conditional update finds the document in another state.
	ErrStale = errors.New("document was modified concurrently")
)

// DuplicateError reports a unique index violation on Field.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate value for %s", e.Field)
}

func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if field := db.DuplicateKeyField(err); field != "" {
		return &DuplicateError{Field: field}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func findOptions(limit int64, sortField string, order int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: sortField, Value: order}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return opts
}
