package services

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/apperr"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/cache"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/db"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/repository"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/tasks"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/visibility"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/workflow"
)

// ITaskDispatcher enqueues background work.
type ITaskDispatcher interface {
	Notify(ctx context.Context, n tasks.Notification) error
	ProcessImage(ctx context.Context, key string) error
}

// Upload is an uploaded file held in memory.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// sniffImage returns the detected content type, or "" if the data is not a supported image.
func sniffImage(u Upload) string {
	ct := http.DetectContentType(u.Data)
	if allowedImageTypes[ct] {
		return ct
	}
	return ""
}

// workflowStore loads properties and persists the result of workflow transitions.
type workflowStore struct {
	tx          db.Transactor
	properties  repository.IPropertyRepository
	transitions repository.ITransitionRepository
	cache       cache.IPropertyCache
	dispatcher  ITaskDispatcher
	now         func() time.Time
}

func newWorkflowStore(tx db.Transactor, properties repository.IPropertyRepository, transitions repository.ITransitionRepository, propertyCache cache.IPropertyCache, dispatcher ITaskDispatcher) *workflowStore {
	return &workflowStore{
		tx:          tx,
		properties:  properties,
		transitions: transitions,
		cache:       propertyCache,
		dispatcher:  dispatcher,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *workflowStore) load(ctx context.Context, id primitive.ObjectID) (*models.Property, error) {
	p, err := s.properties.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("property not found")
		}
		return nil, apperr.Internal(err, "failed to load property")
	}
	return p, nil
}

// loadVisible returns NotFound for properties the actor may not see.
func (s *workflowStore) loadVisible(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Property, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanViewProperty(actor, p) {
		return nil, apperr.NotFound("property not found")
	}
	return p, nil
}

// save stores after in place of before and records the transition. Call it inside a transaction.
func (s *workflowStore) save(ctx context.Context, actor models.Actor, action workflow.Action, before, after *models.Property, offerID *primitive.ObjectID) error {
	if err := s.properties.ReplaceIfUnchanged(ctx, after, before); err != nil {
		return err
	}
	return s.transitions.Insert(ctx, &models.TransitionRecord{
		Property:  after.ID,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		Action:    string(action),
		From:      before.Status,
		To:        after.Status,
		Offer:     offerID,
		At:        after.UpdatedAt,
	})
}

func (s *workflowStore) afterCommit(ctx context.Context, id primitive.ObjectID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
}

func (s *workflowStore) notify(ctx context.Context, n tasks.Notification) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Notify(ctx, n); err != nil {
		log.Printf("ERROR: failed to enqueue %s notification for property %s: %v", n.Kind, n.PropertyID, err)
	}
}

// processImages enqueues normalisation of freshly stored images. The originals stay
// usable when enqueueing fails.
func (s *workflowStore) processImages(ctx context.Context, keys []string) {
	if s.dispatcher == nil {
		return
	}
	for _, key := range keys {
		if err := s.dispatcher.ProcessImage(ctx, key); err != nil {
			log.Printf("WARN: image task for %s not enqueued: %v", key, err)
		}
	}
}

// commitError maps persistence failures of a transition onto domain errors.
func commitError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case apperr.KindOf(err) != apperr.KindInternal:
		return err
	case errors.Is(err, repository.ErrStale):
		return apperr.Conflict("%s: the record changed while processing the request, reload and retry", what)
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("%s: record not found", what)
	}
	return apperr.Internal(err, "failed to %s", what)
}

func clampLimit(limit, max int) int64 {
	if limit <= 0 || limit > max {
		return int64(max)
	}
	return int64(limit)
}
