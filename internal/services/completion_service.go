package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/apperr"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/cache"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/config"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/db"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/repository"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/storage"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/tasks"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/workflow"
)

// CompleteInput is the contractor's completion report.
type CompleteInput struct {
	Note         string
	Images       []Upload
	Descriptions []string
}

// ICompletionService records finished jobs.
type ICompletionService interface {
	Complete(ctx context.Context, actor models.Actor, propertyID primitive.ObjectID, in CompleteInput) (*models.Property, []models.CompletionImage, error)
	ListImages(ctx context.Context, actor models.Actor, propertyID primitive.ObjectID) ([]models.CompletionImage, error)
}

type completionService struct {
	cfg     *config.Config
	store   *workflowStore
	images  repository.ICompletionImageRepository
	storage storage.IImageStorage
}

// NewCompletionService creates a new CompletionService.
func NewCompletionService(
	cfg *config.Config,
	tx db.Transactor,
	properties repository.IPropertyRepository,
	transitions repository.ITransitionRepository,
	images repository.ICompletionImageRepository,
	imageStorage storage.IImageStorage,
	propertyCache cache.IPropertyCache,
	dispatcher ITaskDispatcher,
) ICompletionService {
	return &completionService{
		cfg:     cfg,
		store:   newWorkflowStore(tx, properties, transitions, propertyCache, dispatcher),
		images:  images,
		storage: imageStorage,
	}
}

func (s *completionService) checkInput(in CompleteInput) error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Note) == "" {
		fields["note"] = "required"
	}
	switch {
	case len(in.Images) == 0:
		fields["images"] = "at least one image is required"
	case s.cfg.MaxUploadImages > 0 && len(in.Images) > s.cfg.MaxUploadImages:
		fields["images"] = fmt.Sprintf("at most %d images per request", s.cfg.MaxUploadImages)
	}
	maxBytes := s.cfg.ImageMaxSizeMB * 1024 * 1024
	for i, u := range in.Images {
		if sniffImage(u) == "" {
			fields[fmt.Sprintf("images[%d]", i)] = "must be a JPEG, PNG, GIF or WebP image"
		} else if maxBytes > 0 && len(u.Data) > maxBytes {
			fields[fmt.Sprintf("images[%d]", i)] = fmt.Sprintf("must be at most %d MB", s.cfg.ImageMaxSizeMB)
		}
	}
	if len(fields) > 0 {
		return apperr.ValidationFields(fields)
	}
	return nil
}

// Complete moves an in-progress property to completed and stores the contractor's
// photos. Nothing is persisted unless every image was stored.
func (s *completionService) Complete(ctx context.Context, actor models.Actor, propertyID primitive.ObjectID, in CompleteInput) (*models.Property, []models.CompletionImage, error) {
	if actor.IsAnonymous() {
		return nil, nil, apperr.Authorization("authentication required")
	}
	if err := s.checkInput(in); err != nil {
		return nil, nil, err
	}
	p, err := s.store.loadVisible(ctx, actor, propertyID)
	if err != nil {
		return nil, nil, err
	}
	now := s.store.now()
	next, err := workflow.Apply(actor, workflow.ActionComplete, p, workflow.Input{
		CompletionNote: in.Note,
		ImageCount:     len(in.Images),
		Now:            now,
	})
	if err != nil {
		return nil, nil, err
	}

	prefix := fmt.Sprintf("completions/%s", p.ID.Hex())
	images := make([]models.CompletionImage, 0, len(in.Images))
	for i, u := range in.Images {
		key, err := s.storage.Upload(ctx, prefix, u.Data, sniffImage(u))
		if err != nil {
			s.discard(ctx, images)
			return nil, nil, apperr.Internal(err, "failed to store completion image")
		}
		img := models.CompletionImage{
			ID:         primitive.NewObjectID(),
			Property:   p.ID,
			Key:        key,
			URL:        s.storage.URL(key),
			Order:      i,
			UploadedAt: now,
		}
		if i < len(in.Descriptions) {
			img.Description = strings.TrimSpace(in.Descriptions[i])
		}
		images = append(images, img)
	}

	err = s.store.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.images.InsertMany(ctx, images); err != nil {
			return err
		}
		return s.store.save(ctx, actor, workflow.ActionComplete, p, next, nil)
	})
	if err != nil {
		s.discard(ctx, images)
		return nil, nil, commitError(err, "complete property")
	}
	s.store.afterCommit(ctx, p.ID)

	keys := make([]string, 0, len(images))
	for _, img := range images {
		keys = append(keys, img.Key)
	}
	s.store.processImages(ctx, keys)
	s.store.notify(ctx, tasks.Notification{
		Kind:       tasks.NotifyPropertyCompleted,
		PropertyID: p.ID.Hex(),
		UserIDs:    []string{p.Homeowner.Hex()},
		Data:       map[string]interface{}{"Note": next.CompletionNote},
	})
	return next, images, nil
}

func (s *completionService) discard(ctx context.Context, images []models.CompletionImage) {
	for _, img := range images {
		if err := s.storage.Delete(ctx, img.Key); err != nil {
			log.Printf("WARN: failed to remove orphaned image %s: %v", img.Key, err)
		}
	}
}

func (s *completionService) ListImages(ctx context.Context, actor models.Actor, propertyID primitive.ObjectID) ([]models.CompletionImage, error) {
	p, err := s.store.loadVisible(ctx, actor, propertyID)
	if err != nil {
		return nil, err
	}
	images, err := s.images.ListByProperty(ctx, p.ID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list completion images")
	}
	return images, nil
}
