package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/apperr"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/cache"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/config"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/db"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/repository"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/storage"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/tasks"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/visibility"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/workflow"
)

// CreatePropertyInput holds the homeowner supplied fields of a new property.
type CreatePropertyInput struct {
	Title          string              `json:"title"`
	Description    string              `json:"description"`
	Address        string              `json:"address"`
	City           string              `json:"city"`
	Latitude       float64             `json:"latitude"`
	Longitude      float64             `json:"longitude"`
	PlotNumber     string              `json:"plot_number"`
	PropertyType   models.PropertyType `json:"property_type"`
	Size           float64             `json:"size"`
	NumberOfFloors *int                `json:"number_of_floors"`
	NumberOfRooms  *int                `json:"number_of_rooms"`
	Condition      models.Condition    `json:"condition"`
}

// TransitionInput carries the optional payload of a generic transition request.
type TransitionInput struct {
	EvaluationReport string
	Rating           *float64
}

// IPropertyService defines property related operations.
type IPropertyService interface {
	Create(ctx context.Context, actor models.Actor, in CreatePropertyInput) (*models.Property, error)
	List(ctx context.Context, actor models.Actor, status models.PropertyStatus, limit int) ([]models.Property, error)
	Get(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Property, error)
	AddImages(ctx context.Context, actor models.Actor, id primitive.ObjectID, uploads []Upload) (*models.Property, error)
	Transition(ctx context.Context, actor models.Actor, id primitive.ObjectID, action workflow.Action, in TransitionInput) (*models.Property, error)
	History(ctx context.Context, actor models.Actor, id primitive.ObjectID) ([]models.TransitionRecord, error)
}

type propertyService struct {
	cfg      *config.Config
	store    *workflowStore
	storage  storage.IImageStorage
	validate *validator.Validate
}

// NewPropertyService creates a new PropertyService.
func NewPropertyService(
	cfg *config.Config,
	tx db.Transactor,
	properties repository.IPropertyRepository,
	transitions repository.ITransitionRepository,
	imageStorage storage.IImageStorage,
	propertyCache cache.IPropertyCache,
	dispatcher ITaskDispatcher,
) IPropertyService {
	return &propertyService{
		cfg:      cfg,
		store:    newWorkflowStore(tx, properties, transitions, propertyCache, dispatcher),
		storage:  imageStorage,
		validate: apperr.NewValidator(),
	}
}

func (s *propertyService) Create(ctx context.Context, actor models.Actor, in CreatePropertyInput) (*models.Property, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	if !actor.IsHomeowner() {
		return nil, apperr.Authorization("only homeowners can register properties")
	}

	now := s.store.now()
	p := &models.Property{
		Base:           models.NewBase(now),
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		Address:        strings.TrimSpace(in.Address),
		City:           strings.TrimSpace(in.City),
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		PlotNumber:     strings.TrimSpace(in.PlotNumber),
		PropertyType:   in.PropertyType,
		Size:           in.Size,
		NumberOfFloors: in.NumberOfFloors,
		NumberOfRooms:  in.NumberOfRooms,
		Condition:      in.Condition,
		Status:         models.StatusPending,
		Homeowner:      actor.UserID,
		Images:         []models.PropertyImage{},
	}
	if err := s.validate.Struct(p); err != nil {
		return nil, apperr.FromValidation(err)
	}

	err := s.store.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.properties.Insert(ctx, p); err != nil {
			return err
		}
		return s.store.transitions.Insert(ctx, &models.TransitionRecord{
			Property:  p.ID,
			ActorID:   actor.UserID,
			ActorRole: actor.Role,
			Action:    "create",
			To:        p.Status,
			At:        now,
		})
	})
	if err != nil {
		return nil, apperr.Internal(err, "failed to create property")
	}
	return p, nil
}

func (s *propertyService) List(ctx context.Context, actor models.Actor, status models.PropertyStatus, limit int) ([]models.Property, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("status", fmt.Sprintf("unknown status %q", status))
	}
	filter, ok := visibility.PropertyFilter(actor, visibility.ViewList)
	if !ok {
		return []models.Property{}, nil
	}
	properties, err := s.store.properties.Find(ctx, visibility.WithStatus(filter, status), clampLimit(limit, s.cfg.ListLimit))
	if err != nil {
		return nil, apperr.Internal(err, "failed to list properties")
	}
	return properties, nil
}

func (s *propertyService) Get(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Property, error) {
	if actor.IsAnonymous() && s.store.cache != nil {
		if p, ok := s.store.cache.Get(ctx, id); ok {
			return p, nil
		}
	}
	p, err := s.store.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.IsAnonymous() && s.store.cache != nil {
		s.cachePublic(ctx, p)
	}
	return p, nil
}

// cachePublic stores p and drops it again if a write landed after p was loaded. That
// write's own invalidation may have run before the Set.
func (s *propertyService) cachePublic(ctx context.Context, p *models.Property) {
	s.store.cache.Set(ctx, p)
	cur, err := s.store.properties.FindByID(ctx, p.ID)
	if err != nil || !cur.UpdatedAt.Equal(p.UpdatedAt) {
		s.store.cache.Invalidate(ctx, p.ID)
	}
}

func (s *propertyService) AddImages(ctx context.Context, actor models.Actor, id primitive.ObjectID, uploads []Upload) (*models.Property, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	if err := s.checkUploads(uploads); err != nil {
		return nil, err
	}
	p, err := s.store.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(p) {
		return nil, apperr.Authorization("only the owner can add images")
	}
	if workflow.Terminal(p.Status) {
		return nil, apperr.Validation("status", fmt.Sprintf("cannot add images to a property that is %s", p.Status))
	}

	now := s.store.now()
	prefix := fmt.Sprintf("properties/%s", p.ID.Hex())
	images := make([]models.PropertyImage, 0, len(uploads))
	keys := make([]string, 0, len(uploads))
	for i, u := range uploads {
		key, err := s.storage.Upload(ctx, prefix, u.Data, sniffImage(u))
		if err != nil {
			s.discard(ctx, keys)
			return nil, apperr.Internal(err, "failed to store image")
		}
		keys = append(keys, key)
		images = append(images, models.PropertyImage{
			Key:         key,
			URL:         s.storage.URL(key),
			Order:       len(p.Images) + i,
			IsThumbnail: len(p.Images) == 0 && i == 0,
			UploadedAt:  now,
		})
	}

	terminal := []models.PropertyStatus{}
	for _, st := range models.AllStatuses {
		if workflow.Terminal(st) {
			terminal = append(terminal, st)
		}
	}
	if err := s.store.properties.AppendImages(ctx, p.ID, images, terminal, now); err != nil {
		s.discard(ctx, keys)
		return nil, commitError(err, "add images")
	}
	s.store.afterCommit(ctx, p.ID)
	s.store.processImages(ctx, keys)

	p.Images = append(p.Images, images...)
	p.UpdatedAt = now
	return p, nil
}

func (s *propertyService) checkUploads(uploads []Upload) error {
	if len(uploads) == 0 {
		return apperr.Validation("images", "at least one image is required")
	}
	if s.cfg.MaxUploadImages > 0 && len(uploads) > s.cfg.MaxUploadImages {
		return apperr.Validation("images", fmt.Sprintf("at most %d images per request", s.cfg.MaxUploadImages))
	}
	maxBytes := s.cfg.ImageMaxSizeMB * 1024 * 1024
	fields := map[string]string{}
	for i, u := range uploads {
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

func (s *propertyService) discard(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.storage.Delete(ctx, key); err != nil {
			log.Printf("WARN: failed to remove orphaned image %s: %v", key, err)
		}
	}
}

// Transition applies the actions that need nothing beyond the property itself.
// Offer and completion actions go through their own services.
func (s *propertyService) Transition(ctx context.Context, actor models.Actor, id primitive.ObjectID, action workflow.Action, in TransitionInput) (*models.Property, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	switch action {
	case workflow.ActionApprove, workflow.ActionReject, workflow.ActionEvaluate:
	case workflow.ActionSubmitOffer, workflow.ActionAcceptOffer, workflow.ActionRejectOffer:
		return nil, apperr.Validation("action", fmt.Sprintf("%s is handled by the price offer endpoints", action))
	case workflow.ActionComplete:
		return nil, apperr.Validation("action", "complete is handled by the mark_completed endpoint")
	default:
		return nil, apperr.Validation("action", fmt.Sprintf("unknown action %q", action))
	}

	p, err := s.store.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	next, err := workflow.Apply(actor, action, p, workflow.Input{
		EvaluationReport: in.EvaluationReport,
		Rating:           in.Rating,
		Now:              s.store.now(),
	})
	if err != nil {
		return nil, err
	}

	err = s.store.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return s.store.save(ctx, actor, action, p, next, nil)
	})
	if err != nil {
		return nil, commitError(err, string(action)+" property")
	}
	s.store.afterCommit(ctx, p.ID)

	n := tasks.Notification{PropertyID: p.ID.Hex(), UserIDs: []string{p.Homeowner.Hex()}}
	switch action {
	case workflow.ActionApprove:
		n.Kind = tasks.NotifyPropertyApproved
	case workflow.ActionReject:
		n.Kind = tasks.NotifyPropertyRejected
	case workflow.ActionEvaluate:
		n.Kind = tasks.NotifyPropertyEvaluated
		n.Data = map[string]interface{}{"Rating": *next.Rating, "Report": next.EvaluationReport}
	}
	s.store.notify(ctx, n)
	return next, nil
}

func (s *propertyService) History(ctx context.Context, actor models.Actor, id primitive.ObjectID) ([]models.TransitionRecord, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	p, err := s.store.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanViewHistory(actor, p) {
		return nil, apperr.Authorization("only the owner or an administrator can view the history")
	}
	records, err := s.store.transitions.ListByProperty(ctx, p.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []models.TransitionRecord{}, nil
		}
		return nil, apperr.Internal(err, "failed to load property history")
	}
	return records, nil
}
