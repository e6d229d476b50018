package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/apperr"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/cache"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/config"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/db"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/repository"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/tasks"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/visibility"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/workflow"
)

const maxOfferDescription = 2000

// SubmitOfferInput is a contractor's bid.
type SubmitOfferInput struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// OfferListFilter narrows an offer listing.
type OfferListFilter struct {
	Property *primitive.ObjectID
	Status   models.OfferStatus
	Limit    int
}

// AcceptResult is the outcome of accepting an offer.
type AcceptResult struct {
	Offer    *models.PriceOffer  `json:"offer"`
	Property *models.Property    `json:"property"`
	Rejected []models.PriceOffer `json:"rejected_offers"`
}

// IOfferService defines price offer negotiation.
type IOfferService interface {
	Submit(ctx context.Context, actor models.Actor, propertyID primitive.ObjectID, in SubmitOfferInput) (*models.PriceOffer, *models.Property, error)
	Accept(ctx context.Context, actor models.Actor, offerID primitive.ObjectID) (*AcceptResult, error)
	Reject(ctx context.Context, actor models.Actor, offerID primitive.ObjectID) (*models.PriceOffer, *models.Property, error)
	List(ctx context.Context, actor models.Actor, filter OfferListFilter) ([]models.PriceOffer, error)
	Get(ctx context.Context, actor models.Actor, offerID primitive.ObjectID) (*models.PriceOffer, error)
}

type offerService struct {
	cfg    *config.Config
	store  *workflowStore
	offers repository.IOfferRepository
}

// NewOfferService creates a new OfferService.
func NewOfferService(
	cfg *config.Config,
	tx db.Transactor,
	properties repository.IPropertyRepository,
	transitions repository.ITransitionRepository,
	offers repository.IOfferRepository,
	propertyCache cache.IPropertyCache,
	dispatcher ITaskDispatcher,
) IOfferService {
	return &offerService{
		cfg:    cfg,
		store:  newWorkflowStore(tx, properties, transitions, propertyCache, dispatcher),
		offers: offers,
	}
}

// loadForBid returns the property a contractor bids on. Besides the usual visibility
// rules, a property that already carries another contractor's proposal stays open
// for competing bids.
func (s *offerService) loadForBid(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Property, error) {
	p, err := s.store.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if visibility.CanViewProperty(actor, p) {
		return p, nil
	}
	if actor.IsContractor() && p.Status == models.StatusPriceProposed {
		return p, nil
	}
	return nil, apperr.NotFound("property not found")
}

func (s *offerService) Submit(ctx context.Context, actor models.Actor, propertyID primitive.ObjectID, in SubmitOfferInput) (*models.PriceOffer, *models.Property, error) {
	if actor.IsAnonymous() {
		return nil, nil, apperr.Authorization("authentication required")
	}
	description := strings.TrimSpace(in.Description)
	if len(description) > maxOfferDescription {
		return nil, nil, apperr.Validation("description", fmt.Sprintf("must be at most %d characters", maxOfferDescription))
	}

	p, err := s.loadForBid(ctx, actor, propertyID)
	if err != nil {
		return nil, nil, err
	}
	now := s.store.now()
	next, err := workflow.Apply(actor, workflow.ActionSubmitOffer, p, workflow.Input{OfferAmount: in.Amount, Now: now})
	if err != nil {
		return nil, nil, err
	}

	pending, err := s.offers.HasPending(ctx, p.ID, actor.ContractorID)
	if err != nil {
		return nil, nil, apperr.Internal(err, "failed to check existing offers")
	}
	if pending {
		return nil, nil, apperr.Validation("property", "you already have a pending offer on this property")
	}

	offer := &models.PriceOffer{
		Base:        models.NewBase(now),
		Property:    p.ID,
		Contractor:  actor.ContractorID,
		Homeowner:   p.Homeowner,
		Amount:      in.Amount,
		Description: description,
		ProposedAt:  now,
		Status:      models.OfferPending,
	}
	err = s.store.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.offers.Insert(ctx, offer); err != nil {
			return err
		}
		return s.store.save(ctx, actor, workflow.ActionSubmitOffer, p, next, &offer.ID)
	})
	var dup *repository.DuplicateError
	if errors.As(err, &dup) && dup.Field == db.OnePendingOfferIndex {
		return nil, nil, apperr.Validation("property", "you already have a pending offer on this property")
	}
	if err != nil {
		return nil, nil, commitError(err, "submit offer")
	}
	s.store.afterCommit(ctx, p.ID)

	s.store.notify(ctx, tasks.Notification{
		Kind:       tasks.NotifyOfferSubmitted,
		PropertyID: p.ID.Hex(),
		UserIDs:    []string{p.Homeowner.Hex()},
		Data:       map[string]interface{}{"Amount": offer.Amount, "Description": offer.Description},
	})
	return offer, next, nil
}

// loadDecision loads an offer and its property for the homeowner's decision.
func (s *offerService) loadDecision(ctx context.Context, actor models.Actor, offerID primitive.ObjectID) (*models.PriceOffer, *models.Property, error) {
	if actor.IsAnonymous() {
		return nil, nil, apperr.Authorization("authentication required")
	}
	offer, err := s.findVisible(ctx, actor, offerID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.store.loadVisible(ctx, actor, offer.Property)
	if err != nil {
		return nil, nil, err
	}
	return offer, p, nil
}

func (s *offerService) Accept(ctx context.Context, actor models.Actor, offerID primitive.ObjectID) (*AcceptResult, error) {
	offer, p, err := s.loadDecision(ctx, actor, offerID)
	if err != nil {
		return nil, err
	}
	now := s.store.now()
	next, err := workflow.Apply(actor, workflow.ActionAcceptOffer, p, workflow.Input{Offer: offer, Now: now})
	if err != nil {
		return nil, err
	}

	var losing []models.PriceOffer
	err = s.store.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.offers.Decide(ctx, offer.ID, models.OfferAccepted, now); err != nil {
			return err
		}
		var err error
		if losing, err = s.offers.RejectOtherPending(ctx, p.ID, offer.ID, now); err != nil {
			return err
		}
		return s.store.save(ctx, actor, workflow.ActionAcceptOffer, p, next, &offer.ID)
	})
	if err != nil {
		return nil, commitError(err, "accept offer")
	}
	s.store.afterCommit(ctx, p.ID)

	accepted := *offer
	accepted.Status = models.OfferAccepted
	accepted.DecidedAt = &now
	accepted.UpdatedAt = now

	s.store.notify(ctx, tasks.Notification{
		Kind:          tasks.NotifyOfferAccepted,
		PropertyID:    p.ID.Hex(),
		ContractorIDs: []string{accepted.Contractor.Hex()},
		Data:          map[string]interface{}{"Amount": accepted.Amount, "Description": accepted.Description},
	})
	if len(losing) > 0 {
		ids := make([]string, 0, len(losing))
		for _, o := range losing {
			ids = append(ids, o.Contractor.Hex())
		}
		s.store.notify(ctx, tasks.Notification{
			Kind:          tasks.NotifyOfferRejected,
			PropertyID:    p.ID.Hex(),
			ContractorIDs: ids,
		})
	}
	if losing == nil {
		losing = []models.PriceOffer{}
	}
	return &AcceptResult{Offer: &accepted, Property: next, Rejected: losing}, nil
}

func (s *offerService) Reject(ctx context.Context, actor models.Actor, offerID primitive.ObjectID) (*models.PriceOffer, *models.Property, error) {
	offer, p, err := s.loadDecision(ctx, actor, offerID)
	if err != nil {
		return nil, nil, err
	}
	now := s.store.now()
	next, err := workflow.Apply(actor, workflow.ActionRejectOffer, p, workflow.Input{Offer: offer, Now: now})
	if err != nil {
		return nil, nil, err
	}

	err = s.store.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.offers.Decide(ctx, offer.ID, models.OfferRejected, now); err != nil {
			return err
		}
		return s.store.save(ctx, actor, workflow.ActionRejectOffer, p, next, &offer.ID)
	})
	if err != nil {
		return nil, nil, commitError(err, "reject offer")
	}
	s.store.afterCommit(ctx, p.ID)

	rejected := *offer
	rejected.Status = models.OfferRejected
	rejected.DecidedAt = &now
	rejected.UpdatedAt = now

	s.store.notify(ctx, tasks.Notification{
		Kind:          tasks.NotifyOfferRejected,
		PropertyID:    p.ID.Hex(),
		ContractorIDs: []string{rejected.Contractor.Hex()},
	})
	return &rejected, next, nil
}

func (s *offerService) List(ctx context.Context, actor models.Actor, filter OfferListFilter) ([]models.PriceOffer, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	if filter.Status != "" {
		switch filter.Status {
		case models.OfferPending, models.OfferAccepted, models.OfferRejected:
		default:
			return nil, apperr.Validation("status", fmt.Sprintf("unknown offer status %q", filter.Status))
		}
	}
	q, ok := visibility.OfferFilter(actor)
	if !ok {
		return []models.PriceOffer{}, nil
	}
	if filter.Property != nil {
		q["property"] = *filter.Property
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}
	offers, err := s.offers.Find(ctx, q, clampLimit(filter.Limit, s.cfg.ListLimit))
	if err != nil {
		return nil, apperr.Internal(err, "failed to list offers")
	}
	return offers, nil
}

func (s *offerService) Get(ctx context.Context, actor models.Actor, offerID primitive.ObjectID) (*models.PriceOffer, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	return s.findVisible(ctx, actor, offerID)
}

func (s *offerService) findVisible(ctx context.Context, actor models.Actor, offerID primitive.ObjectID) (*models.PriceOffer, error) {
	offer, err := s.offers.FindByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("offer not found")
		}
		return nil, apperr.Internal(err, "failed to load offer")
	}
	if !visibility.CanViewOffer(actor, offer) {
		return nil, apperr.NotFound("offer not found")
	}
	return offer, nil
}
