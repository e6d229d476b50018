package services

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/apperr"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/config"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/repository"
)

// IContractorService exposes contractor profiles to signed-in users.
type IContractorService interface {
	List(ctx context.Context, actor models.Actor, limit int) ([]models.Contractor, error)
	Get(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Contractor, error)
}

type contractorService struct {
	cfg         *config.Config
	contractors repository.IContractorRepository
}

func NewContractorService(cfg *config.Config, contractors repository.IContractorRepository) IContractorService {
	return &contractorService{cfg: cfg, contractors: contractors}
}

func (s *contractorService) List(ctx context.Context, actor models.Actor, limit int) ([]models.Contractor, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	contractors, err := s.contractors.List(ctx, clampLimit(limit, s.cfg.ListLimit))
	if err != nil {
		return nil, apperr.Internal(err, "failed to list contractors")
	}
	return contractors, nil
}

func (s *contractorService) Get(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Contractor, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	c, err := s.contractors.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("contractor not found")
		}
		return nil, apperr.Internal(err, "failed to load contractor")
	}
	return c, nil
}
