package handlers_test

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/api/middleware"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/auth"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/services"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/workflow"
)

// --- Mocks ---

// MockPropertyService
type MockPropertyService struct {
	mock.Mock
}

func (m *MockPropertyService) Create(ctx context.Context, actor models.Actor, in services.CreatePropertyInput) (*models.Property, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockPropertyService) List(ctx context.Context, actor models.Actor, status models.PropertyStatus, limit int) ([]models.Property, error) {
	args := m.Called(ctx, actor, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Property), args.Error(1)
}

func (m *MockPropertyService) Get(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Property, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockPropertyService) AddImages(ctx context.Context, actor models.Actor, id primitive.ObjectID, uploads []services.Upload) (*models.Property, error) {
	args := m.Called(ctx, actor, id, uploads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockPropertyService) Transition(ctx context.Context, actor models.Actor, id primitive.ObjectID, action workflow.Action, in services.TransitionInput) (*models.Property, error) {
	args := m.Called(ctx, actor, id, action, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockPropertyService) History(ctx context.Context, actor models.Actor, id primitive.ObjectID) ([]models.TransitionRecord, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TransitionRecord), args.Error(1)
}

// MockCompletionService
type MockCompletionService struct {
	mock.Mock
}

func (m *MockCompletionService) Complete(ctx context.Context, actor models.Actor, propertyID primitive.ObjectID, in services.CompleteInput) (*models.Property, []models.CompletionImage, error) {
	args := m.Called(ctx, actor, propertyID, in)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Property), args.Get(1).([]models.CompletionImage), args.Error(2)
}

func (m *MockCompletionService) ListImages(ctx context.Context, actor models.Actor, propertyID primitive.ObjectID) ([]models.CompletionImage, error) {
	args := m.Called(ctx, actor, propertyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CompletionImage), args.Error(1)
}

// MockOfferService
type MockOfferService struct {
	mock.Mock
}

func (m *MockOfferService) Submit(ctx context.Context, actor models.Actor, propertyID primitive.ObjectID, in services.SubmitOfferInput) (*models.PriceOffer, *models.Property, error) {
	args := m.Called(ctx, actor, propertyID, in)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.PriceOffer), args.Get(1).(*models.Property), args.Error(2)
}

func (m *MockOfferService) Accept(ctx context.Context, actor models.Actor, offerID primitive.ObjectID) (*services.AcceptResult, error) {
	args := m.Called(ctx, actor, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AcceptResult), args.Error(1)
}

func (m *MockOfferService) Reject(ctx context.Context, actor models.Actor, offerID primitive.ObjectID) (*models.PriceOffer, *models.Property, error) {
	args := m.Called(ctx, actor, offerID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.PriceOffer), args.Get(1).(*models.Property), args.Error(2)
}

func (m *MockOfferService) List(ctx context.Context, actor models.Actor, filter services.OfferListFilter) ([]models.PriceOffer, error) {
	args := m.Called(ctx, actor, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PriceOffer), args.Error(1)
}

func (m *MockOfferService) Get(ctx context.Context, actor models.Actor, offerID primitive.ObjectID) (*models.PriceOffer, error) {
	args := m.Called(ctx, actor, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PriceOffer), args.Error(1)
}

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Signup(ctx context.Context, in services.SignupInput) (*services.AuthResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthResult), args.Error(1)
}

func (m *MockUserService) Login(ctx context.Context, username, password string) (*services.AuthResult, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthResult), args.Error(1)
}

func (m *MockUserService) Logout(ctx context.Context, claims *auth.Claims) error {
	args := m.Called(ctx, claims)
	return args.Error(0)
}

func (m *MockUserService) Me(ctx context.Context, actor models.Actor) (*models.User, *models.Contractor, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	contractor, _ := args.Get(1).(*models.Contractor)
	return args.Get(0).(*models.User), contractor, args.Error(2)
}

// MockContractorService
type MockContractorService struct {
	mock.Mock
}

func (m *MockContractorService) List(ctx context.Context, actor models.Actor, limit int) ([]models.Contractor, error) {
	args := m.Called(ctx, actor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Contractor), args.Error(1)
}

func (m *MockContractorService) Get(ctx context.Context, actor models.Actor, id primitive.ObjectID) (*models.Contractor, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contractor), args.Error(1)
}

// --- Helpers ---

// withActor stands in for the auth middleware.
func withActor(actor models.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyActor, actor)
		c.Next()
	}
}

var (
	homeownerActor  = models.Actor{UserID: primitive.NewObjectID(), Role: models.RoleHomeowner}
	adminActor      = models.Actor{UserID: primitive.NewObjectID(), Role: models.RoleAdmin}
	contractorActor = models.Actor{UserID: primitive.NewObjectID(), Role: models.RoleContractor, ContractorID: primitive.NewObjectID()}
)
