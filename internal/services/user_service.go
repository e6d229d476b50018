package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/apperr"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/auth"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/cache"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/config"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/db"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/repository"
)

// ContractorDetails is the professional profile sent with a contractor signup.
type ContractorDetails struct {
	Specialization  string `json:"specialization" validate:"required,max=100"`
	ExperienceYears int    `json:"experience_years" validate:"gte=0,lte=80"`
	LicenseNumber   string `json:"license_number" validate:"required,max=50"`
}

// SignupInput is the payload of a new account.
type SignupInput struct {
	Username          string             `json:"username" validate:"required,min=3,max=150"`
	Email             string             `json:"email" validate:"required,email"`
	Password          string             `json:"password" validate:"required"`
	FirstName         string             `json:"first_name" validate:"max=150"`
	LastName          string             `json:"last_name" validate:"max=150"`
	Role              models.Role        `json:"role" validate:"required,oneof=homeowner admin contractor"`
	Gender            models.Gender      `json:"gender" validate:"omitempty,oneof=male female"`
	DateOfBirth       *time.Time         `json:"date_of_birth"`
	Phone             string             `json:"phone" validate:"max=20"`
	NationalID        string             `json:"national_id" validate:"omitempty,max=10"`
	ContractorDetails *ContractorDetails `json:"contractor_details" validate:"required_if=Role contractor"`
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	Token      string             `json:"token"`
	User       *models.User       `json:"user"`
	Contractor *models.Contractor `json:"contractor,omitempty"`
}

// IUserService defines account operations.
type IUserService interface {
	Signup(ctx context.Context, in SignupInput) (*AuthResult, error)
	Login(ctx context.Context, username, password string) (*AuthResult, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	Me(ctx context.Context, actor models.Actor) (*models.User, *models.Contractor, error)
}

type userService struct {
	cfg         *config.Config
	tx          db.Transactor
	users       repository.IUserRepository
	contractors repository.IContractorRepository
	tokens      cache.ITokenStore
	validate    *validator.Validate
}

// NewUserService creates a new UserService.
func NewUserService(
	cfg *config.Config,
	tx db.Transactor,
	users repository.IUserRepository,
	contractors repository.IContractorRepository,
	tokens cache.ITokenStore,
) IUserService {
	return &userService{
		cfg:         cfg,
		tx:          tx,
		users:       users,
		contractors: contractors,
		tokens:      tokens,
		validate:    apperr.NewValidator(),
	}
}

func (s *userService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.NationalID = strings.TrimSpace(in.NationalID)
	if err := s.validate.Struct(in); err != nil {
		return nil, apperr.FromValidation(err)
	}
	if in.Role == models.RoleAdmin && !s.cfg.AllowAdminSignup {
		return nil, apperr.Authorization("administrator accounts cannot be self-registered")
	}
	ok, err := auth.PasswordMatchesPolicy(in.Password, s.cfg.PasswordRegexp)
	if err != nil {
		return nil, apperr.Internal(err, "failed to check password policy")
	}
	if !ok {
		return nil, apperr.Validation("password", "does not meet the password policy")
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &models.User{
		Base:         models.NewBase(now),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         in.Role,
		Gender:       in.Gender,
		DateOfBirth:  in.DateOfBirth,
		Phone:        strings.TrimSpace(in.Phone),
		NationalID:   in.NationalID,
	}
	var contractor *models.Contractor
	if in.Role == models.RoleContractor {
		contractor = &models.Contractor{
			Base:            models.NewBase(now),
			UserID:          user.ID,
			Specialization:  strings.TrimSpace(in.ContractorDetails.Specialization),
			ExperienceYears: in.ContractorDetails.ExperienceYears,
			LicenseNumber:   strings.TrimSpace(in.ContractorDetails.LicenseNumber),
			Name:            strings.TrimSpace(user.FirstName + " " + user.LastName),
		}
		if contractor.Name == "" {
			contractor.Name = user.Username
		}
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.Insert(ctx, user); err != nil {
			return err
		}
		if contractor == nil {
			return nil
		}
		if err := s.contractors.Insert(ctx, contractor); err != nil {
			return err
		}
		return s.users.SetContractorID(ctx, user.ID, contractor.ID)
	})
	if err != nil {
		var dup *repository.DuplicateError
		if errors.As(err, &dup) {
			return nil, apperr.Validation(dup.Field, "already in use")
		}
		return nil, apperr.Internal(err, "failed to create account")
	}
	if contractor != nil {
		id := contractor.ID
		user.ContractorID = &id
	}

	token, err := auth.GenerateJWT(user, s.cfg.JwtSecret, s.cfg.JwtTTL)
	if err != nil {
		return nil, apperr.Internal(err, "failed to issue token")
	}
	log.Printf("Registered %s account %s", user.Role, user.ID.Hex())
	return &AuthResult{Token: token, User: user, Contractor: contractor}, nil
}

func (s *userService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Authorization("Incorrect credentials")
		}
		return nil, apperr.Internal(err, "failed to look up user")
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, apperr.Authorization("Incorrect credentials")
	}
	token, err := auth.GenerateJWT(user, s.cfg.JwtSecret, s.cfg.JwtTTL)
	if err != nil {
		return nil, apperr.Internal(err, "failed to issue token")
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *userService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return apperr.Authorization("authentication required")
	}
	expiresAt := time.Now().Add(s.cfg.JwtTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.tokens.Revoke(ctx, claims.ID, expiresAt); err != nil {
		return apperr.Internal(err, "failed to revoke token")
	}
	return nil
}

func (s *userService) Me(ctx context.Context, actor models.Actor) (*models.User, *models.Contractor, error) {
	if actor.IsAnonymous() {
		return nil, nil, apperr.Authorization("authentication required")
	}
	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperr.NotFound("user not found")
		}
		return nil, nil, apperr.Internal(err, "failed to load user")
	}
	if user.ContractorID == nil {
		return user, nil, nil
	}
	contractor, err := s.contractors.FindByID(ctx, *user.ContractorID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperr.Internal(err, "failed to load contractor profile")
	}
	return user, contractor, nil
}
