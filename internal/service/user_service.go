package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trustbridge/internal/core/domain"
	"trustbridge/internal/core/ports"
	"trustbridge/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UserServiceImpl implements ports.UserService. Authentication lives with
// the external identity provider; this service only projects verified
// token claims into local user rows.
type UserServiceImpl struct {
	userRepo   ports.UserRepository
	auditRepo  ports.AuditRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewUserService creates a new UserServiceImpl.
func NewUserService(
	userRepo ports.UserRepository,
	auditRepo ports.AuditRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *UserServiceImpl {
	return &UserServiceImpl{
		userRepo:   userRepo,
		auditRepo:  auditRepo,
		transactor: transactor,
		log:        log,
	}
}

// GetOrCreate returns the local user for a verified token subject, creating
// the projection on the first authenticated request.
func (s *UserServiceImpl) GetOrCreate(ctx context.Context, claims ports.TokenClaims) (*domain.User, error) {
	user, err := s.userRepo.GetByExternalUID(ctx, claims.Subject)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("lookup user: %w", err))
	}
	if user != nil {
		if !user.IsActive {
			return nil, apperror.ErrUserInactive()
		}
		return user, nil
	}

	now := time.Now().UTC()
	user = &domain.User{
		ID:          uuid.New(),
		ExternalUID: claims.Subject,
		Email:       claims.Email,
		Role:        claims.Role,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.userRepo.Create(ctx, dbTx, user); err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("create user: %w", err))
	}

	payload, err := json.Marshal(map[string]string{"role": string(user.Role)})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal audit context: %w", err))
	}
	audit := &domain.AuditLog{
		ID:        uuid.New(),
		ActorID:   user.ID,
		Action:    domain.AuditUserCreated,
		Context:   payload,
		CreatedAt: now,
	}
	if err := s.auditRepo.Create(ctx, dbTx, audit); err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("append audit: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("user_id", user.ID.String()).
		Str("role", string(user.Role)).
		Msg("user projection created")

	return user, nil
}

// Get fetches a user by id.
func (s *UserServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		return nil, apperror.ErrNotFound("user")
	}
	return user, nil
}
