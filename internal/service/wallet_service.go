package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trustbridge/internal/core/domain"
	"trustbridge/internal/core/ports"
	"trustbridge/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WalletServiceImpl implements ports.WalletService: balance reads for any
// user plus the admin-only external deposit.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	userRepo   ports.UserRepository
	auditRepo  ports.AuditRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	walletRepo ports.WalletRepository,
	userRepo ports.UserRepository,
	auditRepo ports.AuditRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		userRepo:   userRepo,
		auditRepo:  auditRepo,
		transactor: transactor,
		log:        log,
	}
}

// Balances returns all wallets owned by a user.
func (s *WalletServiceImpl) Balances(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error) {
	wallets, err := s.walletRepo.GetByUser(ctx, userID)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("list wallets: %w", err))
	}
	return wallets, nil
}

// Deposit credits an external top-up to a user's wallet. Only admins may
// call it: deposits create value inside the ledger, so they are restricted
// to the operator reconciling real-world payments.
func (s *WalletServiceImpl) Deposit(ctx context.Context, req ports.DepositRequest) (*domain.Wallet, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	currency, ok := domain.ParseCurrency(req.Currency)
	if !ok {
		return nil, apperror.ErrUnsupportedCurrency(req.Currency)
	}

	actor, err := s.userRepo.GetByID(ctx, req.ActorID)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("load actor: %w", err))
	}
	if actor == nil {
		return nil, apperror.ErrNotFound("actor")
	}
	if !actor.IsAdmin() {
		return nil, apperror.ErrUnauthorized()
	}

	target, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("load user: %w", err))
	}
	if target == nil {
		return nil, apperror.ErrNotFound("user")
	}

	now := time.Now().UTC()
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if _, err := s.walletRepo.Ensure(ctx, dbTx, req.UserID, currency); err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("ensure wallet: %w", err))
	}
	if err := s.walletRepo.Credit(ctx, dbTx, req.UserID, currency, req.Amount); err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			return nil, apperror.ErrNotFound("wallet")
		}
		return nil, apperror.StorageFailure(fmt.Errorf("credit wallet: %w", err))
	}

	payload := fmt.Sprintf(`{"user_id":%q,"amount":%q,"currency":%q}`,
		req.UserID, req.Amount.String(), string(currency))
	audit := &domain.AuditLog{
		ID:        uuid.New(),
		ActorID:   req.ActorID,
		Action:    domain.AuditWalletDeposited,
		Context:   []byte(payload),
		CreatedAt: now,
	}
	if err := s.auditRepo.Create(ctx, dbTx, audit); err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("append audit: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("amount", req.Amount.String()).
		Str("currency", string(currency)).
		Str("actor_id", req.ActorID.String()).
		Msg("external deposit credited")

	wallet, err := s.walletRepo.GetByUserAndCurrency(ctx, req.UserID, currency)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("reload wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return wallet, nil
}
