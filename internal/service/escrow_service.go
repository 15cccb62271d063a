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
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// EscrowServiceImpl implements ports.EscrowService. Every mutation runs as
// one database transaction: re-read the row, check the caller's expected
// version, validate the transition, move funds, bump the version and append
// the audit entry. Either all of it commits or none of it does.
type EscrowServiceImpl struct {
	txRepo     ports.TransactionRepository
	walletRepo ports.WalletRepository
	userRepo   ports.UserRepository
	auditRepo  ports.AuditRepository
	feeCalc    ports.FeeCalculator
	transactor ports.DBTransactor
	treasuryID uuid.UUID
	log        zerolog.Logger
}

// NewEscrowService creates a new EscrowServiceImpl. treasuryID is the
// platform user whose wallets receive retained fees at release.
func NewEscrowService(
	txRepo ports.TransactionRepository,
	walletRepo ports.WalletRepository,
	userRepo ports.UserRepository,
	auditRepo ports.AuditRepository,
	feeCalc ports.FeeCalculator,
	transactor ports.DBTransactor,
	treasuryID uuid.UUID,
	log zerolog.Logger,
) *EscrowServiceImpl {
	return &EscrowServiceImpl{
		txRepo:     txRepo,
		walletRepo: walletRepo,
		userRepo:   userRepo,
		auditRepo:  auditRepo,
		feeCalc:    feeCalc,
		transactor: transactor,
		treasuryID: treasuryID,
		log:        log,
	}
}

// Create opens a new escrow agreement in PENDING. No funds move yet.
func (s *EscrowServiceImpl) Create(ctx context.Context, req ports.CreateTransactionRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	currency, ok := domain.ParseCurrency(req.Currency)
	if !ok {
		return nil, apperror.ErrUnsupportedCurrency(req.Currency)
	}
	if req.BuyerID == req.VendorID {
		return nil, apperror.ErrBuyerIsVendor()
	}

	buyer, err := s.userRepo.GetByID(ctx, req.BuyerID)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("load buyer: %w", err))
	}
	if buyer == nil {
		return nil, apperror.ErrNotFound("buyer")
	}
	if !buyer.IsActive {
		return nil, apperror.ErrUserInactive()
	}
	vendor, err := s.userRepo.GetByID(ctx, req.VendorID)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("load vendor: %w", err))
	}
	if vendor == nil {
		return nil, apperror.ErrNotFound("vendor")
	}
	if !vendor.IsActive {
		return nil, apperror.ErrUserInactive()
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:          uuid.New(),
		Reference:   domain.NewReference(now),
		BuyerID:     req.BuyerID,
		VendorID:    req.VendorID,
		Amount:      req.Amount,
		Currency:    currency,
		Status:      domain.StatusPending,
		Description: req.Description,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("create transaction: %w", err))
	}

	audit, err := domain.NewTransitionAudit(txn, req.BuyerID, domain.AuditTransactionCreated, "", now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("build audit entry: %w", err))
	}
	if err := s.auditRepo.Create(ctx, dbTx, audit); err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("append audit: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("reference", txn.Reference).
		Str("amount", txn.Amount.String()).
		Str("currency", string(txn.Currency)).
		Msg("escrow transaction created")

	return txn, nil
}

// Fund moves the escrow amount from the buyer's available balance into the
// buyer's locked balance and transitions PENDING -> FUNDED.
func (s *EscrowServiceImpl) Fund(ctx context.Context, txID, actorID uuid.UUID, expectedVersion int) (*domain.Transaction, error) {
	return s.transition(ctx, txID, actorID, expectedVersion, domain.StatusFunded, domain.AuditTransactionFunded,
		func(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, now time.Time) error {
			if actorID != txn.BuyerID {
				return apperror.ErrUnauthorized()
			}
			if _, err := s.walletRepo.Ensure(ctx, dbTx, txn.BuyerID, txn.Currency); err != nil {
				return apperror.StorageFailure(fmt.Errorf("ensure buyer wallet: %w", err))
			}
			if err := s.walletRepo.Lock(ctx, dbTx, txn.BuyerID, txn.Currency, txn.Amount); err != nil {
				return s.mapWalletError(err, "lock funds")
			}
			txn.FundedAt = &now
			return nil
		})
}

// Release settles a funded or disputed escrow: the vendor receives the net
// payout, the treasury receives the retained fees, all out of the buyer's
// locked balance. From FUNDED the buyer (or an admin) may release; from
// DISPUTED only an admin may.
func (s *EscrowServiceImpl) Release(ctx context.Context, txID, actorID uuid.UUID, expectedVersion int) (*domain.Transaction, error) {
	return s.transition(ctx, txID, actorID, expectedVersion, domain.StatusReleased, domain.AuditTransactionReleased,
		func(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, now time.Time) error {
			actor, err := s.loadActor(ctx, actorID)
			if err != nil {
				return err
			}
			fromDispute := txn.Status == domain.StatusDisputed
			if fromDispute && !actor.IsAdmin() {
				return apperror.ErrUnauthorized()
			}
			if !fromDispute && actorID != txn.BuyerID && !actor.IsAdmin() {
				return apperror.ErrUnauthorized()
			}

			fees := s.feeCalc.Compute(txn.Amount)
			if err := s.walletRepo.SettleLocked(ctx, dbTx, txn.BuyerID, txn.VendorID, txn.Currency, fees.NetPayout); err != nil {
				return s.mapWalletError(err, "settle payout")
			}
			retained := fees.PlatformFee.Add(fees.ProcessorFee)
			if retained.IsPositive() {
				if err := s.walletRepo.SettleLocked(ctx, dbTx, txn.BuyerID, s.treasuryID, txn.Currency, retained); err != nil {
					return s.mapWalletError(err, "settle fees")
				}
			}

			txn.PlatformFee = &fees.PlatformFee
			txn.ProcessorFee = &fees.ProcessorFee
			txn.NetPayout = &fees.NetPayout
			txn.ReleasedAt = &now
			return nil
		})
}

// Dispute freezes a funded escrow. Either participant may raise it.
func (s *EscrowServiceImpl) Dispute(ctx context.Context, txID, actorID uuid.UUID, expectedVersion int) (*domain.Transaction, error) {
	return s.transition(ctx, txID, actorID, expectedVersion, domain.StatusDisputed, domain.AuditTransactionDisputed,
		func(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, now time.Time) error {
			if actorID != txn.BuyerID && actorID != txn.VendorID {
				return apperror.ErrUnauthorized()
			}
			txn.DisputedAt = &now
			return nil
		})
}

// Refund resolves a dispute in the buyer's favor: the full locked amount
// returns to the buyer's available balance with no fees taken. Admin only.
func (s *EscrowServiceImpl) Refund(ctx context.Context, txID, actorID uuid.UUID, expectedVersion int) (*domain.Transaction, error) {
	return s.transition(ctx, txID, actorID, expectedVersion, domain.StatusRefunded, domain.AuditTransactionRefunded,
		func(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, now time.Time) error {
			actor, err := s.loadActor(ctx, actorID)
			if err != nil {
				return err
			}
			if !actor.IsAdmin() {
				return apperror.ErrUnauthorized()
			}
			if err := s.walletRepo.Unlock(ctx, dbTx, txn.BuyerID, txn.Currency, txn.Amount); err != nil {
				return s.mapWalletError(err, "unlock funds")
			}
			return nil
		})
}

// Get fetches one transaction.
func (s *EscrowServiceImpl) Get(ctx context.Context, txID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	return txn, nil
}

// List fetches transactions involving a user.
func (s *EscrowServiceImpl) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	txns, total, err := s.txRepo.ListByUser(ctx, params)
	if err != nil {
		return nil, 0, apperror.StorageFailure(fmt.Errorf("list transactions: %w", err))
	}
	return txns, total, nil
}

// AuditTrail returns a transaction's audit entries, oldest first.
func (s *EscrowServiceImpl) AuditTrail(ctx context.Context, txID uuid.UUID) ([]domain.AuditLog, error) {
	if _, err := s.Get(ctx, txID); err != nil {
		return nil, err
	}
	entries, err := s.auditRepo.ListByTransaction(ctx, txID)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("list audit trail: %w", err))
	}
	return entries, nil
}

// transition runs the shared mutation skeleton: begin, authoritative
// re-read, fail-fast version check, state-machine check, operation-specific
// step, guarded update, audit, commit.
func (s *EscrowServiceImpl) transition(
	ctx context.Context,
	txID, actorID uuid.UUID,
	expectedVersion int,
	target domain.TransactionStatus,
	action domain.AuditAction,
	step func(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, now time.Time) error,
) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err := s.txRepo.GetByIDInTx(ctx, dbTx, txID)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}

	// Fail fast before any funds move. The UPDATE guard below still
	// protects against writers that slip in after this read.
	if txn.Version != expectedVersion {
		return nil, apperror.ErrVersionConflict()
	}
	oldStatus := txn.Status
	if !domain.CanTransition(oldStatus, target) {
		return nil, apperror.ErrInvalidStateTransition(string(oldStatus), string(target))
	}

	now := time.Now().UTC()
	if err := step(ctx, dbTx, txn, now); err != nil {
		return nil, err
	}

	txn.Status = target
	txn.UpdatedAt = now
	if err := s.txRepo.UpdateState(ctx, dbTx, txn, expectedVersion); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, apperror.ErrVersionConflict()
		}
		return nil, apperror.StorageFailure(fmt.Errorf("update transaction: %w", err))
	}
	txn.Version = expectedVersion + 1

	audit, err := domain.NewTransitionAudit(txn, actorID, action, oldStatus, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("build audit entry: %w", err))
	}
	if err := s.auditRepo.Create(ctx, dbTx, audit); err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("append audit: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("from", string(oldStatus)).
		Str("to", string(target)).
		Int("version", txn.Version).
		Str("actor_id", actorID.String()).
		Msg("escrow transaction transitioned")

	return txn, nil
}

func (s *EscrowServiceImpl) loadActor(ctx context.Context, actorID uuid.UUID) (*domain.User, error) {
	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, apperror.StorageFailure(fmt.Errorf("load actor: %w", err))
	}
	if actor == nil {
		return nil, apperror.ErrNotFound("actor")
	}
	if !actor.IsActive {
		return nil, apperror.ErrUserInactive()
	}
	return actor, nil
}

func (s *EscrowServiceImpl) mapWalletError(err error, op string) error {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return apperror.ErrInsufficientFunds()
	case errors.Is(err, domain.ErrInsufficientLockedFunds):
		return apperror.ErrInsufficientLockedFunds()
	default:
		return apperror.StorageFailure(fmt.Errorf("%s: %w", op, err))
	}
}
