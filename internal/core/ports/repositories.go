package ports

import (
	"context"

	"trustbridge/internal/core/domain"
	"trustbridge/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository defines persistence operations for identity projections.
type UserRepository interface {
	Create(ctx context.Context, tx pgx.Tx, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByExternalUID(ctx context.Context, externalUID string) (*domain.User, error)
}

// WalletRepository defines the wallet store primitives. Methods accepting
// pgx.Tx mutate balances and must run inside the owning operation's
// database transaction; each mutation is a guarded single-statement update
// so balances can never go negative.
type WalletRepository interface {
	// Ensure returns the (user, currency) wallet, creating it with zero
	// balances on first use.
	Ensure(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency domain.Currency) (*domain.Wallet, error)
	// Lock moves amount from balance to locked_balance. Returns
	// domain.ErrInsufficientFunds when balance < amount.
	Lock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency domain.Currency, amount money.Money) error
	// Unlock moves amount from locked_balance back to balance. Returns
	// domain.ErrInsufficientLockedFunds when locked_balance < amount.
	Unlock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency domain.Currency, amount money.Money) error
	// SettleLocked debits amount from the source's locked_balance and
	// credits it to the destination's balance: a closed transfer.
	SettleLocked(ctx context.Context, tx pgx.Tx, fromUserID, toUserID uuid.UUID, currency domain.Currency, amount money.Money) error
	// Credit adds amount to balance (external deposit, the one non-closed
	// primitive).
	Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency domain.Currency, amount money.Money) error
	GetByUser(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error)
	GetByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency domain.Currency) (*domain.Wallet, error)
}

// TransactionRepository defines persistence operations for escrow
// transactions. Soft-deleted rows are excluded from every query.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// GetByIDInTx re-reads the transaction inside the current database
	// transaction, giving the engine the authoritative version to check.
	GetByIDInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error)
	// UpdateState persists txn's status, fee fields, timestamps and
	// version+1, guarded by `version = expectedVersion`. Returns
	// domain.ErrVersionConflict when the guard matches no row.
	UpdateState(ctx context.Context, tx pgx.Tx, txn *domain.Transaction, expectedVersion int) error
	ListByUser(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	UserID   uuid.UUID // Matches buyer or vendor
	Status   *domain.TransactionStatus
	Page     int
	PageSize int
}

// AuditRepository defines the append-only audit trail. There is no update
// or delete: Create inside the mutating transaction is the whole write API.
type AuditRepository interface {
	Create(ctx context.Context, tx pgx.Tx, entry *domain.AuditLog) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.AuditLog, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
