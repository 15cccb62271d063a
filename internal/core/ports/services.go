package ports

import (
	"context"
	"time"

	"trustbridge/internal/core/domain"
	"trustbridge/pkg/money"

	"github.com/google/uuid"
)

// TokenService validates bearer tokens issued by the external identity
// provider. The engine trusts the resulting claims and never re-verifies.
type TokenService interface {
	Generate(subject string, email *string, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims is the verified identity tuple extracted from a token.
type TokenClaims struct {
	Subject string
	Email   *string
	Role    domain.Role
}

// UserService projects verified identities into local users.
type UserService interface {
	// GetOrCreate returns the user for the token subject, creating the
	// projection on first authenticated request.
	GetOrCreate(ctx context.Context, claims TokenClaims) (*domain.User, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// FeeBreakdown is the exact fee split for one release. The three parts
// always sum to the released amount.
type FeeBreakdown struct {
	PlatformFee  money.Money
	ProcessorFee money.Money
	NetPayout    money.Money
}

// FeeCalculator computes the fee split for a release amount. Pure and
// deterministic: no I/O, same inputs always yield the same outputs.
type FeeCalculator interface {
	Compute(amount money.Money) FeeBreakdown
}

// EscrowService is the transaction engine: it owns the escrow lifecycle,
// combining wallet primitives, fee computation and audit entries inside one
// atomic unit per operation.
type EscrowService interface {
	Create(ctx context.Context, req CreateTransactionRequest) (*domain.Transaction, error)
	Fund(ctx context.Context, txID, actorID uuid.UUID, expectedVersion int) (*domain.Transaction, error)
	Release(ctx context.Context, txID, actorID uuid.UUID, expectedVersion int) (*domain.Transaction, error)
	Dispute(ctx context.Context, txID, actorID uuid.UUID, expectedVersion int) (*domain.Transaction, error)
	Refund(ctx context.Context, txID, actorID uuid.UUID, expectedVersion int) (*domain.Transaction, error)
	Get(ctx context.Context, txID uuid.UUID) (*domain.Transaction, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	AuditTrail(ctx context.Context, txID uuid.UUID) ([]domain.AuditLog, error)
}

// CreateTransactionRequest holds validated input for transaction creation.
// BuyerID is the authenticated caller.
type CreateTransactionRequest struct {
	BuyerID     uuid.UUID
	VendorID    uuid.UUID
	Amount      money.Money
	Currency    string
	Description string
}

// WalletService exposes read access to balances plus the admin-only
// external deposit.
type WalletService interface {
	Balances(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error)
	Deposit(ctx context.Context, req DepositRequest) (*domain.Wallet, error)
}

// DepositRequest holds validated input for an external top-up.
type DepositRequest struct {
	UserID   uuid.UUID
	ActorID  uuid.UUID
	Amount   money.Money
	Currency string
}

// HealthChecker reports the availability of one dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}
