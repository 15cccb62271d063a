package postgres

import (
	"context"
	"errors"
	"fmt"

	"trustbridge/internal/core/domain"
	"trustbridge/internal/core/ports"
	"trustbridge/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository. Soft-deleted rows
// are invisible to every query here.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, reference, buyer_id, vendor_id, amount::text, currency, status, description,
		platform_fee::text, processor_fee::text, net_payout::text,
		funded_at, released_at, disputed_at, version, created_at, updated_at`

// Create inserts a new transaction within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, reference, buyer_id, vendor_id, amount, currency, status, description,
		platform_fee, processor_fee, net_payout, funded_at, released_at, disputed_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9::numeric, $10::numeric, $11::numeric, $12, $13, $14, $15, $16, $17)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.Reference, t.BuyerID, t.VendorID,
		t.Amount.String(), string(t.Currency), string(t.Status), t.Description,
		nullableAmount(t.PlatformFee), nullableAmount(t.ProcessorFee), nullableAmount(t.NetPayout),
		t.FundedAt, t.ReleasedAt, t.DisputedAt,
		t.Version, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID. Returns nil when no live row exists.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND deleted_at IS NULL`
	return scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// GetByIDInTx re-reads a transaction inside the current database
// transaction, taking a row lock. This is the authoritative read the
// engine's version check runs against: a concurrent writer blocks here
// until the holder commits, then observes the bumped version and fails
// with a version conflict instead of tripping over wallet guards.
func (r *TransactionRepo) GetByIDInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	return scanTransaction(tx.QueryRow(ctx, query, id))
}

// UpdateState persists the transaction's status, fee fields, lifecycle
// timestamps and version+1 in one statement guarded by the expected
// version. Zero affected rows means a concurrent writer got there first.
func (r *TransactionRepo) UpdateState(ctx context.Context, tx pgx.Tx, t *domain.Transaction, expectedVersion int) error {
	query := `UPDATE transactions
		SET status = $1, platform_fee = $2::numeric, processor_fee = $3::numeric, net_payout = $4::numeric,
			funded_at = $5, released_at = $6, disputed_at = $7,
			version = version + 1, updated_at = NOW()
		WHERE id = $8 AND version = $9 AND deleted_at IS NULL`

	tag, err := tx.Exec(ctx, query,
		string(t.Status),
		nullableAmount(t.PlatformFee), nullableAmount(t.ProcessorFee), nullableAmount(t.NetPayout),
		t.FundedAt, t.ReleasedAt, t.DisputedAt,
		t.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update transaction state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// ListByUser fetches transactions where the user is buyer or vendor, with
// optional status filter and pagination.
func (r *TransactionRepo) ListByUser(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	where := `WHERE (buyer_id = $1 OR vendor_id = $1) AND deleted_at IS NULL`
	args := []any{params.UserID}

	if params.Status != nil {
		where += ` AND status = $2`
		args = append(args, string(*params.Status))
	}

	countQuery := `SELECT COUNT(*) FROM transactions ` + where
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT `+transactionColumns+` FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransactionValues(rows)
		if err != nil {
			return nil, 0, err
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t, err := scanTransactionValues(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func scanTransactionValues(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var currency, status, amount string
	var platformFee, processorFee, netPayout *string

	err := row.Scan(
		&t.ID, &t.Reference, &t.BuyerID, &t.VendorID,
		&amount, &currency, &status, &t.Description,
		&platformFee, &processorFee, &netPayout,
		&t.FundedAt, &t.ReleasedAt, &t.DisputedAt,
		&t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	t.Currency = domain.Currency(currency)
	t.Status = domain.TransactionStatus(status)
	if t.Amount, err = money.FromString(amount); err != nil {
		return nil, fmt.Errorf("parse transaction amount: %w", err)
	}
	if t.PlatformFee, err = parseNullableAmount(platformFee); err != nil {
		return nil, fmt.Errorf("parse platform fee: %w", err)
	}
	if t.ProcessorFee, err = parseNullableAmount(processorFee); err != nil {
		return nil, fmt.Errorf("parse processor fee: %w", err)
	}
	if t.NetPayout, err = parseNullableAmount(netPayout); err != nil {
		return nil, fmt.Errorf("parse net payout: %w", err)
	}
	return t, nil
}

func nullableAmount(m *money.Money) *string {
	if m == nil {
		return nil
	}
	s := m.String()
	return &s
}

func parseNullableAmount(s *string) (*money.Money, error) {
	if s == nil {
		return nil, nil
	}
	m, err := money.FromString(*s)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
