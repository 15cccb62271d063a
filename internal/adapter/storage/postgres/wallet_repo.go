package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trustbridge/internal/core/domain"
	"trustbridge/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository. Every balance mutation is a
// guarded single-statement UPDATE: the guard (`balance >= amount`) makes a
// negative balance unreachable and turns an uncovered debit into zero
// affected rows instead of corrupt state. Amounts travel as fixed-point
// strings and are cast to NUMERIC in SQL; balances are selected back as
// text so no float ever touches a monetary value.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumns = `id, user_id, currency, balance::text, locked_balance::text, created_at, updated_at`

// Ensure returns the (user, currency) wallet, creating it with zero
// balances on first use. Must run inside the owning operation's
// transaction so the new wallet is visible to subsequent primitives.
func (r *WalletRepo) Ensure(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	now := time.Now().UTC()
	insert := `INSERT INTO wallets (id, user_id, currency, balance, locked_balance, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4, $4)
		ON CONFLICT (user_id, currency) DO NOTHING`

	if _, err := tx.Exec(ctx, insert, uuid.New(), userID, string(currency), now); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}

	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 AND currency = $2`
	w, err := scanWallet(tx.QueryRow(ctx, query, userID, string(currency)))
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, domain.ErrWalletNotFound
	}
	return w, nil
}

// Lock moves amount from balance to locked_balance. The caller has already
// ensured the wallet exists, so zero affected rows means the available
// balance cannot cover the amount.
func (r *WalletRepo) Lock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency domain.Currency, amount money.Money) error {
	query := `UPDATE wallets
		SET balance = balance - $3::numeric, locked_balance = locked_balance + $3::numeric, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2 AND balance >= $3::numeric`

	tag, err := tx.Exec(ctx, query, userID, string(currency), amount.String())
	if err != nil {
		return fmt.Errorf("lock funds: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Unlock moves amount from locked_balance back to balance.
func (r *WalletRepo) Unlock(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency domain.Currency, amount money.Money) error {
	query := `UPDATE wallets
		SET balance = balance + $3::numeric, locked_balance = locked_balance - $3::numeric, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2 AND locked_balance >= $3::numeric`

	tag, err := tx.Exec(ctx, query, userID, string(currency), amount.String())
	if err != nil {
		return fmt.Errorf("unlock funds: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientLockedFunds
	}
	return nil
}

// SettleLocked debits amount from the source's locked_balance and credits
// it to the destination's balance. The two statements run in the same
// database transaction, so the transfer is atomic and closed: value is
// neither created nor destroyed.
func (r *WalletRepo) SettleLocked(ctx context.Context, tx pgx.Tx, fromUserID, toUserID uuid.UUID, currency domain.Currency, amount money.Money) error {
	debit := `UPDATE wallets
		SET locked_balance = locked_balance - $3::numeric, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2 AND locked_balance >= $3::numeric`

	tag, err := tx.Exec(ctx, debit, fromUserID, string(currency), amount.String())
	if err != nil {
		return fmt.Errorf("settle debit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientLockedFunds
	}

	if _, err := r.Ensure(ctx, tx, toUserID, currency); err != nil {
		return fmt.Errorf("settle ensure destination: %w", err)
	}

	credit := `UPDATE wallets
		SET balance = balance + $3::numeric, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2`

	tag, err = tx.Exec(ctx, credit, toUserID, string(currency), amount.String())
	if err != nil {
		return fmt.Errorf("settle credit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// Credit adds amount to the wallet's available balance. This is the only
// primitive that is not a closed transfer; it backs external deposits.
func (r *WalletRepo) Credit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency domain.Currency, amount money.Money) error {
	query := `UPDATE wallets
		SET balance = balance + $3::numeric, updated_at = NOW()
		WHERE user_id = $1 AND currency = $2`

	tag, err := tx.Exec(ctx, query, userID, string(currency), amount.String())
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// GetByUser fetches all wallets owned by a user (non-locking read).
func (r *WalletRepo) GetByUser(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 ORDER BY currency`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWalletValues(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}

// GetByUserAndCurrency fetches one wallet (non-locking read). Returns nil
// when the wallet does not exist yet.
func (r *WalletRepo) GetByUserAndCurrency(ctx context.Context, userID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 AND currency = $2`
	return scanWallet(r.pool.QueryRow(ctx, query, userID, string(currency)))
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w, err := scanWalletValues(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

func scanWalletValues(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var currency, balance, locked string
	err := row.Scan(
		&w.ID, &w.UserID, &currency, &balance, &locked,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	w.Currency = domain.Currency(currency)
	if w.Balance, err = money.FromString(balance); err != nil {
		return nil, fmt.Errorf("parse wallet balance: %w", err)
	}
	if w.LockedBalance, err = money.FromString(locked); err != nil {
		return nil, fmt.Errorf("parse wallet locked balance: %w", err)
	}
	return w, nil
}
