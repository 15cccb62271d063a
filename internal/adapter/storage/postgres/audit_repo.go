package postgres

import (
	"context"
	"fmt"

	"trustbridge/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditRepo implements ports.AuditRepository. The table is append-only:
// Create runs inside the mutating database transaction so the audit row
// commits or rolls back together with the state change it describes. There
// is deliberately no update or delete method.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Create appends one audit entry within a database transaction.
func (r *AuditRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.AuditLog) error {
	query := `INSERT INTO audit_logs (id, transaction_id, actor_id, action, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := tx.Exec(ctx, query,
		entry.ID, entry.TransactionID, entry.ActorID,
		string(entry.Action), entry.Context, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListByTransaction fetches the audit trail for one transaction, oldest
// first.
func (r *AuditRepo) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.AuditLog, error) {
	query := `SELECT id, transaction_id, actor_id, action, context, created_at
		FROM audit_logs WHERE transaction_id = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditLog
	for rows.Next() {
		var e domain.AuditLog
		var action string
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.ActorID, &action, &e.Context, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.Action = domain.AuditAction(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return entries, nil
}
