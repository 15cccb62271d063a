package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction tags what an audit entry records.
type AuditAction string

const (
	AuditTransactionCreated  AuditAction = "transaction.created"
	AuditTransactionFunded   AuditAction = "transaction.funded"
	AuditTransactionReleased AuditAction = "transaction.released"
	AuditTransactionDisputed AuditAction = "transaction.disputed"
	AuditTransactionRefunded AuditAction = "transaction.refunded"
	AuditWalletDeposited     AuditAction = "wallet.deposited"
	AuditUserCreated         AuditAction = "user.created"
)

// AuditLog is one immutable record of a state-affecting action. Rows are
// inserted in the same database transaction as the mutation they describe
// and are never updated or deleted.
type AuditLog struct {
	ID            uuid.UUID       `json:"id"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"` // nil for user-level events
	ActorID       uuid.UUID       `json:"actor_id"`
	Action        AuditAction     `json:"action"`
	Context       json.RawMessage `json:"context,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TransitionContext is the structured payload recorded for every state
// transition.
type TransitionContext struct {
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Actor     string `json:"actor"`
	Reference string `json:"reference,omitempty"`
}

// NewTransitionAudit builds the audit row for a transaction state change.
func NewTransitionAudit(txn *Transaction, actorID uuid.UUID, action AuditAction, oldStatus TransactionStatus, now time.Time) (*AuditLog, error) {
	ctx := TransitionContext{
		OldStatus: string(oldStatus),
		NewStatus: string(txn.Status),
		Amount:    txn.Amount.String(),
		Currency:  string(txn.Currency),
		Actor:     actorID.String(),
		Reference: txn.Reference,
	}
	payload, err := json.Marshal(ctx)
	if err != nil {
		return nil, err
	}
	txID := txn.ID
	return &AuditLog{
		ID:            uuid.New(),
		TransactionID: &txID,
		ActorID:       actorID,
		Action:        action,
		Context:       payload,
		CreatedAt:     now,
	}, nil
}
