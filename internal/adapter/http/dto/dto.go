package dto

import (
	"encoding/json"
	"time"

	"trustbridge/internal/core/domain"
)

// CreateTransactionRequest is the request body for opening an escrow
// transaction. The authenticated caller becomes the buyer.
type CreateTransactionRequest struct {
	VendorID    string `json:"vendor_id" binding:"required,uuid"`
	Amount      string `json:"amount" binding:"required"`
	Currency    string `json:"currency" binding:"required,len=3"`
	Description string `json:"description" binding:"max=500"`
}

// TransitionRequest is the request body shared by every lifecycle
// mutation. ExpectedVersion is the transaction version the caller last
// observed; a mismatch rejects the mutation instead of silently clobbering
// a concurrent change.
type TransitionRequest struct {
	ExpectedVersion int `json:"expected_version" binding:"required,min=1"`
}

// DepositRequest is the request body for an admin external top-up.
type DepositRequest struct {
	UserID   string `json:"user_id" binding:"required,uuid"`
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required,len=3"`
}

// TransactionResponse is the response body for transaction results.
type TransactionResponse struct {
	ID           string     `json:"id"`
	Reference    string     `json:"reference"`
	BuyerID      string     `json:"buyer_id"`
	VendorID     string     `json:"vendor_id"`
	Amount       string     `json:"amount"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	Description  string     `json:"description,omitempty"`
	PlatformFee  *string    `json:"platform_fee,omitempty"`
	ProcessorFee *string    `json:"processor_fee,omitempty"`
	NetPayout    *string    `json:"net_payout,omitempty"`
	FundedAt     *time.Time `json:"funded_at,omitempty"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
	DisputedAt   *time.Time `json:"disputed_at,omitempty"`
	Version      int        `json:"version"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TransactionListResponse wraps a paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// WalletResponse is the response body for one wallet.
type WalletResponse struct {
	Currency      string `json:"currency"`
	Balance       string `json:"balance"`
	LockedBalance string `json:"locked_balance"`
	Total         string `json:"total"`
}

// UserResponse is the response body for the authenticated user.
type UserResponse struct {
	ID          string    `json:"id"`
	Email       *string   `json:"email,omitempty"`
	Role        string    `json:"role"`
	IsActive    bool      `json:"is_active"`
	KYCVerified bool      `json:"kyc_verified"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditLogResponse is one entry of a transaction's audit trail.
type AuditLogResponse struct {
	ID            string          `json:"id"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	ActorID       string          `json:"actor_id"`
	Action        string          `json:"action"`
	Context       json.RawMessage `json:"context,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// FromTransaction converts a domain transaction to its response DTO.
func FromTransaction(t *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:          t.ID.String(),
		Reference:   t.Reference,
		BuyerID:     t.BuyerID.String(),
		VendorID:    t.VendorID.String(),
		Amount:      t.Amount.String(),
		Currency:    string(t.Currency),
		Status:      string(t.Status),
		Description: t.Description,
		FundedAt:    t.FundedAt,
		ReleasedAt:  t.ReleasedAt,
		DisputedAt:  t.DisputedAt,
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.PlatformFee != nil {
		s := t.PlatformFee.String()
		resp.PlatformFee = &s
	}
	if t.ProcessorFee != nil {
		s := t.ProcessorFee.String()
		resp.ProcessorFee = &s
	}
	if t.NetPayout != nil {
		s := t.NetPayout.String()
		resp.NetPayout = &s
	}
	return resp
}

// FromWallet converts a domain wallet to its response DTO.
func FromWallet(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		Currency:      string(w.Currency),
		Balance:       w.Balance.String(),
		LockedBalance: w.LockedBalance.String(),
		Total:         w.Total().String(),
	}
}

// FromUser converts a domain user to its response DTO.
func FromUser(u *domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		Role:        string(u.Role),
		IsActive:    u.IsActive,
		KYCVerified: u.KYCVerified,
		CreatedAt:   u.CreatedAt,
	}
}

// FromAuditLog converts a domain audit entry to its response DTO.
func FromAuditLog(e *domain.AuditLog) AuditLogResponse {
	resp := AuditLogResponse{
		ID:        e.ID.String(),
		ActorID:   e.ActorID.String(),
		Action:    string(e.Action),
		Context:   e.Context,
		CreatedAt: e.CreatedAt,
	}
	if e.TransactionID != nil {
		s := e.TransactionID.String()
		resp.TransactionID = &s
	}
	return resp
}
