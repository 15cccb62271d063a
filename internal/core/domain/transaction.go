package domain

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"trustbridge/pkg/money"

	"github.com/google/uuid"
)

// TransactionStatus is the lifecycle state of an escrow transaction.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "PENDING"
	StatusFunded   TransactionStatus = "FUNDED"
	StatusReleased TransactionStatus = "RELEASED"
	StatusDisputed TransactionStatus = "DISPUTED"
	StatusRefunded TransactionStatus = "REFUNDED"

	// statusActiveAlias is a legacy label some callers still send for the
	// funded state. It is accepted on input and never emitted.
	statusActiveAlias = "ACTIVE"
)

// ParseStatus converts an external status label into a TransactionStatus,
// folding the legacy ACTIVE alias into FUNDED.
func ParseStatus(s string) (TransactionStatus, bool) {
	if s == statusActiveAlias {
		return StatusFunded, true
	}
	switch TransactionStatus(s) {
	case StatusPending, StatusFunded, StatusReleased, StatusDisputed, StatusRefunded:
		return TransactionStatus(s), true
	}
	return "", false
}

// transitions is the closed state graph. Any edge not listed is invalid.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:  {StatusFunded},
	StatusFunded:   {StatusReleased, StatusDisputed},
	StatusDisputed: {StatusReleased, StatusRefunded},
	StatusReleased: {},
	StatusRefunded: {},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func (s TransactionStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Transaction is one escrow agreement between a buyer and a vendor.
// Amount is fixed at creation. Fee fields stay nil until release and are
// immutable afterwards. Version implements optimistic locking: every
// successful mutation increments it, and mutations carry the version the
// caller last observed.
type Transaction struct {
	ID           uuid.UUID         `json:"id"`
	Reference    string            `json:"reference"`
	BuyerID      uuid.UUID         `json:"buyer_id"`
	VendorID     uuid.UUID         `json:"vendor_id"`
	Amount       money.Money       `json:"amount"`
	Currency     Currency          `json:"currency"`
	Status       TransactionStatus `json:"status"`
	Description  string            `json:"description"`
	PlatformFee  *money.Money      `json:"platform_fee,omitempty"`
	ProcessorFee *money.Money      `json:"processor_fee,omitempty"`
	NetPayout    *money.Money      `json:"net_payout,omitempty"`
	FundedAt     *time.Time        `json:"funded_at,omitempty"`
	ReleasedAt   *time.Time        `json:"released_at,omitempty"`
	DisputedAt   *time.Time        `json:"disputed_at,omitempty"`
	Version      int               `json:"version"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	DeletedAt    *time.Time        `json:"-"` // Soft delete, excluded from normal queries
}

// NewReference builds a human-readable transaction reference of the form
// TB-20240101-3FA9C2D1.
func NewReference(now time.Time) string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// uuid-derived suffix rather than panic in the money path.
		copy(suffix, uuid.New().NodeID())
	}
	return "TB-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(suffix))
}
