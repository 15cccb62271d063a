package domain

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"trustbridge/pkg/money"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input string
		want  Role
		ok    bool
	}{
		{"buyer", RoleBuyer, true},
		{"vendor", RoleVendor, true},
		{"admin", RoleAdmin, true},
		{"Buyer", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseRole(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCurrency(t *testing.T) {
	for _, code := range []string{"NGN", "GHS", "KES", "USD"} {
		c, ok := ParseCurrency(code)
		assert.True(t, ok, code)
		assert.Equal(t, Currency(code), c)
	}

	_, ok := ParseCurrency("EUR")
	assert.False(t, ok)
	_, ok = ParseCurrency("ngn")
	assert.False(t, ok)
}

func TestParseStatus_ActiveAlias(t *testing.T) {
	// ACTIVE is a legacy synonym for FUNDED, accepted on input only.
	got, ok := ParseStatus("ACTIVE")
	require.True(t, ok)
	assert.Equal(t, StatusFunded, got)
}

func TestParseStatus(t *testing.T) {
	for _, s := range []TransactionStatus{StatusPending, StatusFunded, StatusReleased, StatusDisputed, StatusRefunded} {
		got, ok := ParseStatus(string(s))
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}

	_, ok := ParseStatus("CANCELLED")
	assert.False(t, ok)
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to TransactionStatus }{
		{StatusPending, StatusFunded},
		{StatusFunded, StatusReleased},
		{StatusFunded, StatusDisputed},
		{StatusDisputed, StatusReleased},
		{StatusDisputed, StatusRefunded},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}

	denied := []struct{ from, to TransactionStatus }{
		{StatusPending, StatusReleased},
		{StatusPending, StatusDisputed},
		{StatusPending, StatusRefunded},
		{StatusFunded, StatusFunded},
		{StatusFunded, StatusPending},
		{StatusReleased, StatusRefunded},
		{StatusReleased, StatusDisputed},
		{StatusRefunded, StatusFunded},
		{StatusDisputed, StatusFunded},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr.from, tr.to), "%s -> %s", tr.from, tr.to)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusReleased.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusFunded.IsTerminal())
	assert.False(t, StatusDisputed.IsTerminal())
}

func TestNewReference(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ref := NewReference(now)

	assert.Regexp(t, regexp.MustCompile(`^TB-20240101-[0-9A-F]{8}$`), ref)

	// Two references generated back to back should differ.
	assert.NotEqual(t, ref, NewReference(now))
}

func TestWallet_Total(t *testing.T) {
	w := &Wallet{
		Balance:       money.MustFromString("10.00"),
		LockedBalance: money.MustFromString("2.50"),
	}
	assert.Equal(t, "12.50000000", w.Total().String())
}

func TestUser_IsAdmin(t *testing.T) {
	assert.True(t, (&User{Role: RoleAdmin}).IsAdmin())
	assert.False(t, (&User{Role: RoleBuyer}).IsAdmin())
}

func TestNewTransitionAudit(t *testing.T) {
	txn := &Transaction{
		ID:        uuid.New(),
		Reference: "TB-20240101-AABBCCDD",
		Amount:    money.MustFromString("100.00"),
		Currency:  CurrencyNGN,
		Status:    StatusFunded,
	}
	actor := uuid.New()
	now := time.Now().UTC()

	entry, err := NewTransitionAudit(txn, actor, AuditTransactionFunded, StatusPending, now)
	require.NoError(t, err)

	require.NotNil(t, entry.TransactionID)
	assert.Equal(t, txn.ID, *entry.TransactionID)
	assert.Equal(t, actor, entry.ActorID)
	assert.Equal(t, AuditTransactionFunded, entry.Action)
	assert.Equal(t, now, entry.CreatedAt)

	var ctx TransitionContext
	require.NoError(t, json.Unmarshal(entry.Context, &ctx))
	assert.Equal(t, "PENDING", ctx.OldStatus)
	assert.Equal(t, "FUNDED", ctx.NewStatus)
	assert.Equal(t, "100.00000000", ctx.Amount)
	assert.Equal(t, "NGN", ctx.Currency)
	assert.Equal(t, actor.String(), ctx.Actor)
}
