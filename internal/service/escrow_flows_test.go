package service

import (
	"context"
	"sync"
	"testing"

	"trustbridge/config"
	"trustbridge/internal/core/domain"
	"trustbridge/internal/core/ports"
	"trustbridge/pkg/apperror"
	"trustbridge/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// escrowWorld wires the real services over the in-memory stores so whole
// lifecycle flows run against wallet state that actually mutates.
type escrowWorld struct {
	state   *memState
	escrow  *EscrowServiceImpl
	wallets *WalletServiceImpl
	buyer   *domain.User
	vendor  *domain.User
	admin   *domain.User
}

func newEscrowWorld(t *testing.T) *escrowWorld {
	t.Helper()
	state := newMemState()
	userRepo := &memUserRepo{state: state}
	walletRepo := &memWalletRepo{state: state}
	txRepo := &memTransactionRepo{state: state}
	auditRepo := &memAuditRepo{state: state}
	transactor := memTransactor{}

	feeCalc, err := NewFeeService(config.FeesConfig{PlatformRate: "0.02", ProcessorRate: "0.01"})
	require.NoError(t, err)

	w := &escrowWorld{
		state:  state,
		buyer:  activeUser(uuid.New(), domain.RoleBuyer),
		vendor: activeUser(uuid.New(), domain.RoleVendor),
		admin:  activeUser(uuid.New(), domain.RoleAdmin),
	}
	treasury := activeUser(testTreasuryID, domain.RoleAdmin)
	for _, u := range []*domain.User{w.buyer, w.vendor, w.admin, treasury} {
		require.NoError(t, userRepo.Create(context.Background(), nil, u))
	}

	w.escrow = NewEscrowService(
		txRepo, walletRepo, userRepo, auditRepo,
		feeCalc, transactor, testTreasuryID, zerolog.Nop(),
	)
	w.wallets = NewWalletService(walletRepo, userRepo, auditRepo, transactor, zerolog.Nop())
	return w
}

func (w *escrowWorld) deposit(t *testing.T, userID uuid.UUID, amount string) {
	t.Helper()
	_, err := w.wallets.Deposit(context.Background(), ports.DepositRequest{
		UserID:   userID,
		ActorID:  w.admin.ID,
		Amount:   money.MustFromString(amount),
		Currency: "NGN",
	})
	require.NoError(t, err)
}

func (w *escrowWorld) wallet(t *testing.T, userID uuid.UUID) *domain.Wallet {
	t.Helper()
	wallet, err := (&memWalletRepo{state: w.state}).GetByUserAndCurrency(context.Background(), userID, domain.CurrencyNGN)
	require.NoError(t, err)
	return wallet
}

// totalHeld sums balance + locked_balance across every wallet. Escrow
// operations only move value between wallets, so this changes only on
// external deposits.
func (w *escrowWorld) totalHeld() money.Money {
	w.state.mu.Lock()
	defer w.state.mu.Unlock()
	total := money.Zero()
	for _, wallet := range w.state.wallets {
		total = total.Add(wallet.Balance).Add(wallet.LockedBalance)
	}
	return total
}

func (w *escrowWorld) create(t *testing.T, amount string) *domain.Transaction {
	t.Helper()
	txn, err := w.escrow.Create(context.Background(), ports.CreateTransactionRequest{
		BuyerID:  w.buyer.ID,
		VendorID: w.vendor.ID,
		Amount:   money.MustFromString(amount),
		Currency: "NGN",
	})
	require.NoError(t, err)
	return txn
}

func TestEscrowFlows_FundAndRelease(t *testing.T) {
	w := newEscrowWorld(t)
	ctx := context.Background()

	w.deposit(t, w.buyer.ID, "150.00")
	txn := w.create(t, "100.00")

	funded, err := w.escrow.Fund(ctx, txn.ID, w.buyer.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFunded, funded.Status)

	buyerWallet := w.wallet(t, w.buyer.ID)
	assert.Equal(t, "50.00000000", buyerWallet.Balance.String())
	assert.Equal(t, "100.00000000", buyerWallet.LockedBalance.String())
	assert.Equal(t, "150.00000000", w.totalHeld().String())

	released, err := w.escrow.Release(ctx, txn.ID, w.buyer.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReleased, released.Status)
	assert.Equal(t, 3, released.Version)
	require.NotNil(t, released.PlatformFee)
	assert.Equal(t, "2.00000000", released.PlatformFee.String())
	assert.Equal(t, "1.00000000", released.ProcessorFee.String())
	assert.Equal(t, "97.00000000", released.NetPayout.String())

	buyerWallet = w.wallet(t, w.buyer.ID)
	assert.Equal(t, "50.00000000", buyerWallet.Balance.String())
	assert.True(t, buyerWallet.LockedBalance.IsZero())
	assert.Equal(t, "97.00000000", w.wallet(t, w.vendor.ID).Balance.String())
	assert.Equal(t, "3.00000000", w.wallet(t, testTreasuryID).Balance.String())
	assert.Equal(t, "150.00000000", w.totalHeld().String())

	trail, err := w.escrow.AuditTrail(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, domain.AuditTransactionCreated, trail[0].Action)
	assert.Equal(t, domain.AuditTransactionFunded, trail[1].Action)
	assert.Equal(t, domain.AuditTransactionReleased, trail[2].Action)
}

func TestEscrowFlows_FundDisputeRefund(t *testing.T) {
	w := newEscrowWorld(t)
	ctx := context.Background()

	w.deposit(t, w.buyer.ID, "100.00")
	txn := w.create(t, "100.00")

	_, err := w.escrow.Fund(ctx, txn.ID, w.buyer.ID, 1)
	require.NoError(t, err)

	disputed, err := w.escrow.Dispute(ctx, txn.ID, w.vendor.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisputed, disputed.Status)
	assert.Equal(t, "100.00000000", w.totalHeld().String())

	refunded, err := w.escrow.Refund(ctx, txn.ID, w.admin.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	assert.Equal(t, 4, refunded.Version)
	assert.Nil(t, refunded.PlatformFee)
	assert.Nil(t, refunded.NetPayout)

	// The full amount returns to the buyer, no fees taken.
	buyerWallet := w.wallet(t, w.buyer.ID)
	assert.Equal(t, "100.00000000", buyerWallet.Balance.String())
	assert.True(t, buyerWallet.LockedBalance.IsZero())
	assert.Nil(t, w.wallet(t, w.vendor.ID))
	assert.Equal(t, "100.00000000", w.totalHeld().String())

	trail, err := w.escrow.AuditTrail(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, trail, 4)
}

func TestEscrowFlows_FundWithoutBalance(t *testing.T) {
	w := newEscrowWorld(t)
	ctx := context.Background()

	txn := w.create(t, "100.00")

	_, err := w.escrow.Fund(ctx, txn.ID, w.buyer.ID, 1)
	assertAppError(t, err, "WAL_001")

	// The transaction is untouched and may be funded after a deposit.
	stored, err := w.escrow.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Equal(t, 1, stored.Version)

	w.deposit(t, w.buyer.ID, "100.00")
	_, err = w.escrow.Fund(ctx, txn.ID, w.buyer.ID, 1)
	assert.NoError(t, err)
}

func TestEscrowFlows_SameVersionLoserGetsConflict(t *testing.T) {
	w := newEscrowWorld(t)
	ctx := context.Background()

	w.deposit(t, w.buyer.ID, "100.00")
	txn := w.create(t, "100.00")
	_, err := w.escrow.Fund(ctx, txn.ID, w.buyer.ID, 1)
	require.NoError(t, err)

	// Two releases observing version 2: the second must fail as a version
	// conflict, not as a funds error, and must move no money.
	_, err = w.escrow.Release(ctx, txn.ID, w.buyer.ID, 2)
	require.NoError(t, err)

	_, err = w.escrow.Release(ctx, txn.ID, w.buyer.ID, 2)
	assertAppError(t, err, "TXN_003")

	assert.Equal(t, "97.00000000", w.wallet(t, w.vendor.ID).Balance.String())
	assert.Equal(t, "3.00000000", w.wallet(t, testTreasuryID).Balance.String())
	assert.Equal(t, "100.00000000", w.totalHeld().String())
}

func TestEscrowFlows_ConcurrentReleaseSameVersion(t *testing.T) {
	w := newEscrowWorld(t)
	ctx := context.Background()

	w.deposit(t, w.buyer.ID, "100.00")
	txn := w.create(t, "100.00")
	_, err := w.escrow.Fund(ctx, txn.ID, w.buyer.ID, 1)
	require.NoError(t, err)

	// All callers observed version 2. Exactly one wins; every loser gets a
	// version conflict because the row lock serializes them behind the
	// winner's commit.
	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = w.escrow.Release(ctx, txn.ID, w.buyer.ID, 2)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "TXN_003", appErr.Code)
	}
	assert.Equal(t, 1, successes)

	// Settled exactly once, value conserved.
	assert.Equal(t, "97.00000000", w.wallet(t, w.vendor.ID).Balance.String())
	assert.Equal(t, "3.00000000", w.wallet(t, testTreasuryID).Balance.String())
	buyerWallet := w.wallet(t, w.buyer.ID)
	assert.True(t, buyerWallet.Balance.IsZero())
	assert.True(t, buyerWallet.LockedBalance.IsZero())
	assert.Equal(t, "100.00000000", w.totalHeld().String())

	stored, err := w.escrow.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReleased, stored.Status)
	assert.Equal(t, 3, stored.Version)
}
