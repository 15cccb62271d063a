package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"trustbridge/internal/core/domain"
	"trustbridge/internal/core/ports"
	"trustbridge/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// In-memory implementations of the storage ports, for exercising full
// escrow flows against wallet state that actually mutates. The transaction
// row lock taken by GetByIDInTx is emulated with a per-row mutex held until
// the enclosing memTx commits or rolls back, so concurrent mutations
// serialize exactly like they do against the real store.

type walletKey struct {
	userID   uuid.UUID
	currency domain.Currency
}

type memState struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*domain.User
	wallets  map[walletKey]*domain.Wallet
	txns     map[uuid.UUID]*domain.Transaction
	audits   []domain.AuditLog
	rowLocks map[uuid.UUID]*sync.Mutex
}

func newMemState() *memState {
	return &memState{
		users:    make(map[uuid.UUID]*domain.User),
		wallets:  make(map[walletKey]*domain.Wallet),
		txns:     make(map[uuid.UUID]*domain.Transaction),
		rowLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *memState) rowLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk, ok := s.rowLocks[id]
	if !ok {
		lk = &sync.Mutex{}
		s.rowLocks[id] = lk
	}
	return lk
}

// memTx is a pgx.Tx stand-in that releases held row locks exactly once,
// on whichever of Commit/Rollback runs first.
type memTx struct {
	pgx.Tx
	mu      sync.Mutex
	closed  bool
	onClose []func()
}

func (t *memTx) addOnClose(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = append(t.onClose, f)
}

func (t *memTx) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, f := range t.onClose {
		f()
	}
}

func (t *memTx) Commit(_ context.Context) error   { t.close(); return nil }
func (t *memTx) Rollback(_ context.Context) error { t.close(); return nil }

type memTransactor struct{}

func (memTransactor) Begin(_ context.Context) (pgx.Tx, error) {
	return &memTx{}, nil
}

// --- users ---

type memUserRepo struct{ state *memState }

func (r *memUserRepo) Create(_ context.Context, _ pgx.Tx, u *domain.User) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	cp := *u
	r.state.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	u, ok := r.state.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByExternalUID(_ context.Context, externalUID string) (*domain.User, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	for _, u := range r.state.users {
		if u.ExternalUID == externalUID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// --- wallets ---

type memWalletRepo struct{ state *memState }

func (r *memWalletRepo) getOrCreate(userID uuid.UUID, currency domain.Currency) *domain.Wallet {
	key := walletKey{userID, currency}
	w, ok := r.state.wallets[key]
	if !ok {
		now := time.Now().UTC()
		w = &domain.Wallet{
			ID:            uuid.New(),
			UserID:        userID,
			Currency:      currency,
			Balance:       money.Zero(),
			LockedBalance: money.Zero(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		r.state.wallets[key] = w
	}
	return w
}

func (r *memWalletRepo) Ensure(_ context.Context, _ pgx.Tx, userID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	cp := *r.getOrCreate(userID, currency)
	return &cp, nil
}

func (r *memWalletRepo) Lock(_ context.Context, _ pgx.Tx, userID uuid.UUID, currency domain.Currency, amount money.Money) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	w, ok := r.state.wallets[walletKey{userID, currency}]
	if !ok || w.Balance.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	w.LockedBalance = w.LockedBalance.Add(amount)
	return nil
}

func (r *memWalletRepo) Unlock(_ context.Context, _ pgx.Tx, userID uuid.UUID, currency domain.Currency, amount money.Money) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	w, ok := r.state.wallets[walletKey{userID, currency}]
	if !ok || w.LockedBalance.Cmp(amount) < 0 {
		return domain.ErrInsufficientLockedFunds
	}
	w.LockedBalance = w.LockedBalance.Sub(amount)
	w.Balance = w.Balance.Add(amount)
	return nil
}

func (r *memWalletRepo) SettleLocked(_ context.Context, _ pgx.Tx, fromUserID, toUserID uuid.UUID, currency domain.Currency, amount money.Money) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	from, ok := r.state.wallets[walletKey{fromUserID, currency}]
	if !ok || from.LockedBalance.Cmp(amount) < 0 {
		return domain.ErrInsufficientLockedFunds
	}
	from.LockedBalance = from.LockedBalance.Sub(amount)
	to := r.getOrCreate(toUserID, currency)
	to.Balance = to.Balance.Add(amount)
	return nil
}

func (r *memWalletRepo) Credit(_ context.Context, _ pgx.Tx, userID uuid.UUID, currency domain.Currency, amount money.Money) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	w, ok := r.state.wallets[walletKey{userID, currency}]
	if !ok {
		return domain.ErrWalletNotFound
	}
	w.Balance = w.Balance.Add(amount)
	return nil
}

func (r *memWalletRepo) GetByUser(_ context.Context, userID uuid.UUID) ([]domain.Wallet, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	var wallets []domain.Wallet
	for _, w := range r.state.wallets {
		if w.UserID == userID {
			wallets = append(wallets, *w)
		}
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].Currency < wallets[j].Currency })
	return wallets, nil
}

func (r *memWalletRepo) GetByUserAndCurrency(_ context.Context, userID uuid.UUID, currency domain.Currency) (*domain.Wallet, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	w, ok := r.state.wallets[walletKey{userID, currency}]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

// --- transactions ---

type memTransactionRepo struct{ state *memState }

func (r *memTransactionRepo) Create(_ context.Context, _ pgx.Tx, t *domain.Transaction) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	cp := *t
	r.state.txns[t.ID] = &cp
	return nil
}

func (r *memTransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	t, ok := r.state.txns[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTransactionRepo) GetByIDInTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Transaction, error) {
	lk := r.state.rowLock(id)
	lk.Lock()
	if mt, ok := tx.(*memTx); ok {
		mt.addOnClose(lk.Unlock)
	} else {
		defer lk.Unlock()
	}
	return r.GetByID(ctx, id)
}

func (r *memTransactionRepo) UpdateState(_ context.Context, _ pgx.Tx, t *domain.Transaction, expectedVersion int) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	stored, ok := r.state.txns[t.ID]
	if !ok || stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	stored.Status = t.Status
	stored.PlatformFee = t.PlatformFee
	stored.ProcessorFee = t.ProcessorFee
	stored.NetPayout = t.NetPayout
	stored.FundedAt = t.FundedAt
	stored.ReleasedAt = t.ReleasedAt
	stored.DisputedAt = t.DisputedAt
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memTransactionRepo) ListByUser(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	var result []domain.Transaction
	for _, t := range r.state.txns {
		if t.BuyerID != params.UserID && t.VendorID != params.UserID {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

// --- audit ---

type memAuditRepo struct{ state *memState }

func (r *memAuditRepo) Create(_ context.Context, _ pgx.Tx, entry *domain.AuditLog) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.audits = append(r.state.audits, *entry)
	return nil
}

func (r *memAuditRepo) ListByTransaction(_ context.Context, transactionID uuid.UUID) ([]domain.AuditLog, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	var entries []domain.AuditLog
	for _, e := range r.state.audits {
		if e.TransactionID != nil && *e.TransactionID == transactionID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
