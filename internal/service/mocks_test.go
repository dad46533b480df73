package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"
)

// ============================================================
// In-memory port implementations for service tests
// ============================================================

type mockBillStore struct {
	mu           sync.Mutex
	bills        map[string]*domain.Bill
	locks        map[string]string
	failMarkPaid map[string]error
	failLock     map[string]error
	created      []*domain.Bill
}

func newMockBillStore(bills ...*domain.Bill) *mockBillStore {
	m := &mockBillStore{
		bills:        make(map[string]*domain.Bill),
		locks:        make(map[string]string),
		failMarkPaid: make(map[string]error),
		failLock:     make(map[string]error),
	}
	for _, b := range bills {
		m.bills[b.ID] = b
	}
	return m
}

func (m *mockBillStore) ListBills(_ context.Context, userID string) ([]domain.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Bill, 0, len(m.bills))
	for _, b := range m.bills {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockBillStore) GetBill(_ context.Context, userID, billID string) (*domain.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[billID]
	if !ok || b.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "bill", ID: billID}
	}
	cp := *b
	return &cp, nil
}

func (m *mockBillStore) CreateBill(_ context.Context, bill *domain.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *bill
	m.bills[bill.ID] = &cp
	m.created = append(m.created, &cp)
	return nil
}

func (m *mockBillStore) MarkBillPaid(_ context.Context, _, billID, txID string, paymentDate int64, penalty *domain.PenaltyInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failMarkPaid[billID]; err != nil {
		return err
	}
	b, ok := m.bills[billID]
	if !ok {
		return &domain.ErrNotFound{Resource: "bill", ID: billID}
	}
	b.Status = domain.BillStatusPaid
	b.PaymentDate = paymentDate
	b.PaidWith = txID
	b.PenaltyInfo = penalty
	b.PaymentLock = ""
	return nil
}

func (m *mockBillStore) TryLockBill(_ context.Context, _, billID, lockID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failLock[billID]; err != nil {
		return err
	}
	if held, ok := m.locks[billID]; ok && held != lockID {
		return &domain.ErrConflict{Message: "bill locked by another payment"}
	}
	m.locks[billID] = lockID
	return nil
}

func (m *mockBillStore) UnlockBill(_ context.Context, _, billID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, billID)
	return nil
}

func (m *mockBillStore) UpdateBillStatus(_ context.Context, _, billID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[billID]
	if !ok {
		return &domain.ErrNotFound{Resource: "bill", ID: billID}
	}
	b.Status = status
	return nil
}

type mockWalletStore struct {
	mu      sync.Mutex
	wallets map[string]*domain.Wallet
	txs     []domain.Transaction
}

func newMockWalletStore(wallets ...*domain.Wallet) *mockWalletStore {
	m := &mockWalletStore{wallets: make(map[string]*domain.Wallet)}
	for _, w := range wallets {
		m.wallets[w.ID] = w
	}
	return m
}

func (m *mockWalletStore) GetWallet(_ context.Context, userID, walletID string) (*domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletID]
	if !ok || w.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "wallet", ID: walletID}
	}
	cp := *w
	return &cp, nil
}

func (m *mockWalletStore) UpdateWalletBalance(_ context.Context, _, walletID string, newBalance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletID]
	if !ok {
		return &domain.ErrNotFound{Resource: "wallet", ID: walletID}
	}
	w.Balance = newBalance
	return nil
}

func (m *mockWalletStore) InsertTransaction(_ context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, *tx)
	return nil
}

func (m *mockWalletStore) ListTransactions(_ context.Context, userID, walletID string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wallets[walletID]
	if !ok || w.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "wallet", ID: walletID}
	}
	out := make([]domain.Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		if tx.WalletID == walletID {
			out = append(out, tx)
		}
	}
	return out, nil
}

type mockScheduledStore struct {
	mu    sync.Mutex
	items map[string]*domain.ScheduledBill
}

func newMockScheduledStore(items ...*domain.ScheduledBill) *mockScheduledStore {
	m := &mockScheduledStore{items: make(map[string]*domain.ScheduledBill)}
	for _, sb := range items {
		m.items[sb.ID] = sb
	}
	return m
}

func (m *mockScheduledStore) ListScheduledBills(_ context.Context, userID string) ([]domain.ScheduledBill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ScheduledBill, 0, len(m.items))
	for _, sb := range m.items {
		if sb.UserID == userID {
			out = append(out, *sb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate < out[j].ScheduledDate })
	return out, nil
}

func (m *mockScheduledStore) ListDueScheduledBills(_ context.Context, nowMs int64) ([]domain.ScheduledBill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ScheduledBill
	for _, sb := range m.items {
		if sb.Status == "scheduled" && sb.ScheduledDate <= nowMs {
			out = append(out, *sb)
		}
	}
	return out, nil
}

func (m *mockScheduledStore) CreateScheduledBill(_ context.Context, sb *domain.ScheduledBill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sb
	m.items[sb.ID] = &cp
	return nil
}

func (m *mockScheduledStore) UpdateScheduledBillStatus(_ context.Context, _, scheduleID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sb, ok := m.items[scheduleID]
	if !ok {
		return &domain.ErrNotFound{Resource: "scheduled bill", ID: scheduleID}
	}
	sb.Status = status
	return nil
}

type mockBankAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.BankAccount
}

func newMockBankAccountStore(accounts ...*domain.BankAccount) *mockBankAccountStore {
	m := &mockBankAccountStore{accounts: make(map[string]*domain.BankAccount)}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *mockBankAccountStore) ListBankAccounts(_ context.Context, userID string) ([]domain.BankAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BankAccount, 0, len(m.accounts))
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *mockBankAccountStore) GetBankAccount(_ context.Context, userID, accountID string) (*domain.BankAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "bank account", ID: accountID}
	}
	cp := *a
	return &cp, nil
}

func (m *mockBankAccountStore) CreateBankAccount(_ context.Context, acct *domain.BankAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *acct
	m.accounts[acct.ID] = &cp
	return nil
}

func (m *mockBankAccountStore) UpdateBankAccount(_ context.Context, userID, accountID string, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.UserID != userID {
		return &domain.ErrNotFound{Resource: "bank account", ID: accountID}
	}
	if v, ok := updates["isSelected"]; ok {
		a.IsSelected = v.(bool)
	}
	if v, ok := updates["isVerified"]; ok {
		a.IsVerified = v.(bool)
	}
	return nil
}

func (m *mockBankAccountStore) DeleteBankAccount(_ context.Context, userID, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok || a.UserID != userID {
		return &domain.ErrNotFound{Resource: "bank account", ID: accountID}
	}
	delete(m.accounts, accountID)
	return nil
}

type mockOutboxStore struct {
	mu      sync.Mutex
	entries []*domain.OutboxEntry
}

func (m *mockOutboxStore) EnqueueOutbox(_ context.Context, entry *domain.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockOutboxStore) ListOutbox(_ context.Context, limit int) ([]domain.OutboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OutboxEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockOutboxStore) UpdateOutbox(_ context.Context, entry *domain.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == entry.ID {
			cp := *entry
			m.entries[i] = &cp
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "outbox entry", ID: entry.ID}
}

func (m *mockOutboxStore) DeleteOutbox(_ context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == entryID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

type mockAuthStore struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	refresh   map[string]*domain.RefreshToken
	challenge *domain.OTPChallenge
	consumed  int
}

func newMockAuthStore(users ...*domain.User) *mockAuthStore {
	m := &mockAuthStore{
		users:   make(map[string]*domain.User),
		refresh: make(map[string]*domain.RefreshToken),
	}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockAuthStore) GetUserByID(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	cp := *u
	return &cp, nil
}

func (m *mockAuthStore) GetUserByNationalID(_ context.Context, nationalID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.NationalID == nationalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "user", ID: nationalID}
}

func (m *mockAuthStore) UpdateUser(_ context.Context, userID string, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	if v, ok := updates["failedAttempts"]; ok {
		u.FailedAttempts = v.(int)
	}
	if v, ok := updates["lockedUntil"]; ok {
		if v == nil {
			u.LockedUntil = nil
		} else if s, ok := v.(string); ok {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return err
			}
			u.LockedUntil = &t
		}
	}
	return nil
}

func (m *mockAuthStore) StoreRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[tokenHash] = &domain.RefreshToken{Hash: tokenHash, UserID: userID, ExpiresAt: expiresAt}
	return nil
}

func (m *mockAuthStore) GetRefreshToken(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.refresh[tokenHash]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "refresh token", ID: tokenHash}
	}
	cp := *rt
	return &cp, nil
}

func (m *mockAuthStore) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rt, ok := m.refresh[tokenHash]; ok {
		rt.Revoked = true
	}
	return nil
}

func (m *mockAuthStore) StoreOTPChallenge(_ context.Context, ch *domain.OTPChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ch
	m.challenge = &cp
	return nil
}

func (m *mockAuthStore) GetOTPChallenge(_ context.Context, userID, purpose string) (*domain.OTPChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := m.challenge
	if ch == nil || ch.Consumed || ch.UserID != userID || ch.Purpose != purpose || ch.ExpiresAt.Before(time.Now()) {
		return nil, &domain.ErrNotFound{Resource: "otp challenge", ID: userID}
	}
	cp := *ch
	return &cp, nil
}

func (m *mockAuthStore) ConsumeOTPChallenge(_ context.Context, challengeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.challenge == nil || m.challenge.ID != challengeID {
		return &domain.ErrNotFound{Resource: "otp challenge", ID: challengeID}
	}
	m.challenge.Consumed = true
	m.consumed++
	return nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*domain.PaymentEvent
	err    error
}

func (m *mockPublisher) PublishPaymentEvent(_ context.Context, ev *domain.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *ev
	m.events = append(m.events, &cp)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

type mockAgent struct {
	resp *domain.CompletionResponse
	err  error
	got  *domain.CompletionRequest
}

func (m *mockAgent) Complete(_ context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

var errBackend = errors.New("backend unavailable")
