// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"
)

// BillStore persists bill records in the remote document store.
type BillStore interface {
	ListBills(ctx context.Context, userID string) ([]domain.Bill, error)
	GetBill(ctx context.Context, userID, billID string) (*domain.Bill, error)
	CreateBill(ctx context.Context, bill *domain.Bill) error
	// MarkBillPaid sets status=paid, paymentDate, paidWith and the frozen
	// penalty snapshot in a single partial update.
	MarkBillPaid(ctx context.Context, userID, billID, txID string, paymentDate int64, penalty *domain.PenaltyInfo) error
	// TryLockBill conditionally sets the payment lock on an unlocked bill.
	// Returns domain.ErrConflict when another session holds the lock.
	TryLockBill(ctx context.Context, userID, billID, lockID string) error
	UnlockBill(ctx context.Context, userID, billID string) error
	UpdateBillStatus(ctx context.Context, userID, billID, status string) error
}

// WalletStore persists wallets and the append-only transaction ledger.
type WalletStore interface {
	GetWallet(ctx context.Context, userID, walletID string) (*domain.Wallet, error)
	UpdateWalletBalance(ctx context.Context, userID, walletID string, newBalance float64) error
	InsertTransaction(ctx context.Context, tx *domain.Transaction) error
	ListTransactions(ctx context.Context, userID, walletID string) ([]domain.Transaction, error)
}

// ScheduledBillStore persists future-dated auto-payment commitments.
type ScheduledBillStore interface {
	ListScheduledBills(ctx context.Context, userID string) ([]domain.ScheduledBill, error)
	ListDueScheduledBills(ctx context.Context, nowMs int64) ([]domain.ScheduledBill, error)
	CreateScheduledBill(ctx context.Context, sb *domain.ScheduledBill) error
	UpdateScheduledBillStatus(ctx context.Context, userID, scheduleID, status string) error
}

// BankAccountStore persists user-linked external bank accounts.
type BankAccountStore interface {
	ListBankAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error)
	GetBankAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error)
	CreateBankAccount(ctx context.Context, acct *domain.BankAccount) error
	UpdateBankAccount(ctx context.Context, userID, accountID string, updates map[string]any) error
	DeleteBankAccount(ctx context.Context, userID, accountID string) error
}

// OutboxStore persists pending bill-bookkeeping records for the reconciler.
type OutboxStore interface {
	EnqueueOutbox(ctx context.Context, entry *domain.OutboxEntry) error
	ListOutbox(ctx context.Context, limit int) ([]domain.OutboxEntry, error)
	UpdateOutbox(ctx context.Context, entry *domain.OutboxEntry) error
	DeleteOutbox(ctx context.Context, entryID string) error
}

// AuthStore persists users, refresh tokens and OTP challenges.
type AuthStore interface {
	GetUserByID(ctx context.Context, userID string) (*domain.User, error)
	GetUserByNationalID(ctx context.Context, nationalID string) (*domain.User, error)
	UpdateUser(ctx context.Context, userID string, updates map[string]any) error

	StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error

	StoreOTPChallenge(ctx context.Context, ch *domain.OTPChallenge) error
	GetOTPChallenge(ctx context.Context, userID, purpose string) (*domain.OTPChallenge, error)
	ConsumeOTPChallenge(ctx context.Context, challengeID string) error
}

// AgentCaller invokes the external text-generation API.
type AgentCaller interface {
	Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error)
}

// EventPublisher emits domain events to the message broker. Implementations
// must be best-effort: a publish failure never fails the business operation.
type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, ev *domain.PaymentEvent) error
	Close() error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// ReportCache caches generated reports keyed by (walletID, fromMs, toMs),
// with walletwide invalidation after payments.
type ReportCache interface {
	Get(ctx context.Context, walletID string, fromMs, toMs int64) (*domain.Report, bool)
	Set(ctx context.Context, report *domain.Report)
	// ListWallet returns every live cached report for a wallet, in no
	// particular order.
	ListWallet(ctx context.Context, walletID string) []*domain.Report
	InvalidateWallet(ctx context.Context, walletID string)
}
