package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/cache"
	"github.com/absherpay/absher-bfa-go/internal/infra/observability"
	"github.com/absherpay/absher-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const dayMs = int64(24 * time.Hour / time.Millisecond)

type paymentFixture struct {
	svc       *service.PaymentService
	bills     *mockBillStore
	wallets   *mockWalletStore
	outbox    *mockOutboxStore
	auth      *mockAuthStore
	publisher *mockPublisher
	idempo    *cache.InMemory[*domain.BulkPaymentResult]
}

func newPaymentFixture(t *testing.T, bills *mockBillStore, wallets *mockWalletStore) *paymentFixture {
	t.Helper()
	f := &paymentFixture{
		bills:     bills,
		wallets:   wallets,
		outbox:    &mockOutboxStore{},
		auth:      newMockAuthStore(),
		publisher: &mockPublisher{},
		idempo:    cache.New[*domain.BulkPaymentResult](time.Minute),
	}
	f.svc = service.NewPaymentService(
		f.bills, f.wallets, f.outbox, f.auth, f.publisher,
		cache.NewMemoryReport(time.Minute), f.idempo,
		domain.DefaultPenaltySchedule(),
		observability.NewMetrics(), zap.NewNop(),
	)
	return f
}

// issueOTP seeds a valid payment challenge and returns the plaintext code.
func (f *paymentFixture) issueOTP(t *testing.T, userID string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	require.NoError(t, err)
	f.auth.challenge = &domain.OTPChallenge{
		ID:        "challenge-1",
		UserID:    userID,
		CodeHash:  string(hash),
		Purpose:   "payment",
		ExpiresAt: time.Now().Add(2 * time.Minute),
	}
	return "1234"
}

func unpaidBill(id, userID string, amount float64, dueDate int64) *domain.Bill {
	return &domain.Bill{
		ID:          id,
		UserID:      userID,
		WalletID:    "wallet-1",
		ServiceType: "traffic_violation",
		ServiceName: domain.BilingualLabel{Ar: "مخالفة مرورية", En: "Traffic Violation"},
		Amount:      amount,
		DueDate:     dueDate,
		Status:      domain.BillStatusUnpaid,
	}
}

func TestPayBills_SuccessWithPenalty(t *testing.T) {
	now := time.Now().UnixMilli()
	// 10 days overdue puts the bill in the 5% tier: 500 + 25 = 525.
	bill := unpaidBill("bill-1", "user-1", 500, now-10*dayMs)
	wallet := &domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 1000}
	f := newPaymentFixture(t, newMockBillStore(bill), newMockWalletStore(wallet))
	code := f.issueOTP(t, "user-1")

	result, err := f.svc.PayBills(context.Background(), "user-1", &domain.BulkPaymentRequest{
		WalletID:       "wallet-1",
		BillIDs:        []string{"bill-1"},
		OTPCode:        code,
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 525.0, result.TotalCharged)
	assert.Equal(t, 475.0, result.NewBalance)
	assert.Equal(t, []string{"bill-1"}, result.PaidBillIDs)
	assert.False(t, result.PartialFailure)
	assert.NotEmpty(t, result.TransactionID)

	assert.Equal(t, domain.BillStatusPaid, f.bills.bills["bill-1"].Status)
	require.NotNil(t, f.bills.bills["bill-1"].PenaltyInfo)
	assert.Equal(t, 25.0, f.bills.bills["bill-1"].PenaltyInfo.LateFee)
	assert.Equal(t, 475.0, f.wallets.wallets["wallet-1"].Balance)

	require.Len(t, f.wallets.txs, 1)
	assert.Equal(t, -525.0, f.wallets.txs[0].Amount)
	assert.Equal(t, "payment", f.wallets.txs[0].Type)

	assert.Equal(t, 1, f.auth.consumed)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, result.TransactionID, f.publisher.events[0].TransactionID)
	assert.Empty(t, f.bills.locks, "payment locks must be released")
}

func TestPayBills_Validation(t *testing.T) {
	f := newPaymentFixture(t, newMockBillStore(), newMockWalletStore())

	var verr *domain.ErrValidation

	_, err := f.svc.PayBills(context.Background(), "user-1", &domain.BulkPaymentRequest{
		WalletID: "wallet-1", IdempotencyKey: "k", OTPCode: "1234",
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "billIds", verr.Field)

	_, err = f.svc.PayBills(context.Background(), "user-1", &domain.BulkPaymentRequest{
		BillIDs: []string{"bill-1"}, IdempotencyKey: "k", OTPCode: "1234",
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "walletId", verr.Field)

	_, err = f.svc.PayBills(context.Background(), "user-1", &domain.BulkPaymentRequest{
		BillIDs: []string{"bill-1"}, WalletID: "wallet-1", OTPCode: "1234",
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "idempotencyKey", verr.Field)
}

func TestPayBills_OTP(t *testing.T) {
	now := time.Now().UnixMilli()
	newReq := func(code string) *domain.BulkPaymentRequest {
		return &domain.BulkPaymentRequest{
			WalletID: "wallet-1", BillIDs: []string{"bill-1"},
			OTPCode: code, IdempotencyKey: "idem-otp",
		}
	}

	t.Run("empty code is a validation error", func(t *testing.T) {
		f := newPaymentFixture(t, newMockBillStore(unpaidBill("bill-1", "user-1", 100, now+dayMs)),
			newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 500}))
		var verr *domain.ErrValidation
		_, err := f.svc.PayBills(context.Background(), "user-1", newReq(""))
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "otpCode", verr.Field)
	})

	t.Run("no challenge issued", func(t *testing.T) {
		f := newPaymentFixture(t, newMockBillStore(unpaidBill("bill-1", "user-1", 100, now+dayMs)),
			newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 500}))
		var invalid *domain.ErrInvalidCode
		_, err := f.svc.PayBills(context.Background(), "user-1", newReq("1234"))
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("wrong code", func(t *testing.T) {
		f := newPaymentFixture(t, newMockBillStore(unpaidBill("bill-1", "user-1", 100, now+dayMs)),
			newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 500}))
		f.issueOTP(t, "user-1")
		var invalid *domain.ErrInvalidCode
		_, err := f.svc.PayBills(context.Background(), "user-1", newReq("9999"))
		require.ErrorAs(t, err, &invalid)
		assert.Zero(t, f.auth.consumed, "a mismatched code must not consume the challenge")
	})

	t.Run("challenge is single use", func(t *testing.T) {
		f := newPaymentFixture(t, newMockBillStore(unpaidBill("bill-1", "user-1", 100, now+dayMs)),
			newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 500}))
		code := f.issueOTP(t, "user-1")
		_, err := f.svc.PayBills(context.Background(), "user-1", newReq(code))
		require.NoError(t, err)

		var invalid *domain.ErrInvalidCode
		req := newReq(code)
		req.IdempotencyKey = "idem-otp-2"
		req.BillIDs = []string{"bill-1"} // already paid now, but OTP fails first
		_, err = f.svc.PayBills(context.Background(), "user-1", req)
		require.ErrorAs(t, err, &invalid)
	})
}

func TestPayBills_InsufficientFunds(t *testing.T) {
	now := time.Now().UnixMilli()
	bill := unpaidBill("bill-1", "user-1", 500, now+dayMs)
	wallet := &domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 100}
	f := newPaymentFixture(t, newMockBillStore(bill), newMockWalletStore(wallet))
	code := f.issueOTP(t, "user-1")

	_, err := f.svc.PayBills(context.Background(), "user-1", &domain.BulkPaymentRequest{
		WalletID: "wallet-1", BillIDs: []string{"bill-1"},
		OTPCode: code, IdempotencyKey: "idem-1",
	})

	var insufficient *domain.ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 100.0, insufficient.Available)
	assert.Equal(t, 500.0, insufficient.Required)

	assert.Equal(t, 100.0, f.wallets.wallets["wallet-1"].Balance, "no debit on rejection")
	assert.Empty(t, f.wallets.txs)
	assert.Equal(t, domain.BillStatusUnpaid, f.bills.bills["bill-1"].Status)
	assert.Empty(t, f.bills.locks)
}

func TestPayBills_AlreadyPaidRejected(t *testing.T) {
	now := time.Now().UnixMilli()
	paid := unpaidBill("bill-1", "user-1", 200, now-dayMs)
	paid.Status = domain.BillStatusPaid
	f := newPaymentFixture(t, newMockBillStore(paid),
		newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 1000}))
	code := f.issueOTP(t, "user-1")

	_, err := f.svc.PayBills(context.Background(), "user-1", &domain.BulkPaymentRequest{
		WalletID: "wallet-1", BillIDs: []string{"bill-1"},
		OTPCode: code, IdempotencyKey: "idem-1",
	})

	var verr *domain.ErrValidation
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, f.wallets.txs)
}

func TestPayBills_LockConflictReleasesAcquiredLocks(t *testing.T) {
	now := time.Now().UnixMilli()
	b1 := unpaidBill("bill-1", "user-1", 100, now+dayMs)
	b2 := unpaidBill("bill-2", "user-1", 100, now+dayMs)
	bills := newMockBillStore(b1, b2)
	bills.locks["bill-2"] = "another-session"
	f := newPaymentFixture(t, bills,
		newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 1000}))
	code := f.issueOTP(t, "user-1")

	_, err := f.svc.PayBills(context.Background(), "user-1", &domain.BulkPaymentRequest{
		WalletID: "wallet-1", BillIDs: []string{"bill-1", "bill-2"},
		OTPCode: code, IdempotencyKey: "idem-1",
	})

	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.NotContains(t, bills.locks, "bill-1", "first lock must be released after the conflict")
	assert.Empty(t, f.wallets.txs)
}

func TestPayBills_PartialFailureGoesToOutbox(t *testing.T) {
	now := time.Now().UnixMilli()
	b1 := unpaidBill("bill-1", "user-1", 100, now+dayMs)
	b2 := unpaidBill("bill-2", "user-1", 200, now+dayMs)
	bills := newMockBillStore(b1, b2)
	bills.failMarkPaid["bill-2"] = errBackend
	f := newPaymentFixture(t, bills,
		newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 1000}))
	code := f.issueOTP(t, "user-1")

	result, err := f.svc.PayBills(context.Background(), "user-1", &domain.BulkPaymentRequest{
		WalletID: "wallet-1", BillIDs: []string{"bill-1", "bill-2"},
		OTPCode: code, IdempotencyKey: "idem-1",
	})
	require.NoError(t, err, "the debit succeeded, so the call succeeds")

	assert.True(t, result.PartialFailure)
	assert.Equal(t, []string{"bill-1"}, result.PaidBillIDs)
	assert.Equal(t, []string{"bill-2"}, result.FailedBillIDs)
	assert.Equal(t, 300.0, result.TotalCharged, "the wallet is charged for every bill regardless")
	assert.Equal(t, 700.0, f.wallets.wallets["wallet-1"].Balance)

	require.Len(t, f.outbox.entries, 1)
	assert.Equal(t, "bill-2", f.outbox.entries[0].BillID)
	assert.Equal(t, result.TransactionID, f.outbox.entries[0].TxID)
}

func TestPayBills_IdempotentReplay(t *testing.T) {
	now := time.Now().UnixMilli()
	bill := unpaidBill("bill-1", "user-1", 100, now+dayMs)
	f := newPaymentFixture(t, newMockBillStore(bill),
		newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 1000}))
	code := f.issueOTP(t, "user-1")

	req := &domain.BulkPaymentRequest{
		WalletID: "wallet-1", BillIDs: []string{"bill-1"},
		OTPCode: code, IdempotencyKey: "idem-replay",
	}
	first, err := f.svc.PayBills(context.Background(), "user-1", req)
	require.NoError(t, err)

	// Same key again: the consumed OTP and the paid bill must not matter.
	second, err := f.svc.PayBills(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 900.0, f.wallets.wallets["wallet-1"].Balance, "no double charge")
	require.Len(t, f.wallets.txs, 1)
}

// ============================================================
// Scheduled execution
// ============================================================

func TestExecuteScheduledBill_Success(t *testing.T) {
	now := time.Now().UnixMilli()
	bill := unpaidBill("bill-1", "user-1", 300, now-dayMs)
	bill.Status = domain.BillStatusScheduled
	f := newPaymentFixture(t, newMockBillStore(bill),
		newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 1000}))
	sb := &domain.ScheduledBill{
		ID: "sched-1", BillID: "bill-1", UserID: "user-1", WalletID: "wallet-1",
		ScheduledDate: now - time.Minute.Milliseconds(), Status: "scheduled",
	}
	scheduled := newMockScheduledStore(sb)

	err := f.svc.ExecuteScheduledBill(context.Background(), sb, scheduled)
	require.NoError(t, err)

	assert.Equal(t, domain.BillStatusPaid, f.bills.bills["bill-1"].Status)
	assert.Equal(t, "executed", scheduled.items["sched-1"].Status)
	// 1 day overdue lands in the 5% tier: 300 + 15 = 315.
	assert.Equal(t, 685.0, f.wallets.wallets["wallet-1"].Balance)
	require.Len(t, f.publisher.events, 1)
	assert.Empty(t, f.bills.locks)
}

func TestExecuteScheduledBill_InsufficientFundsCancels(t *testing.T) {
	now := time.Now().UnixMilli()
	bill := unpaidBill("bill-1", "user-1", 300, now+dayMs)
	bill.Status = domain.BillStatusScheduled
	f := newPaymentFixture(t, newMockBillStore(bill),
		newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 50}))
	sb := &domain.ScheduledBill{
		ID: "sched-1", BillID: "bill-1", UserID: "user-1", WalletID: "wallet-1",
		ScheduledDate: now, Status: "scheduled",
	}
	scheduled := newMockScheduledStore(sb)

	err := f.svc.ExecuteScheduledBill(context.Background(), sb, scheduled)
	require.NoError(t, err)

	assert.Equal(t, "cancelled", scheduled.items["sched-1"].Status)
	assert.Equal(t, domain.BillStatusUnpaid, f.bills.bills["bill-1"].Status,
		"the bill must resurface as unpaid in the app")
	assert.Equal(t, 50.0, f.wallets.wallets["wallet-1"].Balance)
	assert.Empty(t, f.wallets.txs)
}

func TestExecuteScheduledBill_AlreadyPaidMarksExecuted(t *testing.T) {
	now := time.Now().UnixMilli()
	bill := unpaidBill("bill-1", "user-1", 300, now-dayMs)
	bill.Status = domain.BillStatusPaid
	f := newPaymentFixture(t, newMockBillStore(bill),
		newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 1000}))
	sb := &domain.ScheduledBill{
		ID: "sched-1", BillID: "bill-1", UserID: "user-1", WalletID: "wallet-1",
		ScheduledDate: now, Status: "scheduled",
	}
	scheduled := newMockScheduledStore(sb)

	err := f.svc.ExecuteScheduledBill(context.Background(), sb, scheduled)
	require.NoError(t, err)

	assert.Equal(t, "executed", scheduled.items["sched-1"].Status)
	assert.Equal(t, 1000.0, f.wallets.wallets["wallet-1"].Balance, "no second charge")
	assert.Empty(t, f.wallets.txs)
	assert.Empty(t, f.publisher.events)
}

func TestExecuteScheduledBill_LockHeldReturnsConflict(t *testing.T) {
	now := time.Now().UnixMilli()
	bill := unpaidBill("bill-1", "user-1", 300, now)
	bill.Status = domain.BillStatusScheduled
	bills := newMockBillStore(bill)
	bills.locks["bill-1"] = "another-instance"
	f := newPaymentFixture(t, bills,
		newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 1000}))
	sb := &domain.ScheduledBill{
		ID: "sched-1", BillID: "bill-1", UserID: "user-1", WalletID: "wallet-1",
		ScheduledDate: now, Status: "scheduled",
	}
	scheduled := newMockScheduledStore(sb)

	err := f.svc.ExecuteScheduledBill(context.Background(), sb, scheduled)
	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "scheduled", scheduled.items["sched-1"].Status)
}
