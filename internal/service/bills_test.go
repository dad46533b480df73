package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/observability"
	"github.com/absherpay/absher-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBillService(bills *mockBillStore, wallets *mockWalletStore, scheduled *mockScheduledStore) *service.BillService {
	return service.NewBillService(bills, wallets, scheduled,
		domain.DefaultPenaltySchedule(), observability.NewMetrics(), zap.NewNop())
}

func TestListBills_PenaltiesAndSorting(t *testing.T) {
	now := time.Now().UnixMilli()
	overdue := unpaidBill("bill-overdue", "user-1", 1000, now-10*dayMs)
	upcoming := unpaidBill("bill-upcoming", "user-1", 200, now+3*dayMs)
	later := unpaidBill("bill-later", "user-1", 300, now+20*dayMs)
	svc := newBillService(newMockBillStore(later, upcoming, overdue), newMockWalletStore(), newMockScheduledStore())

	out, err := svc.ListBills(context.Background(), "user-1", nil)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "bill-overdue", out[0].ID, "overdue bills sort first")
	assert.Equal(t, "bill-upcoming", out[1].ID)
	assert.Equal(t, "bill-later", out[2].ID)

	require.NotNil(t, out[0].PenaltyInfo)
	assert.Equal(t, 50.0, out[0].PenaltyInfo.LateFee)
	assert.Equal(t, 1050.0, out[0].PenaltyInfo.TotalWithPenalty)
	assert.Nil(t, out[1].PenaltyInfo)
}

func TestListBills_Filters(t *testing.T) {
	now := time.Now().UnixMilli()
	overdue := unpaidBill("bill-1", "user-1", 100, now-2*dayMs)
	upcoming := unpaidBill("bill-2", "user-1", 100, now+2*dayMs)
	business := unpaidBill("bill-3", "user-1", 100, now+2*dayMs)
	business.WalletID = "wallet-biz"
	business.IsBusiness = true
	store := newMockBillStore(overdue, upcoming, business)
	svc := newBillService(store, newMockWalletStore(), newMockScheduledStore())

	t.Run("by derived status", func(t *testing.T) {
		out, err := svc.ListBills(context.Background(), "user-1", &domain.BillFilters{Status: "overdue"})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "bill-1", out[0].ID)
	})

	t.Run("by wallet", func(t *testing.T) {
		out, err := svc.ListBills(context.Background(), "user-1", &domain.BillFilters{WalletID: "wallet-biz"})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "bill-3", out[0].ID)
	})

	t.Run("by business flag", func(t *testing.T) {
		personal := false
		out, err := svc.ListBills(context.Background(), "user-1", &domain.BillFilters{IsBusiness: &personal})
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("by due date window", func(t *testing.T) {
		out, err := svc.ListBills(context.Background(), "user-1", &domain.BillFilters{
			FromDate: now - 3*dayMs,
			ToDate:   now,
		})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "bill-1", out[0].ID)
	})
}

func TestCreateBill(t *testing.T) {
	wallets := newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 0})
	due := time.Now().Add(14 * 24 * time.Hour).UnixMilli()

	t.Run("explicit amount", func(t *testing.T) {
		store := newMockBillStore()
		svc := newBillService(store, wallets, newMockScheduledStore())
		bill, err := svc.CreateBill(context.Background(), "user-1", &domain.CreateBillRequest{
			WalletID:    "wallet-1",
			ServiceType: "traffic_violation",
			Amount:      750.509,
			DueDate:     due,
		})
		require.NoError(t, err)
		assert.Equal(t, 750.51, bill.Amount)
		assert.Equal(t, domain.BillStatusUnpaid, bill.Status)
		assert.NotEmpty(t, bill.ServiceName.Ar)
		assert.NotEmpty(t, bill.MinistryName.En)
		require.Len(t, store.created, 1)
	})

	t.Run("zero amount falls back to the catalog fee", func(t *testing.T) {
		svc := newBillService(newMockBillStore(), wallets, newMockScheduledStore())
		bill, err := svc.CreateBill(context.Background(), "user-1", &domain.CreateBillRequest{
			WalletID:    "wallet-1",
			ServiceType: "passport_renewal",
			DueDate:     due,
		})
		require.NoError(t, err)
		assert.Greater(t, bill.Amount, 0.0)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		svc := newBillService(newMockBillStore(), wallets, newMockScheduledStore())
		var notFound *domain.ErrNotFound
		_, err := svc.CreateBill(context.Background(), "user-1", &domain.CreateBillRequest{
			WalletID:    "wallet-missing",
			ServiceType: "traffic_violation",
			Amount:      100,
			DueDate:     due,
		})
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("missing fields", func(t *testing.T) {
		svc := newBillService(newMockBillStore(), wallets, newMockScheduledStore())
		var verr *domain.ErrValidation
		_, err := svc.CreateBill(context.Background(), "user-1", &domain.CreateBillRequest{WalletID: "wallet-1", DueDate: due})
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "serviceType", verr.Field)

		_, err = svc.CreateBill(context.Background(), "user-1", &domain.CreateBillRequest{ServiceType: "x", DueDate: due})
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "walletId", verr.Field)

		_, err = svc.CreateBill(context.Background(), "user-1", &domain.CreateBillRequest{WalletID: "wallet-1", ServiceType: "x"})
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "dueDate", verr.Field)
	})
}

func TestCalculateBulkTotal(t *testing.T) {
	bills := []domain.Bill{
		{Amount: 100},
		{Amount: 200, PenaltyInfo: &domain.PenaltyInfo{LateFee: 10, TotalWithPenalty: 210}},
		{Amount: 0.335},
	}
	assert.Equal(t, 310.34, service.CalculateBulkTotal(bills))
	assert.Equal(t, 0.0, service.CalculateBulkTotal(nil))
}

func TestPreviewBulk(t *testing.T) {
	now := time.Now().UnixMilli()
	overdue := unpaidBill("bill-1", "user-1", 1000, now-10*dayMs)
	current := unpaidBill("bill-2", "user-1", 250, now+dayMs)
	store := newMockBillStore(overdue, current)
	svc := newBillService(store, newMockWalletStore(), newMockScheduledStore())

	resp, err := svc.PreviewBulk(context.Background(), "user-1", []string{"bill-1", "bill-2"})
	require.NoError(t, err)
	assert.Equal(t, 1300.0, resp.Total, "1050 with penalty plus 250")
	assert.Equal(t, "1,300.00 ر.س", resp.TotalLabel)
	assert.Equal(t, 2, resp.BillCount)

	t.Run("paid bill rejected", func(t *testing.T) {
		paid := unpaidBill("bill-3", "user-1", 50, now-dayMs)
		paid.Status = domain.BillStatusPaid
		store.bills["bill-3"] = paid
		var verr *domain.ErrValidation
		_, err := svc.PreviewBulk(context.Background(), "user-1", []string{"bill-3"})
		require.ErrorAs(t, err, &verr)
	})

	t.Run("empty selection rejected", func(t *testing.T) {
		var verr *domain.ErrValidation
		_, err := svc.PreviewBulk(context.Background(), "user-1", nil)
		require.ErrorAs(t, err, &verr)
	})
}

func TestScheduleBill(t *testing.T) {
	now := time.Now()
	future := now.Add(5 * 24 * time.Hour).UnixMilli()
	wallets := newMockWalletStore(&domain.Wallet{ID: "wallet-1", UserID: "user-1", Balance: 0})

	t.Run("success schedules the payable amount", func(t *testing.T) {
		bill := unpaidBill("bill-1", "user-1", 400, now.UnixMilli()-10*dayMs)
		store := newMockBillStore(bill)
		scheduled := newMockScheduledStore()
		svc := newBillService(store, wallets, scheduled)

		sb, err := svc.ScheduleBill(context.Background(), "user-1", &domain.ScheduleBillRequest{
			BillID:        "bill-1",
			ScheduledDate: future,
		})
		require.NoError(t, err)
		assert.Equal(t, 420.0, sb.ScheduledAmount, "penalty included for an already-overdue bill")
		assert.Equal(t, "wallet-1", sb.WalletID, "wallet defaults to the bill's wallet")
		assert.Equal(t, domain.BillStatusScheduled, store.bills["bill-1"].Status)
		assert.Contains(t, scheduled.items, sb.ID)
	})

	t.Run("past date rejected", func(t *testing.T) {
		svc := newBillService(newMockBillStore(unpaidBill("bill-1", "user-1", 400, future)), wallets, newMockScheduledStore())
		var verr *domain.ErrValidation
		_, err := svc.ScheduleBill(context.Background(), "user-1", &domain.ScheduleBillRequest{
			BillID:        "bill-1",
			ScheduledDate: now.UnixMilli() - 1000,
		})
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "scheduledDate", verr.Field)
	})

	t.Run("only unpaid bills can be scheduled", func(t *testing.T) {
		bill := unpaidBill("bill-1", "user-1", 400, future)
		bill.Status = domain.BillStatusScheduled
		svc := newBillService(newMockBillStore(bill), wallets, newMockScheduledStore())
		var verr *domain.ErrValidation
		_, err := svc.ScheduleBill(context.Background(), "user-1", &domain.ScheduleBillRequest{
			BillID:        "bill-1",
			ScheduledDate: future,
		})
		require.ErrorAs(t, err, &verr)
	})
}

func TestCancelScheduledBill(t *testing.T) {
	now := time.Now().UnixMilli()

	t.Run("returns the bill to unpaid", func(t *testing.T) {
		bill := unpaidBill("bill-1", "user-1", 400, now+10*dayMs)
		bill.Status = domain.BillStatusScheduled
		store := newMockBillStore(bill)
		scheduled := newMockScheduledStore(&domain.ScheduledBill{
			ID: "sched-1", BillID: "bill-1", UserID: "user-1", WalletID: "wallet-1",
			ScheduledDate: now + 5*dayMs, Status: "scheduled",
		})
		svc := newBillService(store, newMockWalletStore(), scheduled)

		require.NoError(t, svc.CancelScheduledBill(context.Background(), "user-1", "sched-1"))
		assert.Equal(t, "cancelled", scheduled.items["sched-1"].Status)
		assert.Equal(t, domain.BillStatusUnpaid, store.bills["bill-1"].Status)
	})

	t.Run("unknown schedule", func(t *testing.T) {
		svc := newBillService(newMockBillStore(), newMockWalletStore(), newMockScheduledStore())
		var notFound *domain.ErrNotFound
		err := svc.CancelScheduledBill(context.Background(), "user-1", "sched-missing")
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("already executed", func(t *testing.T) {
		scheduled := newMockScheduledStore(&domain.ScheduledBill{
			ID: "sched-1", BillID: "bill-1", UserID: "user-1", Status: "executed",
		})
		svc := newBillService(newMockBillStore(), newMockWalletStore(), scheduled)
		var verr *domain.ErrValidation
		err := svc.CancelScheduledBill(context.Background(), "user-1", "sched-1")
		require.ErrorAs(t, err, &verr)
	})
}
