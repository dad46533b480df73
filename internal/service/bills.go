// Package service provides the business logic layer (use cases).
// BillService handles bill listing, creation, bulk totals and scheduling;
// PaymentService owns the money movement.
package service

import (
	"context"
	"sort"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/catalog"
	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/format"
	"github.com/absherpay/absher-bfa-go/internal/infra/observability"
	"github.com/absherpay/absher-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var billTracer = otel.Tracer("service/bills")

// BillService orchestrates bill reads, creation and scheduling.
type BillService struct {
	bills     port.BillStore
	wallets   port.WalletStore
	scheduled port.ScheduledBillStore
	schedule  domain.PenaltySchedule
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewBillService creates a new bill service.
func NewBillService(bills port.BillStore, wallets port.WalletStore, scheduled port.ScheduledBillStore, schedule domain.PenaltySchedule, metrics *observability.Metrics, logger *zap.Logger) *BillService {
	return &BillService{
		bills:     bills,
		wallets:   wallets,
		scheduled: scheduled,
		schedule:  schedule,
		metrics:   metrics,
		logger:    logger,
	}
}

// ============================================================
// Listing & reads
// ============================================================

// ListBills returns a user's bills with penalties recomputed against the
// current clock and filters applied. Filtering by status matches the
// derived display status, so "overdue" works even though it is never
// persisted.
func (s *BillService) ListBills(ctx context.Context, userID string, filters *domain.BillFilters) ([]domain.Bill, error) {
	ctx, span := billTracer.Start(ctx, "BillService.ListBills")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	bills, err := s.bills.ListBills(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]domain.Bill, 0, len(bills))
	for i := range bills {
		b := bills[i]
		s.schedule.ApplyPenalty(&b, now)
		if filters != nil && !matchBill(&b, filters, now) {
			continue
		}
		out = append(out, b)
	}

	// Overdue first, then by due date ascending
	sort.Slice(out, func(i, j int) bool {
		oi, oj := domain.IsBillOverdue(&out[i], now), domain.IsBillOverdue(&out[j], now)
		if oi != oj {
			return oi
		}
		return out[i].DueDate < out[j].DueDate
	})

	return out, nil
}

func matchBill(b *domain.Bill, f *domain.BillFilters, now time.Time) bool {
	if f.WalletID != "" && b.WalletID != f.WalletID {
		return false
	}
	if f.IsBusiness != nil && b.IsBusiness != *f.IsBusiness {
		return false
	}
	if f.Status != "" && domain.EffectiveStatus(b, now) != f.Status {
		return false
	}
	if f.FromDate > 0 && b.DueDate < f.FromDate {
		return false
	}
	if f.ToDate > 0 && b.DueDate > f.ToDate {
		return false
	}
	return true
}

// GetBill returns one bill with its penalty recomputed.
func (s *BillService) GetBill(ctx context.Context, userID, billID string) (*domain.Bill, error) {
	ctx, span := billTracer.Start(ctx, "BillService.GetBill")
	defer span.End()

	bill, err := s.bills.GetBill(ctx, userID, billID)
	if err != nil {
		return nil, err
	}
	s.schedule.ApplyPenalty(bill, time.Now())
	return bill, nil
}

// ============================================================
// Creation
// ============================================================

// CreateBill creates an unpaid bill. Service and ministry display names
// are denormalized from the catalog at creation time; a zero amount falls
// back to the catalog fee.
func (s *BillService) CreateBill(ctx context.Context, userID string, req *domain.CreateBillRequest) (*domain.Bill, error) {
	ctx, span := billTracer.Start(ctx, "BillService.CreateBill")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if req.ServiceType == "" {
		return nil, &domain.ErrValidation{Field: "serviceType", Message: "required"}
	}
	if req.WalletID == "" {
		return nil, &domain.ErrValidation{Field: "walletId", Message: "required"}
	}
	if req.DueDate <= 0 {
		return nil, &domain.ErrValidation{Field: "dueDate", Message: "must be a positive epoch-millisecond timestamp"}
	}

	// Wallet must exist and belong to the user
	if _, err := s.wallets.GetWallet(ctx, userID, req.WalletID); err != nil {
		return nil, err
	}

	amount := req.Amount
	if amount == 0 {
		amount = catalog.ServiceFee(req.ServiceType, req.ServiceSubType)
	}
	if amount <= 0 {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}

	now := time.Now()
	bill := &domain.Bill{
		ID:             uuid.New().String(),
		UserID:         userID,
		WalletID:       req.WalletID,
		IsBusiness:     req.IsBusiness,
		ServiceType:    req.ServiceType,
		ServiceSubType: req.ServiceSubType,
		ServiceName:    catalog.ServiceLabel(req.ServiceType),
		MinistryName:   catalog.MinistryLabel(req.ServiceType),
		Amount:         domain.Round2(amount),
		DueDate:        req.DueDate,
		IssueDate:      now.UnixMilli(),
		Status:         domain.BillStatusUnpaid,
		ReferenceNo:    req.ReferenceNo,
		AdditionalInfo: req.AdditionalInfo,
	}

	if err := s.bills.CreateBill(ctx, bill); err != nil {
		s.logger.Error("failed to create bill", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("bill created",
		zap.String("user_id", userID),
		zap.String("bill_id", bill.ID),
		zap.String("service_type", bill.ServiceType),
		zap.Float64("amount", bill.Amount),
	)

	return bill, nil
}

// ============================================================
// Bulk totals
// ============================================================

// CalculateBulkTotal sums the payable amount of each bill, penalty
// included when present. PreviewBulk and the charge step in PayBills both
// go through here, so the reviewed figure and the debited figure cannot
// drift apart.
func CalculateBulkTotal(bills []domain.Bill) float64 {
	var total float64
	for i := range bills {
		total += domain.PayableAmount(&bills[i])
	}
	return domain.Round2(total)
}

// PreviewBulk computes the review-step total for a set of bills. Penalties
// are recomputed against the current clock first, exactly as the charge
// step will.
func (s *BillService) PreviewBulk(ctx context.Context, userID string, billIDs []string) (*domain.BulkPreviewResponse, error) {
	ctx, span := billTracer.Start(ctx, "BillService.PreviewBulk")
	defer span.End()
	span.SetAttributes(attribute.Int("bill.count", len(billIDs)))

	if len(billIDs) == 0 {
		return nil, &domain.ErrValidation{Field: "billIds", Message: "at least one is required"}
	}

	now := time.Now()
	bills := make([]domain.Bill, 0, len(billIDs))
	for _, id := range billIDs {
		bill, err := s.bills.GetBill(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if bill.Status == domain.BillStatusPaid {
			return nil, &domain.ErrValidation{Field: "billIds", Message: "bill " + id + " is already paid"}
		}
		s.schedule.ApplyPenalty(bill, now)
		bills = append(bills, *bill)
	}

	total := CalculateBulkTotal(bills)

	return &domain.BulkPreviewResponse{
		BillIDs:     billIDs,
		Total:       total,
		TotalLabel:  format.AmountSAR(total),
		BillCount:   len(bills),
		PreviewedAt: now.UnixMilli(),
	}, nil
}

// ============================================================
// Scheduling
// ============================================================

// ScheduleBill registers a future-dated auto-payment for an unpaid bill
// and flips the bill to its scheduled status.
func (s *BillService) ScheduleBill(ctx context.Context, userID string, req *domain.ScheduleBillRequest) (*domain.ScheduledBill, error) {
	ctx, span := billTracer.Start(ctx, "BillService.ScheduleBill")
	defer span.End()
	span.SetAttributes(attribute.String("bill.id", req.BillID))

	if req.BillID == "" {
		return nil, &domain.ErrValidation{Field: "billId", Message: "required"}
	}
	now := time.Now()
	if req.ScheduledDate <= now.UnixMilli() {
		return nil, &domain.ErrValidation{Field: "scheduledDate", Message: "must be in the future"}
	}

	bill, err := s.bills.GetBill(ctx, userID, req.BillID)
	if err != nil {
		return nil, err
	}
	if bill.Status != domain.BillStatusUnpaid {
		return nil, &domain.ErrValidation{Field: "billId", Message: "only unpaid bills can be scheduled"}
	}

	walletID := req.WalletID
	if walletID == "" {
		walletID = bill.WalletID
	}
	if _, err := s.wallets.GetWallet(ctx, userID, walletID); err != nil {
		return nil, err
	}

	// Schedule the amount as it stands now, penalty included if the bill is
	// already overdue.
	s.schedule.ApplyPenalty(bill, now)

	sb := &domain.ScheduledBill{
		ID:              uuid.New().String(),
		BillID:          bill.ID,
		UserID:          userID,
		WalletID:        walletID,
		ScheduledDate:   req.ScheduledDate,
		ScheduledAmount: domain.PayableAmount(bill),
		Status:          domain.BillStatusScheduled,
		CreatedAt:       now.UnixMilli(),
	}

	if err := s.scheduled.CreateScheduledBill(ctx, sb); err != nil {
		s.logger.Error("failed to create scheduled bill", zap.String("bill_id", bill.ID), zap.Error(err))
		return nil, err
	}

	if err := s.bills.UpdateBillStatus(ctx, userID, bill.ID, domain.BillStatusScheduled); err != nil {
		s.logger.Error("failed to mark bill as scheduled",
			zap.String("bill_id", bill.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("bill scheduled",
		zap.String("user_id", userID),
		zap.String("bill_id", bill.ID),
		zap.String("schedule_id", sb.ID),
		zap.Int64("scheduled_date", sb.ScheduledDate),
	)

	return sb, nil
}

// ListScheduledBills returns a user's scheduled auto-payments.
func (s *BillService) ListScheduledBills(ctx context.Context, userID string) ([]domain.ScheduledBill, error) {
	ctx, span := billTracer.Start(ctx, "BillService.ListScheduledBills")
	defer span.End()

	return s.scheduled.ListScheduledBills(ctx, userID)
}

// CancelScheduledBill cancels a pending auto-payment and returns the bill
// to unpaid.
func (s *BillService) CancelScheduledBill(ctx context.Context, userID, scheduleID string) error {
	ctx, span := billTracer.Start(ctx, "BillService.CancelScheduledBill")
	defer span.End()

	scheduled, err := s.scheduled.ListScheduledBills(ctx, userID)
	if err != nil {
		return err
	}

	var target *domain.ScheduledBill
	for i := range scheduled {
		if scheduled[i].ID == scheduleID {
			target = &scheduled[i]
			break
		}
	}
	if target == nil {
		return &domain.ErrNotFound{Resource: "scheduled bill", ID: scheduleID}
	}
	if target.Status != domain.BillStatusScheduled {
		return &domain.ErrValidation{Field: "status", Message: "cannot cancel a schedule with status '" + target.Status + "'"}
	}

	if err := s.scheduled.UpdateScheduledBillStatus(ctx, userID, scheduleID, "cancelled"); err != nil {
		return err
	}

	if err := s.bills.UpdateBillStatus(ctx, userID, target.BillID, domain.BillStatusUnpaid); err != nil {
		s.logger.Error("failed to return bill to unpaid after cancel",
			zap.String("bill_id", target.BillID),
			zap.Error(err),
		)
	}

	s.logger.Info("scheduled bill cancelled",
		zap.String("user_id", userID),
		zap.String("schedule_id", scheduleID),
	)
	return nil
}
