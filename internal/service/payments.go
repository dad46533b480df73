package service

import (
	"context"
	"errors"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/observability"
	"github.com/absherpay/absher-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var payTracer = otel.Tracer("service/payments")

// PaymentService owns money movement: the bulk charge flow, its outbox
// handoff and the post-payment side effects.
type PaymentService struct {
	bills     port.BillStore
	wallets   port.WalletStore
	outbox    port.OutboxStore
	auth      port.AuthStore
	publisher port.EventPublisher
	reports   port.ReportCache
	idempo    port.Cache[*domain.BulkPaymentResult]
	schedule  domain.PenaltySchedule
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(
	bills port.BillStore,
	wallets port.WalletStore,
	outbox port.OutboxStore,
	auth port.AuthStore,
	publisher port.EventPublisher,
	reports port.ReportCache,
	idempo port.Cache[*domain.BulkPaymentResult],
	schedule domain.PenaltySchedule,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		bills:     bills,
		wallets:   wallets,
		outbox:    outbox,
		auth:      auth,
		publisher: publisher,
		reports:   reports,
		idempo:    idempo,
		schedule:  schedule,
		metrics:   metrics,
		logger:    logger,
	}
}

// ============================================================
// Bulk payment
// ============================================================

// PayBills charges a set of bills against one wallet as a single ledger
// transaction. The wallet debit is the authoritative step: once it lands,
// the payment has happened, and any bill whose mark-as-paid write then
// fails is handed to the outbox instead of failing the call.
func (s *PaymentService) PayBills(ctx context.Context, userID string, req *domain.BulkPaymentRequest) (*domain.BulkPaymentResult, error) {
	ctx, span := payTracer.Start(ctx, "PaymentService.PayBills")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("wallet.id", req.WalletID),
		attribute.Int("bill.count", len(req.BillIDs)),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("bulk_payment", time.Since(start)) }()

	if len(req.BillIDs) == 0 {
		return nil, &domain.ErrValidation{Field: "billIds", Message: "at least one is required"}
	}
	if req.WalletID == "" {
		return nil, &domain.ErrValidation{Field: "walletId", Message: "required"}
	}
	if req.IdempotencyKey == "" {
		return nil, &domain.ErrValidation{Field: "idempotencyKey", Message: "required"}
	}

	// Replay of a processed request returns the original result unchanged.
	if prev, ok := s.idempo.Get(req.IdempotencyKey); ok {
		s.logger.Info("bulk payment replayed from idempotency cache",
			zap.String("user_id", userID),
			zap.String("idempotency_key", req.IdempotencyKey),
		)
		return prev, nil
	}

	// ── 1. Verify and consume the payment OTP ──
	if err := s.verifyPaymentOTP(ctx, userID, req.OTPCode); err != nil {
		return nil, err
	}

	// ── 2. Fetch bills, reject already-paid, recompute penalties ──
	now := time.Now()
	bills := make([]domain.Bill, 0, len(req.BillIDs))
	for _, id := range req.BillIDs {
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

	// ── 3. Lock every bill; release all on any conflict ──
	lockID := uuid.New().String()
	locked := make([]string, 0, len(bills))
	for i := range bills {
		if err := s.bills.TryLockBill(ctx, userID, bills[i].ID, lockID); err != nil {
			s.releaseLocks(ctx, userID, locked)
			return nil, err
		}
		locked = append(locked, bills[i].ID)
	}
	defer s.releaseLocks(ctx, userID, locked)

	// ── 4. Total, wallet and sufficiency check ──
	total := CalculateBulkTotal(bills)

	wallet, err := s.wallets.GetWallet(ctx, userID, req.WalletID)
	if err != nil {
		return nil, err
	}
	if wallet.Balance < total {
		s.metrics.RecordPayment("failed", 0)
		return nil, &domain.ErrInsufficientFunds{Available: wallet.Balance, Required: total}
	}

	// ── 5. Ledger entry + wallet debit (the authoritative step) ──
	txID := uuid.New().String()
	newBalance := domain.Round2(wallet.Balance - total)
	nowMs := now.UnixMilli()

	tx := &domain.Transaction{
		ID:            txID,
		WalletID:      req.WalletID,
		UserID:        userID,
		Type:          "payment",
		Amount:        -total,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  newBalance,
		Timestamp:     nowMs,
		Status:        "completed",
		Description:   bulkDescription(bills),
	}
	if len(bills) == 1 {
		tx.ServiceType = bills[0].ServiceType
		tx.ServiceSubType = bills[0].ServiceSubType
		tx.Ministry = bills[0].MinistryName.Ar
		tx.ReferenceNo = bills[0].ReferenceNo
		tx.PenaltyInfo = bills[0].PenaltyInfo
	}
	if err := s.wallets.InsertTransaction(ctx, tx); err != nil {
		s.metrics.RecordPayment("failed", 0)
		return nil, err
	}
	if err := s.wallets.UpdateWalletBalance(ctx, userID, req.WalletID, newBalance); err != nil {
		s.metrics.RecordPayment("failed", 0)
		return nil, err
	}

	// ── 6. Per-bill bookkeeping; failures go to the outbox ──
	paidIDs := make([]string, 0, len(bills))
	var failedIDs []string
	for i := range bills {
		b := &bills[i]
		if err := s.bills.MarkBillPaid(ctx, userID, b.ID, txID, nowMs, b.PenaltyInfo); err != nil {
			s.logger.Error("failed to mark bill paid after wallet debit",
				zap.String("user_id", userID),
				zap.String("bill_id", b.ID),
				zap.String("transaction_id", txID),
				zap.Error(err),
			)
			entry := &domain.OutboxEntry{
				ID:          uuid.New().String(),
				UserID:      userID,
				BillID:      b.ID,
				TxID:        txID,
				PenaltyInfo: b.PenaltyInfo,
				CreatedAt:   nowMs,
				LastError:   err.Error(),
			}
			if obErr := s.outbox.EnqueueOutbox(ctx, entry); obErr != nil {
				s.logger.Error("failed to enqueue outbox entry",
					zap.String("bill_id", b.ID),
					zap.Error(obErr),
				)
			}
			failedIDs = append(failedIDs, b.ID)
			continue
		}
		paidIDs = append(paidIDs, b.ID)
	}

	// ── 7. Side effects: event, cache invalidation, metrics ──
	ev := &domain.PaymentEvent{
		TransactionID: txID,
		UserID:        userID,
		WalletID:      req.WalletID,
		Amount:        total,
		BillIDs:       paidIDs,
		FailedBillIDs: failedIDs,
		Timestamp:     nowMs,
	}
	if pubErr := s.publisher.PublishPaymentEvent(ctx, ev); pubErr != nil {
		s.logger.Warn("failed to publish payment event",
			zap.String("transaction_id", txID),
			zap.Error(pubErr),
		)
	}

	s.reports.InvalidateWallet(ctx, req.WalletID)

	outcome := "success"
	if len(failedIDs) > 0 {
		outcome = "partial"
	}
	s.metrics.RecordPayment(outcome, total)

	result := &domain.BulkPaymentResult{
		TransactionID:  txID,
		TotalCharged:   total,
		NewBalance:     newBalance,
		PaidBillIDs:    paidIDs,
		FailedBillIDs:  failedIDs,
		PartialFailure: len(failedIDs) > 0,
		Timestamp:      nowMs,
	}
	s.idempo.Set(req.IdempotencyKey, result)

	s.logger.Info("bulk payment completed",
		zap.String("user_id", userID),
		zap.String("transaction_id", txID),
		zap.Float64("total", total),
		zap.Int("paid", len(paidIDs)),
		zap.Int("pending_reconciliation", len(failedIDs)),
	)

	return result, nil
}

func bulkDescription(bills []domain.Bill) string {
	if len(bills) == 1 {
		return "سداد فاتورة - " + bills[0].ServiceName.Ar
	}
	return "سداد فواتير"
}

func (s *PaymentService) releaseLocks(ctx context.Context, userID string, billIDs []string) {
	for _, id := range billIDs {
		if err := s.bills.UnlockBill(ctx, userID, id); err != nil {
			s.logger.Warn("failed to release bill payment lock",
				zap.String("bill_id", id),
				zap.Error(err),
			)
		}
	}
}

func (s *PaymentService) verifyPaymentOTP(ctx context.Context, userID, code string) error {
	if code == "" {
		return &domain.ErrValidation{Field: "otpCode", Message: "required"}
	}

	ch, err := s.auth.GetOTPChallenge(ctx, userID, "payment")
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return &domain.ErrInvalidCode{}
		}
		return err
	}

	if !verifyOTPCode(ch.CodeHash, code) {
		s.logger.Warn("payment OTP mismatch", zap.String("user_id", userID))
		return &domain.ErrInvalidCode{}
	}

	if err := s.auth.ConsumeOTPChallenge(ctx, ch.ID); err != nil {
		return err
	}
	return nil
}

// ============================================================
// Scheduled execution (called by the reconciler)
// ============================================================

// ExecuteScheduledBill runs a due auto-payment. No OTP is involved; the
// user consented at scheduling time. Insufficient funds returns the bill
// to unpaid so it resurfaces in the app instead of looping forever.
func (s *PaymentService) ExecuteScheduledBill(ctx context.Context, sb *domain.ScheduledBill, scheduled port.ScheduledBillStore) error {
	ctx, span := payTracer.Start(ctx, "PaymentService.ExecuteScheduledBill")
	defer span.End()
	span.SetAttributes(attribute.String("schedule.id", sb.ID))

	bill, err := s.bills.GetBill(ctx, sb.UserID, sb.BillID)
	if err != nil {
		return err
	}
	if bill.Status == domain.BillStatusPaid {
		return scheduled.UpdateScheduledBillStatus(ctx, sb.UserID, sb.ID, "executed")
	}

	now := time.Now()
	s.schedule.ApplyPenalty(bill, now)
	amount := domain.PayableAmount(bill)

	lockID := uuid.New().String()
	if err := s.bills.TryLockBill(ctx, sb.UserID, bill.ID, lockID); err != nil {
		return err
	}
	defer s.releaseLocks(ctx, sb.UserID, []string{bill.ID})

	wallet, err := s.wallets.GetWallet(ctx, sb.UserID, sb.WalletID)
	if err != nil {
		return err
	}
	if wallet.Balance < amount {
		s.logger.Warn("scheduled payment skipped: insufficient funds",
			zap.String("schedule_id", sb.ID),
			zap.Float64("available", wallet.Balance),
			zap.Float64("required", amount),
		)
		if stErr := scheduled.UpdateScheduledBillStatus(ctx, sb.UserID, sb.ID, "cancelled"); stErr != nil {
			return stErr
		}
		return s.bills.UpdateBillStatus(ctx, sb.UserID, bill.ID, domain.BillStatusUnpaid)
	}

	txID := uuid.New().String()
	newBalance := domain.Round2(wallet.Balance - amount)
	nowMs := now.UnixMilli()

	tx := &domain.Transaction{
		ID:            txID,
		WalletID:      sb.WalletID,
		UserID:        sb.UserID,
		Type:          "payment",
		Amount:        -amount,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  newBalance,
		Timestamp:     nowMs,
		Status:        "completed",
		ServiceType:   bill.ServiceType,
		Ministry:      bill.MinistryName.Ar,
		ReferenceNo:   bill.ReferenceNo,
		Description:   "سداد مجدول - " + bill.ServiceName.Ar,
		PenaltyInfo:   bill.PenaltyInfo,
	}
	if err := s.wallets.InsertTransaction(ctx, tx); err != nil {
		return err
	}
	if err := s.wallets.UpdateWalletBalance(ctx, sb.UserID, sb.WalletID, newBalance); err != nil {
		return err
	}

	if err := s.bills.MarkBillPaid(ctx, sb.UserID, bill.ID, txID, nowMs, bill.PenaltyInfo); err != nil {
		entry := &domain.OutboxEntry{
			ID:          uuid.New().String(),
			UserID:      sb.UserID,
			BillID:      bill.ID,
			TxID:        txID,
			PenaltyInfo: bill.PenaltyInfo,
			CreatedAt:   nowMs,
			LastError:   err.Error(),
		}
		if obErr := s.outbox.EnqueueOutbox(ctx, entry); obErr != nil {
			s.logger.Error("failed to enqueue outbox entry for scheduled payment",
				zap.String("bill_id", bill.ID),
				zap.Error(obErr),
			)
		}
	}

	if err := scheduled.UpdateScheduledBillStatus(ctx, sb.UserID, sb.ID, "executed"); err != nil {
		s.logger.Error("failed to mark schedule executed",
			zap.String("schedule_id", sb.ID),
			zap.Error(err),
		)
	}

	ev := &domain.PaymentEvent{
		TransactionID: txID,
		UserID:        sb.UserID,
		WalletID:      sb.WalletID,
		Amount:        amount,
		BillIDs:       []string{bill.ID},
		Timestamp:     nowMs,
	}
	if pubErr := s.publisher.PublishPaymentEvent(ctx, ev); pubErr != nil {
		s.logger.Warn("failed to publish scheduled payment event", zap.Error(pubErr))
	}

	s.reports.InvalidateWallet(ctx, sb.WalletID)
	s.metrics.RecordPayment("success", amount)

	s.logger.Info("scheduled payment executed",
		zap.String("user_id", sb.UserID),
		zap.String("schedule_id", sb.ID),
		zap.String("transaction_id", txID),
		zap.Float64("amount", amount),
	)
	return nil
}
