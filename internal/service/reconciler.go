package service

import (
	"context"
	"errors"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/observability"
	"github.com/absherpay/absher-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var reconcileTracer = otel.Tracer("service/reconciler")

const outboxBatchSize = 50

// Reconciler is the background loop that finishes what the hot path could
// not: it retries pending bill-bookkeeping writes from the outbox and
// executes scheduled payments whose run date has arrived.
type Reconciler struct {
	bills       port.BillStore
	outbox      port.OutboxStore
	scheduled   port.ScheduledBillStore
	payments    *PaymentService
	interval    time.Duration
	maxAttempts int
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(
	bills port.BillStore,
	outbox port.OutboxStore,
	scheduled port.ScheduledBillStore,
	payments *PaymentService,
	interval time.Duration,
	maxAttempts int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		bills:       bills,
		outbox:      outbox,
		scheduled:   scheduled,
		payments:    payments,
		interval:    interval,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		logger:      logger,
	}
}

// Run ticks until the context is cancelled. One pass per tick: drain the
// outbox first (money already moved, bookkeeping owed), then execute due
// schedules.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info("reconciler started", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	ctx, span := reconcileTracer.Start(ctx, "Reconciler.runOnce")
	defer span.End()

	r.drainOutbox(ctx)
	r.executeDueSchedules(ctx)
}

// drainOutbox retries pending mark-as-paid writes, oldest first. Entries
// that exhaust their attempts stay in the store for manual review and are
// logged loudly; dropping them would silently lose a paid bill.
func (r *Reconciler) drainOutbox(ctx context.Context) {
	entries, err := r.outbox.ListOutbox(ctx, outboxBatchSize)
	if err != nil {
		r.logger.Error("outbox listing failed", zap.Error(err))
		return
	}
	r.metrics.SetOutboxDepth(len(entries))
	if len(entries) == 0 {
		return
	}

	for i := range entries {
		entry := &entries[i]
		if entry.Attempts >= r.maxAttempts {
			r.logger.Error("outbox entry exhausted retries, manual review required",
				zap.String("outbox_id", entry.ID),
				zap.String("bill_id", entry.BillID),
				zap.String("transaction_id", entry.TxID),
				zap.Int("attempts", entry.Attempts),
				zap.String("last_error", entry.LastError),
			)
			continue
		}

		err := r.bills.MarkBillPaid(ctx, entry.UserID, entry.BillID, entry.TxID, entry.CreatedAt, entry.PenaltyInfo)
		if err != nil {
			entry.Attempts++
			entry.LastError = err.Error()
			r.metrics.IncrOutboxRetry()
			if updErr := r.outbox.UpdateOutbox(ctx, entry); updErr != nil {
				r.logger.Error("failed to update outbox entry after retry",
					zap.String("outbox_id", entry.ID),
					zap.Error(updErr),
				)
			}
			r.logger.Warn("outbox retry failed",
				zap.String("outbox_id", entry.ID),
				zap.String("bill_id", entry.BillID),
				zap.Int("attempts", entry.Attempts),
				zap.Error(err),
			)
			continue
		}

		if delErr := r.outbox.DeleteOutbox(ctx, entry.ID); delErr != nil {
			// MarkBillPaid is idempotent, so a duplicate pass is harmless.
			r.logger.Warn("failed to delete reconciled outbox entry",
				zap.String("outbox_id", entry.ID),
				zap.Error(delErr),
			)
			continue
		}

		r.logger.Info("outbox entry reconciled",
			zap.String("outbox_id", entry.ID),
			zap.String("bill_id", entry.BillID),
			zap.String("transaction_id", entry.TxID),
		)
	}
}

func (r *Reconciler) executeDueSchedules(ctx context.Context) {
	due, err := r.scheduled.ListDueScheduledBills(ctx, time.Now().UnixMilli())
	if err != nil {
		r.logger.Error("due schedule listing failed", zap.Error(err))
		return
	}

	for i := range due {
		sb := &due[i]
		if err := r.payments.ExecuteScheduledBill(ctx, sb, r.scheduled); err != nil {
			var conflict *domain.ErrConflict
			if errors.As(err, &conflict) {
				// Another instance got there first.
				r.logger.Debug("scheduled bill already being processed",
					zap.String("schedule_id", sb.ID),
				)
				continue
			}
			r.logger.Error("scheduled payment failed",
				zap.String("schedule_id", sb.ID),
				zap.String("bill_id", sb.BillID),
				zap.Error(err),
			)
		}
	}
}
