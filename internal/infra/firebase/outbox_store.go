package firebase

import (
	"context"
	"sort"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Outbox store (implements port.OutboxStore)
// ============================================================

// EnqueueOutbox writes a pending bookkeeping record. This runs in the hot
// path of a partially failed payment, after the wallet is already debited,
// so it keeps the same retry protection as every other write.
func (c *Client) EnqueueOutbox(ctx context.Context, entry *domain.OutboxEntry) error {
	ctx, span := tracer.Start(ctx, "Firebase.EnqueueOutbox")
	defer span.End()
	span.SetAttributes(attribute.String("outbox.id", entry.ID))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.put(ctx, "outbox/"+entry.ID, entry)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/outbox", Err: err}
	}
	return nil
}

// ListOutbox returns up to limit pending entries, oldest first, so the
// reconciler drains in arrival order.
func (c *Client) ListOutbox(ctx context.Context, limit int) ([]domain.OutboxEntry, error) {
	ctx, span := tracer.Start(ctx, "Firebase.ListOutbox")
	defer span.End()

	var entries []domain.OutboxEntry

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			nodes := map[string]domain.OutboxEntry{}
			found, err := c.get(ctx, "outbox", nil, &nodes)
			if err != nil {
				return err
			}
			entries = make([]domain.OutboxEntry, 0, len(nodes))
			if !found {
				return nil
			}
			for id, e := range nodes {
				if e.ID == "" {
					e.ID = id
				}
				entries = append(entries, e)
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt < entries[j].CreatedAt })
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "firebase/outbox", Err: err}
	}

	return entries, nil
}

// UpdateOutbox rewrites an entry after a failed reconciliation attempt.
func (c *Client) UpdateOutbox(ctx context.Context, entry *domain.OutboxEntry) error {
	ctx, span := tracer.Start(ctx, "Firebase.UpdateOutbox")
	defer span.End()
	span.SetAttributes(attribute.String("outbox.id", entry.ID))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.put(ctx, "outbox/"+entry.ID, entry)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/outbox", Err: err}
	}
	return nil
}

// DeleteOutbox removes a reconciled entry.
func (c *Client) DeleteOutbox(ctx context.Context, entryID string) error {
	ctx, span := tracer.Start(ctx, "Firebase.DeleteOutbox")
	defer span.End()
	span.SetAttributes(attribute.String("outbox.id", entryID))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.delete(ctx, "outbox/"+entryID)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/outbox", Err: err}
	}
	return nil
}
