package firebase

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Scheduled bill store (implements port.ScheduledBillStore)
// ============================================================
//
// Scheduled bills live in a single top-level collection so the reconciler
// can query all users' due entries with one indexed range query.

// ListScheduledBills returns a user's scheduled bills ordered by run date.
func (c *Client) ListScheduledBills(ctx context.Context, userID string) ([]domain.ScheduledBill, error) {
	ctx, span := tracer.Start(ctx, "Firebase.ListScheduledBills")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	query := url.Values{}
	query.Set("orderBy", orderBy("userId"))
	query.Set("equalTo", fmt.Sprintf("%q", userID))

	scheduled, err := c.queryScheduled(ctx, query)
	if err != nil {
		return nil, err
	}
	return scheduled, nil
}

// ListDueScheduledBills returns every entry whose run date has passed,
// across all users. Already-executed and cancelled entries are filtered
// out client-side; the range query only narrows by date.
func (c *Client) ListDueScheduledBills(ctx context.Context, nowMs int64) ([]domain.ScheduledBill, error) {
	ctx, span := tracer.Start(ctx, "Firebase.ListDueScheduledBills")
	defer span.End()

	query := url.Values{}
	query.Set("orderBy", orderBy("scheduledDate"))
	query.Set("endAt", fmt.Sprintf("%d", nowMs))

	scheduled, err := c.queryScheduled(ctx, query)
	if err != nil {
		return nil, err
	}

	due := scheduled[:0]
	for _, sb := range scheduled {
		if sb.Status == domain.BillStatusScheduled {
			due = append(due, sb)
		}
	}
	return due, nil
}

func (c *Client) queryScheduled(ctx context.Context, query url.Values) ([]domain.ScheduledBill, error) {
	var scheduled []domain.ScheduledBill

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			nodes := map[string]domain.ScheduledBill{}
			found, err := c.get(ctx, "scheduledBills", query, &nodes)
			if err != nil {
				return err
			}
			scheduled = make([]domain.ScheduledBill, 0, len(nodes))
			if !found {
				return nil
			}
			for id, sb := range nodes {
				if sb.ID == "" {
					sb.ID = id
				}
				scheduled = append(scheduled, sb)
			}
			sort.Slice(scheduled, func(i, j int) bool {
				return scheduled[i].ScheduledDate < scheduled[j].ScheduledDate
			})
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "firebase/scheduledBills", Err: err}
	}

	return scheduled, nil
}

// CreateScheduledBill writes a new scheduled entry.
func (c *Client) CreateScheduledBill(ctx context.Context, sb *domain.ScheduledBill) error {
	ctx, span := tracer.Start(ctx, "Firebase.CreateScheduledBill")
	defer span.End()
	span.SetAttributes(attribute.String("schedule.id", sb.ID))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.put(ctx, "scheduledBills/"+sb.ID, sb)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/scheduledBills", Err: err}
	}
	return nil
}

// UpdateScheduledBillStatus moves an entry between scheduled, executed and
// cancelled. Ownership is checked before writing.
func (c *Client) UpdateScheduledBillStatus(ctx context.Context, userID, scheduleID, status string) error {
	ctx, span := tracer.Start(ctx, "Firebase.UpdateScheduledBillStatus")
	defer span.End()
	span.SetAttributes(attribute.String("schedule.id", scheduleID))

	var sb domain.ScheduledBill
	var notFound error

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			found, err := c.get(ctx, "scheduledBills/"+scheduleID, nil, &sb)
			if err != nil {
				return err
			}
			if !found || sb.UserID != userID {
				notFound = &domain.ErrNotFound{Resource: "scheduled bill", ID: scheduleID}
				return nil
			}
			return c.patch(ctx, "scheduledBills/"+scheduleID, map[string]any{"status": status})
		})
	})

	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/scheduledBills", Err: err}
	}
	if notFound != nil {
		return notFound
	}
	return nil
}
