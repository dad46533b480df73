package firebase

import (
	"context"
	"fmt"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Bill store (implements port.BillStore)
// ============================================================

func billPath(userID, billID string) string {
	return fmt.Sprintf("users/%s/bills/%s", userID, billID)
}

// ListBills reads the whole bill subtree for a user. Absent node means the
// user simply has no bills yet.
func (c *Client) ListBills(ctx context.Context, userID string) ([]domain.Bill, error) {
	ctx, span := tracer.Start(ctx, "Firebase.ListBills")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var bills []domain.Bill

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			nodes := map[string]domain.Bill{}
			found, err := c.get(ctx, fmt.Sprintf("users/%s/bills", userID), nil, &nodes)
			if err != nil {
				return err
			}
			bills = make([]domain.Bill, 0, len(nodes))
			if !found {
				return nil
			}
			for id, b := range nodes {
				if b.ID == "" {
					b.ID = id
				}
				bills = append(bills, b)
			}
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "firebase/bills", Err: err}
	}

	return bills, nil
}

// GetBill reads a single bill node.
func (c *Client) GetBill(ctx context.Context, userID, billID string) (*domain.Bill, error) {
	ctx, span := tracer.Start(ctx, "Firebase.GetBill")
	defer span.End()
	span.SetAttributes(attribute.String("bill.id", billID))

	var bill *domain.Bill

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var b domain.Bill
			found, err := c.get(ctx, billPath(userID, billID), nil, &b)
			if err != nil {
				return err
			}
			if !found {
				return &domain.ErrNotFound{Resource: "bill", ID: billID}
			}
			if b.ID == "" {
				b.ID = billID
			}
			bill = &b
			return nil
		})
	})

	if err != nil {
		if _, ok := err.(*domain.ErrNotFound); ok {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "firebase/bills", Err: err}
	}

	return bill, nil
}

// CreateBill writes a full bill node.
func (c *Client) CreateBill(ctx context.Context, bill *domain.Bill) error {
	ctx, span := tracer.Start(ctx, "Firebase.CreateBill")
	defer span.End()
	span.SetAttributes(attribute.String("bill.id", bill.ID))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.put(ctx, billPath(bill.UserID, bill.ID), bill)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/bills", Err: err}
	}
	return nil
}

// MarkBillPaid applies the terminal payment update in one partial write:
// status, paymentDate, paidWith and the frozen penalty snapshot together,
// and clears the payment lock.
func (c *Client) MarkBillPaid(ctx context.Context, userID, billID, txID string, paymentDate int64, penalty *domain.PenaltyInfo) error {
	ctx, span := tracer.Start(ctx, "Firebase.MarkBillPaid")
	defer span.End()
	span.SetAttributes(attribute.String("bill.id", billID))

	updates := map[string]any{
		"status":      domain.BillStatusPaid,
		"paymentDate": paymentDate,
		"paidWith":    txID,
		"paymentLock": nil,
	}
	if penalty != nil {
		updates["penaltyInfo"] = penalty
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.patch(ctx, billPath(userID, billID), updates)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/bills", Err: err}
	}
	return nil
}

// TryLockBill acquires the per-bill payment lock with an ETag-conditional
// write. A bill already locked by another session, or a write lost to a
// concurrent update, surfaces as domain.ErrConflict. Retries are deliberate
// here: a conditional-write conflict is final, not transient.
func (c *Client) TryLockBill(ctx context.Context, userID, billID, lockID string) error {
	ctx, span := tracer.Start(ctx, "Firebase.TryLockBill")
	defer span.End()
	span.SetAttributes(attribute.String("bill.id", billID))

	var bill domain.Bill
	etag, found, err := c.getWithETag(ctx, billPath(userID, billID), &bill)
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/bills", Err: err}
	}
	if !found {
		return &domain.ErrNotFound{Resource: "bill", ID: billID}
	}
	if bill.Status == domain.BillStatusPaid {
		return &domain.ErrConflict{Message: fmt.Sprintf("bill %s is already paid", billID)}
	}
	if bill.PaymentLock != "" && bill.PaymentLock != lockID {
		return &domain.ErrConflict{Message: fmt.Sprintf("bill %s is locked by another payment", billID)}
	}

	bill.ID = billID
	bill.PaymentLock = lockID
	if err := c.putIfMatch(ctx, billPath(userID, billID), etag, &bill); err != nil {
		if _, ok := err.(*domain.ErrConflict); ok {
			return err
		}
		return &domain.ErrExternalService{Service: "firebase/bills", Err: err}
	}
	return nil
}

// UnlockBill releases the payment lock. Safe to call on an unlocked bill.
func (c *Client) UnlockBill(ctx context.Context, userID, billID string) error {
	ctx, span := tracer.Start(ctx, "Firebase.UnlockBill")
	defer span.End()

	err := c.delete(ctx, billPath(userID, billID)+"/paymentLock")
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/bills", Err: err}
	}
	return nil
}

// UpdateBillStatus writes just the status child of a bill.
func (c *Client) UpdateBillStatus(ctx context.Context, userID, billID, status string) error {
	ctx, span := tracer.Start(ctx, "Firebase.UpdateBillStatus")
	defer span.End()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.patch(ctx, billPath(userID, billID), map[string]any{"status": status})
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/bills", Err: err}
	}
	return nil
}
