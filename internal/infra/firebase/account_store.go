package firebase

import (
	"context"
	"fmt"
	"sort"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Bank account store (implements port.BankAccountStore)
// ============================================================

func accountPath(userID, accountID string) string {
	return fmt.Sprintf("users/%s/bankAccounts/%s", userID, accountID)
}

// ListBankAccounts returns a user's linked accounts, oldest first.
func (c *Client) ListBankAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error) {
	ctx, span := tracer.Start(ctx, "Firebase.ListBankAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var accounts []domain.BankAccount

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			nodes := map[string]domain.BankAccount{}
			found, err := c.get(ctx, fmt.Sprintf("users/%s/bankAccounts", userID), nil, &nodes)
			if err != nil {
				return err
			}
			accounts = make([]domain.BankAccount, 0, len(nodes))
			if !found {
				return nil
			}
			for id, acct := range nodes {
				if acct.ID == "" {
					acct.ID = id
				}
				accounts = append(accounts, acct)
			}
			sort.Slice(accounts, func(i, j int) bool { return accounts[i].CreatedAt < accounts[j].CreatedAt })
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "firebase/bankAccounts", Err: err}
	}

	return accounts, nil
}

// GetBankAccount reads a single linked account.
func (c *Client) GetBankAccount(ctx context.Context, userID, accountID string) (*domain.BankAccount, error) {
	ctx, span := tracer.Start(ctx, "Firebase.GetBankAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	var acct *domain.BankAccount

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var a domain.BankAccount
			found, err := c.get(ctx, accountPath(userID, accountID), nil, &a)
			if err != nil {
				return err
			}
			if !found {
				return &domain.ErrNotFound{Resource: "bank account", ID: accountID}
			}
			if a.ID == "" {
				a.ID = accountID
			}
			acct = &a
			return nil
		})
	})

	if err != nil {
		if _, ok := err.(*domain.ErrNotFound); ok {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "firebase/bankAccounts", Err: err}
	}

	return acct, nil
}

// CreateBankAccount writes a new linked account node.
func (c *Client) CreateBankAccount(ctx context.Context, acct *domain.BankAccount) error {
	ctx, span := tracer.Start(ctx, "Firebase.CreateBankAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", acct.ID))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.put(ctx, accountPath(acct.UserID, acct.ID), acct)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/bankAccounts", Err: err}
	}
	return nil
}

// UpdateBankAccount applies a partial update to an account node.
func (c *Client) UpdateBankAccount(ctx context.Context, userID, accountID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Firebase.UpdateBankAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.patch(ctx, accountPath(userID, accountID), updates)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/bankAccounts", Err: err}
	}
	return nil
}

// DeleteBankAccount removes the account node.
func (c *Client) DeleteBankAccount(ctx context.Context, userID, accountID string) error {
	ctx, span := tracer.Start(ctx, "Firebase.DeleteBankAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.delete(ctx, accountPath(userID, accountID))
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/bankAccounts", Err: err}
	}
	return nil
}
