package firebase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Wallet store (implements port.WalletStore)
// ============================================================

// GetWallet reads a wallet and enforces ownership: a wallet whose userId
// does not match the caller is reported as not found, never as someone
// else's wallet.
func (c *Client) GetWallet(ctx context.Context, userID, walletID string) (*domain.Wallet, error) {
	ctx, span := tracer.Start(ctx, "Firebase.GetWallet")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", walletID))

	var wallet *domain.Wallet

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			var w domain.Wallet
			found, err := c.get(ctx, "wallets/"+walletID, nil, &w)
			if err != nil {
				return err
			}
			if !found || w.UserID != userID {
				return &domain.ErrNotFound{Resource: "wallet", ID: walletID}
			}
			if w.ID == "" {
				w.ID = walletID
			}
			wallet = &w
			return nil
		})
	})

	if err != nil {
		if _, ok := err.(*domain.ErrNotFound); ok {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "firebase/wallets", Err: err}
	}

	return wallet, nil
}

// UpdateWalletBalance writes the new balance. The caller computes the new
// value under the payment flow's locking discipline; this is a plain write.
func (c *Client) UpdateWalletBalance(ctx context.Context, userID, walletID string, newBalance float64) error {
	ctx, span := tracer.Start(ctx, "Firebase.UpdateWalletBalance")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", walletID))

	if _, err := c.GetWallet(ctx, userID, walletID); err != nil {
		return err
	}

	updates := map[string]any{
		"balance":   newBalance,
		"updatedAt": time.Now().UnixMilli(),
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.patch(ctx, "wallets/"+walletID, updates)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/wallets", Err: err}
	}
	return nil
}

// InsertTransaction appends a ledger entry under the wallet's transaction
// subtree. Ledger entries are immutable once written.
func (c *Client) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Firebase.InsertTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", tx.ID))

	path := fmt.Sprintf("transactions/%s/%s", tx.WalletID, tx.ID)

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.put(ctx, path, tx)
		})
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "firebase/transactions", Err: err}
	}
	return nil
}

// ListTransactions returns the wallet's ledger, newest first.
func (c *Client) ListTransactions(ctx context.Context, userID, walletID string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Firebase.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", walletID))

	if _, err := c.GetWallet(ctx, userID, walletID); err != nil {
		return nil, err
	}

	var txs []domain.Transaction

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			nodes := map[string]domain.Transaction{}
			found, err := c.get(ctx, "transactions/"+walletID, nil, &nodes)
			if err != nil {
				return err
			}
			txs = make([]domain.Transaction, 0, len(nodes))
			if !found {
				return nil
			}
			for id, tx := range nodes {
				if tx.ID == "" {
					tx.ID = id
				}
				txs = append(txs, tx)
			}
			sort.Slice(txs, func(i, j int) bool { return txs[i].Timestamp > txs[j].Timestamp })
			return nil
		})
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "firebase/transactions", Err: err}
	}

	return txs, nil
}
