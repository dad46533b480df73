package service

import (
	"context"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var acctTracer = otel.Tracer("service/accounts")

// BankAccountService manages user-linked external bank accounts.
type BankAccountService struct {
	store  port.BankAccountStore
	logger *zap.Logger
}

// NewBankAccountService creates a new bank account service.
func NewBankAccountService(store port.BankAccountStore, logger *zap.Logger) *BankAccountService {
	return &BankAccountService{store: store, logger: logger}
}

func (s *BankAccountService) ListBankAccounts(ctx context.Context, userID string) ([]domain.BankAccount, error) {
	ctx, span := acctTracer.Start(ctx, "BankAccountService.ListBankAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	return s.store.ListBankAccounts(ctx, userID)
}

// CreateBankAccount links a new account. The IBAN must be a valid Saudi
// IBAN and not already linked by this user.
func (s *BankAccountService) CreateBankAccount(ctx context.Context, userID string, req *domain.CreateBankAccountRequest) (*domain.BankAccount, error) {
	ctx, span := acctTracer.Start(ctx, "BankAccountService.CreateBankAccount")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if !domain.ValidateIBAN(req.IBAN) {
		return nil, &domain.ErrValidation{Field: "iban", Message: "must be SA followed by 22 digits"}
	}
	if req.AccountOwner == "" {
		return nil, &domain.ErrValidation{Field: "accountOwner", Message: "required"}
	}
	if req.BankName == "" {
		return nil, &domain.ErrValidation{Field: "bankName", Message: "required"}
	}

	existing, err := s.store.ListBankAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].IBAN == req.IBAN {
			return nil, &domain.ErrDuplicate{Key: req.IBAN}
		}
	}

	acct := &domain.BankAccount{
		ID:           uuid.New().String(),
		UserID:       userID,
		BankID:       req.BankID,
		BankName:     req.BankName,
		IBAN:         req.IBAN,
		AccountOwner: req.AccountOwner,
		// First linked account becomes the selected one
		IsSelected: len(existing) == 0,
		CreatedAt:  time.Now().UnixMilli(),
	}

	if err := s.store.CreateBankAccount(ctx, acct); err != nil {
		s.logger.Error("failed to create bank account", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("bank account linked",
		zap.String("user_id", userID),
		zap.String("account_id", acct.ID),
		zap.String("bank", acct.BankName),
	)

	return acct, nil
}

// SelectBankAccount marks one account as the active funding source and
// clears the flag on every other account of the user.
func (s *BankAccountService) SelectBankAccount(ctx context.Context, userID, accountID string) error {
	ctx, span := acctTracer.Start(ctx, "BankAccountService.SelectBankAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	accounts, err := s.store.ListBankAccounts(ctx, userID)
	if err != nil {
		return err
	}

	found := false
	for i := range accounts {
		if accounts[i].ID == accountID {
			found = true
			break
		}
	}
	if !found {
		return &domain.ErrNotFound{Resource: "bank account", ID: accountID}
	}

	for i := range accounts {
		acct := &accounts[i]
		want := acct.ID == accountID
		if acct.IsSelected == want {
			continue
		}
		if err := s.store.UpdateBankAccount(ctx, userID, acct.ID, map[string]any{"isSelected": want}); err != nil {
			return err
		}
	}

	s.logger.Info("bank account selected",
		zap.String("user_id", userID),
		zap.String("account_id", accountID),
	)
	return nil
}

// VerifyBankAccount marks a linked account verified. Verification against
// the bank's records happens out of band; this records the outcome.
func (s *BankAccountService) VerifyBankAccount(ctx context.Context, userID, accountID string) error {
	ctx, span := acctTracer.Start(ctx, "BankAccountService.VerifyBankAccount")
	defer span.End()

	if _, err := s.store.GetBankAccount(ctx, userID, accountID); err != nil {
		return err
	}
	return s.store.UpdateBankAccount(ctx, userID, accountID, map[string]any{"isVerified": true})
}

// DeleteBankAccount unlinks an account. Deleting the selected account
// promotes the oldest remaining one.
func (s *BankAccountService) DeleteBankAccount(ctx context.Context, userID, accountID string) error {
	ctx, span := acctTracer.Start(ctx, "BankAccountService.DeleteBankAccount")
	defer span.End()

	acct, err := s.store.GetBankAccount(ctx, userID, accountID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteBankAccount(ctx, userID, accountID); err != nil {
		return err
	}

	if acct.IsSelected {
		remaining, listErr := s.store.ListBankAccounts(ctx, userID)
		if listErr == nil && len(remaining) > 0 {
			if selErr := s.store.UpdateBankAccount(ctx, userID, remaining[0].ID, map[string]any{"isSelected": true}); selErr != nil {
				s.logger.Warn("failed to promote replacement selected account",
					zap.String("user_id", userID),
					zap.Error(selErr),
				)
			}
		}
	}

	s.logger.Info("bank account unlinked",
		zap.String("user_id", userID),
		zap.String("account_id", accountID),
	)
	return nil
}
