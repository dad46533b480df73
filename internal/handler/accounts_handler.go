package handler

import (
	"encoding/json"
	"net/http"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Bank accounts
// ============================================================

func listBankAccountsHandler(svc *service.BankAccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/accounts")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		accounts, err := svc.ListBankAccounts(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if accounts == nil {
			accounts = []domain.BankAccount{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
	}
}

func createBankAccountHandler(svc *service.BankAccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/accounts")
		defer span.End()

		userID := chi.URLParam(r, "userId")

		var req domain.CreateBankAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		account, err := svc.CreateBankAccount(ctx, userID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, account)
	}
}

func selectBankAccountHandler(svc *service.BankAccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/accounts/{accountId}/select")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		accountID := chi.URLParam(r, "accountId")

		if err := svc.SelectBankAccount(ctx, userID, accountID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func verifyBankAccountHandler(svc *service.BankAccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/accounts/{accountId}/verify")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		accountID := chi.URLParam(r, "accountId")

		if err := svc.VerifyBankAccount(ctx, userID, accountID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteBankAccountHandler(svc *service.BankAccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/users/{userId}/accounts/{accountId}")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		accountID := chi.URLParam(r, "accountId")

		if err := svc.DeleteBankAccount(ctx, userID, accountID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
