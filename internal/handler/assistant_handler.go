package handler

import (
	"encoding/json"
	"net/http"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Assistant — POST /v1/assistant/{userId}
// ============================================================

func assistantHandler(svc *service.Assistant, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/assistant/{userId}")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		span.SetAttributes(attribute.String("user.id", userID))

		var req domain.AssistantRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.WalletID == "" {
			writeError(w, http.StatusBadRequest, "walletId is required")
			return
		}

		resp, err := svc.Ask(ctx, userID, req.WalletID, req.Message)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
