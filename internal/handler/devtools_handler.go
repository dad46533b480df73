package handler

import (
	"encoding/json"
	"net/http"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Dev Tools
// ============================================================

// devGenerateBillsHandler seeds synthetic bills for a user. Only routed
// when dev tools are enabled in config.
func devGenerateBillsHandler(svc *service.DevToolsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dev/generate-bills")
		defer span.End()

		var req domain.GenerateBillsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := svc.GenerateBills(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
