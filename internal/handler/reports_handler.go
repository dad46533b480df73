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
// Reports
// ============================================================

// listReportsHandler returns the monthly, quarterly and yearly reports for
// a wallet plus any cached custom reports. ?type= narrows the list (or
// "all"); ?startDate=/?endDate= bound the report windows in epoch millis.
func listReportsHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/wallets/{walletId}/reports")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		walletID := chi.URLParam(r, "walletId")
		span.SetAttributes(attribute.String("wallet.id", walletID))

		reports, err := svc.GetAllReports(ctx, userID, walletID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		reports = service.FilterReports(reports,
			r.URL.Query().Get("type"),
			parseEpochMillis(r, "startDate"),
			parseEpochMillis(r, "endDate"),
		)

		writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
	}
}

// quickRangeReportHandler aggregates over a named rolling or calendar
// range, e.g. ?range=7d.
func quickRangeReportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/wallets/{walletId}/reports/quick-range")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		walletID := chi.URLParam(r, "walletId")
		span.SetAttributes(attribute.String("wallet.id", walletID))

		report, err := svc.GenerateQuickReport(ctx, userID, walletID, r.URL.Query().Get("range"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func customReportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/wallets/{walletId}/reports/custom")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		walletID := chi.URLParam(r, "walletId")

		var req domain.CustomReportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		report, err := svc.GenerateCustomReport(ctx, userID, walletID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
