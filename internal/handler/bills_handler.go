package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Bills
// ============================================================

// listBillsHandler returns the user's bills with penalties applied.
// Filters: ?walletId= &status= &isBusiness= &from= &to= (epoch ms).
func listBillsHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/bills")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		span.SetAttributes(attribute.String("user.id", userID))

		filters := &domain.BillFilters{
			WalletID: r.URL.Query().Get("walletId"),
			Status:   r.URL.Query().Get("status"),
			FromDate: parseEpochMillis(r, "from"),
			ToDate:   parseEpochMillis(r, "to"),
		}
		if v := r.URL.Query().Get("isBusiness"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				filters.IsBusiness = &b
			}
		}

		bills, err := svc.ListBills(ctx, userID, filters)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if bills == nil {
			bills = []domain.Bill{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
	}
}

func getBillHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/bills/{billId}")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		billID := chi.URLParam(r, "billId")

		bill, err := svc.GetBill(ctx, userID, billID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, bill)
	}
}

func createBillHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/bills")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		span.SetAttributes(attribute.String("user.id", userID))

		var req domain.CreateBillRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		bill, err := svc.CreateBill(ctx, userID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, bill)
	}
}

// previewBulkHandler computes the payable total of a bill selection without
// charging anything.
func previewBulkHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/bills/preview")
		defer span.End()

		userID := chi.URLParam(r, "userId")

		var body struct {
			BillIDs []string `json:"billIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		preview, err := svc.PreviewBulk(ctx, userID, body.BillIDs)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

// ============================================================
// Scheduled bills
// ============================================================

func listScheduledBillsHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/scheduled-bills")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		scheduled, err := svc.ListScheduledBills(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if scheduled == nil {
			scheduled = []domain.ScheduledBill{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"scheduledBills": scheduled})
	}
}

func scheduleBillHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/users/{userId}/scheduled-bills")
		defer span.End()

		userID := chi.URLParam(r, "userId")

		var req domain.ScheduleBillRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sb, err := svc.ScheduleBill(ctx, userID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, sb)
	}
}

func cancelScheduledBillHandler(svc *service.BillService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/users/{userId}/scheduled-bills/{scheduleId}")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		scheduleID := chi.URLParam(r, "scheduleId")

		if err := svc.CancelScheduledBill(ctx, userID, scheduleID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
