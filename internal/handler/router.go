package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/catalog"
	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/observability"
	"github.com/absherpay/absher-bfa-go/internal/port"
	"github.com/absherpay/absher-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services groups everything the router needs.
type Services struct {
	Bills     *service.BillService
	Payments  *service.PaymentService
	Reports   *service.ReportService
	Accounts  *service.BankAccountService
	Auth      *service.AuthService
	Assistant *service.Assistant
	DevTools  *service.DevToolsService

	// Wallets is probed by the health check.
	Wallets port.WalletStore
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs *Services, metrics *observability.Metrics, devMode bool, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs.Wallets, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Public routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authLoginHandler(svcs.Auth, logger))
			r.Post("/refresh", authRefreshHandler(svcs.Auth, logger))
			r.Post("/logout", authLogoutHandler(svcs.Auth, logger))

			r.Group(func(r chi.Router) {
				r.Use(JWTAuthMiddleware(svcs.Auth, logger))
				r.Post("/otp/request", requestOTPHandler(svcs.Auth, logger))
			})
		})

		r.Get("/catalog/ministries", catalogMinistriesHandler())

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svcs.Auth, logger))

			r.Route("/users/{userId}", func(r chi.Router) {
				r.Use(RequireOwner(logger))

				r.Get("/bills", listBillsHandler(svcs.Bills, logger))
				r.Post("/bills", createBillHandler(svcs.Bills, logger))
				r.Post("/bills/preview", previewBulkHandler(svcs.Bills, logger))
				r.Get("/bills/{billId}", getBillHandler(svcs.Bills, logger))

				r.Get("/scheduled-bills", listScheduledBillsHandler(svcs.Bills, logger))
				r.Post("/scheduled-bills", scheduleBillHandler(svcs.Bills, logger))
				r.Delete("/scheduled-bills/{scheduleId}", cancelScheduledBillHandler(svcs.Bills, logger))

				r.Get("/wallets/{walletId}/reports", listReportsHandler(svcs.Reports, logger))
				r.Get("/wallets/{walletId}/reports/quick-range", quickRangeReportHandler(svcs.Reports, logger))
				r.Post("/wallets/{walletId}/reports/custom", customReportHandler(svcs.Reports, logger))

				r.Get("/accounts", listBankAccountsHandler(svcs.Accounts, logger))
				r.Post("/accounts", createBankAccountHandler(svcs.Accounts, logger))
				r.Post("/accounts/{accountId}/select", selectBankAccountHandler(svcs.Accounts, logger))
				r.Post("/accounts/{accountId}/verify", verifyBankAccountHandler(svcs.Accounts, logger))
				r.Delete("/accounts/{accountId}", deleteBankAccountHandler(svcs.Accounts, logger))
			})

			r.Post("/payments/bulk", payBillsHandler(svcs.Payments, logger))

			r.With(RequireOwner(logger)).Post("/assistant/{userId}", assistantHandler(svcs.Assistant, logger))
		})

		// Dev tools, only routed when enabled
		if devMode && svcs.DevTools != nil {
			r.Post("/dev/generate-bills", devGenerateBillsHandler(svcs.DevTools, logger))
		}
	})

	return r
}

// ============================================================
// Health & catalog
// ============================================================

func healthzHandler(wallets port.WalletStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "absher-bfa-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if wallets != nil {
			start := time.Now()
			_, err := wallets.GetWallet(ctx, "health-check", "health-check")
			latency := time.Since(start).Milliseconds()

			// A not-found answer still proves the database responded.
			status := "healthy"
			var notFound *domain.ErrNotFound
			if err != nil && !errors.As(err, &notFound) {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "firebase", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func catalogMinistriesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ministries": catalog.Ministries()})
	}
}
