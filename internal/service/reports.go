package service

import (
	"context"
	"sort"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/catalog"
	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/observability"
	"github.com/absherpay/absher-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var reportTracer = otel.Tracer("service/reports")

// ReportService generates expense aggregates over the wallet ledger.
// Reports are derived data: every figure can be recomputed from the
// transactions at any time, so caching them is always safe.
type ReportService struct {
	wallets port.WalletStore
	cache   port.ReportCache
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewReportService creates a new report service.
func NewReportService(wallets port.WalletStore, cache port.ReportCache, metrics *observability.Metrics, logger *zap.Logger) *ReportService {
	return &ReportService{
		wallets: wallets,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// ============================================================
// Standard periods
// ============================================================

// GetAllReports generates the three standard aggregates (current month,
// current quarter, current year) in one call, followed by any custom
// reports still held in the wallet's cache.
func (s *ReportService) GetAllReports(ctx context.Context, userID, walletID string) ([]domain.Report, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.GetAllReports")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", walletID))

	now := time.Now()
	periods := []struct {
		typ   string
		title string
	}{
		{"monthly", "تقرير الشهر الحالي"},
		{"quarterly", "تقرير الربع الحالي"},
		{"yearly", "تقرير السنة الحالية"},
	}

	reports := make([]domain.Report, 0, len(periods))
	for _, p := range periods {
		from, to := QuickRange(p.typ, now)
		report, err := s.generate(ctx, userID, walletID, p.typ, p.title, from, to)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *report)
	}

	// Custom reports live only as cache entries; payments invalidate them
	// along with everything else for the wallet.
	customs := make([]domain.Report, 0)
	for _, cached := range s.cache.ListWallet(ctx, walletID) {
		if cached.Type == "custom" {
			customs = append(customs, *cached)
		}
	}
	sort.Slice(customs, func(i, j int) bool {
		if customs[i].GeneratedAt != customs[j].GeneratedAt {
			return customs[i].GeneratedAt < customs[j].GeneratedAt
		}
		return customs[i].ID < customs[j].ID
	})
	return append(reports, customs...), nil
}

var quickRangeTitles = map[string]string{
	"7d":        "تقرير آخر 7 أيام",
	"30d":       "تقرير آخر 30 يوماً",
	"90d":       "تقرير آخر 90 يوماً",
	"monthly":   "تقرير الشهر الحالي",
	"quarterly": "تقرير الربع الحالي",
	"yearly":    "تقرير السنة الحالية",
}

// GenerateQuickReport aggregates over a named range (7d, 30d, 90d or one
// of the calendar periods) ending now.
func (s *ReportService) GenerateQuickReport(ctx context.Context, userID, walletID, key string) (*domain.Report, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.GenerateQuickReport")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", walletID), attribute.String("range", key))

	title, ok := quickRangeTitles[key]
	if !ok {
		return nil, &domain.ErrValidation{Field: "range", Message: "must be one of 7d, 30d, 90d, monthly, quarterly, yearly"}
	}

	from, to := QuickRange(key, time.Now())
	return s.generate(ctx, userID, walletID, key, title, from, to)
}

// GenerateCustomReport aggregates over an explicit window.
func (s *ReportService) GenerateCustomReport(ctx context.Context, userID, walletID string, req *domain.CustomReportRequest) (*domain.Report, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.GenerateCustomReport")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.id", walletID))

	if req.FromDate <= 0 || req.ToDate <= 0 {
		return nil, &domain.ErrValidation{Field: "fromDate", Message: "fromDate and toDate are required"}
	}
	if req.ToDate < req.FromDate {
		return nil, &domain.ErrValidation{Field: "toDate", Message: "must not precede fromDate"}
	}

	title := req.Title
	if title == "" {
		title = "تقرير مخصص"
	}
	return s.generate(ctx, userID, walletID, "custom", title, req.FromDate, req.ToDate)
}

// QuickRange resolves a range keyword to its epoch-millisecond window
// ending now. Rolling keys (7d, 30d, 90d) count back from now; period
// keys start at the current month, quarter or year.
func QuickRange(key string, now time.Time) (fromMs, toMs int64) {
	var start time.Time
	switch key {
	case "7d":
		start = now.AddDate(0, 0, -7)
	case "30d":
		start = now.AddDate(0, 0, -30)
	case "90d":
		start = now.AddDate(0, 0, -90)
	case "quarterly":
		q := (int(now.Month()) - 1) / 3
		start = time.Date(now.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, now.Location())
	case "yearly":
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	default: // monthly
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
	return start.UnixMilli(), now.UnixMilli()
}

// ============================================================
// Aggregation
// ============================================================

func (s *ReportService) generate(ctx context.Context, userID, walletID, reportType, title string, fromMs, toMs int64) (*domain.Report, error) {
	if cached, ok := s.cache.Get(ctx, walletID, fromMs, toMs); ok {
		s.metrics.IncrCacheHit("reports")
		report := *cached
		report.Type = reportType
		report.Title = title
		return &report, nil
	}
	s.metrics.IncrCacheMiss("reports")

	txs, err := s.wallets.ListTransactions(ctx, userID, walletID)
	if err != nil {
		return nil, err
	}

	report := AggregateTransactions(walletID, txs, fromMs, toMs)
	report.ID = uuid.New().String()
	report.Type = reportType
	report.Title = title

	s.cache.Set(ctx, report)

	s.logger.Debug("report generated",
		zap.String("wallet_id", walletID),
		zap.String("type", reportType),
		zap.Int("operations", report.OperationsCount),
		zap.Float64("total", report.TotalExpense),
	)

	return report, nil
}

// AggregateTransactions folds expense transactions in [fromMs, toMs] into
// per-serviceType categories. Credits and out-of-window entries are
// skipped. An empty window yields a zero report with no categories rather
// than an error.
func AggregateTransactions(walletID string, txs []domain.Transaction, fromMs, toMs int64) *domain.Report {
	type bucket struct {
		amount float64
		count  int
	}
	buckets := make(map[string]*bucket)

	var total float64
	var count int
	for i := range txs {
		tx := &txs[i]
		if tx.Timestamp < fromMs || tx.Timestamp > toMs {
			continue
		}
		if tx.Amount >= 0 {
			continue
		}
		expense := -tx.Amount
		total += expense
		count++

		key := tx.ServiceType
		if key == "" {
			key = "other"
		}
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.amount += expense
		b.count++
	}

	report := &domain.Report{
		WalletID:        walletID,
		FromDate:        fromMs,
		ToDate:          toMs,
		TotalExpense:    domain.Round2(total),
		OperationsCount: count,
		Categories:      []domain.ReportCategory{},
		GeneratedAt:     time.Now().UnixMilli(),
	}
	if total <= 0 {
		return report
	}

	for serviceType, b := range buckets {
		name := catalog.ServiceLabel(serviceType).Ar
		if serviceType == "other" {
			name = "أخرى"
		}
		report.Categories = append(report.Categories, domain.ReportCategory{
			Name:        name,
			ServiceType: serviceType,
			Amount:      domain.Round2(b.amount),
			Percentage:  domain.Round2(b.amount / total * 100),
			Count:       b.count,
		})
	}

	// Largest categories first; ties break on serviceType for stable output
	sort.Slice(report.Categories, func(i, j int) bool {
		if report.Categories[i].Amount != report.Categories[j].Amount {
			return report.Categories[i].Amount > report.Categories[j].Amount
		}
		return report.Categories[i].ServiceType < report.Categories[j].ServiceType
	})

	return report
}

// FilterReports narrows a report list by type and optional window bounds.
// Type "all" (or empty) keeps every type; a zero bound is open on that
// side. A report survives the bounds when its window overlaps them.
func FilterReports(reports []domain.Report, reportType string, fromMs, toMs int64) []domain.Report {
	out := make([]domain.Report, 0, len(reports))
	for _, r := range reports {
		if reportType != "" && reportType != "all" && r.Type != reportType {
			continue
		}
		if fromMs > 0 && r.ToDate < fromMs {
			continue
		}
		if toMs > 0 && r.FromDate > toMs {
			continue
		}
		out = append(out, r)
	}
	return out
}
