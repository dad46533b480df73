package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/absherpay/absher-bfa-go/internal/catalog"
	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var devTracer = otel.Tracer("service/devtools")

// DevToolsService seeds synthetic data for demos and manual testing.
// It is only wired up when DEV_TOOLS=true.
type DevToolsService struct {
	bills   port.BillStore
	wallets port.WalletStore
	logger  *zap.Logger
}

// NewDevToolsService creates a new dev tools service.
func NewDevToolsService(bills port.BillStore, wallets port.WalletStore, logger *zap.Logger) *DevToolsService {
	return &DevToolsService{bills: bills, wallets: wallets, logger: logger}
}

// GenerateBillsResponse reports the outcome of a generation run.
type GenerateBillsResponse struct {
	Success   bool     `json:"success"`
	Generated int      `json:"generated"`
	BillIDs   []string `json:"billIds"`
	Message   string   `json:"message"`
}

// GenerateBills creates random bills drawn from the service catalog. The
// status mix controls how due dates fall: overdue bills get past due
// dates, upcoming ones land inside the next week, unpaid ones further out.
func (s *DevToolsService) GenerateBills(ctx context.Context, req *domain.GenerateBillsRequest) (*GenerateBillsResponse, error) {
	ctx, span := devTracer.Start(ctx, "DevToolsService.GenerateBills")
	defer span.End()

	if req.UserID == "" {
		return nil, &domain.ErrValidation{Field: "userId", Message: "required"}
	}
	if req.WalletID == "" {
		return nil, &domain.ErrValidation{Field: "walletId", Message: "required"}
	}
	if req.Count <= 0 || req.Count > 50 {
		return nil, &domain.ErrValidation{Field: "count", Message: "must be between 1 and 50"}
	}

	if _, err := s.wallets.GetWallet(ctx, req.UserID, req.WalletID); err != nil {
		return nil, err
	}

	serviceTypes := req.ServiceTypes
	if len(serviceTypes) == 0 {
		serviceTypes = catalog.ServiceTypes()
	}
	statusMix := req.StatusMix
	if len(statusMix) == 0 {
		statusMix = []string{
			domain.EffectiveStatusUnpaid,
			domain.EffectiveStatusUpcoming,
			domain.EffectiveStatusOverdue,
		}
	}

	now := time.Now()
	generated := 0
	billIDs := make([]string, 0, req.Count)

	for i := 0; i < req.Count; i++ {
		serviceType := serviceTypes[rand.Intn(len(serviceTypes))]
		target := statusMix[rand.Intn(len(statusMix))]

		var dueDate int64
		status := domain.BillStatusUnpaid
		switch target {
		case domain.EffectiveStatusOverdue:
			// 1 to 120 days in the past, spanning all penalty tiers
			dueDate = now.AddDate(0, 0, -(rand.Intn(120) + 1)).UnixMilli()
		case domain.EffectiveStatusUpcoming:
			dueDate = now.AddDate(0, 0, rand.Intn(7)+1).UnixMilli()
		case domain.EffectiveStatusPaid:
			dueDate = now.AddDate(0, 0, -(rand.Intn(30) + 1)).UnixMilli()
			status = domain.BillStatusPaid
		default:
			dueDate = now.AddDate(0, 0, rand.Intn(52)+8).UnixMilli()
		}

		amount := catalog.ServiceFee(serviceType, "")
		if amount == 0 {
			amount = float64(rand.Intn(490)+10) * 10 // 100 to 5000 SAR
		}

		bill := &domain.Bill{
			ID:           uuid.New().String(),
			UserID:       req.UserID,
			WalletID:     req.WalletID,
			IsBusiness:   req.IsBusiness,
			ServiceType:  serviceType,
			ServiceName:  catalog.ServiceLabel(serviceType),
			MinistryName: catalog.MinistryLabel(serviceType),
			Amount:       amount,
			DueDate:      dueDate,
			IssueDate:    now.AddDate(0, 0, -rand.Intn(30)).UnixMilli(),
			Status:       status,
			ReferenceNo:  fmt.Sprintf("%010d", rand.Int63n(1e10)),
		}
		if status == domain.BillStatusPaid {
			bill.PaymentDate = now.AddDate(0, 0, -rand.Intn(10)).UnixMilli()
			bill.PaidWith = uuid.New().String()
		}

		if err := s.bills.CreateBill(ctx, bill); err != nil {
			s.logger.Warn("DEV: failed to insert bill", zap.Int("index", i), zap.Error(err))
			continue
		}
		generated++
		billIDs = append(billIDs, bill.ID)
	}

	s.logger.Info("DEV: bills generated",
		zap.String("user_id", req.UserID),
		zap.Int("generated", generated),
	)

	return &GenerateBillsResponse{
		Success:   true,
		Generated: generated,
		BillIDs:   billIDs,
		Message:   fmt.Sprintf("%d bills generated", generated),
	}, nil
}
