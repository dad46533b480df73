package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/format"
	"github.com/absherpay/absher-bfa-go/internal/infra/observability"
	"github.com/absherpay/absher-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var assistantTracer = otel.Tracer("service/assistant")

// Assistant answers user questions about their bills and wallet through
// the external text-generation API. The model only ever sees a rendered
// summary of the user's own data and its reply is validated before it
// reaches the client.
type Assistant struct {
	bills       port.BillStore
	wallets     port.WalletStore
	agentClient port.AgentCaller
	schedule    domain.PenaltySchedule
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewAssistant creates the assistant service with all dependencies injected.
func NewAssistant(
	bills port.BillStore,
	wallets port.WalletStore,
	agent port.AgentCaller,
	schedule domain.PenaltySchedule,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Assistant {
	return &Assistant{
		bills:       bills,
		wallets:     wallets,
		agentClient: agent,
		schedule:    schedule,
		metrics:     metrics,
		logger:      logger,
	}
}

// Ask orchestrates the assistant flow: fetch bills and wallet concurrently,
// render the context prompt, call the model and validate its reply.
func (a *Assistant) Ask(ctx context.Context, userID, walletID, message string) (*domain.AssistantResponse, error) {
	// Bail out early if the caller already cancelled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := assistantTracer.Start(ctx, "Assistant.Ask")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	start := time.Now()
	defer func() {
		a.metrics.RecordRequestDuration("assistant", time.Since(start))
	}()

	if strings.TrimSpace(message) == "" {
		return nil, &domain.ErrValidation{Field: "message", Message: "required"}
	}

	// --- Step 1: Fetch bills + wallet concurrently ---
	var (
		bills  []domain.Bill
		wallet *domain.Wallet
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b, err := a.bills.ListBills(gCtx, userID)
		if err != nil {
			a.logger.Error("failed to fetch bills for assistant",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			a.metrics.IncrExternalError("bills")
			return fmt.Errorf("bills fetch: %w", err)
		}
		bills = b
		return nil
	})

	g.Go(func() error {
		w, err := a.wallets.GetWallet(gCtx, userID, walletID)
		if err != nil {
			a.logger.Error("failed to fetch wallet for assistant",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			a.metrics.IncrExternalError("wallets")
			return fmt.Errorf("wallet fetch: %w", err)
		}
		wallet = w
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// --- Step 2: Call the model ---
	completionReq := &domain.CompletionRequest{
		SystemPrompt: a.renderSystemPrompt(wallet, bills),
		Query:        message,
	}

	agentStart := time.Now()
	completion, err := a.agentClient.Complete(ctx, completionReq)
	a.metrics.RecordRequestDuration("agent", time.Since(agentStart))

	if err != nil {
		a.logger.Error("completion call failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		a.metrics.IncrExternalError("agent")
		return nil, fmt.Errorf("completion call: %w", err)
	}

	// --- Step 3: Validate the reply ---
	reply := strings.TrimSpace(completion.Text)
	if reply == "" || !containsArabic(reply) {
		a.logger.Warn("model reply rejected by validation",
			zap.String("user_id", userID),
			zap.Int("reply_len", len(reply)),
		)
		reply = "عذراً، لم أتمكن من معالجة سؤالك. حاول مرة أخرى."
	}

	a.metrics.RecordTokens(completion.PromptTokens, completion.CompletionTokens)

	return &domain.AssistantResponse{
		Reply:            reply,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		LatencyMs:        time.Since(start).Milliseconds(),
	}, nil
}

// renderSystemPrompt builds the Arabic context block the model answers
// from. Amounts and dates use the same formatting the app shows, so the
// model quotes figures the user recognizes.
func (a *Assistant) renderSystemPrompt(wallet *domain.Wallet, bills []domain.Bill) string {
	now := time.Now()

	var sb strings.Builder
	sb.WriteString("أنت مساعد أبشر للمدفوعات الحكومية. أجب بالعربية فقط وباختصار، واعتمد حصراً على البيانات التالية.\n\n")
	sb.WriteString(fmt.Sprintf("رصيد المحفظة: %s\n", format.AmountSAR(wallet.Balance)))
	sb.WriteString(fmt.Sprintf("تاريخ اليوم: %s\n\n", format.GregorianArabic(now.UnixMilli())))

	sb.WriteString("الفواتير:\n")
	for i := range bills {
		b := &bills[i]
		a.schedule.ApplyPenalty(b, now)
		status := domain.StatusLabel(domain.EffectiveStatus(b, now))
		line := fmt.Sprintf("- %s (%s): %s، الاستحقاق %s، الحالة: %s",
			b.ServiceName.Ar,
			b.MinistryName.Ar,
			format.AmountSAR(domain.PayableAmount(b)),
			format.GregorianArabic(b.DueDate),
			status,
		)
		if b.PenaltyInfo != nil {
			line += fmt.Sprintf("، غرامة تأخير %s", format.AmountSAR(b.PenaltyInfo.LateFee))
		}
		sb.WriteString(line + "\n")
	}
	if len(bills) == 0 {
		sb.WriteString("- لا توجد فواتير\n")
	}

	return sb.String()
}

func containsArabic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}
