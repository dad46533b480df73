// Package client holds HTTP clients for external services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("client")

// AgentClient calls the external text-generation API used by the assistant.
type AgentClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewAgentClient creates a new AgentClient.
func NewAgentClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *AgentClient {
	return &AgentClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

// Complete sends a system prompt and user query and returns the generated
// text with token accounting.
func (c *AgentClient) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "AgentClient.Complete")
	defer span.End()

	var completion domain.CompletionResponse

	result, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/completions", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("completion API returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&completion)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &completion, nil
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "agent", Err: err}
	}

	return result.(*domain.CompletionResponse), nil
}
