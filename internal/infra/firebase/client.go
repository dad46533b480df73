// Package firebase provides a client for the Firebase Realtime Database
// REST API, the data backend for bills, wallets, ledger and auth records.
// Paths are hierarchical (users/{uid}/bills/{billId}) and every node is
// addressed as <baseURL>/<path>.json.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/absherpay/absher-bfa-go/internal/domain"
	"github.com/absherpay/absher-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("firebase")

// Client wraps HTTP calls to the Realtime Database REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	cb         *gobreaker.CircuitBreaker
	bh         *resilience.Bulkhead
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewClient creates a Realtime Database client. When cfg.MaxConcurrency
// is positive, at most that many requests run against the database at
// once; the rest queue on a bulkhead.
func NewClient(httpClient *http.Client, baseURL, authToken string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	var bh *resilience.Bulkhead
	if cfg.MaxConcurrency > 0 {
		bh = resilience.NewBulkhead(cfg.MaxConcurrency)
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		cb:         cb,
		bh:         bh,
		cfg:        cfg,
		logger:     logger,
	}
}

// nodeURL builds the REST URL for a database path, appending auth and any
// query filters.
func (c *Client) nodeURL(path string, query url.Values) string {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, strings.Trim(path, "/"))
	q := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.authToken != "" {
		q.Set("auth", c.authToken)
	}
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// orderBy quotes a child key for the RTDB orderBy query parameter.
func orderBy(child string) string {
	return fmt.Sprintf("%q", child)
}

// get reads a node into out. A "null" node leaves out untouched and returns
// found=false; callers map that to domain.ErrNotFound where appropriate.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) (found bool, err error) {
	body, err := c.doRequest(ctx, http.MethodGet, path, query, nil, nil)
	if err != nil {
		return false, err
	}
	if isNull(body) {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

// put writes a full node.
func (c *Client) put(ctx context.Context, path string, data any) error {
	_, err := c.doRequest(ctx, http.MethodPut, path, nil, data, nil)
	return err
}

// patch applies a partial update to a node.
func (c *Client) patch(ctx context.Context, path string, updates map[string]any) error {
	_, err := c.doRequest(ctx, http.MethodPatch, path, nil, updates, nil)
	return err
}

// delete removes a node.
func (c *Client) delete(ctx context.Context, path string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil, nil, nil)
	return err
}

// getWithETag reads a node and returns its ETag for a conditional write.
func (c *Client) getWithETag(ctx context.Context, path string, out any) (etag string, found bool, err error) {
	headers := http.Header{}
	headers.Set("X-Firebase-ETag", "true")
	var respETag string
	body, err := c.doRequestFull(ctx, http.MethodGet, path, nil, nil, headers, &respETag)
	if err != nil {
		return "", false, err
	}
	if isNull(body) {
		return respETag, false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return "", false, fmt.Errorf("decode %s: %w", path, err)
	}
	return respETag, true, nil
}

// putIfMatch writes a node only when its ETag still matches.
// A lost race surfaces as domain.ErrConflict.
func (c *Client) putIfMatch(ctx context.Context, path, etag string, data any) error {
	headers := http.Header{}
	headers.Set("if-match", etag)
	_, err := c.doRequestFull(ctx, http.MethodPut, path, nil, data, headers, nil)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, data any, headers http.Header) ([]byte, error) {
	return c.doRequestFull(ctx, method, path, query, data, headers, nil)
}

// doRequestFull executes one authenticated REST call against the database.
func (c *Client) doRequestFull(ctx context.Context, method, path string, query url.Values, data any, headers http.Header, etagOut *string) ([]byte, error) {
	if c.bh != nil {
		if err := c.bh.Acquire(ctx); err != nil {
			return nil, err
		}
		defer c.bh.Release()
	}

	var reqBody io.Reader
	if data != nil {
		jsonBody, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.nodeURL(path, query), reqBody)
	if err != nil {
		c.logger.Error("firebase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("firebase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("firebase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode == http.StatusPreconditionFailed {
		return nil, &domain.ErrConflict{Message: fmt.Sprintf("concurrent update on %s", path)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("firebase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, fmt.Errorf("firebase returned status %d: %s", resp.StatusCode, string(body))
	}

	if etagOut != nil {
		*etagOut = resp.Header.Get("ETag")
	}

	c.logger.Debug("firebase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return body, nil
}

// isNull reports whether a node read returned the literal null (absent node).
func isNull(body []byte) bool {
	return len(body) == 0 || string(bytes.TrimSpace(body)) == "null"
}
