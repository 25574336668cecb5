// Package gateway is the HTTP client for the payment processor: it opens
// hosted payment sessions, verifies captured payments and pays out settled
// escrow to merchant accounts.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/escrow-settlement/internal/config"
	"github.com/escrow-settlement/internal/platform/metrics"
)

const (
	statusSuccess   = "success"
	maxResponseSize = 1 << 20
)

// Client calls the processor's REST API with a bearer secret key
type Client struct {
	baseURL        string
	secretKey      string
	redirectURL    string
	customizations Customizations
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewClient builds a client whose every call is bounded by cfg.Timeout
func NewClient(logger *slog.Logger, cfg *config.GatewayConfig) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:   cfg.SecretKey,
		redirectURL: cfg.RedirectURL,
		customizations: Customizations{
			Title:       cfg.Title,
			Description: cfg.Description,
			Logo:        cfg.LogoURL,
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "payment_gateway"),
	}
}

// InitializePayment opens a hosted payment session and returns its link
func (c *Client) InitializePayment(ctx context.Context, req PaymentRequest) (*PaymentSession, error) {
	payload := paymentPayload{
		PaymentRequest: req,
		RedirectURL:    c.redirectURL,
		Customizations: c.customizations,
	}

	var data struct {
		Link string `json:"link"`
	}
	env, err := c.do(ctx, "initialize", http.MethodPost, "/payments", payload, &data)
	if err != nil {
		return nil, err
	}
	if data.Link == "" {
		return nil, errors.New("processor returned no payment link")
	}

	return &PaymentSession{
		Status:  env.Status,
		Message: env.Message,
		Link:    data.Link,
	}, nil
}

// VerifyPayment fetches the processor's record of a captured payment
func (c *Client) VerifyPayment(ctx context.Context, externalID string) (*Verification, error) {
	var v Verification
	path := "/transactions/" + url.PathEscape(externalID) + "/verify"
	if _, err := c.do(ctx, "verify", http.MethodGet, path, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Transfer pays out to a merchant account. Any reply other than a success
// envelope is an error, including a call cut short by the client timeout.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	var data struct {
		Reference string `json:"reference"`
	}
	env, err := c.do(ctx, "transfer", http.MethodPost, "/merchant-accounts/transfer", req, &data)
	if err != nil {
		return nil, err
	}

	reference := data.Reference
	if reference == "" {
		reference = req.Reference
	}
	return &TransferResult{Reference: reference, Message: env.Message}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload, out interface{}) (env *envelope, err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.GatewayRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Processor call failed", "operation", op, "error", err)
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	env = &envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, &ResponseError{StatusCode: resp.StatusCode, Message: truncate(string(raw), 256)}
		}
		return nil, fmt.Errorf("failed to decode %s response: %w", op, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices || env.Status != statusSuccess {
		c.logger.Warn("Processor rejected call",
			"operation", op,
			"http_status", resp.StatusCode,
			"status", env.Status,
			"message", env.Message,
		)
		return nil, &ResponseError{StatusCode: resp.StatusCode, Status: env.Status, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("failed to decode %s data: %w", op, err)
		}
	}

	return env, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
