package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Titi-shop/TiTi/internal/domain/payment"
	"github.com/Titi-shop/TiTi/internal/infra/logging"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultAttempts = 3
	defaultBackoff  = 250 * time.Millisecond
)

// Client talks to the payment network's server API. Approve and Complete
// are billed, stateful operations on the provider side; callers are
// expected to guard them with the idempotency ledger.
type Client struct {
	BaseURL     string
	APIKey      string
	HTTP        *http.Client
	Logger      logging.Logger
	MaxAttempts int
	BaseDelay   time.Duration
}

func NewClient(baseURL, apiKey string, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.Noop{}
	}
	return &Client{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		HTTP:        &http.Client{Timeout: defaultTimeout},
		Logger:      logger,
		MaxAttempts: defaultAttempts,
		BaseDelay:   defaultBackoff,
	}
}

func (c *Client) Approve(ctx context.Context, paymentID string) error {
	return c.post(ctx, fmt.Sprintf("/payments/%s/approve", paymentID), nil, paymentID, "approve")
}

func (c *Client) Complete(ctx context.Context, paymentID, txid string) error {
	body := map[string]string{"txid": txid}
	return c.post(ctx, fmt.Sprintf("/payments/%s/complete", paymentID), body, paymentID, "complete")
}

func (c *Client) Cancel(ctx context.Context, paymentID string) error {
	return c.post(ctx, fmt.Sprintf("/payments/%s/cancelled", paymentID), nil, paymentID, "cancel")
}

func (c *Client) post(ctx context.Context, path string, body any, paymentID, op string) error {
	var lastErr error

	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := min(c.BaseDelay*time.Duration(1<<(attempt-2)), 5*time.Second)
			select {
			case <-ctx.Done():
				return &payment.TransientError{Reason: ctx.Err().Error()}
			case <-time.After(delay):
			}
		}

		err := c.doOnce(ctx, path, body, paymentID, op, attempt)
		if err == nil {
			return nil
		}
		if payment.IsPermanent(err) {
			return err
		}
		lastErr = err
	}

	return lastErr
}

func (c *Client) doOnce(ctx context.Context, path string, body any, paymentID, op string, attempt int) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &payment.PermanentError{Reason: fmt.Sprintf("encode %s request: %v", op, err)}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reader)
	if err != nil {
		return &payment.PermanentError{Reason: err.Error()}
	}
	req.Header.Set("Authorization", "Key "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Logger.Warn("payment network call failed", map[string]any{
			"op":         op,
			"payment-id": paymentID,
			"attempt":    attempt,
			"error":      err.Error(),
		})
		return &payment.TransientError{Reason: err.Error()}
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.Logger.Info("payment network call ok", map[string]any{
			"op":         op,
			"payment-id": paymentID,
			"attempt":    attempt,
		})
		return nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Retrying with the same key cannot succeed. This needs an operator.
		c.Logger.Error("payment network rejected credentials", map[string]any{
			"op":         op,
			"payment-id": paymentID,
			"status":     resp.StatusCode,
		})
		return &payment.PermanentError{Reason: fmt.Sprintf("%s rejected: status %d", op, resp.StatusCode)}

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.Logger.Warn("payment network unavailable", map[string]any{
			"op":         op,
			"payment-id": paymentID,
			"status":     resp.StatusCode,
			"attempt":    attempt,
		})
		return &payment.TransientError{Reason: fmt.Sprintf("%s: status %d", op, resp.StatusCode)}

	default:
		return &payment.PermanentError{Reason: fmt.Sprintf("%s: status %d: %s", op, resp.StatusCode, string(snippet))}
	}
}
