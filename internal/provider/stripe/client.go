package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL    = "https://api.stripe.com"
	defaultTimeout    = 10 * time.Second
	defaultRetries    = 2
	defaultRetryDelay = 500 * time.Millisecond
)

// APIError is an error body returned by the Stripe API.
type APIError struct {
	StatusCode  int    `json:"-"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

func (e *APIError) Error() string {
	code := e.Code
	if e.DeclineCode != "" {
		code = e.DeclineCode
	}
	return fmt.Sprintf("stripe: HTTP %d %s (%s): %s", e.StatusCode, e.Type, code, e.Message)
}

// Retryable reports whether Stripe asks the caller to try again.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

type errorResponse struct {
	Error APIError `json:"error"`
}

func newIdempotencyKey() string {
	return uuid.NewString()
}

// do sends one logical operation. Retries reuse the idempotency key so Stripe
// never applies the operation twice.
func (p *Provider) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	var body []byte
	if form != nil {
		body = []byte(form.Encode())
	}

	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}

		respBody, err := p.send(ctx, method, path, body, idempotencyKey)
		if err == nil {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("stripe: decoding response: %w", err)
			}
			return nil
		}

		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func (p *Provider) send(ctx context.Context, method, path string, body []byte, idempotencyKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.baseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stripe: reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var er errorResponse
		if err := json.Unmarshal(respBody, &er); err != nil || er.Error.Message == "" {
			er.Error = APIError{Message: string(respBody)}
		}
		er.Error.StatusCode = resp.StatusCode
		return nil, &er.Error
	}

	return respBody, nil
}
