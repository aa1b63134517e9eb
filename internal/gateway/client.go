package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/utafrali/fibpay/pkg/errors"
)

// MonetaryValue is the gateway's amount/currency pair. Amounts are integers
// in minor currency units.
type MonetaryValue struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreatePaymentRequest is the wire body for POST /payments.
type CreatePaymentRequest struct {
	MonetaryValue     MonetaryValue  `json:"monetaryValue"`
	StatusCallbackURL string         `json:"statusCallbackUrl"`
	Description       string         `json:"description"`
	RedirectURI       string         `json:"redirectUri"`
	RefundableFor     string         `json:"refundableFor"`
	ExtraData         map[string]any `json:"extraData,omitempty"`
}

// CreatePaymentResponse holds the fields consumed from a successful create.
type CreatePaymentResponse struct {
	PaymentID       string    `json:"paymentId"`
	ReadableCode    string    `json:"readableCode"`
	PersonalAppLink string    `json:"personalAppLink"`
	ValidUntil      time.Time `json:"validUntil"`
}

// RefundOutcome is the discriminated result of a refund request. The gateway
// accepts a refund with HTTP 202; any other status is a rejection carrying a
// trace id and error codes.
type RefundOutcome struct {
	Accepted   bool
	StatusCode int
	TraceID    string
	ErrorCodes []string
}

// CancelOutcome is the discriminated result of a cancel request. The gateway
// confirms cancellation with HTTP 204 exactly.
type CancelOutcome struct {
	Canceled   bool
	StatusCode int
}

// statusResponse is the wire body of GET /payments/{id}/status.
type statusResponse struct {
	Status string `json:"status"`
}

// rejectionBody is the error body the gateway returns on refund rejection.
type rejectionBody struct {
	TraceID string `json:"traceId"`
	Errors  []struct {
		Code string `json:"code"`
	} `json:"errors"`
}

// Doer abstracts the retrying HTTP client so the breaker wrapper and the
// plain client are interchangeable.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client issues authenticated calls against the FIB payments API. Every
// request carries a bearer token from the token provider; transport-level
// retry lives in the HTTP client underneath, and outbound calls are paced by
// an optional rate limiter.
type Client struct {
	baseURL string
	tokens  TokenProvider
	http    Doer
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a gateway client. limiter may be nil to disable pacing.
func NewClient(baseURL string, tokens TokenProvider, doer Doer, limiter *rate.Limiter, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		http:    doer,
		limiter: limiter,
		logger:  logger,
	}
}

// CreatePayment issues POST /payments and returns the created payment's
// gateway identifiers.
func (c *Client) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResponse, error) {
	resp, err := c.postJSON(ctx, "/payments", req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read create payment response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.ErrorContext(ctx, "create payment rejected",
			slog.Int("status", resp.StatusCode),
			slog.Int64("amount", req.MonetaryValue.Amount),
			slog.String("response_body", string(body)),
		)
		return nil, apperrors.GatewayRejected(fmt.Sprintf("create payment returned status %d", resp.StatusCode))
	}

	var created CreatePaymentResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("decode create payment response: %w", err)
	}
	if created.PaymentID == "" {
		return nil, fmt.Errorf("create payment response missing paymentId")
	}

	return &created, nil
}

// PaymentStatus issues GET /payments/{id}/status and returns the
// gateway-reported status string.
func (c *Client) PaymentStatus(ctx context.Context, fibPaymentID string) (string, error) {
	resp, err := c.get(ctx, "/payments/"+fibPaymentID+"/status")
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read status response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.ErrorContext(ctx, "payment status check rejected",
			slog.String("fib_payment_id", fibPaymentID),
			slog.Int("status", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return "", apperrors.GatewayRejected(fmt.Sprintf("status check returned status %d", resp.StatusCode))
	}

	var sr statusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	if sr.Status == "" {
		return "", fmt.Errorf("status response missing status field")
	}

	return sr.Status, nil
}

// Refund issues POST /payments/{id}/refund. A 202 means the gateway accepted
// the refund; any other status is a rejection whose trace id and error codes
// are extracted from the body.
func (c *Client) Refund(ctx context.Context, fibPaymentID string) (*RefundOutcome, error) {
	resp, err := c.postJSON(ctx, "/payments/"+fibPaymentID+"/refund", struct{}{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusAccepted {
		return &RefundOutcome{Accepted: true, StatusCode: resp.StatusCode}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read refund response: %w", err)
	}

	var rej rejectionBody
	// A rejection body that fails to parse still yields a FAILED outcome;
	// the trace id and codes are simply absent.
	_ = json.Unmarshal(body, &rej)

	codes := make([]string, 0, len(rej.Errors))
	for _, e := range rej.Errors {
		codes = append(codes, e.Code)
	}

	c.logger.WarnContext(ctx, "refund rejected",
		slog.String("fib_payment_id", fibPaymentID),
		slog.Int("status", resp.StatusCode),
		slog.String("trace_id", rej.TraceID),
		slog.Any("error_codes", codes),
	)

	return &RefundOutcome{
		Accepted:   false,
		StatusCode: resp.StatusCode,
		TraceID:    rej.TraceID,
		ErrorCodes: codes,
	}, nil
}

// Cancel issues POST /payments/{id}/cancel. Only HTTP 204 counts as canceled.
func (c *Client) Cancel(ctx context.Context, fibPaymentID string) (*CancelOutcome, error) {
	resp, err := c.postJSON(ctx, "/payments/"+fibPaymentID+"/cancel", struct{}{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		c.logger.WarnContext(ctx, "cancel rejected",
			slog.String("fib_payment_id", fibPaymentID),
			slog.Int("status", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
	}

	return &CancelOutcome{
		Canceled:   resp.StatusCode == http.StatusNoContent,
		StatusCode: resp.StatusCode,
	}, nil
}

// postJSON sends an authenticated JSON POST to baseURL+path.
func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.send(ctx, req)
}

// get sends an authenticated GET to baseURL+path.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}

	return c.send(ctx, req)
}

// send acquires a token, paces the call, and executes it. A token failure
// means the gateway call is never attempted.
func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, apperrors.GatewayUnavailable(err)
	}
	return resp, nil
}
