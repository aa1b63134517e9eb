package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/fibpay/internal/config"
	apperrors "github.com/utafrali/fibpay/pkg/errors"
	"github.com/utafrali/fibpay/pkg/httpclient"
)

// TokenProvider produces a bearer token for authenticated gateway calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// tokenResponse is the gateway's client-credentials exchange response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// expirySkew is subtracted from the reported token lifetime so a token is
// never used right at its expiry boundary.
const expirySkew = 30 * time.Second

// TokenSource fetches OAuth client-credentials tokens from the FIB login
// endpoint and caches them in-process until shortly before expiry. It is
// safe for concurrent use.
type TokenSource struct {
	loginURL  string
	grantType string
	creds     config.Credentials
	account   string
	client    *httpclient.Client
	logger    *slog.Logger

	now func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenSource creates a token source for the given auth account. The
// account name selects a client id/secret pair from configuration; an empty
// name selects the configured default account.
func NewTokenSource(cfg *config.Config, account string, client *httpclient.Client, logger *slog.Logger) (*TokenSource, error) {
	creds, err := cfg.Account(account)
	if err != nil {
		return nil, fmt.Errorf("resolve auth account: %w", err)
	}
	if account == "" {
		account = cfg.FIBDefaultAccount
	}

	return &TokenSource{
		loginURL:  cfg.LoginURL(),
		grantType: cfg.FIBGrantType,
		creds:     creds,
		account:   account,
		client:    client,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Token returns a valid bearer token, fetching a fresh one only when the
// cached token is missing or expired.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt) {
		return s.token, nil
	}

	token, expiresIn, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	s.token = token
	s.expiresAt = s.now().Add(time.Duration(expiresIn)*time.Second - expirySkew)
	return token, nil
}

// fetch performs the client-credentials exchange. Transport failures are
// retried by the underlying HTTP client (fixed count, fixed delay); a non-2xx
// response is not retried.
func (s *TokenSource) fetch(ctx context.Context) (string, int64, error) {
	form := url.Values{}
	form.Set("grant_type", s.grantType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.creds.ClientID, s.creds.Secret)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		s.logger.ErrorContext(ctx, "token request failed",
			slog.String("account", s.account),
			slog.String("error", err.Error()),
		)
		return "", 0, apperrors.GatewayUnavailable(fmt.Errorf("fetch token: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.ErrorContext(ctx, "token exchange rejected",
			slog.String("account", s.account),
			slog.Int("status", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return "", 0, apperrors.Unauthorized(fmt.Sprintf("token exchange returned status %d", resp.StatusCode))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, apperrors.Unauthorized("token exchange returned an empty access_token")
	}

	// Treat a missing expires_in as a short-lived token so the next call
	// refreshes rather than reusing something of unknown lifetime.
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = int64(expirySkew/time.Second) + 1
	}

	return tr.AccessToken, tr.ExpiresIn, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}
