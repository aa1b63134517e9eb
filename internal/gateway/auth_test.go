package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/fibpay/internal/config"
	apperrors "github.com/utafrali/fibpay/pkg/errors"
	"github.com/utafrali/fibpay/pkg/httpclient"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHTTPClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.RetryWait = 5 * time.Millisecond
	return httpclient.New(cfg)
}

func newAuthConfig(baseURL string) *config.Config {
	return &config.Config{
		FIBBaseURL:        baseURL,
		FIBGrantType:      "client_credentials",
		FIBDefaultAccount: "default",
		FIBClientID:       "client-1",
		FIBClientSecret:   "secret-1",
	}
}

func newTokenSourceForTest(t *testing.T, baseURL string) *TokenSource {
	t.Helper()
	ts, err := NewTokenSource(newAuthConfig(baseURL), "", newTestHTTPClient(), newTestLogger())
	require.NoError(t, err)
	return ts
}

func TestToken_FetchesWithBasicAuthAndGrantType(t *testing.T) {
	var gotUser, gotPass, gotGrant, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotGrant = r.PostFormValue("grant_type")
		gotContentType = r.Header.Get("Content-Type")
		assert.Equal(t, "/auth/realms/fib-online-shop/protocol/openid-connect/token", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":300}`))
	}))
	defer srv.Close()

	ts := newTokenSourceForTest(t, srv.URL)
	token, err := ts.Token(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "client-1", gotUser)
	assert.Equal(t, "secret-1", gotPass)
	assert.Equal(t, "client_credentials", gotGrant)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
}

func TestToken_CachesUntilExpiry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":300}`))
	}))
	defer srv.Close()

	ts := newTokenSourceForTest(t, srv.URL)

	for i := 0; i < 3; i++ {
		token, err := ts.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	}

	assert.Equal(t, int32(1), calls.Load())
}

func TestToken_RefreshesAfterExpiry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":60}`))
	}))
	defer srv.Close()

	ts := newTokenSourceForTest(t, srv.URL)

	now := time.Now()
	ts.now = func() time.Time { return now }

	_, err := ts.Token(context.Background())
	require.NoError(t, err)

	// Jump past the cached token's lifetime (60s minus skew).
	ts.now = func() time.Time { return now.Add(45 * time.Second) }

	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestToken_RetriesTransportFailures(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			// Kill the connection so the client sees a transport failure.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-retry","expires_in":300}`))
	}))
	defer srv.Close()

	ts := newTokenSourceForTest(t, srv.URL)
	token, err := ts.Token(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tok-retry", token)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestToken_DoesNotRetryErrorResponses(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	ts := newTokenSourceForTest(t, srv.URL)
	_, err := ts.Token(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestToken_EmptyAccessTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"","expires_in":300}`))
	}))
	defer srv.Close()

	ts := newTokenSourceForTest(t, srv.URL)
	_, err := ts.Token(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestToken_UnknownAccount(t *testing.T) {
	cfg := newAuthConfig("https://fib.example.com")
	_, err := NewTokenSource(cfg, "nonexistent", newTestHTTPClient(), newTestLogger())
	require.Error(t, err)
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":300}`))
	}))
	defer srv.Close()

	ts := newTokenSourceForTest(t, srv.URL)

	_, err := ts.Token(context.Background())
	require.NoError(t, err)

	ts.Invalidate()

	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
