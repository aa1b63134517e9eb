package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/fibpay/internal/domain"
	"github.com/utafrali/fibpay/internal/service"
	apperrors "github.com/utafrali/fibpay/pkg/errors"
	"github.com/utafrali/fibpay/pkg/health"
	"github.com/utafrali/fibpay/pkg/httputil"
)

// --- Mock PaymentService ---

type mockPaymentService struct {
	mock.Mock
}

func (m *mockPaymentService) CreatePayment(ctx context.Context, in *service.CreatePaymentInput) (*domain.Payment, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentService) CheckPaymentStatus(ctx context.Context, fibPaymentID string) (*domain.Payment, error) {
	args := m.Called(ctx, fibPaymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentService) HandleCallback(ctx context.Context, fibPaymentID, status string) (*domain.Payment, error) {
	args := m.Called(ctx, fibPaymentID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentService) Refund(ctx context.Context, fibPaymentID string) (*domain.Refund, error) {
	args := m.Called(ctx, fibPaymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Refund), args.Error(1)
}

func (m *mockPaymentService) Cancel(ctx context.Context, fibPaymentID string) (*domain.Payment, error) {
	args := m.Called(ctx, fibPaymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentService) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentService) GetPaymentByFIBID(ctx context.Context, fibPaymentID string) (*domain.Payment, error) {
	args := m.Called(ctx, fibPaymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentService) GetRefund(ctx context.Context, paymentID string) (*domain.Refund, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Refund), args.Error(1)
}

// --- Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRouter(svc *mockPaymentService, webhookSecret string) http.Handler {
	logger := newTestLogger()
	return NewRouter(RouterConfig{
		Payments: NewPaymentHandler(svc, logger),
		Webhook:  NewWebhookHandler(svc, webhookSecret, nil, logger),
		Health:   health.NewHandler(),
		Logger:   logger,
	})
}

func testPayment() *domain.Payment {
	now := time.Now().UTC()
	return &domain.Payment{
		ID:           uuid.New().String(),
		FIBPaymentID: "fib-001",
		ReadableCode: "1234 5678",
		Status:       domain.PaymentStatusPending,
		Amount:       25000,
		Currency:     "IQD",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// --- Create ---

func TestCreateEndpoint_Success(t *testing.T) {
	svc := new(mockPaymentService)
	router := newTestRouter(svc, "")
	p := testPayment()

	svc.On("CreatePayment", mock.Anything, mock.MatchedBy(func(in *service.CreatePaymentInput) bool {
		return in.Amount == 25000 && in.Description == "order 42"
	})).Return(p, nil)

	body := bytes.NewBufferString(`{"amount": 25000, "description": "order 42"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)
	svc.AssertExpectations(t)
}

func TestCreateEndpoint_InvalidJSON(t *testing.T) {
	svc := new(mockPaymentService)
	router := newTestRouter(svc, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewBufferString(`{`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
}

func TestCreateEndpoint_ValidationError(t *testing.T) {
	svc := new(mockPaymentService)
	router := newTestRouter(svc, "")

	body := bytes.NewBufferString(`{"amount": 0}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "Amount")
}

func TestCreateEndpoint_GatewayUnavailable(t *testing.T) {
	svc := new(mockPaymentService)
	router := newTestRouter(svc, "")

	svc.On("CreatePayment", mock.Anything, mock.Anything).
		Return(nil, apperrors.GatewayUnavailable(errors.New("connection refused")))

	body := bytes.NewBufferString(`{"amount": 100}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "GATEWAY_UNAVAILABLE", resp.Error.Code)
}

// --- Get ---

func TestGetEndpoint_Success(t *testing.T) {
	svc := new(mockPaymentService)
	router := newTestRouter(svc, "")
	p := testPayment()

	svc.On("GetPayment", mock.Anything, p.ID).Return(p, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+p.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetEndpoint_InvalidUUID(t *testing.T) {
	svc := new(mockPaymentService)
	router := newTestRouter(svc, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "GetPayment", mock.Anything, mock.Anything)
}

func TestGetByFIBIDEndpoint_NotFound(t *testing.T) {
	svc := new(mockPaymentService)
	router := newTestRouter(svc, "")

	svc.On("GetPaymentByFIBID", mock.Anything, "fib-missing").Return(nil, apperrors.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/fib/fib-missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- CheckStatus ---

func TestCheckStatusEndpoint(t *testing.T) {
	svc := new(mockPaymentService)
	router := newTestRouter(svc, "")
	p := testPayment()
	p.Status = domain.PaymentStatusPaid

	svc.On("CheckPaymentStatus", mock.Anything, "fib-001").Return(p, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/fib/fib-001/check", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.PaymentStatusPaid)
}

// --- Refund ---

func TestRefundEndpoint_Success(t *testing.T) {
	svc := new(mockPaymentService)
	router := newTestRouter(svc, "")

	svc.On("Refund", mock.Anything, "fib-001").
		Return(&domain.Refund{PaymentID: "p-1", Status: domain.RefundStatusSuccess}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/fib/fib-001/refund", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.RefundStatusSuccess)
}

func TestRefundEndpoint_FailedOutcome(t *testing.T) {
	svc := new(mockPaymentService)
	router := newTestRouter(svc, "")

	svc.On("Refund", mock.Anything, "fib-001").Return(&domain.Refund{
		PaymentID:     "p-1",
		Status:        domain.RefundStatusFailed,
		FIBTraceID:    "trace-1",
		FailureReason: "NOT_REFUNDABLE",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/fib/fib-001/refund", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "trace-1")
}

// --- Cancel ---

func TestCancelEndpoint_Rejected(t *testing.T) {
	svc := new(mockPaymentService)
	router := newTestRouter(svc, "")

	svc.On("Cancel", mock.Anything, "fib-001").
		Return(nil, apperrors.GatewayRejected("cancel returned status 409"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/fib/fib-001/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "GATEWAY_REJECTED", resp.Error.Code)
}

