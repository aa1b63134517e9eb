package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/fibpay/internal/domain"
	"github.com/utafrali/fibpay/internal/service"
	apperrors "github.com/utafrali/fibpay/pkg/errors"
	"github.com/utafrali/fibpay/pkg/httputil"
	"github.com/utafrali/fibpay/pkg/validator"
)

// PaymentService is the subset of the orchestrator the HTTP layer depends on.
type PaymentService interface {
	CreatePayment(ctx context.Context, in *service.CreatePaymentInput) (*domain.Payment, error)
	CheckPaymentStatus(ctx context.Context, fibPaymentID string) (*domain.Payment, error)
	HandleCallback(ctx context.Context, fibPaymentID, status string) (*domain.Payment, error)
	Refund(ctx context.Context, fibPaymentID string) (*domain.Refund, error)
	Cancel(ctx context.Context, fibPaymentID string) (*domain.Payment, error)
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	GetPaymentByFIBID(ctx context.Context, fibPaymentID string) (*domain.Payment, error)
	GetRefund(ctx context.Context, paymentID string) (*domain.Refund, error)
}

// createPaymentRequest is the inbound DTO for creating a payment.
type createPaymentRequest struct {
	Amount            int64          `json:"amount" validate:"required,gt=0"`
	Description       string         `json:"description" validate:"max=255"`
	StatusCallbackURL string         `json:"status_callback_url" validate:"omitempty,url"`
	RedirectURI       string         `json:"redirect_uri" validate:"omitempty,url"`
	Currency          string         `json:"currency" validate:"omitempty,len=3"`
	RefundableFor     string         `json:"refundable_for"`
	ExtraData         map[string]any `json:"extra_data"`
}

// PaymentHandler exposes the payment operations over HTTP.
type PaymentHandler struct {
	svc    PaymentService
	logger *slog.Logger
}

// NewPaymentHandler creates the payment HTTP handler.
func NewPaymentHandler(svc PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, logger: logger}
}

// Create handles POST /api/v1/payments.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid JSON body"), h.logger)
		return
	}

	if err := validator.Validate(&req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	payment, err := h.svc.CreatePayment(r.Context(), &service.CreatePaymentInput{
		Amount:            req.Amount,
		Description:       req.Description,
		StatusCallbackURL: req.StatusCallbackURL,
		RedirectURI:       req.RedirectURI,
		Currency:          req.Currency,
		RefundableFor:     req.RefundableFor,
		ExtraData:         req.ExtraData,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: payment})
}

// Get handles GET /api/v1/payments/{id}.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	payment, err := h.svc.GetPayment(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: payment})
}

// GetByFIBID handles GET /api/v1/payments/fib/{fibId}.
func (h *PaymentHandler) GetByFIBID(w http.ResponseWriter, r *http.Request) {
	fibID := chi.URLParam(r, "fibId")

	payment, err := h.svc.GetPaymentByFIBID(r.Context(), fibID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: payment})
}

// CheckStatus handles POST /api/v1/payments/fib/{fibId}/check.
func (h *PaymentHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	fibID := chi.URLParam(r, "fibId")

	payment, err := h.svc.CheckPaymentStatus(r.Context(), fibID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: payment})
}

// Refund handles POST /api/v1/payments/fib/{fibId}/refund.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	fibID := chi.URLParam(r, "fibId")

	refund, err := h.svc.Refund(r.Context(), fibID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusOK
	if refund.Status == domain.RefundStatusFailed {
		status = http.StatusUnprocessableEntity
	}

	httputil.WriteJSON(w, status, httputil.Response{Data: refund})
}

// GetRefund handles GET /api/v1/payments/fib/{fibId}/refund.
func (h *PaymentHandler) GetRefund(w http.ResponseWriter, r *http.Request) {
	fibID := chi.URLParam(r, "fibId")

	payment, err := h.svc.GetPaymentByFIBID(r.Context(), fibID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	refund, err := h.svc.GetRefund(r.Context(), payment.ID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: refund})
}

// Cancel handles POST /api/v1/payments/fib/{fibId}/cancel.
func (h *PaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	fibID := chi.URLParam(r, "fibId")

	payment, err := h.svc.Cancel(r.Context(), fibID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: payment})
}
