package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/fibpay/internal/config"
	"github.com/utafrali/fibpay/internal/domain"
	"github.com/utafrali/fibpay/internal/event"
	"github.com/utafrali/fibpay/internal/gateway"
	"github.com/utafrali/fibpay/internal/repository"
	apperrors "github.com/utafrali/fibpay/pkg/errors"
	"github.com/utafrali/fibpay/pkg/validator"
)

// Gateway is the subset of the FIB client the service depends on.
type Gateway interface {
	CreatePayment(ctx context.Context, req *gateway.CreatePaymentRequest) (*gateway.CreatePaymentResponse, error)
	PaymentStatus(ctx context.Context, fibPaymentID string) (string, error)
	Refund(ctx context.Context, fibPaymentID string) (*gateway.RefundOutcome, error)
	Cancel(ctx context.Context, fibPaymentID string) (*gateway.CancelOutcome, error)
}

// CreatePaymentInput carries the caller-supplied fields for a new payment.
// Currency and RefundableFor fall back to the configured defaults when empty.
type CreatePaymentInput struct {
	Amount            int64          `validate:"required,gt=0"`
	Description       string         `validate:"max=255"`
	StatusCallbackURL string         `validate:"omitempty,url"`
	RedirectURI       string         `validate:"omitempty,url"`
	Currency          string         `validate:"omitempty,len=3"`
	RefundableFor     string         `validate:"omitempty"`
	ExtraData         map[string]any `validate:"-"`
}

// PaymentService orchestrates payment creation, status tracking, refunds and
// cancellation between the FIB gateway and local persistence.
type PaymentService struct {
	cfg       *config.Config
	gateway   Gateway
	repo      repository.PaymentRepository
	publisher event.Publisher
	logger    *slog.Logger
}

// NewPaymentService creates the payment orchestrator.
func NewPaymentService(
	cfg *config.Config,
	gw Gateway,
	repo repository.PaymentRepository,
	publisher event.Publisher,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		cfg:       cfg,
		gateway:   gw,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// CreatePayment creates a payment at the gateway and records it locally in
// PENDING status. Caller-omitted currency, refundable window and callback URL
// fall back to configuration.
func (s *PaymentService) CreatePayment(ctx context.Context, in *CreatePaymentInput) (*domain.Payment, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	currency := in.Currency
	if currency == "" {
		currency = s.cfg.FIBCurrency
	}
	refundableFor := in.RefundableFor
	if refundableFor == "" {
		refundableFor = s.cfg.FIBRefundableFor
	}
	callbackURL := in.StatusCallbackURL
	if callbackURL == "" {
		callbackURL = s.cfg.FIBCallbackURL
	}

	req := &gateway.CreatePaymentRequest{
		MonetaryValue: gateway.MonetaryValue{
			Amount:   in.Amount,
			Currency: currency,
		},
		StatusCallbackURL: callbackURL,
		Description:       in.Description,
		RedirectURI:       in.RedirectURI,
		RefundableFor:     refundableFor,
	}
	if len(in.ExtraData) > 0 {
		req.ExtraData = in.ExtraData
	}

	created, err := s.gateway.CreatePayment(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:              uuid.New().String(),
		FIBPaymentID:    created.PaymentID,
		ReadableCode:    created.ReadableCode,
		PersonalAppLink: created.PersonalAppLink,
		Status:          domain.PaymentStatusPending,
		Amount:          in.Amount,
		Currency:        currency,
		ValidUntil:      created.ValidUntil,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}

	s.logger.InfoContext(ctx, "payment created",
		slog.String("payment_id", payment.ID),
		slog.String("fib_payment_id", payment.FIBPaymentID),
		slog.Int64("amount", payment.Amount),
		slog.String("currency", payment.Currency),
	)

	s.publishEvent(ctx, "payment.created", func() error {
		return s.publisher.PaymentCreated(ctx, payment)
	})

	return payment, nil
}

// CheckPaymentStatus asks the gateway for the payment's current status and
// syncs the local record. A gateway failure leaves the local record untouched.
// Unknown gateway statuses are stored as-is.
func (s *PaymentService) CheckPaymentStatus(ctx context.Context, fibPaymentID string) (*domain.Payment, error) {
	payment, err := s.repo.GetByFIBID(ctx, fibPaymentID)
	if err != nil {
		return nil, err
	}

	status, err := s.gateway.PaymentStatus(ctx, fibPaymentID)
	if err != nil {
		return nil, err
	}

	if status == payment.Status {
		return payment, nil
	}

	oldStatus := payment.Status
	if err := s.repo.UpdateStatus(ctx, fibPaymentID, status); err != nil {
		return nil, err
	}
	payment.Status = status
	payment.UpdatedAt = time.Now().UTC()

	s.logger.InfoContext(ctx, "payment status changed",
		slog.String("fib_payment_id", fibPaymentID),
		slog.String("old_status", oldStatus),
		slog.String("new_status", status),
	)

	s.publishEvent(ctx, "payment.status_changed", func() error {
		return s.publisher.PaymentStatusChanged(ctx, payment, oldStatus)
	})

	return payment, nil
}

// HandleCallback applies a status reported by the gateway's callback without
// issuing any outbound call. The reported status is trusted as-is.
func (s *PaymentService) HandleCallback(ctx context.Context, fibPaymentID, status string) (*domain.Payment, error) {
	if fibPaymentID == "" || status == "" {
		return nil, apperrors.InvalidInput("callback requires id and status")
	}

	payment, err := s.repo.GetByFIBID(ctx, fibPaymentID)
	if err != nil {
		return nil, err
	}

	if status == payment.Status {
		return payment, nil
	}

	oldStatus := payment.Status
	if err := s.repo.UpdateStatus(ctx, fibPaymentID, status); err != nil {
		return nil, err
	}
	payment.Status = status
	payment.UpdatedAt = time.Now().UTC()

	s.logger.InfoContext(ctx, "payment status updated from callback",
		slog.String("fib_payment_id", fibPaymentID),
		slog.String("old_status", oldStatus),
		slog.String("new_status", status),
	)

	s.publishEvent(ctx, "payment.status_changed", func() error {
		return s.publisher.PaymentStatusChanged(ctx, payment, oldStatus)
	})

	return payment, nil
}

// Refund requests a refund at the gateway and records the outcome. Acceptance
// (HTTP 202) yields a SUCCESS refund and moves the payment to REFUNDED; any
// other definitive response yields a FAILED refund carrying the gateway trace
// id and error codes. A transport failure records nothing.
func (s *PaymentService) Refund(ctx context.Context, fibPaymentID string) (*domain.Refund, error) {
	payment, err := s.repo.GetByFIBID(ctx, fibPaymentID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.gateway.Refund(ctx, fibPaymentID)
	if err != nil {
		return nil, err
	}

	refund := &domain.Refund{PaymentID: payment.ID}

	if outcome.Accepted {
		refund.Status = domain.RefundStatusSuccess

		if err := s.repo.UpsertRefund(ctx, refund); err != nil {
			return nil, fmt.Errorf("record refund: %w", err)
		}

		oldStatus := payment.Status
		if err := s.repo.UpdateStatus(ctx, fibPaymentID, domain.PaymentStatusRefunded); err != nil {
			return nil, err
		}
		payment.Status = domain.PaymentStatusRefunded

		s.logger.InfoContext(ctx, "refund accepted",
			slog.String("fib_payment_id", fibPaymentID),
			slog.String("payment_id", payment.ID),
			slog.String("old_status", oldStatus),
		)
	} else {
		refund.Status = domain.RefundStatusFailed
		refund.FIBTraceID = outcome.TraceID
		refund.FailureReason = strings.Join(outcome.ErrorCodes, ",")

		if err := s.repo.UpsertRefund(ctx, refund); err != nil {
			return nil, fmt.Errorf("record refund: %w", err)
		}

		s.logger.WarnContext(ctx, "refund failed",
			slog.String("fib_payment_id", fibPaymentID),
			slog.String("payment_id", payment.ID),
			slog.Int("gateway_status", outcome.StatusCode),
			slog.String("fib_trace_id", outcome.TraceID),
			slog.String("failure_reason", refund.FailureReason),
		)
	}

	s.publishEvent(ctx, "payment.refunded", func() error {
		return s.publisher.PaymentRefunded(ctx, payment, refund)
	})

	return refund, nil
}

// Cancel requests cancellation at the gateway. Only an HTTP 204 moves the
// local record to CANCELED; anything else is a rejection and changes nothing.
func (s *PaymentService) Cancel(ctx context.Context, fibPaymentID string) (*domain.Payment, error) {
	payment, err := s.repo.GetByFIBID(ctx, fibPaymentID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.gateway.Cancel(ctx, fibPaymentID)
	if err != nil {
		return nil, err
	}

	if !outcome.Canceled {
		return nil, apperrors.GatewayRejected(
			fmt.Sprintf("cancel returned status %d", outcome.StatusCode),
		)
	}

	if err := s.repo.UpdateStatus(ctx, fibPaymentID, domain.PaymentStatusCanceled); err != nil {
		return nil, err
	}
	payment.Status = domain.PaymentStatusCanceled
	payment.UpdatedAt = time.Now().UTC()

	s.logger.InfoContext(ctx, "payment canceled",
		slog.String("fib_payment_id", fibPaymentID),
		slog.String("payment_id", payment.ID),
	)

	s.publishEvent(ctx, "payment.canceled", func() error {
		return s.publisher.PaymentCanceled(ctx, payment)
	})

	return payment, nil
}

// GetPayment retrieves a payment by its local identifier.
func (s *PaymentService) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	return s.repo.GetByID(ctx, id)
}

// GetPaymentByFIBID retrieves a payment by its gateway identifier.
func (s *PaymentService) GetPaymentByFIBID(ctx context.Context, fibPaymentID string) (*domain.Payment, error) {
	return s.repo.GetByFIBID(ctx, fibPaymentID)
}

// GetRefund retrieves the refund outcome for a payment.
func (s *PaymentService) GetRefund(ctx context.Context, paymentID string) (*domain.Refund, error) {
	return s.repo.GetRefundByPaymentID(ctx, paymentID)
}

// publishEvent runs an event publish best-effort. A publish failure is logged
// and never fails the operation that triggered it.
func (s *PaymentService) publishEvent(ctx context.Context, eventType string, publish func() error) {
	if s.publisher == nil {
		return
	}
	if err := publish(); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}
