package repository

import (
	"context"
	"time"

	"github.com/utafrali/fibpay/internal/domain"
)

// PaymentRepository defines the persistence operations the orchestrator needs.
type PaymentRepository interface {
	// Create inserts a new payment into the store.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by its local identifier.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByFIBID retrieves a payment by its gateway-assigned identifier.
	// Returns a not-found error if absent.
	GetByFIBID(ctx context.Context, fibPaymentID string) (*domain.Payment, error)

	// ListStaleByStatus returns payments in any of the given statuses created
	// before the threshold. This feeds the reconciliation sweep.
	ListStaleByStatus(ctx context.Context, statuses []string, olderThan time.Time) ([]domain.Payment, error)

	// UpdateStatus sets the status of the payment with the given gateway
	// identifier. A missing record is an error, not a silent no-op.
	UpdateStatus(ctx context.Context, fibPaymentID, status string) error

	// UpsertRefund records the latest refund outcome for a payment. At most
	// one refund row exists per payment; a new outcome replaces the old one.
	UpsertRefund(ctx context.Context, refund *domain.Refund) error

	// GetRefundByPaymentID retrieves the refund outcome for a payment.
	GetRefundByPaymentID(ctx context.Context, paymentID string) (*domain.Refund, error)
}
