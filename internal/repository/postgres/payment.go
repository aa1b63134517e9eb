package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/fibpay/internal/domain"
	"github.com/utafrali/fibpay/pkg/database"
	apperrors "github.com/utafrali/fibpay/pkg/errors"
)

// PaymentRepository implements repository.PaymentRepository using PostgreSQL.
type PaymentRepository struct {
	pool database.Pool
}

// NewPaymentRepository creates a new PostgreSQL-backed payment repository.
func NewPaymentRepository(pool database.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create inserts a new payment into the database.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (id, fib_payment_id, readable_code, personal_app_link, status, amount, currency, valid_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.FIBPaymentID,
		p.ReadableCode,
		p.PersonalAppLink,
		p.Status,
		p.Amount,
		p.Currency,
		p.ValidUntil,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by its local identifier.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `
		SELECT id, fib_payment_id, readable_code, personal_app_link, status, amount, currency, valid_until, created_at, updated_at
		FROM payments
		WHERE id = $1`

	return r.scanPayment(ctx, query, id)
}

// GetByFIBID retrieves a payment by its gateway-assigned identifier.
func (r *PaymentRepository) GetByFIBID(ctx context.Context, fibPaymentID string) (*domain.Payment, error) {
	query := `
		SELECT id, fib_payment_id, readable_code, personal_app_link, status, amount, currency, valid_until, created_at, updated_at
		FROM payments
		WHERE fib_payment_id = $1`

	return r.scanPayment(ctx, query, fibPaymentID)
}

// ListStaleByStatus returns payments in any of the given statuses created
// before the threshold, oldest first.
func (r *PaymentRepository) ListStaleByStatus(ctx context.Context, statuses []string, olderThan time.Time) ([]domain.Payment, error) {
	query := `
		SELECT id, fib_payment_id, readable_code, personal_app_link, status, amount, currency, valid_until, created_at, updated_at
		FROM payments
		WHERE status = ANY($1) AND created_at < $2
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, statuses, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID,
			&p.FIBPaymentID,
			&p.ReadableCode,
			&p.PersonalAppLink,
			&p.Status,
			&p.Amount,
			&p.Currency,
			&p.ValidUntil,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}

	if payments == nil {
		payments = []domain.Payment{}
	}

	return payments, nil
}

// UpdateStatus sets the status of the payment with the given gateway identifier.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, fibPaymentID, status string) error {
	query := `
		UPDATE payments
		SET status = $1, updated_at = $2
		WHERE fib_payment_id = $3`

	ct, err := r.pool.Exec(ctx, query, status, time.Now().UTC(), fibPaymentID)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("payment", fibPaymentID)
	}

	return nil
}

// UpsertRefund records the latest refund outcome for a payment, replacing any
// previous outcome.
func (r *PaymentRepository) UpsertRefund(ctx context.Context, ref *domain.Refund) error {
	query := `
		INSERT INTO refunds (payment_id, status, fib_trace_id, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_id) DO UPDATE
		SET status = EXCLUDED.status,
		    fib_trace_id = EXCLUDED.fib_trace_id,
		    failure_reason = EXCLUDED.failure_reason,
		    updated_at = EXCLUDED.updated_at`

	now := time.Now().UTC()
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = now
	}
	ref.UpdatedAt = now

	_, err := r.pool.Exec(ctx, query,
		ref.PaymentID,
		ref.Status,
		ref.FIBTraceID,
		ref.FailureReason,
		ref.CreatedAt,
		ref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert refund: %w", err)
	}

	return nil
}

// GetRefundByPaymentID retrieves the refund outcome for a payment.
func (r *PaymentRepository) GetRefundByPaymentID(ctx context.Context, paymentID string) (*domain.Refund, error) {
	query := `
		SELECT payment_id, status, fib_trace_id, failure_reason, created_at, updated_at
		FROM refunds
		WHERE payment_id = $1`

	var ref domain.Refund
	err := r.pool.QueryRow(ctx, query, paymentID).Scan(
		&ref.PaymentID,
		&ref.Status,
		&ref.FIBTraceID,
		&ref.FailureReason,
		&ref.CreatedAt,
		&ref.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("refund", paymentID)
		}
		return nil, fmt.Errorf("scan refund: %w", err)
	}

	return &ref, nil
}

// scanPayment executes a query expected to return a single payment row.
func (r *PaymentRepository) scanPayment(ctx context.Context, query string, args ...any) (*domain.Payment, error) {
	var p domain.Payment

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID,
		&p.FIBPaymentID,
		&p.ReadableCode,
		&p.PersonalAppLink,
		&p.Status,
		&p.Amount,
		&p.Currency,
		&p.ValidUntil,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	return &p, nil
}
