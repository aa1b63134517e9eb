package domain

import (
	"time"
)

// Refund status constants.
const (
	RefundStatusSuccess = "SUCCESS"
	RefundStatusFailed  = "FAILED"
)

// Refund is the latest refund outcome for a payment. There is at most one
// refund row per payment; a new attempt replaces the previous outcome.
type Refund struct {
	PaymentID     string    `json:"payment_id"`
	Status        string    `json:"status"`
	FIBTraceID    string    `json:"fib_trace_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
