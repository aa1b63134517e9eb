package domain

import (
	"time"
)

// Payment status constants. The gateway reports statuses as uppercase strings;
// unknown values are stored as-is (pass-through), so these cover the statuses
// this service acts on rather than an exhaustive gateway enum.
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusCanceled = "CANCELED"
	PaymentStatusRefunded = "REFUNDED"
	PaymentStatusExpired  = "EXPIRED"
	PaymentStatusDeclined = "DECLINED"
)

// Payment represents a single purchase transaction tracked both locally and
// at the FIB payment gateway.
type Payment struct {
	ID              string    `json:"id"`
	FIBPaymentID    string    `json:"fib_payment_id"`
	ReadableCode    string    `json:"readable_code"`
	PersonalAppLink string    `json:"personal_app_link"`
	Status          string    `json:"status"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	ValidUntil      time.Time `json:"valid_until"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TerminalStatuses returns the statuses a payment never leaves.
func TerminalStatuses() []string {
	return []string{
		PaymentStatusPaid,
		PaymentStatusCanceled,
		PaymentStatusRefunded,
		PaymentStatusExpired,
		PaymentStatusDeclined,
	}
}

// IsTerminalStatus reports whether the given status is terminal.
func IsTerminalStatus(status string) bool {
	for _, s := range TerminalStatuses() {
		if s == status {
			return true
		}
	}
	return false
}
