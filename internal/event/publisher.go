package event

import (
	"context"
	"fmt"

	"github.com/utafrali/fibpay/internal/domain"
	"github.com/utafrali/fibpay/pkg/kafka"
	"github.com/utafrali/fibpay/pkg/logger"
)

// Kafka topics for payment lifecycle events.
const (
	TopicPaymentCreated       = "fibpay.payment.created"
	TopicPaymentStatusChanged = "fibpay.payment.status_changed"
	TopicPaymentRefunded      = "fibpay.payment.refunded"
	TopicPaymentCanceled      = "fibpay.payment.canceled"
)

const (
	aggregateTypePayment = "payment"
	sourceService        = "fibpay"
)

// PaymentCreatedData is the payload of a payment.created event.
type PaymentCreatedData struct {
	PaymentID    string `json:"payment_id"`
	FIBPaymentID string `json:"fib_payment_id"`
	ReadableCode string `json:"readable_code"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// PaymentStatusChangedData is the payload of a payment.status_changed event.
type PaymentStatusChangedData struct {
	PaymentID    string `json:"payment_id"`
	FIBPaymentID string `json:"fib_payment_id"`
	OldStatus    string `json:"old_status"`
	NewStatus    string `json:"new_status"`
}

// PaymentRefundedData is the payload of a payment.refunded event. It is
// published for both accepted and rejected refund attempts; RefundStatus
// discriminates.
type PaymentRefundedData struct {
	PaymentID     string `json:"payment_id"`
	FIBPaymentID  string `json:"fib_payment_id"`
	RefundStatus  string `json:"refund_status"`
	FIBTraceID    string `json:"fib_trace_id,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// PaymentCanceledData is the payload of a payment.canceled event.
type PaymentCanceledData struct {
	PaymentID    string `json:"payment_id"`
	FIBPaymentID string `json:"fib_payment_id"`
}

// Publisher emits payment lifecycle events to Kafka.
type Publisher interface {
	PaymentCreated(ctx context.Context, p *domain.Payment) error
	PaymentStatusChanged(ctx context.Context, p *domain.Payment, oldStatus string) error
	PaymentRefunded(ctx context.Context, p *domain.Payment, ref *domain.Refund) error
	PaymentCanceled(ctx context.Context, p *domain.Payment) error
}

// KafkaPublisher implements Publisher on top of the shared Kafka producer.
type KafkaPublisher struct {
	producer *kafka.Producer
}

// NewKafkaPublisher creates a Kafka-backed event publisher.
func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// PaymentCreated publishes a payment.created event.
func (k *KafkaPublisher) PaymentCreated(ctx context.Context, p *domain.Payment) error {
	return k.publish(ctx, TopicPaymentCreated, "payment.created", p.ID, PaymentCreatedData{
		PaymentID:    p.ID,
		FIBPaymentID: p.FIBPaymentID,
		ReadableCode: p.ReadableCode,
		Status:       p.Status,
		Amount:       p.Amount,
		Currency:     p.Currency,
	})
}

// PaymentStatusChanged publishes a payment.status_changed event.
func (k *KafkaPublisher) PaymentStatusChanged(ctx context.Context, p *domain.Payment, oldStatus string) error {
	return k.publish(ctx, TopicPaymentStatusChanged, "payment.status_changed", p.ID, PaymentStatusChangedData{
		PaymentID:    p.ID,
		FIBPaymentID: p.FIBPaymentID,
		OldStatus:    oldStatus,
		NewStatus:    p.Status,
	})
}

// PaymentRefunded publishes a payment.refunded event.
func (k *KafkaPublisher) PaymentRefunded(ctx context.Context, p *domain.Payment, ref *domain.Refund) error {
	return k.publish(ctx, TopicPaymentRefunded, "payment.refunded", p.ID, PaymentRefundedData{
		PaymentID:     p.ID,
		FIBPaymentID:  p.FIBPaymentID,
		RefundStatus:  ref.Status,
		FIBTraceID:    ref.FIBTraceID,
		FailureReason: ref.FailureReason,
	})
}

// PaymentCanceled publishes a payment.canceled event.
func (k *KafkaPublisher) PaymentCanceled(ctx context.Context, p *domain.Payment) error {
	return k.publish(ctx, TopicPaymentCanceled, "payment.canceled", p.ID, PaymentCanceledData{
		PaymentID:    p.ID,
		FIBPaymentID: p.FIBPaymentID,
	})
}

func (k *KafkaPublisher) publish(ctx context.Context, topic, eventType, aggregateID string, data any) error {
	evt, err := kafka.NewEvent(eventType, aggregateID, aggregateTypePayment, sourceService, data)
	if err != nil {
		return fmt.Errorf("build %s event: %w", eventType, err)
	}

	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		evt.WithCorrelationID(cid)
	}

	return k.producer.Publish(ctx, topic, evt)
}
