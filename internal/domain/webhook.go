package domain

import "time"

// WebhookEventType mirrors the payment status an attempt is reporting.
// It is stored on the attempt row for the engine's own queue and stats and
// is not sent on the wire; the merchant reads the status from data.status.
type WebhookEventType string

const (
	EventPaymentCreated   WebhookEventType = "payment.created"
	EventPaymentConfirmed WebhookEventType = "payment.confirmed"
	EventPaymentCompleted WebhookEventType = "payment.completed"
	EventPaymentExpired   WebhookEventType = "payment.expired"
	EventPaymentFailed    WebhookEventType = "payment.failed"
)

func EventTypeForStatus(s PaymentStatus) WebhookEventType {
	switch s {
	case PaymentConfirmed:
		return EventPaymentConfirmed
	case PaymentCompleted:
		return EventPaymentCompleted
	case PaymentExpired:
		return EventPaymentExpired
	case PaymentFailed:
		return EventPaymentFailed
	default:
		return EventPaymentCreated
	}
}

// WebhookAttempt is one row per delivery attempt: a payment event that
// takes N tries to deliver produces N rows sharing PaymentID/EventType,
// ordered by AttemptIndex. Every row's Status is its own outcome
// (pending until dispatched, then success or failed); a retry after a
// failed attempt is a new row, not a mutation of this one.
type WebhookAttempt struct {
	ID             uint64 `gorm:"primaryKey"`
	PaymentID      uint64 `gorm:"index"`
	MerchantID     uint64 `gorm:"index"`
	EventType      WebhookEventType `gorm:"size:32"`
	URL            string           `gorm:"size:512"`
	Payload        string           `gorm:"type:text"`
	Signature      string           `gorm:"size:128"`
	Status         string           `gorm:"size:16;index"` // pending|success|failed
	AttemptIndex   int              `gorm:"index"`
	NextAttemptAt  time.Time `gorm:"index"`
	ResponseStatus int
	ResponseBody   string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (WebhookAttempt) TableName() string { return "webhook_attempts" }

// WebhookPayloadEventType is the fixed top-level event_type every
// delivered webhook carries; the payment's actual status lives in
// data.status, not in the envelope.
const WebhookPayloadEventType = "payment_status_changed"

// WebhookPayloadData is the "data" object of the wire payload.
// TransactionHash is a pointer so an unmatched payment serializes it as
// a JSON null rather than omitting the field.
type WebhookPayloadData struct {
	PaymentID       uint64        `json:"payment_id"`
	OrderID         string        `json:"order_id"`
	Status          PaymentStatus `json:"status"`
	Amount          string        `json:"amount"`
	Currency        Currency      `json:"currency"`
	TransactionHash *string       `json:"transaction_hash"`
	Confirmations   int           `json:"confirmations"`
}

// WebhookPayload is the exact JSON body delivered to the merchant.
type WebhookPayload struct {
	EventType string             `json:"event_type"`
	Timestamp string             `json:"timestamp"`
	Data      WebhookPayloadData `json:"data"`
}

// WebhookStats is a read-only rollup over webhook_attempts, ported from
// the original service's operator-facing stats query.
type WebhookStats struct {
	TotalAttempts int64
	Succeeded     int64
	Failed        int64
	Pending       int64
}
