package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus represents the delivery state of a webhook.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "PENDING"
	WebhookStatusDelivered WebhookStatus = "DELIVERED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
)

// WebhookDeliveryLog records each attempt to notify a merchant of a payment event.
type WebhookDeliveryLog struct {
	ID          uuid.UUID     `json:"id"`
	PaymentID   uuid.UUID     `json:"payment_id"`
	MerchantID  uuid.UUID     `json:"merchant_id"`
	EventStatus PaymentStatus `json:"event_status"`
	WebhookURL  string        `json:"webhook_url"`
	Payload     string        `json:"payload"`
	HTTPStatus  *int          `json:"http_status"`
	Attempt     int           `json:"attempt"`
	Status      WebhookStatus `json:"status"`
	NextRetryAt *time.Time    `json:"next_retry_at"`
	LastError   *string       `json:"last_error"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
