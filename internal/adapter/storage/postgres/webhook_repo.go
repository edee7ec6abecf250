package postgres

import (
	"context"
	"fmt"

	"crypto-settlement/internal/core/domain"
)

// WebhookLogRepo implements ports.WebhookLogRepository.
type WebhookLogRepo struct {
	pool Pool
}

// NewWebhookLogRepo creates a PostgreSQL-backed delivery log.
func NewWebhookLogRepo(pool Pool) *WebhookLogRepo {
	return &WebhookLogRepo{pool: pool}
}

func (r *WebhookLogRepo) Create(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_delivery_logs
		(id, payment_id, merchant_id, event_status, webhook_url, payload, http_status, attempt, status, next_retry_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		log.ID, log.PaymentID, log.MerchantID, string(log.EventStatus), log.WebhookURL,
		log.Payload, log.HTTPStatus, log.Attempt, string(log.Status),
		log.NextRetryAt, log.LastError, log.CreatedAt, log.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook log: %w", err)
	}
	return nil
}

func (r *WebhookLogRepo) Update(ctx context.Context, log *domain.WebhookDeliveryLog) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE webhook_delivery_logs
		SET http_status=$1, attempt=$2, status=$3, next_retry_at=$4, last_error=$5, updated_at=$6
		WHERE id=$7`,
		log.HTTPStatus, log.Attempt, string(log.Status),
		log.NextRetryAt, log.LastError, log.UpdatedAt, log.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook log: %w", err)
	}
	return nil
}
