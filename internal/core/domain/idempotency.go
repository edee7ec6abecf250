package domain

import "github.com/google/uuid"

// BuildPaymentIdempotencyKey scopes a client-supplied Idempotency-Key to its merchant.
func BuildPaymentIdempotencyKey(merchantID uuid.UUID, clientKey string) string {
	return "payment:" + merchantID.String() + ":" + clientKey
}
