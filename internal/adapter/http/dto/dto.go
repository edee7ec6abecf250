package dto

import (
	"time"

	"crypto-settlement/internal/core/domain"

	"github.com/shopspring/decimal"
)

// RegisterRequest is the request body for merchant registration.
type RegisterRequest struct {
	Username     string  `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password     string  `json:"password" binding:"required,min=8,max=128"`
	MerchantName string  `json:"merchant_name" binding:"required,min=1,max=100"`
	WebhookURL   *string `json:"webhook_url,omitempty" binding:"omitempty,safe_url"`
}

// LoginRequest is the request body for merchant login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse carries the webhook secret; it is never shown again.
type RegisterResponse struct {
	Merchant      *domain.Merchant `json:"merchant"`
	WebhookSecret string           `json:"webhook_secret"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreatePaymentRequest asks for a new payment. Exactly one of Amount and
// AmountUSD must be set.
type CreatePaymentRequest struct {
	Currency          string           `json:"currency" binding:"required,currency"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	AmountUSD         *decimal.Decimal `json:"amount_usd,omitempty"`
	ExpirationMinutes *int             `json:"expiration_minutes,omitempty" binding:"omitempty,min=5,max=1440"`
	Description       *string          `json:"description,omitempty" binding:"omitempty,max=255"`
}

// PaymentResponse is a payment plus what the customer needs to pay it.
type PaymentResponse struct {
	*domain.Payment
	Instructions PaymentInstructions `json:"instructions"`
}

// PaymentInstructions tells the customer where and how much to send.
type PaymentInstructions struct {
	Network               domain.Network  `json:"network"`
	Symbol                string          `json:"symbol"`
	Address               string          `json:"address"`
	Amount                decimal.Decimal `json:"amount"`
	RequiredConfirmations int             `json:"required_confirmations"`
	ExpiresAt             time.Time       `json:"expires_at"`
}

// WithdrawalRequest is the request body for a payout.
type WithdrawalRequest struct {
	Currency           string          `json:"currency" binding:"required,currency"`
	Amount             decimal.Decimal `json:"amount"`
	DestinationAddress string          `json:"destination_address" binding:"required,max=128"`
}

// RejectWithdrawalRequest is the admin's reason for rejecting a payout.
type RejectWithdrawalRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// MerchantSettingsRequest holds optional updates to the merchant's settings.
type MerchantSettingsRequest struct {
	WebhookURL      *string           `json:"webhook_url,omitempty" binding:"omitempty,safe_url"`
	FeePercentage   *decimal.Decimal  `json:"fee_percentage,omitempty"`
	CustomerPaysFee *bool             `json:"customer_pays_fee,omitempty"`
	Destinations    map[string]string `json:"destinations,omitempty" binding:"omitempty,dive,keys,currency,endkeys,max=128"`
}

// WebhookSecretResponse returns a freshly rotated secret.
type WebhookSecretResponse struct {
	WebhookSecret string `json:"webhook_secret"`
}
