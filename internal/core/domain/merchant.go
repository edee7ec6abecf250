package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MerchantStatus represents the state of a merchant account.
type MerchantStatus string

const (
	MerchantStatusActive      MerchantStatus = "ACTIVE"
	MerchantStatusSuspended   MerchantStatus = "SUSPENDED"
	MerchantStatusDeactivated MerchantStatus = "DEACTIVATED"
)

// Role gates dashboard capabilities.
type Role string

const (
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
)

// Merchant is an account that receives payments and requests withdrawals.
type Merchant struct {
	ID              uuid.UUID           `json:"id"`
	Username        string              `json:"username"`
	PasswordHash    string              `json:"-"`
	Name            string              `json:"name"`
	Role            Role                `json:"role"`
	FeePercentage   decimal.Decimal     `json:"fee_percentage"`
	CustomerPaysFee bool                `json:"customer_pays_fee"`
	Destinations    map[Currency]string `json:"destinations"`
	WebhookURL      *string             `json:"webhook_url,omitempty"`
	WebhookSecret   string              `json:"-"`
	Status          MerchantStatus      `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// IsActive returns true if the merchant account is active.
func (m *Merchant) IsActive() bool {
	return m.Status == MerchantStatusActive
}

// DestinationFor returns the payout address configured for c.
func (m *Merchant) DestinationFor(c Currency) (string, bool) {
	addr, ok := m.Destinations[c]
	if !ok || addr == "" {
		return "", false
	}
	return addr, true
}
