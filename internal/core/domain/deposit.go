package domain

import (
	"time"

	"github.com/google/uuid"
)

// KeyPair is freshly generated key material in the family's text encoding.
type KeyPair struct {
	Family     ChainFamily
	Address    string
	PrivateKey string
}

// DepositAddress is the single-use receiving address of one payment.
type DepositAddress struct {
	PaymentID           uuid.UUID `json:"payment_id"`
	Currency            Currency  `json:"currency"`
	Address             string    `json:"address"`
	EncryptedKey        string    `json:"-"`
	MerchantDestination string    `json:"merchant_destination"`
	IssuedAt            time.Time `json:"issued_at"`
}
