package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// InboundTransfer is a transfer observed arriving at a deposit address.
type InboundTransfer struct {
	TxRef         string
	Amount        decimal.Decimal
	Confirmations int
	Failed        bool
	ObservedAt    time.Time
}

// TxStatus is the chain's view of a previously observed transaction.
type TxStatus struct {
	TxRef         string
	Confirmations int
	Failed        bool
	Found         bool
}

// TransferRequest asks a chain client to move funds out of an address it can sign for.
type TransferRequest struct {
	Currency   Currency
	From       string
	PrivateKey string
	To         string
	Amount     decimal.Decimal
}

// SignedTransfer is a transfer signed for broadcast. TxRef is fixed at
// signing time, before the network has seen the transaction.
type SignedTransfer struct {
	Currency Currency
	TxRef    string
	Raw      string
}

var (
	// ErrUnderfunded means the sender cannot cover the amount plus the
	// network's costs, so nothing was signed.
	ErrUnderfunded = errors.New("sender cannot cover transfer and network costs")
	// ErrTransferExpired means a signed transaction can no longer be included.
	ErrTransferExpired = errors.New("signed transfer can no longer be included")
)
