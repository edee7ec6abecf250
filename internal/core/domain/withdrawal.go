package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus represents the lifecycle state of a payout.
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "PENDING"
	WithdrawalStatusApproved  WithdrawalStatus = "APPROVED"
	WithdrawalStatusRejected  WithdrawalStatus = "REJECTED"
	WithdrawalStatusCompleted WithdrawalStatus = "COMPLETED"
	WithdrawalStatusCancelled WithdrawalStatus = "CANCELLED"
)

// Withdrawal is a merchant-initiated payout backed by a ledger reservation.
type Withdrawal struct {
	ID                 uuid.UUID        `json:"id"`
	MerchantID         uuid.UUID        `json:"merchant_id"`
	Currency           Currency         `json:"currency"`
	Amount             decimal.Decimal  `json:"amount"`
	Fee                decimal.Decimal  `json:"fee"`
	NetAmount          decimal.Decimal  `json:"net_amount"`
	AmountUSD          decimal.Decimal  `json:"amount_usd"`
	DestinationAddress string           `json:"destination_address"`
	Status             WithdrawalStatus `json:"status"`
	RequiresApproval   bool             `json:"requires_approval"`
	TxRef              *string          `json:"tx_ref,omitempty"`
	SubmittedAt        *time.Time       `json:"submitted_at,omitempty"`
	ApprovedBy         *uuid.UUID       `json:"approved_by,omitempty"`
	ApprovedAt         *time.Time       `json:"approved_at,omitempty"`
	RejectionReason    *string          `json:"rejection_reason,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// IsCancellable reports whether the merchant may still cancel.
// Approved withdrawals can be cancelled only before chain submission.
func (w *Withdrawal) IsCancellable() bool {
	switch w.Status {
	case WithdrawalStatusPending:
		return true
	case WithdrawalStatusApproved:
		return w.SubmittedAt == nil
	}
	return false
}

// IsTerminal reports whether the withdrawal reached a final state.
func (w *Withdrawal) IsTerminal() bool {
	return w.Status == WithdrawalStatusRejected ||
		w.Status == WithdrawalStatusCompleted ||
		w.Status == WithdrawalStatusCancelled
}
