package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is a node of the payment state machine.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusConfirming PaymentStatus = "CONFIRMING"
	PaymentStatusConfirmed  PaymentStatus = "CONFIRMED"
	PaymentStatusForwarded  PaymentStatus = "FORWARDED"
	PaymentStatusExpired    PaymentStatus = "EXPIRED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusConfirming, PaymentStatusExpired},
	PaymentStatusConfirming: {PaymentStatusConfirmed, PaymentStatusFailed},
	PaymentStatusConfirmed:  {PaymentStatusForwarded},
}

// CanTransitionTo reports whether next directly follows s in the state machine.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

// ActivePaymentStatuses are the statuses the monitor keeps polling.
func ActivePaymentStatuses() []PaymentStatus {
	return []PaymentStatus{PaymentStatusPending, PaymentStatusConfirming, PaymentStatusConfirmed}
}

// Payment is one funds-collection attempt.
type Payment struct {
	ID                    uuid.UUID       `json:"id"`
	MerchantID            uuid.UUID       `json:"merchant_id"`
	Currency              Currency        `json:"currency"`
	RequestedAmount       decimal.Decimal `json:"requested_amount"`
	CustomerAmount        decimal.Decimal `json:"customer_amount"`
	ProcessingFee         decimal.Decimal `json:"processing_fee"`
	MerchantAmount        decimal.Decimal `json:"merchant_amount"`
	FeePercentage         decimal.Decimal `json:"fee_percentage"`
	CustomerPaysFee       bool            `json:"customer_pays_fee"`
	DepositAddress        string          `json:"deposit_address"`
	MerchantDestination   string          `json:"-"`
	Status                PaymentStatus   `json:"status"`
	Confirmations         int             `json:"confirmations"`
	RequiredConfirmations int             `json:"required_confirmations"`
	InboundTxRef          *string         `json:"inbound_tx_ref,omitempty"`
	ReceivedAmount        decimal.Decimal `json:"received_amount"`
	ForwardTxRef          *string         `json:"forward_tx_ref,omitempty"`
	ForwardRawTx          *string         `json:"-"`
	ForwardClaimedAt      *time.Time      `json:"-"`
	Description           *string         `json:"description,omitempty"`
	WebhookURL            *string         `json:"-"`
	IdempotencyKey        *string         `json:"-"`
	CreatedAt             time.Time       `json:"created_at"`
	ExpiresAt             time.Time       `json:"expires_at"`
	ConfirmedAt           *time.Time      `json:"confirmed_at,omitempty"`
	ForwardedAt           *time.Time      `json:"forwarded_at,omitempty"`
}

// IsExpiredAt reports whether the payment deadline has passed at t.
func (p *Payment) IsExpiredAt(t time.Time) bool {
	return !t.Before(p.ExpiresAt)
}

// HasEnoughConfirmations reports whether the finality threshold is met.
func (p *Payment) HasEnoughConfirmations() bool {
	return p.Confirmations >= p.RequiredConfirmations
}

// HasForwardClaim reports whether a forward transfer was signed and recorded.
func (p *Payment) HasForwardClaim() bool {
	return p.ForwardTxRef != nil
}

// PaymentTransition describes a conditional status update.
// Fields left nil are not written.
type PaymentTransition struct {
	From           PaymentStatus
	To             PaymentStatus
	Confirmations  *int
	InboundTxRef   *string
	ReceivedAmount *decimal.Decimal
	Fee            *FeeBreakdown
	ForwardTxRef   *string
	At             time.Time
}

// PaymentEvent is emitted on every status change for webhook delivery.
type PaymentEvent struct {
	PaymentID     uuid.UUID     `json:"payment_id"`
	MerchantID    uuid.UUID     `json:"merchant_id"`
	Currency      Currency      `json:"currency"`
	Status        PaymentStatus `json:"status"`
	Confirmations int           `json:"confirmations"`
	TxRef         string        `json:"tx_ref,omitempty"`
	Amount        string        `json:"amount"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// NewPaymentEvent snapshots p as an event.
func NewPaymentEvent(p *Payment, at time.Time) PaymentEvent {
	ev := PaymentEvent{
		PaymentID:     p.ID,
		MerchantID:    p.MerchantID,
		Currency:      p.Currency,
		Status:        p.Status,
		Confirmations: p.Confirmations,
		Amount:        p.CustomerAmount.String(),
		OccurredAt:    at,
	}
	switch {
	case p.ForwardTxRef != nil:
		ev.TxRef = *p.ForwardTxRef
	case p.InboundTxRef != nil:
		ev.TxRef = *p.InboundTxRef
	}
	return ev
}

// Apply copies a successful transition onto p.
func (p *Payment) Apply(t PaymentTransition) {
	p.Status = t.To
	if t.Confirmations != nil {
		p.Confirmations = *t.Confirmations
	}
	if t.InboundTxRef != nil {
		ref := *t.InboundTxRef
		p.InboundTxRef = &ref
	}
	if t.ReceivedAmount != nil {
		p.ReceivedAmount = *t.ReceivedAmount
	}
	if t.Fee != nil {
		p.ProcessingFee = t.Fee.ProcessingFee
		p.MerchantAmount = t.Fee.MerchantAmount
	}
	if t.ForwardTxRef != nil {
		ref := *t.ForwardTxRef
		p.ForwardTxRef = &ref
	}
	at := t.At
	switch t.To {
	case PaymentStatusConfirmed:
		p.ConfirmedAt = &at
	case PaymentStatusForwarded:
		p.ForwardedAt = &at
	}
}

// AgreedFee rebuilds the split fixed at creation time.
func (p *Payment) AgreedFee() *FeeBreakdown {
	return &FeeBreakdown{
		RequestedAmount: p.RequestedAmount,
		FeePercentage:   p.FeePercentage,
		ProcessingFee:   p.ProcessingFee,
		CustomerAmount:  p.CustomerAmount,
		MerchantAmount:  p.MerchantAmount,
		CustomerPaysFee: p.CustomerPaysFee,
	}
}
