package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MerchantBalance is the per (merchant, currency) balance row.
type MerchantBalance struct {
	MerchantID uuid.UUID       `json:"merchant_id"`
	Currency   Currency        `json:"currency"`
	Available  decimal.Decimal `json:"available"`
	Reserved   decimal.Decimal `json:"reserved"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Total is available plus reserved.
func (b *MerchantBalance) Total() decimal.Decimal {
	return b.Available.Add(b.Reserved)
}

// EntryKind is the ledger operation an entry records.
type EntryKind string

const (
	EntryCredit  EntryKind = "CREDIT"
	EntryDebit   EntryKind = "DEBIT"
	EntryReserve EntryKind = "RESERVE"
	EntryRelease EntryKind = "RELEASE"
)

// ReleaseMode says where released reserved funds go.
type ReleaseMode string

const (
	// ReleaseComplete removes the funds from the system (payout happened).
	ReleaseComplete ReleaseMode = "COMPLETE"
	// ReleaseCancel returns the funds to available.
	ReleaseCancel ReleaseMode = "CANCEL"
)

// LedgerEntry is an immutable audit record of one balance mutation.
type LedgerEntry struct {
	ID          uuid.UUID       `json:"id"`
	MerchantID  uuid.UUID       `json:"merchant_id"`
	Currency    Currency        `json:"currency"`
	Kind        EntryKind       `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	ReleaseMode *ReleaseMode    `json:"release_mode,omitempty"`
	NetChange   decimal.Decimal `json:"net_change"`
	Reason      string          `json:"reason"`
	Reference   string          `json:"reference"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NetChangeOf is the signed effect of an operation on available+reserved.
func NetChangeOf(kind EntryKind, mode ReleaseMode, amount decimal.Decimal) decimal.Decimal {
	switch kind {
	case EntryCredit:
		return amount
	case EntryDebit:
		return amount.Neg()
	case EntryRelease:
		if mode == ReleaseComplete {
			return amount.Neg()
		}
	}
	return decimal.Zero
}

// BalanceSummary is the dashboard snapshot across currencies.
type BalanceSummary struct {
	MerchantID uuid.UUID         `json:"merchant_id"`
	Balances   []BalanceSnapshot `json:"balances"`
	TotalUSD   decimal.Decimal   `json:"total_usd"`
}

// BalanceSnapshot is one currency line of a BalanceSummary.
type BalanceSnapshot struct {
	Currency     Currency        `json:"currency"`
	Network      Network         `json:"network"`
	Available    decimal.Decimal `json:"available"`
	Reserved     decimal.Decimal `json:"reserved"`
	AvailableUSD decimal.Decimal `json:"available_usd"`
}

// Reconciliation compares a balance row with the sum of its ledger entries.
type Reconciliation struct {
	MerchantID   uuid.UUID       `json:"merchant_id"`
	Currency     Currency        `json:"currency"`
	BalanceTotal decimal.Decimal `json:"balance_total"`
	LedgerTotal  decimal.Decimal `json:"ledger_total"`
	Consistent   bool            `json:"consistent"`
}

// Drift is the balance total minus the ledger total.
func (r *Reconciliation) Drift() decimal.Decimal {
	return r.BalanceTotal.Sub(r.LedgerTotal)
}
