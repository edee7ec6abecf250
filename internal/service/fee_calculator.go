package service

import (
	"fmt"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/pkg/apperror"

	"github.com/shopspring/decimal"
)

var (
	hundred          = decimal.NewFromInt(100)
	MinFeePercentage = decimal.RequireFromString("0.10")
	MaxFeePercentage = decimal.RequireFromString("5.00")
)

// FeeCalculator splits a requested amount between customer, merchant and
// processing fee. Percentages are in percent units: 0.75 means 0.75%.
type FeeCalculator struct{}

// NewFeeCalculator creates a fee calculator.
func NewFeeCalculator() *FeeCalculator {
	return &FeeCalculator{}
}

// ValidatePercentage enforces the accepted fee range.
func (f *FeeCalculator) ValidatePercentage(pct decimal.Decimal) error {
	if pct.LessThan(MinFeePercentage) || pct.GreaterThan(MaxFeePercentage) {
		return apperror.ErrInvalidFeePercentage(fmt.Sprintf(
			"fee percentage must be between %s and %s, got %s",
			MinFeePercentage.StringFixed(2), MaxFeePercentage.StringFixed(2), pct.String()))
	}
	return nil
}

// Calculate computes fee = requested * pct / 100, rounded half-up to
// currency's decimals. When the customer pays, they send requested+fee and the
// merchant receives requested; otherwise the customer sends requested and the
// merchant receives requested-fee.
func (f *FeeCalculator) Calculate(currency domain.Currency, requested, pct decimal.Decimal, customerPays bool) (*domain.FeeBreakdown, error) {
	if !requested.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if err := f.ValidatePercentage(pct); err != nil {
		return nil, err
	}

	fee := PercentOf(requested, pct, currency.Decimals())

	b := &domain.FeeBreakdown{
		RequestedAmount: requested,
		FeePercentage:   pct,
		ProcessingFee:   fee,
		CustomerPaysFee: customerPays,
	}
	if customerPays {
		b.CustomerAmount = requested.Add(fee)
		b.MerchantAmount = requested
	} else {
		b.CustomerAmount = requested
		b.MerchantAmount = requested.Sub(fee)
	}
	return b, nil
}

// Settle recomputes the split on what actually arrived. A short payment is
// settled as merchant-pays on the received amount; full or over payment keeps
// the agreed split.
func (f *FeeCalculator) Settle(currency domain.Currency, agreed *domain.FeeBreakdown, received decimal.Decimal) (*domain.FeeBreakdown, error) {
	if received.GreaterThanOrEqual(agreed.CustomerAmount) {
		return agreed, nil
	}
	return f.Calculate(currency, received, agreed.FeePercentage, false)
}

// PercentOf returns amount * pct / 100 rounded half-up to places.
func PercentOf(amount, pct decimal.Decimal, places int32) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(places)
}
