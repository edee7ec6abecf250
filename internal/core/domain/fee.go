package domain

import "github.com/shopspring/decimal"

// FeeBreakdown is the result of splitting a requested amount under a fee model.
type FeeBreakdown struct {
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	FeePercentage   decimal.Decimal `json:"fee_percentage"`
	ProcessingFee   decimal.Decimal `json:"processing_fee"`
	CustomerAmount  decimal.Decimal `json:"customer_amount"`
	MerchantAmount  decimal.Decimal `json:"merchant_amount"`
	CustomerPaysFee bool            `json:"customer_pays_fee"`
}
