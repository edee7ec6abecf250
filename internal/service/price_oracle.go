package service

import (
	"context"
	"fmt"
	"strings"

	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/apperror"

	"github.com/shopspring/decimal"
)

// StaticPriceOracle implements ports.PriceOracle from configured USD prices
// keyed by symbol. Stablecoins are always worth one dollar.
type StaticPriceOracle struct {
	prices map[string]decimal.Decimal
}

// NewStaticPriceOracle parses symbol -> price strings.
func NewStaticPriceOracle(prices map[string]string) (*StaticPriceOracle, error) {
	parsed := make(map[string]decimal.Decimal, len(prices))
	for symbol, raw := range prices {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", symbol, err)
		}
		if !p.IsPositive() {
			return nil, fmt.Errorf("price for %s must be positive", symbol)
		}
		parsed[strings.ToLower(symbol)] = p
	}
	return &StaticPriceOracle{prices: parsed}, nil
}

// USDPrice returns the price of one unit of currency.
func (o *StaticPriceOracle) USDPrice(_ context.Context, currency domain.Currency) (decimal.Decimal, error) {
	if currency.IsStablecoin() {
		return decimal.NewFromInt(1), nil
	}
	p, ok := o.prices[strings.ToLower(currency.Symbol())]
	if !ok {
		return decimal.Zero, apperror.Validation(fmt.Sprintf("no USD price for %s", currency))
	}
	return p, nil
}

// ToUSD values amount of currency in dollars, rounded to cents.
func ToUSD(ctx context.Context, oracle ports.PriceOracle, currency domain.Currency, amount decimal.Decimal) (decimal.Decimal, error) {
	price, err := oracle.USDPrice(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(price).Round(2), nil
}

// FromUSD converts a dollar amount into currency units at its decimals.
func FromUSD(ctx context.Context, oracle ports.PriceOracle, currency domain.Currency, usd decimal.Decimal) (decimal.Decimal, error) {
	price, err := oracle.USDPrice(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return usd.DivRound(price, currency.Decimals()), nil
}
