package postgres

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NUMERIC columns are selected as ::text and parsed here.

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}

type numericColumn struct {
	dst  *decimal.Decimal
	text string
}

func numeric(dst *decimal.Decimal, text string) numericColumn {
	return numericColumn{dst: dst, text: text}
}

// parseNumerics parses each text column into its destination.
func parseNumerics(cols ...numericColumn) error {
	for _, c := range cols {
		v, err := parseDecimal(c.text)
		if err != nil {
			return err
		}
		*c.dst = v
	}
	return nil
}
