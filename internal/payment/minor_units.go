package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultZeroDecimalCurrencies have no fractional unit at the gateway.
var DefaultZeroDecimalCurrencies = []string{
	"BIF", "CLP", "DJF", "GNF", "JPY", "KMF", "KRW", "MGA",
	"PYG", "RWF", "UGX", "VND", "VUV", "XAF", "XOF", "XPF",
}

var hundred = decimal.NewFromInt(100)

type MinorUnitConverter struct {
	zeroDecimal map[string]struct{}
}

// NewMinorUnitConverter uses codes as the zero-decimal set, or the default set
// when codes is empty.
func NewMinorUnitConverter(codes []string) *MinorUnitConverter {
	if len(codes) == 0 {
		codes = DefaultZeroDecimalCurrencies
	}
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
	}
	return &MinorUnitConverter{zeroDecimal: set}
}

func (c *MinorUnitConverter) IsZeroDecimal(currency string) bool {
	_, ok := c.zeroDecimal[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}

// ToMinorUnits rounds half away from zero.
func (c *MinorUnitConverter) ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	if !c.IsZeroDecimal(currency) {
		amount = amount.Mul(hundred)
	}
	return amount.Round(0).IntPart()
}
