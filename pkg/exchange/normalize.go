package exchange

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"p2pcollector/internal/refdata"
)

// ReferenceData is the subset of the reference cache collectors use to
// normalize symbols and payment method ids.
type ReferenceData interface {
	SymbolInfo(ctx context.Context, exchange, symbol string) refdata.SymbolInfo
	PaymentNames(ctx context.Context, exchange string, ids []string) []string
}

// Decimal parses an exchange numeric string; empty or malformed input is zero.
func Decimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PairFilter reports whether a resolved pair passes the optional base and
// quote filters. Pairs whose assets could not be resolved never pass.
func PairFilter(info refdata.SymbolInfo, base, quote string) bool {
	if info.Base == "" || info.Quote == "" {
		return false
	}
	if base != "" && !strings.EqualFold(info.Base, base) {
		return false
	}
	if quote != "" && !strings.EqualFold(info.Quote, quote) {
		return false
	}
	return true
}
