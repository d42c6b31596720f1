package storage

import (
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"p2pcollector/internal/market"
)

// Column bounds of the fact tables. A numeric(p,s) column holds values
// below 10^(p-s).
var (
	maxNumeric30 = decimal.New(1, 20)
	maxNumeric38 = decimal.New(1, 28)
	maxRate      = decimal.New(1, 6)
)

type textField struct {
	name  string
	value string
	max   int
}

type numericField struct {
	name  string
	value decimal.Decimal
	limit decimal.Decimal
}

// checkP2POrder returns why o does not fit a p2p_orders row, or "".
func checkP2POrder(o market.P2POrder) string {
	return firstViolation(
		[]textField{
			{"side", string(market.ParseSide(string(o.Side))), 4},
			{"order_id", o.OrderID, 128},
			{"user_id", o.UserID, 128},
			{"user_name", o.UserName, 255},
		},
		[]numericField{
			{"price", o.Price, maxNumeric30},
			{"available", o.Available, maxNumeric30},
			{"min_amount", o.MinAmount, maxNumeric30},
			{"max_amount", o.MaxAmount, maxNumeric30},
			{"completion_rate", o.CompletionRate, maxRate},
		},
	)
}

// checkSpotPair returns why p does not fit a spot_pairs row, or "".
func checkSpotPair(p market.SpotPair) string {
	return firstViolation(
		[]textField{{"symbol", p.Symbol, 40}},
		[]numericField{
			{"price", p.Price, maxNumeric30},
			{"bid", p.Bid, maxNumeric30},
			{"ask", p.Ask, maxNumeric30},
			{"volume_24h", p.Volume24h, maxNumeric38},
			{"high_24h", p.High24h, maxNumeric30},
			{"low_24h", p.Low24h, maxNumeric30},
		},
	)
}

func firstViolation(texts []textField, numbers []numericField) string {
	for _, f := range texts {
		if utf8.RuneCountInString(f.value) > f.max {
			return fmt.Sprintf("%s longer than %d characters", f.name, f.max)
		}
	}
	for _, f := range numbers {
		if f.value.Abs().GreaterThanOrEqual(f.limit) {
			return fmt.Sprintf("%s out of numeric range", f.name)
		}
	}
	return ""
}
