package market

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the order direction from the taker's point of view.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes exchange spellings ("buy", "Buy", "BUY").
func ParseSide(s string) Side {
	return Side(strings.ToUpper(strings.TrimSpace(s)))
}

// P2POrder is one advertisement on an exchange's P2P board.
type P2POrder struct {
	Exchange string
	Asset    string // e.g. "USDT"
	Fiat     string // e.g. "USD"
	Price    decimal.Decimal
	Side     Side

	Available decimal.Decimal
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal

	PaymentMethods []string

	OrderID        string
	UserID         string
	UserName       string
	CompletionRate decimal.Decimal // percent
}

// SpotPair is a 24h ticker for one trading pair.
type SpotPair struct {
	Exchange string
	Symbol   string // exchange-native, e.g. "BTCUSDT"

	Price     decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Volume24h decimal.Decimal
	High24h   decimal.Decimal
	Low24h    decimal.Decimal

	BaseAsset  string
	QuoteAsset string
}

// Collector fetches normalized market data from one exchange.
type Collector interface {
	// ExchangeName is the stable Exchange natural key.
	ExchangeName() string
	FetchP2POrders(ctx context.Context, asset string, fiats []string) ([]P2POrder, error)
	// FetchSpotPairs returns every pair when base and quote are empty.
	FetchSpotPairs(ctx context.Context, base, quote string) ([]SpotPair, error)
}
