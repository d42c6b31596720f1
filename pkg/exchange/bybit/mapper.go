package bybit

import (
	"strings"

	"github.com/shopspring/decimal"

	"p2pcollector/internal/market"
	"p2pcollector/internal/refdata"
	"p2pcollector/pkg/exchange"
)

// sideOf maps the otc item side: 0 is a buy advert, anything else a sell.
func sideOf(side int) market.Side {
	if side == 0 {
		return market.SideBuy
	}
	return market.SideSell
}

// mapOrder converts one otc item. payments are the already translated
// payment method names.
func mapOrder(item p2pItem, payments []string) market.P2POrder {
	available := item.LastQuantity
	if available == "" {
		available = item.Quantity
	}
	return market.P2POrder{
		Exchange:       Name,
		Asset:          strings.ToUpper(item.TokenID),
		Fiat:           strings.ToUpper(item.CurrencyID),
		Price:          exchange.Decimal(item.Price),
		Side:           sideOf(item.Side),
		Available:      exchange.Decimal(available),
		MinAmount:      exchange.Decimal(item.MinAmount),
		MaxAmount:      exchange.Decimal(item.MaxAmount),
		PaymentMethods: payments,
		OrderID:        item.ID,
		UserID:         item.UserID,
		UserName:       item.NickName,
		CompletionRate: decimal.NewFromFloat(item.RecentExecuteRate),
	}
}

func mapPair(t ticker, info refdata.SymbolInfo) market.SpotPair {
	return market.SpotPair{
		Exchange:   Name,
		Symbol:     t.Symbol,
		Price:      exchange.Decimal(t.LastPrice),
		Bid:        exchange.Decimal(t.Bid1Price),
		Ask:        exchange.Decimal(t.Ask1Price),
		Volume24h:  exchange.Decimal(t.Volume24h),
		High24h:    exchange.Decimal(t.HighPrice24h),
		Low24h:     exchange.Decimal(t.LowPrice24h),
		BaseAsset:  info.Base,
		QuoteAsset: info.Quote,
	}
}

func mapStreamPair(t Ticker, info refdata.SymbolInfo) market.SpotPair {
	return market.SpotPair{
		Exchange:   Name,
		Symbol:     t.Symbol,
		Price:      t.LastPrice,
		Bid:        t.Bid,
		Ask:        t.Ask,
		Volume24h:  t.Volume24h,
		High24h:    t.High24h,
		Low24h:     t.Low24h,
		BaseAsset:  info.Base,
		QuoteAsset: info.Quote,
	}
}
