package binance

import (
	"strings"

	"github.com/shopspring/decimal"

	"p2pcollector/internal/market"
	"p2pcollector/internal/refdata"
	"p2pcollector/pkg/exchange"
)

// mapOrder converts one advert. side is the taker side the page was
// requested for; the advert's own tradeType is the maker side.
func mapOrder(item p2pAdvItem, side market.Side) market.P2POrder {
	adv := item.Adv
	methods := make([]string, 0, len(adv.TradeMethods))
	for _, m := range adv.TradeMethods {
		name := m.TradeMethodName
		if name == "" {
			name = m.Identifier
		}
		if name != "" {
			methods = append(methods, name)
		}
	}
	return market.P2POrder{
		Exchange:       Name,
		Asset:          strings.ToUpper(adv.Asset),
		Fiat:           strings.ToUpper(adv.FiatUnit),
		Price:          exchange.Decimal(adv.Price),
		Side:           side,
		Available:      exchange.Decimal(adv.SurplusAmount),
		MinAmount:      exchange.Decimal(adv.MinSingleTransAmount),
		MaxAmount:      exchange.Decimal(adv.MaxSingleTransAmount),
		PaymentMethods: methods,
		OrderID:        adv.AdvNo,
		UserID:         item.Advertiser.UserNo,
		UserName:       item.Advertiser.NickName,
		CompletionRate: decimal.NewFromFloat(item.Advertiser.MonthFinishRate).Mul(decimal.NewFromInt(100)),
	}
}

func mapPair(t ticker24h, info refdata.SymbolInfo) market.SpotPair {
	return market.SpotPair{
		Exchange:   Name,
		Symbol:     t.Symbol,
		Price:      exchange.Decimal(t.LastPrice),
		Bid:        exchange.Decimal(t.BidPrice),
		Ask:        exchange.Decimal(t.AskPrice),
		Volume24h:  exchange.Decimal(t.Volume),
		High24h:    exchange.Decimal(t.HighPrice),
		Low24h:     exchange.Decimal(t.LowPrice),
		BaseAsset:  info.Base,
		QuoteAsset: info.Quote,
	}
}
