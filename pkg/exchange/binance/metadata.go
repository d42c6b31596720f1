package binance

import (
	"context"
	"fmt"

	"p2pcollector/internal/refdata"
)

// Symbols implements refdata.Source.
func (c *Collector) Symbols(ctx context.Context) (map[string]refdata.SymbolInfo, error) {
	var info exchangeInfo
	if err := c.rest.GetJSON(ctx, exchangeInfoPath, nil, &info); err != nil {
		return nil, fmt.Errorf("binance exchange info: %w", err)
	}
	out := make(map[string]refdata.SymbolInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Symbol == "" || s.BaseAsset == "" || s.QuoteAsset == "" {
			continue
		}
		out[s.Symbol] = refdata.SymbolInfo{Base: s.BaseAsset, Quote: s.QuoteAsset}
	}
	return out, nil
}

// PaymentMethods implements refdata.Source.
func (c *Collector) PaymentMethods(ctx context.Context) (map[string]string, error) {
	var resp filterConditions
	body := map[string]string{"fiat": "", "tradeType": "BUY"}
	if err := c.p2p.PostJSON(ctx, filterPath, body, &resp); err != nil {
		return nil, fmt.Errorf("binance payment methods: %w", err)
	}
	out := make(map[string]string, len(resp.Data.TradeMethods))
	for _, m := range resp.Data.TradeMethods {
		if m.Identifier != "" {
			out[m.Identifier] = m.TradeMethodName
		}
	}
	return out, nil
}
