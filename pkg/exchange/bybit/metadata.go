package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"p2pcollector/internal/refdata"
)

// Symbols implements refdata.Source, following the instruments cursor
// until the last page.
func (c *Collector) Symbols(ctx context.Context) (map[string]refdata.SymbolInfo, error) {
	out := make(map[string]refdata.SymbolInfo)
	cursor := ""
	for {
		q := url.Values{"category": {"spot"}, "limit": {"1000"}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var resp Response
		if err := c.rest.GetJSON(ctx, instrumentsPath, q, &resp); err != nil {
			return nil, fmt.Errorf("bybit instruments: %w", err)
		}
		if resp.RetCode != 0 {
			return nil, fmt.Errorf("bybit instruments: retCode %d: %s", resp.RetCode, resp.RetMsg)
		}
		var result instrumentList
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		for _, s := range result.List {
			if s.Symbol != "" && s.BaseCoin != "" && s.QuoteCoin != "" {
				out[s.Symbol] = refdata.SymbolInfo{Base: s.BaseCoin, Quote: s.QuoteCoin}
			}
		}
		if result.NextPageCursor == "" || result.NextPageCursor == cursor {
			return out, nil
		}
		cursor = result.NextPageCursor
	}
}

// PaymentMethods implements refdata.Source.
func (c *Collector) PaymentMethods(ctx context.Context) (map[string]string, error) {
	var resp otcResponse
	if err := c.p2p.PostJSON(ctx, paymentListPath, map[string]any{}, &resp); err != nil {
		return nil, fmt.Errorf("bybit payment list: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit payment list: ret_code %d: %s", resp.RetCode, resp.RetMsg)
	}
	var list paymentList
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		return nil, fmt.Errorf("decode payment list: %w", err)
	}
	out := make(map[string]string, len(list.PaymentConfigVo))
	for _, p := range list.PaymentConfigVo {
		out[p.PaymentType.String()] = p.PaymentName
	}
	return out, nil
}
