// Package mexc collects OTC adverts and spot tickers from MEXC.
package mexc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"p2pcollector/config"
	"p2pcollector/internal/market"
	"p2pcollector/internal/refdata"
	"p2pcollector/pkg/exchange"
)

const (
	Name = "MEXC"

	DefaultBaseURL = "https://api.mexc.com"
	DefaultP2PURL  = "https://otc.mexc.com/api"

	adsPath      = "/otc/ads/list"
	paymentPath  = "/payment/method"
	tickerPath   = "/api/v3/ticker/24hr"
	infoPath     = "/api/v3/exchangeInfo"
)

type Collector struct {
	rest     *exchange.RESTClient
	p2p      *exchange.RESTClient
	ref      exchange.ReferenceData
	pageSize int
	logger   *zap.Logger
}

// New builds the collector. Requests are signed only when key and secret
// are both configured.
func New(cfg config.ExchangeConfig, opts exchange.Options, ref exchange.ReferenceData, logger *zap.Logger) *Collector {
	baseURL, p2pURL := cfg.BaseURL, cfg.P2PURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if p2pURL == "" {
		p2pURL = DefaultP2PURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if cfg.APIKey != "" && cfg.APISecret != "" {
		opts.Signer = Signer(cfg.APIKey, cfg.APISecret)
	}
	logger = logger.Named("mexc")
	return &Collector{
		rest:     exchange.NewRESTClient(baseURL, opts, logger),
		p2p:      exchange.NewRESTClient(p2pURL, opts, logger),
		ref:      ref,
		pageSize: pageSize,
		logger:   logger,
	}
}

func (c *Collector) ExchangeName() string { return Name }

// FetchP2POrders reads the first page of adverts for every fiat and both
// sides. MEXC's tradeType is the advertiser's: a SELL advert is where the
// taker buys.
func (c *Collector) FetchP2POrders(ctx context.Context, asset string, fiats []string) ([]market.P2POrder, error) {
	var orders []market.P2POrder
	for _, fiat := range fiats {
		for _, side := range []market.Side{market.SideBuy, market.SideSell} {
			q := url.Values{
				"coinName":  {asset},
				"currency":  {fiat},
				"tradeType": {string(advertSide(side))},
				"page":      {"1"},
				"pageSize":  {strconv.Itoa(c.pageSize)},
			}
			var resp otcResponse
			if err := c.p2p.GetJSON(ctx, adsPath, q, &resp); err != nil {
				return nil, fmt.Errorf("mexc p2p %s %s/%s: %w", side, asset, fiat, err)
			}
			if resp.Code != codeOK {
				return nil, fmt.Errorf("mexc p2p %s %s/%s: code %d: %s", side, asset, fiat, resp.Code, resp.Msg)
			}
			var page adsPage
			if len(resp.Data) > 0 {
				if err := json.Unmarshal(resp.Data, &page); err != nil {
					return nil, fmt.Errorf("decode mexc adverts: %w", err)
				}
			}
			for _, a := range page.List {
				orders = append(orders, mapOrder(a, asset, fiat, side, c.paymentNames(ctx, a.PayMethods)))
			}
			c.logger.Debug("p2p page fetched",
				zap.String("asset", asset),
				zap.String("fiat", fiat),
				zap.String("side", string(side)),
				zap.Int("count", len(page.List)))
		}
	}
	return orders, nil
}

// paymentNames prefers inline names and resolves bare ids through the
// reference cache.
func (c *Collector) paymentNames(ctx context.Context, methods []payMethod) []string {
	names := make([]string, 0, len(methods))
	var ids []string
	for _, m := range methods {
		switch {
		case m.Name != "":
			names = append(names, m.Name)
		case m.ID != "":
			ids = append(ids, m.ID.String())
		}
	}
	if len(ids) > 0 {
		names = append(names, c.ref.PaymentNames(ctx, Name, ids)...)
	}
	return names
}

// FetchSpotPairs lists 24h tickers. With both filters set only that one
// symbol is requested.
func (c *Collector) FetchSpotPairs(ctx context.Context, base, quote string) ([]market.SpotPair, error) {
	var q url.Values
	if base != "" && quote != "" {
		q = url.Values{"symbol": {strings.ToUpper(base + quote)}}
	}
	var raw json.RawMessage
	if err := c.rest.GetJSON(ctx, tickerPath, q, &raw); err != nil {
		return nil, fmt.Errorf("mexc tickers: %w", err)
	}
	tickers, err := decodeTickers(raw)
	if err != nil {
		return nil, err
	}

	pairs := make([]market.SpotPair, 0, len(tickers))
	for _, t := range tickers {
		info := c.ref.SymbolInfo(ctx, Name, t.Symbol)
		if exchange.PairFilter(info, base, quote) {
			pairs = append(pairs, mapPair(t, info))
		}
	}
	return pairs, nil
}

// decodeTickers accepts the list form and the single-object form returned
// when a symbol is given.
func decodeTickers(raw json.RawMessage) ([]ticker24h, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var t ticker24h
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode mexc ticker: %w", err)
		}
		return []ticker24h{t}, nil
	}
	var list []ticker24h
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode mexc tickers: %w", err)
	}
	return list, nil
}

// Symbols implements refdata.Source.
func (c *Collector) Symbols(ctx context.Context) (map[string]refdata.SymbolInfo, error) {
	var info exchangeInfo
	if err := c.rest.GetJSON(ctx, infoPath, nil, &info); err != nil {
		return nil, fmt.Errorf("mexc exchange info: %w", err)
	}
	out := make(map[string]refdata.SymbolInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Symbol != "" && s.BaseAsset != "" && s.QuoteAsset != "" {
			out[s.Symbol] = refdata.SymbolInfo{Base: s.BaseAsset, Quote: s.QuoteAsset}
		}
	}
	return out, nil
}

// PaymentMethods implements refdata.Source.
func (c *Collector) PaymentMethods(ctx context.Context) (map[string]string, error) {
	var list paymentList
	if err := c.p2p.GetJSON(ctx, paymentPath, nil, &list); err != nil {
		return nil, fmt.Errorf("mexc payment methods: %w", err)
	}
	out := make(map[string]string, len(list.Data))
	for _, m := range list.Data {
		if m.ID != "" && m.Name != "" {
			out[m.ID.String()] = m.Name
		}
	}
	return out, nil
}

// advertSide is the tradeType to query for adverts a taker on side can fill.
func advertSide(taker market.Side) market.Side {
	if taker == market.SideBuy {
		return market.SideSell
	}
	return market.SideBuy
}

func mapOrder(a ad, asset, fiat string, side market.Side, payments []string) market.P2POrder {
	if a.CoinName != "" {
		asset = a.CoinName
	}
	if a.Currency != "" {
		fiat = a.Currency
	}
	return market.P2POrder{
		Exchange:       Name,
		Asset:          strings.ToUpper(asset),
		Fiat:           strings.ToUpper(fiat),
		Price:          exchange.Decimal(a.Price),
		Side:           side,
		Available:      exchange.Decimal(a.Quantity),
		MinAmount:      exchange.Decimal(a.MinAmount),
		MaxAmount:      exchange.Decimal(a.MaxAmount),
		PaymentMethods: payments,
		OrderID:        a.ID,
		UserID:         a.Merchant.UID,
		UserName:       a.Merchant.NickName,
		CompletionRate: exchange.Decimal(a.Merchant.FinishRate).Mul(decimal.NewFromInt(100)),
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
