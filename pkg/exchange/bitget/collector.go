// Package bitget collects P2P adverts and spot tickers from Bitget.
package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"p2pcollector/config"
	"p2pcollector/internal/market"
	"p2pcollector/internal/refdata"
	"p2pcollector/pkg/exchange"
)

const (
	Name = "Bitget"

	DefaultBaseURL = "https://api.bitget.com"

	advListPath = "/api/v2/p2p/advList"
	tickersPath = "/api/v2/spot/market/tickers"
	symbolsPath = "/api/v2/spot/public/symbols"
)

type Collector struct {
	rest   *exchange.RESTClient
	ref    exchange.ReferenceData
	logger *zap.Logger
}

// New builds the collector. Requests are signed only when key, secret and
// passphrase are all configured.
func New(cfg config.ExchangeConfig, opts exchange.Options, ref exchange.ReferenceData, logger *zap.Logger) *Collector {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.APIKey != "" && cfg.APISecret != "" && cfg.Passphrase != "" {
		opts.Signer = Signer(cfg.APIKey, cfg.APISecret, cfg.Passphrase, nil)
	}
	logger = logger.Named("bitget")
	return &Collector{
		rest:   exchange.NewRESTClient(baseURL, opts, logger),
		ref:    ref,
		logger: logger,
	}
}

func (c *Collector) ExchangeName() string { return Name }

// FetchP2POrders lists online adverts for every fiat and both sides.
// Bitget's side is the merchant's: "sell" adverts are where a taker buys.
func (c *Collector) FetchP2POrders(ctx context.Context, asset string, fiats []string) ([]market.P2POrder, error) {
	var orders []market.P2POrder
	for _, fiat := range fiats {
		for _, side := range []string{"sell", "buy"} {
			q := url.Values{
				"coin":    {asset},
				"fiat":    {fiat},
				"side":    {side},
				"status":  {"online"},
				"orderBy": {"price"},
			}
			var resp Response
			if err := c.rest.GetJSON(ctx, advListPath, q, &resp); err != nil {
				return nil, fmt.Errorf("bitget p2p %s %s/%s: %w", side, asset, fiat, err)
			}
			if resp.Code != codeOK {
				return nil, fmt.Errorf("bitget p2p %s %s/%s: code %s: %s", side, asset, fiat, resp.Code, resp.Msg)
			}
			var page advList
			if err := json.Unmarshal(resp.Data, &page); err != nil {
				return nil, fmt.Errorf("decode bitget adverts: %w", err)
			}
			if len(page.AdvList) == 0 {
				c.logger.Debug("no adverts", zap.String("asset", asset), zap.String("fiat", fiat), zap.String("side", side))
			}
			for _, a := range page.AdvList {
				orders = append(orders, mapOrder(a, fiat))
			}
		}
	}
	return orders, nil
}

func (c *Collector) FetchSpotPairs(ctx context.Context, base, quote string) ([]market.SpotPair, error) {
	var resp Response
	if err := c.rest.GetJSON(ctx, tickersPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("bitget tickers: %w", err)
	}
	if resp.Code != codeOK {
		return nil, fmt.Errorf("bitget tickers: code %s: %s", resp.Code, resp.Msg)
	}
	var tickers []ticker
	if err := json.Unmarshal(resp.Data, &tickers); err != nil {
		return nil, fmt.Errorf("decode bitget tickers: %w", err)
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

// Symbols implements refdata.Source.
func (c *Collector) Symbols(ctx context.Context) (map[string]refdata.SymbolInfo, error) {
	var resp Response
	if err := c.rest.GetJSON(ctx, symbolsPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("bitget symbols: %w", err)
	}
	if resp.Code != codeOK {
		return nil, fmt.Errorf("bitget symbols: code %s: %s", resp.Code, resp.Msg)
	}
	var list []symbolInfo
	if err := json.Unmarshal(resp.Data, &list); err != nil {
		return nil, fmt.Errorf("decode bitget symbols: %w", err)
	}
	out := make(map[string]refdata.SymbolInfo, len(list))
	for _, s := range list {
		if s.Symbol != "" && s.BaseCoin != "" && s.QuoteCoin != "" {
			out[s.Symbol] = refdata.SymbolInfo{Base: s.BaseCoin, Quote: s.QuoteCoin}
		}
	}
	return out, nil
}

// PaymentMethods implements refdata.Source. Bitget adverts carry payment
// names inline, so there is no id table to load.
func (c *Collector) PaymentMethods(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func mapOrder(a adv, fiat string) market.P2POrder {
	methods := make([]string, 0, len(a.PaymentMethods))
	for _, m := range a.PaymentMethods {
		if m.PaymentMethod != "" {
			methods = append(methods, m.PaymentMethod)
		}
	}
	if a.Fiat != "" {
		fiat = a.Fiat
	}
	return market.P2POrder{
		Exchange:       Name,
		Asset:          strings.ToUpper(a.Coin),
		Fiat:           strings.ToUpper(fiat),
		Price:          exchange.Decimal(a.Price),
		Side:           takerSide(a.Side),
		Available:      exchange.Decimal(a.AdvSize),
		MinAmount:      exchange.Decimal(a.MinTradeAmount),
		MaxAmount:      exchange.Decimal(a.MaxTradeAmount),
		PaymentMethods: methods,
		OrderID:        a.AdvNo,
		UserID:         a.UserID,
		UserName:       a.UserName,
		CompletionRate: exchange.Decimal(a.TurnoverRate).Mul(decimal.NewFromInt(100)),
	}
}

// takerSide flips the merchant side reported by Bitget.
func takerSide(merchant string) market.Side {
	if market.ParseSide(merchant) == market.SideSell {
		return market.SideBuy
	}
	return market.SideSell
}

func mapPair(t ticker, info refdata.SymbolInfo) market.SpotPair {
	return market.SpotPair{
		Exchange:   Name,
		Symbol:     t.Symbol,
		Price:      exchange.Decimal(t.LastPr),
		Bid:        exchange.Decimal(t.BidPr),
		Ask:        exchange.Decimal(t.AskPr),
		Volume24h:  exchange.Decimal(t.BaseVolume),
		High24h:    exchange.Decimal(t.High24h),
		Low24h:     exchange.Decimal(t.Low24h),
		BaseAsset:  info.Base,
		QuoteAsset: info.Quote,
	}
}
