// Package binance collects P2P adverts and spot tickers from Binance.
package binance

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"p2pcollector/config"
	"p2pcollector/internal/market"
	"p2pcollector/pkg/exchange"
)

const (
	Name = "Binance"

	DefaultBaseURL = "https://api.binance.com"
	DefaultP2PURL  = "https://p2p.binance.com"

	searchPath       = "/bapi/c2c/v2/friendly/c2c/adv/search"
	filterPath       = "/bapi/c2c/v2/public/c2c/adv/filter-conditions"
	tickerPath       = "/api/v3/ticker/24hr"
	exchangeInfoPath = "/api/v3/exchangeInfo"
)

type Collector struct {
	rest     *exchange.RESTClient
	p2p      *exchange.RESTClient
	ref      exchange.ReferenceData
	pageSize int
	logger   *zap.Logger
}

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
	logger = logger.Named("binance")
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
// sides. Any failed page fails the whole call.
func (c *Collector) FetchP2POrders(ctx context.Context, asset string, fiats []string) ([]market.P2POrder, error) {
	var orders []market.P2POrder
	for _, fiat := range fiats {
		for _, side := range []market.Side{market.SideBuy, market.SideSell} {
			req := p2pSearchRequest{
				Asset:     asset,
				Fiat:      fiat,
				Page:      1,
				Rows:      c.pageSize,
				TradeType: string(side),
				PayTypes:  []string{},
			}
			var resp p2pSearchResponse
			if err := c.p2p.PostJSON(ctx, searchPath, req, &resp); err != nil {
				return nil, fmt.Errorf("binance p2p %s %s/%s: %w", side, asset, fiat, err)
			}
			if resp.Code != "" && resp.Code != "000000" {
				return nil, fmt.Errorf("binance p2p %s %s/%s: code %s: %s", side, asset, fiat, resp.Code, resp.Message)
			}
			for _, item := range resp.Data {
				orders = append(orders, mapOrder(item, side))
			}
			c.logger.Debug("p2p page fetched",
				zap.String("asset", asset),
				zap.String("fiat", fiat),
				zap.String("side", string(side)),
				zap.Int("count", len(resp.Data)))
		}
	}
	return orders, nil
}

func (c *Collector) FetchSpotPairs(ctx context.Context, base, quote string) ([]market.SpotPair, error) {
	var tickers []ticker24h
	if err := c.rest.GetJSON(ctx, tickerPath, nil, &tickers); err != nil {
		return nil, fmt.Errorf("binance tickers: %w", err)
	}

	pairs := make([]market.SpotPair, 0, len(tickers))
	for _, t := range tickers {
		info := c.ref.SymbolInfo(ctx, Name, t.Symbol)
		if !exchange.PairFilter(info, base, quote) {
			continue
		}
		pairs = append(pairs, mapPair(t, info))
	}
	return pairs, nil
}
