// Package bybit collects P2P adverts and spot tickers from Bybit, either
// over REST or from the public spot stream.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"p2pcollector/config"
	"p2pcollector/internal/market"
	"p2pcollector/internal/refdata"
	"p2pcollector/pkg/exchange"
)

const (
	Name = "Bybit"

	DefaultBaseURL = "https://api.bybit.com"
	DefaultP2PURL  = "https://api2.bybit.com"

	onlinePath      = "/fiat/otc/item/online"
	paymentListPath = "/fiat/otc/configuration/queryAllPaymentList"
	tickersPath     = "/v5/market/tickers"
	instrumentsPath = "/v5/market/instruments-info"
)

type Collector struct {
	rest     *exchange.RESTClient
	p2p      *exchange.RESTClient
	ref      exchange.ReferenceData
	pageSize int

	stream   *TickerStore // nil when the spot stream is disabled
	maxStale time.Duration

	logger *zap.Logger
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
	maxStale := cfg.WS.MaxStale
	if maxStale <= 0 {
		maxStale = time.Minute
	}
	logger = logger.Named("bybit")
	return &Collector{
		rest:     exchange.NewRESTClient(baseURL, opts, logger),
		p2p:      exchange.NewRESTClient(p2pURL, opts, logger),
		ref:      ref,
		pageSize: pageSize,
		maxStale: maxStale,
		logger:   logger,
	}
}

// UseStream makes FetchSpotPairs prefer fresh tickers from store.
func (c *Collector) UseStream(store *TickerStore) {
	c.stream = store
}

func (c *Collector) ExchangeName() string { return Name }

// FetchP2POrders queries both advert sides for every fiat. Payment type
// ids are translated to names through the reference cache.
func (c *Collector) FetchP2POrders(ctx context.Context, asset string, fiats []string) ([]market.P2POrder, error) {
	var orders []market.P2POrder
	for _, fiat := range fiats {
		for _, side := range []string{"0", "1"} {
			req := p2pSearchRequest{
				TokenID:    asset,
				CurrencyID: fiat,
				Payment:    []string{},
				Side:       side,
				Size:       strconv.Itoa(c.pageSize),
				Page:       "1",
				SortType:   "TRADE_PRICE",
				ItemRegion: 1,
			}
			var resp otcResponse
			if err := c.p2p.PostJSON(ctx, onlinePath, req, &resp); err != nil {
				return nil, fmt.Errorf("bybit p2p side %s %s/%s: %w", side, asset, fiat, err)
			}
			if resp.RetCode != 0 {
				return nil, fmt.Errorf("bybit p2p side %s %s/%s: ret_code %d: %s", side, asset, fiat, resp.RetCode, resp.RetMsg)
			}
			var page p2pItems
			if err := json.Unmarshal(resp.Result, &page); err != nil {
				return nil, fmt.Errorf("decode bybit p2p items: %w", err)
			}
			for _, item := range page.Items {
				orders = append(orders, mapOrder(item, c.ref.PaymentNames(ctx, Name, item.Payments)))
			}
		}
	}
	return orders, nil
}

// FetchSpotPairs serves from the stream while every tracked ticker is
// fresh. Otherwise it reads the REST tickers endpoint and keeps the
// streamed values only for symbols that are still fresh.
func (c *Collector) FetchSpotPairs(ctx context.Context, base, quote string) ([]market.SpotPair, error) {
	if c.stream != nil {
		fresh := c.stream.Fresh(c.maxStale)
		tracked := c.stream.Len()
		if len(fresh) > 0 && len(fresh) == tracked {
			pairs := make([]market.SpotPair, 0, len(fresh))
			for _, t := range fresh {
				info := c.ref.SymbolInfo(ctx, Name, t.Symbol)
				if exchange.PairFilter(info, base, quote) {
					pairs = append(pairs, mapStreamPair(t, info))
				}
			}
			sort.Slice(pairs, func(i, j int) bool { return pairs[i].Symbol < pairs[j].Symbol })
			c.logger.Debug("spot pairs served from stream", zap.Int("count", len(pairs)))
			return pairs, nil
		}
		c.logger.Info("stream tickers stale, filling from REST",
			zap.Int("fresh", len(fresh)), zap.Int("tracked", tracked))
	}

	var resp Response
	if err := c.rest.GetJSON(ctx, tickersPath, url.Values{"category": {"spot"}}, &resp); err != nil {
		return nil, fmt.Errorf("bybit tickers: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit tickers: retCode %d: %s", resp.RetCode, resp.RetMsg)
	}
	var list tickerList
	if err := json.Unmarshal(resp.Result, &list); err != nil {
		return nil, fmt.Errorf("decode bybit tickers: %w", err)
	}

	cutoff := time.Now().Add(-c.maxStale)
	pairs := make([]market.SpotPair, 0, len(list.List))
	for _, t := range list.List {
		info := c.ref.SymbolInfo(ctx, Name, t.Symbol)
		if !exchange.PairFilter(info, base, quote) {
			continue
		}
		if c.stream != nil {
			if st, ok := c.stream.Get(t.Symbol); ok && st.freshSince(cutoff) {
				pairs = append(pairs, mapStreamPair(st, info))
				continue
			}
		}
		pairs = append(pairs, mapPair(t, info))
	}
	return pairs, nil
}

// StreamTopics lists ticker and order book topics for every known symbol
// passing the base/quote filter.
func StreamTopics(symbols map[string]refdata.SymbolInfo, base, quote string) []string {
	var selected []string
	for sym, info := range symbols {
		if exchange.PairFilter(info, base, quote) {
			selected = append(selected, sym)
		}
	}
	sort.Strings(selected)
	return Topics(selected)
}
