package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"p2pcollector/config"
	"p2pcollector/internal/market"
	"p2pcollector/internal/refdata"
	"p2pcollector/pkg/exchange"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(searchPath, func(w http.ResponseWriter, r *http.Request) {
		var req p2pSearchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		price := "1.01"
		if req.TradeType == "SELL" {
			price = "0.99"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    "000000",
			"success": true,
			"data": []map[string]any{{
				"adv": map[string]any{
					"advNo":                "adv-" + req.Fiat + "-" + req.TradeType,
					"tradeType":            "SELL",
					"asset":                req.Asset,
					"fiatUnit":             req.Fiat,
					"price":                price,
					"surplusAmount":        "1500.5",
					"minSingleTransAmount": "10",
					"maxSingleTransAmount": "2000",
					"tradeMethods": []map[string]string{
						{"identifier": "Wise", "tradeMethodName": "Wise"},
						{"identifier": "BANK", "tradeMethodName": ""},
					},
				},
				"advertiser": map[string]any{
					"userNo":          "u-1",
					"nickName":        "maker",
					"monthFinishRate": 0.985,
				},
			}},
		})
	})
	mux.HandleFunc(tickerPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","lastPrice":"65000.10","bidPrice":"65000","askPrice":"65000.2","volume":"1200","highPrice":"66000","lowPrice":"64000"},
			{"symbol":"ETHBTC","lastPrice":"0.05","bidPrice":"0.049","askPrice":"0.051","volume":"800","highPrice":"0.06","lowPrice":"0.04"},
			{"symbol":"WEIRD","lastPrice":"1"}
		]`))
	})
	mux.HandleFunc(exchangeInfoPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"},
			{"symbol":"ETHBTC","status":"TRADING","baseAsset":"ETH","quoteAsset":"BTC"}
		]}`))
	})
	mux.HandleFunc(filterPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"000000","data":{"tradeMethods":[{"identifier":"Wise","tradeMethodName":"Wise"}]}}`))
	})
	return httptest.NewServer(mux)
}

func newCollector(url string) (*Collector, *refdata.Cache) {
	cache := refdata.New(zap.NewNop())
	opts := exchange.Options{Timeout: time.Second, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond}
	c := New(config.ExchangeConfig{BaseURL: url, P2PURL: url, PageSize: 10}, opts, cache, zap.NewNop())
	cache.Register(Name, c)
	return c, cache
}

// go test -v --run ^TestFetchP2POrders$
func TestFetchP2POrders(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()
	c, _ := newCollector(srv.URL)

	orders, err := c.FetchP2POrders(context.Background(), "USDT", []string{"USD", "EUR"})
	require.NoError(t, err)
	require.Len(t, orders, 4)

	first := orders[0]
	assert.Equal(t, "Binance", first.Exchange)
	assert.Equal(t, "USDT", first.Asset)
	assert.Equal(t, "USD", first.Fiat)
	assert.Equal(t, market.SideBuy, first.Side)
	assert.True(t, decimal.RequireFromString("1.01").Equal(first.Price))
	assert.True(t, decimal.RequireFromString("1500.5").Equal(first.Available))
	assert.True(t, decimal.RequireFromString("98.5").Equal(first.CompletionRate))
	assert.Equal(t, []string{"Wise", "BANK"}, first.PaymentMethods)
	assert.Equal(t, "adv-USD-BUY", first.OrderID)

	assert.Equal(t, market.SideSell, orders[1].Side)
	assert.Equal(t, "EUR", orders[3].Fiat)
}

// go test -v --run ^TestFetchP2POrdersFailsOnPageError$
func TestFetchP2POrdersFailsOnPageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	c, _ := newCollector(srv.URL)

	_, err := c.FetchP2POrders(context.Background(), "USDT", []string{"USD"})
	require.Error(t, err)
	assert.True(t, exchange.IsStatus(err, http.StatusForbidden))
}

// go test -v --run ^TestFetchSpotPairs$
func TestFetchSpotPairs(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()
	c, _ := newCollector(srv.URL)
	ctx := context.Background()

	all, err := c.FetchSpotPairs(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, all, 2, "unresolvable symbols are skipped")

	usdt, err := c.FetchSpotPairs(ctx, "", "USDT")
	require.NoError(t, err)
	require.Len(t, usdt, 1)
	assert.Equal(t, "BTC", usdt[0].BaseAsset)
	assert.Equal(t, "USDT", usdt[0].QuoteAsset)
	assert.True(t, decimal.RequireFromString("65000.1").Equal(usdt[0].Price))
	assert.True(t, decimal.RequireFromString("64000").Equal(usdt[0].Low24h))
}

// go test -v --run ^TestMetadata$
func TestMetadata(t *testing.T) {
	srv := newServer(t)
	defer srv.Close()
	c, cache := newCollector(srv.URL)
	ctx := context.Background()

	symbols, err := c.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, refdata.SymbolInfo{Base: "ETH", Quote: "BTC"}, symbols["ETHBTC"])

	assert.Equal(t, []string{"Wise", "Unknown-SEPA"}, cache.PaymentNames(ctx, Name, []string{"Wise", "SEPA"}))
}
