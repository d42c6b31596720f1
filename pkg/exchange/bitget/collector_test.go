package bitget

import (
	"context"
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

func newServer(t *testing.T, requireAuth bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(advListPath, func(w http.ResponseWriter, r *http.Request) {
		if requireAuth {
			ts := r.Header.Get("ACCESS-TIMESTAMP")
			want := Sign("secret", ts, r.Method, r.URL.Path, r.URL.RawQuery, nil)
			if r.Header.Get("ACCESS-SIGN") != want || r.Header.Get("ACCESS-PASSPHRASE") != "pass" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		side := r.URL.Query().Get("side")
		_, _ = w.Write([]byte(`{"code":"00000","msg":"success","data":{"advList":[{
			"advNo":"` + side + `-1","coin":"usdt","side":"` + side + `","price":"1.02",
			"advSize":"300","minTradeAmount":"10","maxTradeAmount":"300",
			"userId":"9","userName":"bg","turnoverRate":"0.93",
			"paymentMethodList":[{"paymentMethod":"Revolut"}]}]}}`))
	})
	mux.HandleFunc(tickersPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"00000","data":[
			{"symbol":"BTCUSDT","lastPr":"65000","bidPr":"64990","askPr":"65010","baseVolume":"10","high24h":"66000","low24h":"64000"},
			{"symbol":"ETHEUR","lastPr":"2800","bidPr":"2799","askPr":"2801","baseVolume":"5","high24h":"2900","low24h":"2700"}
		]}`))
	})
	mux.HandleFunc(symbolsPath, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"code":"00000","data":[{"symbol":"BTCUSDT","baseCoin":"BTC","quoteCoin":"USDT"}]}`))
	})
	return httptest.NewServer(mux)
}

func newCollector(url string, cfg config.ExchangeConfig) *Collector {
	cache := refdata.New(zap.NewNop())
	cfg.BaseURL = url
	opts := exchange.Options{Timeout: time.Second, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond}
	c := New(cfg, opts, cache, zap.NewNop())
	cache.Register(Name, c)
	return c
}

// go test -v --run ^TestFetchP2POrdersSigned$
func TestFetchP2POrdersSigned(t *testing.T) {
	srv := newServer(t, true)
	defer srv.Close()
	c := newCollector(srv.URL, config.ExchangeConfig{APIKey: "key", APISecret: "secret", Passphrase: "pass"})

	orders, err := c.FetchP2POrders(context.Background(), "USDT", []string{"EUR"})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	o := orders[0]
	assert.Equal(t, "sell-1", o.OrderID)
	assert.Equal(t, market.SideBuy, o.Side, "merchant sell advert is a taker buy")
	assert.Equal(t, "USDT", o.Asset)
	assert.Equal(t, "EUR", o.Fiat, "fiat falls back to the requested one")
	assert.True(t, decimal.NewFromInt(93).Equal(o.CompletionRate))
	assert.Equal(t, []string{"Revolut"}, o.PaymentMethods)
	assert.Equal(t, market.SideSell, orders[1].Side)
}

// go test -v --run ^TestFetchP2POrdersUnsignedRejected$
func TestFetchP2POrdersUnsignedRejected(t *testing.T) {
	srv := newServer(t, true)
	defer srv.Close()
	c := newCollector(srv.URL, config.ExchangeConfig{})

	_, err := c.FetchP2POrders(context.Background(), "USDT", []string{"EUR"})
	require.Error(t, err)
	assert.True(t, exchange.IsStatus(err, http.StatusUnauthorized))
}

// go test -v --run ^TestFetchSpotPairsUsesFallbackSplit$
func TestFetchSpotPairsUsesFallbackSplit(t *testing.T) {
	srv := newServer(t, false)
	defer srv.Close()
	c := newCollector(srv.URL, config.ExchangeConfig{})

	pairs, err := c.FetchSpotPairs(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "USDT", pairs[0].QuoteAsset)
	assert.Equal(t, "ETH", pairs[1].BaseAsset, "ETHEUR is missing from metadata and split by suffix")
	assert.Equal(t, "EUR", pairs[1].QuoteAsset)
}

// go test -v --run ^TestSign$
func TestSign(t *testing.T) {
	a := Sign("secret", "1700000000000", "GET", "/api/v2/p2p/advList", "coin=USDT", nil)
	b := Sign("secret", "1700000000000", "GET", "/api/v2/p2p/advList", "coin=BTC", nil)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Sign("secret", "1700000000000", "GET", "/api/v2/p2p/advList", "coin=USDT", []byte{}))
	assert.Len(t, a, 44)
}
