package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// go test -v --run ^TestMessageHandler$
func TestMessageHandler(t *testing.T) {
	store := NewTickerStore()
	handle := MakeMessageHandler(zap.NewNop(), store)

	handle([]byte(`{"success":true,"op":"subscribe"}`))
	handle([]byte(`not json`))
	assert.Equal(t, 0, store.Len())

	handle([]byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","ts":1,"data":{"symbol":"BTCUSDT","lastPrice":"65000.5","highPrice24h":"66000","lowPrice24h":"64000","volume24h":"123"}}`))
	handle([]byte(`{"topic":"orderbook.1.BTCUSDT","type":"snapshot","ts":2,"data":{"s":"BTCUSDT","b":[["65000.1","2"]],"a":[["65000.9","1"]]}}`))
	handle([]byte(`{"topic":"orderbook.1.BTCUSDT","type":"delta","ts":3,"data":{"s":"BTCUSDT","b":[],"a":[["65000.8","1"]]}}`))

	tk, ok := store.Get("BTCUSDT")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("65000.5").Equal(tk.LastPrice))
	assert.True(t, decimal.RequireFromString("65000.1").Equal(tk.Bid), "empty delta side keeps the previous level")
	assert.True(t, decimal.RequireFromString("65000.8").Equal(tk.Ask))
	assert.Len(t, store.Fresh(time.Minute), 1)
}

// go test -v --run ^TestFreshSkipsPriceless$
func TestFreshSkipsPriceless(t *testing.T) {
	store := NewTickerStore()
	store.Update("ETHUSDT", func(tk *Ticker) { tk.Bid = decimal.NewFromInt(1) })
	assert.Empty(t, store.Fresh(time.Minute))
}

// go test -v --run ^TestWSClientSubscribesAndRoutes$
func TestWSClientSubscribesAndRoutes(t *testing.T) {
	var subscribeArgs atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for i := 0; i < 2; i++ {
			var sub struct {
				Op   string   `json:"op"`
				Args []string `json:"args"`
			}
			if err := conn.ReadJSON(&sub); err != nil {
				return
			}
			subscribeArgs.Add(int32(len(sub.Args)))
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"topic":"tickers.SOLUSDT","type":"snapshot","data":{"symbol":"SOLUSDT","lastPrice":"150"}}`))
		// keep the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	symbols := []string{"S1", "S2", "S3", "S4", "S5", "SOLUSDT"} // 12 topics, two subscribe frames
	store := NewTickerStore()
	client := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"),
		func(context.Context) []string { return Topics(symbols) }, time.Second, zap.NewNop())
	client.SetMessageHandler(MakeMessageHandler(zap.NewNop(), store))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := store.Get("SOLUSDT")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(12), subscribeArgs.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
