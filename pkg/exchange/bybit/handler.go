package bybit

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"p2pcollector/pkg/exchange"
)

const (
	tickerTopicPrefix    = "tickers."
	orderbookTopicPrefix = "orderbook.1."
)

// streamMessage is a public spot stream push.
type streamMessage struct {
	Topic string          `json:"topic"` // e.g. "tickers.BTCUSDT"
	Type  string          `json:"type"`  // "snapshot" or "delta"
	Ts    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

type streamTicker struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	HighPrice24h string `json:"highPrice24h"`
	LowPrice24h  string `json:"lowPrice24h"`
	Volume24h    string `json:"volume24h"`
}

type streamOrderbook struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"` // [price, size]
	Asks   [][]string `json:"a"`
}

// MakeMessageHandler returns a function that parses ticker and level 1
// order book pushes into store. Other messages (subscription acks, pongs)
// are ignored.
func MakeMessageHandler(logger *zap.Logger, store *TickerStore) func(msg []byte) {
	return func(msg []byte) {
		var parsed streamMessage
		if err := json.Unmarshal(msg, &parsed); err != nil {
			logger.Warn("failed to parse stream message", zap.Error(err))
			return
		}

		switch {
		case strings.HasPrefix(parsed.Topic, tickerTopicPrefix):
			var d streamTicker
			if err := json.Unmarshal(parsed.Data, &d); err != nil {
				logger.Warn("failed to parse ticker payload", zap.String("topic", parsed.Topic), zap.Error(err))
				return
			}
			symbol := d.Symbol
			if symbol == "" {
				symbol = strings.TrimPrefix(parsed.Topic, tickerTopicPrefix)
			}
			store.Update(symbol, func(t *Ticker) {
				setIfPresent(&t.LastPrice, d.LastPrice)
				setIfPresent(&t.High24h, d.HighPrice24h)
				setIfPresent(&t.Low24h, d.LowPrice24h)
				setIfPresent(&t.Volume24h, d.Volume24h)
			})

		case strings.HasPrefix(parsed.Topic, orderbookTopicPrefix):
			var d streamOrderbook
			if err := json.Unmarshal(parsed.Data, &d); err != nil {
				logger.Warn("failed to parse orderbook payload", zap.String("topic", parsed.Topic), zap.Error(err))
				return
			}
			symbol := d.Symbol
			if symbol == "" {
				symbol = strings.TrimPrefix(parsed.Topic, orderbookTopicPrefix)
			}
			store.Update(symbol, func(t *Ticker) {
				if len(d.Bids) > 0 && len(d.Bids[0]) > 0 {
					t.Bid = exchange.Decimal(d.Bids[0][0])
				}
				if len(d.Asks) > 0 && len(d.Asks[0]) > 0 {
					t.Ask = exchange.Decimal(d.Asks[0][0])
				}
			})
		}
	}
}

func setIfPresent(dst *decimal.Decimal, s string) {
	if s != "" {
		*dst = exchange.Decimal(s)
	}
}

// Topics returns the stream topics for the given spot symbols.
func Topics(symbols []string) []string {
	out := make([]string, 0, 2*len(symbols))
	for _, s := range symbols {
		out = append(out, tickerTopicPrefix+s, orderbookTopicPrefix+s)
	}
	return out
}
