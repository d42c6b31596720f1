package bybit

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is the latest streamed state of one spot symbol. Price fields come
// from the tickers topic, Bid/Ask from the level 1 order book topic.
type Ticker struct {
	Symbol    string
	LastPrice decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Volume24h decimal.Decimal
	High24h   decimal.Decimal
	Low24h    decimal.Decimal
	UpdatedAt time.Time
}

// freshSince reports whether t carries a price updated after cutoff.
func (t Ticker) freshSince(cutoff time.Time) bool {
	return t.UpdatedAt.After(cutoff) && t.LastPrice.IsPositive()
}

// TickerStore holds the latest Ticker per symbol.
type TickerStore struct {
	globalMu sync.RWMutex
	data     map[string]*symbolTicker
	now      func() time.Time
}

type symbolTicker struct {
	mu     sync.Mutex
	ticker Ticker
}

func NewTickerStore() *TickerStore {
	return &TickerStore{
		data: make(map[string]*symbolTicker),
		now:  time.Now,
	}
}

// Update applies fn to the symbol's entry under its lock and stamps it.
func (s *TickerStore) Update(symbol string, fn func(*Ticker)) {
	// Fast path: lock per-symbol entry only
	s.globalMu.RLock()
	entry, ok := s.data[symbol]
	s.globalMu.RUnlock()

	if !ok {
		s.globalMu.Lock()
		if entry, ok = s.data[symbol]; !ok {
			entry = &symbolTicker{ticker: Ticker{Symbol: symbol}}
			s.data[symbol] = entry
		}
		s.globalMu.Unlock()
	}

	entry.mu.Lock()
	fn(&entry.ticker)
	entry.ticker.UpdatedAt = s.now()
	entry.mu.Unlock()
}

func (s *TickerStore) Get(symbol string) (Ticker, bool) {
	s.globalMu.RLock()
	entry, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if !ok {
		return Ticker{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.ticker, true
}

// Fresh returns tickers with a price updated within maxAge.
func (s *TickerStore) Fresh(maxAge time.Duration) []Ticker {
	cutoff := s.now().Add(-maxAge)

	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	out := make([]Ticker, 0, len(s.data))
	for _, entry := range s.data {
		entry.mu.Lock()
		t := entry.ticker
		entry.mu.Unlock()
		if t.freshSince(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of tracked symbols.
func (s *TickerStore) Len() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	return len(s.data)
}
