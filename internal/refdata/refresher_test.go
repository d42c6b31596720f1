package refdata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// manualTicker hands out one channel per interval and lets the test fire it.
type manualTicker struct {
	mu    sync.Mutex
	chans map[time.Duration]chan time.Time
}

func (m *manualTicker) newTicker(d time.Duration) (<-chan time.Time, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time)
	m.chans[d] = ch
	return ch, func() {}
}

func (m *manualTicker) fire(t *testing.T, d time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.chans[d] != nil
	}, time.Second, time.Millisecond)
	m.mu.Lock()
	ch := m.chans[d]
	m.mu.Unlock()
	ch <- time.Time{}
}

func waitCalls(t *testing.T, src *fakeSource, symbols, payments int32) {
	t.Helper()
	require.Eventually(t, func() bool {
		return src.symbolCalls.Load() == symbols && src.paymentCalls.Load() == payments
	}, time.Second, time.Millisecond)
}

// go test -v --run ^TestRefresherRun$
func TestRefresherRun(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := New(zap.NewNop(), WithClock(clk.Now))
	binance, bybit := &fakeSource{}, &fakeSource{}
	cache.Register("Binance", binance)
	cache.Register("Bybit", bybit)

	ticks := &manualTicker{chans: make(map[time.Duration]chan time.Time)}
	r := &Refresher{
		Cache:           cache,
		SymbolInterval:  time.Hour,
		PaymentInterval: 2 * time.Hour,
		Logger:          zap.NewNop(),
		newTicker:       ticks.newTicker,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitCalls(t, binance, 1, 1)
	waitCalls(t, bybit, 1, 1)

	ticks.fire(t, time.Hour)
	waitCalls(t, binance, 2, 1)
	waitCalls(t, bybit, 2, 1)

	ticks.fire(t, 2*time.Hour)
	waitCalls(t, binance, 2, 2)
	waitCalls(t, bybit, 2, 2)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// go test -v --run ^TestRefresherCancelledBeforeStart$
func TestRefresherCancelledBeforeStart(t *testing.T) {
	cache := New(zap.NewNop())
	src := &fakeSource{}
	cache.Register("Binance", src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Refresher{Cache: cache, Logger: zap.NewNop(), newTicker: (&manualTicker{chans: map[time.Duration]chan time.Time{}}).newTicker}
	assert.NoError(t, r.Run(ctx))
	assert.Equal(t, int32(0), src.symbolCalls.Load(), "a cancelled refresher does not touch sources")
}
