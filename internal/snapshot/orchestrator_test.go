package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"p2pcollector/internal/executor"
	"p2pcollector/internal/market"
	"p2pcollector/internal/refdata"
	"p2pcollector/pkg/storage"
	"p2pcollector/pkg/storage/memory"
)

type fakeCollector struct {
	name   string
	orders []market.P2POrder
	pairs  []market.SpotPair
	err    error
	panics bool
	block  chan struct{}
	calls  atomic.Int32
}

func (f *fakeCollector) ExchangeName() string { return f.name }

func (f *fakeCollector) FetchP2POrders(ctx context.Context, asset string, fiats []string) ([]market.P2POrder, error) {
	f.calls.Add(1)
	if f.panics {
		panic("collector bug")
	}
	if f.block != nil {
		<-f.block
		return nil, errors.New("released")
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]market.P2POrder(nil), f.orders...), nil
}

func (f *fakeCollector) FetchSpotPairs(ctx context.Context, base, quote string) ([]market.SpotPair, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return append([]market.SpotPair(nil), f.pairs...), nil
}

func orders(exchange string, fiats ...string) []market.P2POrder {
	out := make([]market.P2POrder, len(fiats))
	for i, fiat := range fiats {
		out[i] = market.P2POrder{
			Exchange:  exchange,
			Asset:     "USDT",
			Fiat:      fiat,
			Side:      market.SideSell,
			Price:     decimal.RequireFromString("0.92"),
			Available: decimal.NewFromInt(int64(10 * (i + 1))),
			OrderID:   fmt.Sprintf("%s-%d", exchange, i),
		}
	}
	return out
}

type fixture struct {
	store *memory.Store
	logs  *observer.ObservedLogs
}

func newOrchestrator(t *testing.T, collectors []market.Collector, symbols SymbolResolver, opts Options) (*Orchestrator, fixture) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	store := memory.New()
	writer := storage.NewFactWriter(storage.NewDimensions(nil), storage.WriterOptions{RetryDelay: time.Millisecond}, logger)
	if opts.Assets == nil {
		opts.Assets = []string{"USDT"}
	}
	if opts.Fiats == nil {
		opts.Fiats = []string{"EUR"}
	}
	return New(store, writer, collectors, symbols, opts, logger), fixture{store: store, logs: logs}
}

// go test -v --run ^TestRunP2PPartialFailure$
func TestRunP2PPartialFailure(t *testing.T) {
	good := &fakeCollector{name: "Alpha", orders: orders("Alpha", "EUR", "EUR", "USD", "USD", "RUB")}
	broken := &fakeCollector{name: "Beta", err: errors.New("exchange unreachable")}
	mixed := &fakeCollector{name: "Gamma", orders: orders("Gamma", "EUR", "EU1", "USD")}

	o, fx := newOrchestrator(t, []market.Collector{good, broken, mixed}, nil, Options{})
	summary, err := o.RunP2P(context.Background())
	require.NoError(t, err)

	rows := fx.store.P2POrderRows()
	assert.Len(t, rows, 7)
	for _, r := range rows {
		assert.Equal(t, summary.SnapshotID, r.SnapshotID)
	}

	assert.Equal(t, 7, summary.Total)
	assert.Equal(t, 1, summary.Dropped)
	assert.Equal(t, 3, summary.Tasks)
	assert.Equal(t, 1, summary.FailedTasks)
	assert.Equal(t, map[string]int{"Alpha": 5, "Beta": 0, "Gamma": 2}, summary.ByExchange())

	beta := summary.Exchanges["Beta"]
	require.NotNil(t, beta)
	assert.Equal(t, 0, beta.Fetched)
	assert.Equal(t, 0, beta.Persisted)
	assert.Equal(t, 1, beta.FailedTasks)
	require.Len(t, beta.Errors, 1)
	assert.Contains(t, beta.Errors[0], "exchange unreachable")

	gamma := summary.Exchanges["Gamma"]
	assert.Equal(t, 3, gamma.Fetched)
	assert.Equal(t, 2, gamma.Persisted)
	assert.Equal(t, map[string]int{"USDT": 2}, gamma.ByAsset)

	drops := fx.logs.FilterMessage("dropping record with unresolved dimension").All()
	require.Len(t, drops, 1)
	assert.Equal(t, "EU1", drops[0].ContextMap()["key"])
	assert.Equal(t, 1, fx.logs.FilterMessage("collection task failed").Len())
	assert.Zero(t, fx.store.OpenSessions())
}

// go test -v --run ^TestRunP2PFansOutAssetsAndFiats$
func TestRunP2PFansOutAssetsAndFiats(t *testing.T) {
	a := &fakeCollector{name: "Alpha", orders: orders("Alpha", "EUR")}
	b := &fakeCollector{name: "Beta", orders: orders("Beta", "EUR")}

	o, fx := newOrchestrator(t, []market.Collector{a, b}, nil, Options{
		Assets: []string{"USDT", "BTC"},
		Fiats:  []string{"EUR", "USD", "RUB"},
	})
	summary, err := o.RunP2P(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 6, a.calls.Load())
	assert.EqualValues(t, 6, b.calls.Load())
	assert.Equal(t, 12, summary.Tasks)
	assert.Equal(t, 6, summary.Exchanges["Alpha"].Tasks)
	assert.LessOrEqual(t, fx.store.PeakSessions(), 3, "default pool is collectors + 1")
}

// go test -v --run ^TestRunP2PIsolatesPanicsAndTimeouts$
func TestRunP2PIsolatesPanicsAndTimeouts(t *testing.T) {
	good := &fakeCollector{name: "Alpha", orders: orders("Alpha", "EUR", "USD")}
	buggy := &fakeCollector{name: "Beta", panics: true}
	stuck := &fakeCollector{name: "Gamma", block: make(chan struct{})}
	defer close(stuck.block)

	o, fx := newOrchestrator(t, []market.Collector{good, buggy, stuck}, nil, Options{Timeout: 200 * time.Millisecond})
	summary, err := o.RunP2P(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.FailedTasks)
	assert.Contains(t, summary.Exchanges["Beta"].Errors[0], executor.ErrPanic.Error())
	assert.Contains(t, summary.Exchanges["Gamma"].Errors[0], executor.ErrTimedOut.Error())
	assert.Len(t, fx.store.P2POrderRows(), 2)
}

// go test -v --run ^TestRunP2PSnapshotsAreAppendOnly$
func TestRunP2PSnapshotsAreAppendOnly(t *testing.T) {
	c := &fakeCollector{name: "Alpha", orders: orders("Alpha", "EUR", "USD")}
	o, fx := newOrchestrator(t, []market.Collector{c}, nil, Options{})

	first, err := o.RunP2P(context.Background())
	require.NoError(t, err)
	before := fx.store.P2POrderRows()

	c.orders[0].Price = decimal.RequireFromString("0.99")
	second, err := o.RunP2P(context.Background())
	require.NoError(t, err)

	assert.Greater(t, second.SnapshotID, first.SnapshotID)
	after := fx.store.P2POrderRows()
	require.Len(t, after, 4)
	for i, row := range before {
		assert.Equal(t, row.ID, after[i].ID)
		assert.Equal(t, row.SnapshotID, after[i].SnapshotID)
		assert.True(t, row.Price.Equal(after[i].Price))
	}
	assert.True(t, decimal.RequireFromString("0.99").Equal(after[2].Price))
}

// go test -v --run ^TestRunP2PConvergesAfterForeignKeyRetry$
func TestRunP2PConvergesAfterForeignKeyRetry(t *testing.T) {
	c := &fakeCollector{name: "Alpha", orders: orders("Alpha", "EUR", "USD", "RUB")}
	o, fx := newOrchestrator(t, []market.Collector{c}, nil, Options{})

	fx.store.FailNextInserts(1)
	summary, err := o.RunP2P(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Zero(t, summary.FailedTasks)
	assert.Len(t, fx.store.P2POrderRows(), 3)
}

// go test -v --run ^TestRunP2PStorageUnavailable$
func TestRunP2PStorageUnavailable(t *testing.T) {
	c := &fakeCollector{name: "Alpha", orders: orders("Alpha", "EUR")}
	o, fx := newOrchestrator(t, []market.Collector{c}, nil, Options{})

	fx.store.SetUnavailable(errors.New("connection refused"))
	summary, err := o.RunP2P(context.Background())
	require.NoError(t, err, "a degraded cycle is still a valid snapshot")
	assert.Zero(t, summary.Total)
	assert.Equal(t, 1, summary.FailedTasks)
	assert.Zero(t, summary.Exchanges["Alpha"].Persisted)
	assert.Contains(t, summary.Exchanges["Alpha"].Errors[0], "connection refused")
}

type staticSymbols map[string]refdata.SymbolInfo

func (s staticSymbols) SymbolInfo(_ context.Context, _, symbol string) refdata.SymbolInfo {
	return s[symbol]
}

// go test -v --run ^TestRunSpot$
func TestRunSpot(t *testing.T) {
	a := &fakeCollector{name: "Alpha", pairs: []market.SpotPair{
		{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Price: decimal.NewFromInt(65000)},
		{Symbol: "ETHEUR", Price: decimal.NewFromInt(2800)},
		{Symbol: "XXXYYY", Price: decimal.NewFromInt(1)},
	}}
	b := &fakeCollector{name: "Beta", err: errors.New("maintenance")}
	symbols := staticSymbols{"ETHEUR": {Base: "ETH", Quote: "EUR"}}

	o, fx := newOrchestrator(t, []market.Collector{a, b}, symbols, Options{SpotQuote: "USDT"})
	summary, err := o.RunSpot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Spot, summary.Family)
	assert.Equal(t, 2, summary.Tasks)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Dropped)
	assert.Equal(t, 1, summary.FailedTasks)
	assert.Equal(t, map[string]int{"BTC": 1, "ETH": 1}, summary.Exchanges["Alpha"].ByAsset)

	n, err := fx.store.CountSpotPairs(context.Background(), summary.SnapshotID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	for _, p := range fx.store.SpotPairRows() {
		assert.Equal(t, summary.SnapshotID, p.SnapshotID)
	}
}
