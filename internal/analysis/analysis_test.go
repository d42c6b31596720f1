package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"p2pcollector/config"
	"p2pcollector/internal/market"
	"p2pcollector/pkg/storage"
	"p2pcollector/pkg/storage/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ad(exchange, fiat string, side market.Side, price, available, id string) market.P2POrder {
	return market.P2POrder{
		Exchange: exchange, Asset: "USDT", Fiat: fiat, Side: side,
		Price: dec(price), Available: dec(available), OrderID: id, UserName: "u-" + id,
	}
}

type seeder struct {
	store  *memory.Store
	writer *storage.FactWriter
	clock  time.Time
}

func newSeeder() *seeder {
	s := &seeder{}
	s.store = memory.New(memory.WithClock(func() time.Time { return s.clock }))
	s.writer = storage.NewFactWriter(storage.NewDimensions(nil), storage.WriterOptions{}, zap.NewNop())
	return s
}

func (s *seeder) snapshot(t *testing.T, at time.Time, orders ...market.P2POrder) uint {
	t.Helper()
	s.clock = at
	snap, err := s.store.CreateP2PSnapshot(context.Background())
	require.NoError(t, err)
	err = s.store.WithSession(context.Background(), func(sess storage.Session) error {
		_, err := s.writer.WriteP2POrders(context.Background(), sess, snap.ID, orders)
		return err
	})
	require.NoError(t, err)
	return snap.ID
}

// go test -v --run ^TestProfit$
func TestProfit(t *testing.T) {
	c := Profit(dec("0.90"), dec("0.98"), dec("50"), dec("1"))
	assert.True(t, dec("45").Equal(c.BuyCost))
	assert.True(t, dec("49").Equal(c.SellRevenue))
	assert.True(t, dec("3").Equal(c.Profit))
	assert.Equal(t, "6.52", c.ProfitPercent.StringFixed(2))

	zero := Profit(decimal.Zero, dec("1"), decimal.Zero, decimal.Zero)
	assert.True(t, zero.ProfitPercent.IsZero())
}

// go test -v --run ^TestFindOpportunities$
func TestFindOpportunities(t *testing.T) {
	s := newSeeder()
	s.snapshot(t, time.Now(),
		ad("Alpha", "EUR", market.SideBuy, "0.90", "100", "a1"),
		ad("Alpha", "EUR", market.SideBuy, "0.95", "500", "a2"),
		ad("Alpha", "EUR", market.SideSell, "0.91", "100", "a3"),
		ad("Beta", "EUR", market.SideSell, "0.98", "50", "b1"),
		ad("Beta", "EUR", market.SideBuy, "0.97", "50", "b2"),
		ad("Beta", "USD", market.SideSell, "5.00", "50", "b3"),
		ad("Gamma", "EUR", market.SideSell, "1.00", "10", "g1"),
	)

	a := New(s.store, map[string]config.TransferRoute{
		"Beta_to_Alpha": {Network: "TRC20", FixedFee: 1},
	})
	ops, err := a.FindOpportunities(context.Background(), "usdt", 1, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)

	op := ops[0]
	assert.Equal(t, "Alpha", op.BuyExchange)
	assert.Equal(t, "Beta", op.SellExchange)
	assert.Equal(t, "EUR", op.Fiat)
	assert.Equal(t, "USDT", op.Asset)
	assert.Equal(t, "TRC20", op.TransferMethod)
	assert.True(t, dec("50").Equal(op.Amount))
	assert.True(t, dec("3").Equal(op.Profit))

	ops, err = a.FindOpportunities(context.Background(), "USDT", 10, 10)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

// go test -v --run ^TestFindOpportunitiesWithoutSnapshots$
func TestFindOpportunitiesWithoutSnapshots(t *testing.T) {
	a := New(memory.New(), nil)
	ops, err := a.FindOpportunities(context.Background(), "USDT", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

// go test -v --run ^TestOpportunityDetails$
func TestOpportunityDetails(t *testing.T) {
	op := Opportunity{BuyPrice: dec("0.90"), SellPrice: dec("0.98"), Amount: dec("50"), TransferFee: dec("1")}

	d := OpportunityDetails(op, dec("10"))
	assert.True(t, dec("10").Equal(d.TradeAmount))
	assert.True(t, dec("-0.2").Equal(d.NetProfit))
	assert.True(t, dec("-2").Equal(d.NetProfitPercent))
	assert.True(t, dec("-1").Equal(d.ROIPerHour))
	assert.True(t, dec("-24").Equal(d.ROIPerDay))
	assert.Equal(t, "8.89", d.PriceDifferencePct.StringFixed(2))

	assert.True(t, dec("50").Equal(OpportunityDetails(op, decimal.Zero).TradeAmount))
	assert.True(t, dec("50").Equal(OpportunityDetails(op, dec("80")).TradeAmount))
}

// go test -v --run ^TestAnalyzeLiquidity$
func TestAnalyzeLiquidity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newSeeder()
	s.snapshot(t, now.Add(-5*time.Hour), ad("Alpha", "EUR", market.SideBuy, "0.9", "999", "A"))
	s.snapshot(t, now.Add(-3*time.Hour),
		ad("Alpha", "EUR", market.SideBuy, "0.9", "100", "A"),
		ad("Alpha", "EUR", market.SideSell, "0.9", "50", "B"),
		ad("Beta", "EUR", market.SideSell, "0.9", "70", "A"),
	)
	s.snapshot(t, now.Add(-2*time.Hour),
		ad("Alpha", "EUR", market.SideBuy, "0.9", "60", "A"),
		ad("Alpha", "EUR", market.SideSell, "0.9", "80", "B"),
	)
	s.snapshot(t, now.Add(-time.Hour),
		ad("Alpha", "EUR", market.SideBuy, "0.91", "60", "A"),
		ad("Alpha", "EUR", market.SideBuy, "0.92", "20", "C"),
		ad("Beta", "EUR", market.SideSell, "0.9", "1", "A"),
	)

	a := New(s.store, nil, WithClock(func() time.Time { return now }))
	r, err := a.AnalyzeLiquidity(context.Background(), "Alpha", "usdt", 4*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 3, r.Snapshots)
	assert.Equal(t, 3, r.UniqueOrders)
	assert.Equal(t, 1, r.ActiveOrders)
	assert.Equal(t, 1, r.CompletedOrders)
	assert.True(t, dec("80").Equal(r.CurrentLiquidity))
	assert.True(t, dec("40").Equal(r.Consumed))
	assert.True(t, dec("30").Equal(r.Added))
	assert.True(t, dec("-10").Equal(r.NetChange))
	assert.True(t, dec("10").Equal(r.ConsumptionPerHour))

	require.Len(t, r.SignificantChanges, 1)
	c := r.SignificantChanges[0]
	assert.Equal(t, "A", c.OrderID)
	assert.True(t, dec("-40").Equal(c.Change))
	assert.True(t, dec("-40").Equal(c.ChangePercent))
	assert.Equal(t, now.Add(-2*time.Hour), c.Timestamp)
}

// go test -v --run ^TestAnalyzeLiquidityEmptyWindow$
func TestAnalyzeLiquidityEmptyWindow(t *testing.T) {
	a := New(memory.New(), nil)
	_, err := a.AnalyzeLiquidity(context.Background(), "Alpha", "USDT", time.Hour)
	assert.ErrorIs(t, err, ErrNoSnapshots)
}
