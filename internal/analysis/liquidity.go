package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"p2pcollector/pkg/storage"
)

const (
	maxSignificantChanges = 20
	significantFraction   = "0.01"
)

var ErrNoSnapshots = errors.New("analysis: no snapshots in window")

// LiquidityChange is a drop in one advert's available amount between two
// consecutive snapshots.
type LiquidityChange struct {
	OrderID       string          `json:"order_id"`
	UserName      string          `json:"user_name"`
	Side          string          `json:"side"`
	Previous      decimal.Decimal `json:"previous_amount"`
	Current       decimal.Decimal `json:"current_amount"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percentage"`
	Price         decimal.Decimal `json:"price"`
	Timestamp     time.Time       `json:"timestamp"`
}

type LiquidityReport struct {
	Exchange           string            `json:"exchange"`
	Asset              string            `json:"asset"`
	WindowHours        float64           `json:"time_window_hours"`
	Start              time.Time         `json:"start_time"`
	End                time.Time         `json:"end_time"`
	Snapshots          int               `json:"snapshots_count"`
	UniqueOrders       int               `json:"unique_orders_count"`
	ActiveOrders       int               `json:"active_orders"`
	CompletedOrders    int               `json:"completed_orders"`
	CurrentLiquidity   decimal.Decimal   `json:"current_liquidity"`
	Consumed           decimal.Decimal   `json:"liquidity_consumed"`
	Added              decimal.Decimal   `json:"liquidity_added"`
	NetChange          decimal.Decimal   `json:"net_liquidity_change"`
	ConsumptionPerHour decimal.Decimal   `json:"consumption_rate_per_hour"`
	SignificantChanges []LiquidityChange `json:"significant_changes"`
}

// AnalyzeLiquidity follows every advert of exchange/asset through the
// snapshots of the last window. Decreases in available amount count as
// consumed liquidity, increases as added. Adverts seen only once are not
// classified as active or completed.
func (a *Analyzer) AnalyzeLiquidity(ctx context.Context, exchange, asset string, window time.Duration) (LiquidityReport, error) {
	end := a.now()
	start := end.Add(-window)
	report := LiquidityReport{
		Exchange:    exchange,
		Asset:       strings.ToUpper(asset),
		WindowHours: window.Hours(),
		Start:       start,
		End:         end,
	}

	snaps, err := a.reader.P2PSnapshotsBetween(ctx, start, end)
	if err != nil {
		return report, fmt.Errorf("load snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return report, ErrNoSnapshots
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	latest := snaps[len(snaps)-1]
	report.Snapshots = len(snaps)

	ids := make([]uint, len(snaps))
	createdAt := make(map[uint]time.Time, len(snaps))
	for i, s := range snaps {
		ids[i] = s.ID
		createdAt[s.ID] = s.CreatedAt
	}

	orders, err := a.reader.OrderHistory(ctx, exchange, asset, ids)
	if err != nil {
		return report, fmt.Errorf("load order history: %w", err)
	}

	history := make(map[string][]storage.P2POrder)
	for _, o := range orders {
		if o.SnapshotID == latest.ID {
			report.CurrentLiquidity = report.CurrentLiquidity.Add(o.Available)
		}
		if o.OrderID == "" {
			continue
		}
		history[o.OrderID] = append(history[o.OrderID], o)
	}
	report.UniqueOrders = len(history)

	threshold := decimal.RequireFromString(significantFraction)
	var changes []LiquidityChange
	for id, h := range history {
		if len(h) < 2 {
			continue
		}
		sort.SliceStable(h, func(i, j int) bool { return h[i].SnapshotID < h[j].SnapshotID })

		active := false
		for i, cur := range h {
			if cur.SnapshotID == latest.ID {
				active = true
			}
			if i == 0 {
				continue
			}
			prev := h[i-1]
			delta := cur.Available.Sub(prev.Available)
			switch {
			case delta.IsNegative():
				report.Consumed = report.Consumed.Add(delta.Abs())
				if delta.Abs().GreaterThan(prev.Available.Mul(threshold)) {
					c := LiquidityChange{
						OrderID:   id,
						UserName:  cur.UserName,
						Side:      cur.Side,
						Previous:  prev.Available,
						Current:   cur.Available,
						Change:    delta,
						Price:     cur.Price,
						Timestamp: createdAt[cur.SnapshotID],
					}
					if prev.Available.IsPositive() {
						c.ChangePercent = delta.Div(prev.Available).Mul(hundred)
					}
					changes = append(changes, c)
				}
			case delta.IsPositive():
				report.Added = report.Added.Add(delta)
			}
		}
		if active {
			report.ActiveOrders++
		} else {
			report.CompletedOrders++
		}
	}

	report.NetChange = report.Added.Sub(report.Consumed)
	if hours := window.Hours(); hours > 0 {
		report.ConsumptionPerHour = report.Consumed.Div(decimal.NewFromFloat(hours))
	}

	sort.SliceStable(changes, func(i, j int) bool {
		if c := changes[i].Change.Abs().Cmp(changes[j].Change.Abs()); c != 0 {
			return c > 0
		}
		return changes[i].OrderID < changes[j].OrderID
	})
	if len(changes) > maxSignificantChanges {
		changes = changes[:maxSignificantChanges]
	}
	report.SignificantChanges = changes
	return report, nil
}
