// Package analysis derives arbitrage opportunities and liquidity movement
// from persisted P2P snapshots.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"p2pcollector/config"
	"p2pcollector/internal/market"
	"p2pcollector/pkg/storage"
)

// executionHours is the assumed time to complete one arbitrage round trip.
const executionHours = 2

var hundred = decimal.NewFromInt(100)

type Analyzer struct {
	reader    storage.Reader
	transfers map[string]config.TransferRoute
	now       func() time.Time
}

type Option func(*Analyzer)

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New builds an analyzer. transfers is keyed "<buy>_to_<sell>" with lower
// case exchange names.
func New(reader storage.Reader, transfers map[string]config.TransferRoute, opts ...Option) *Analyzer {
	routes := make(map[string]config.TransferRoute, len(transfers))
	for k, v := range transfers {
		routes[strings.ToLower(k)] = v
	}
	a := &Analyzer{reader: reader, transfers: routes, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Opportunity buys at the cheapest advert on one exchange and sells to the
// best bid on another, in the same fiat.
type Opportunity struct {
	BuyExchange    string          `json:"buy_exchange"`
	SellExchange   string          `json:"sell_exchange"`
	Asset          string          `json:"asset"`
	Fiat           string          `json:"fiat"`
	BuyPrice       decimal.Decimal `json:"buy_price"`
	SellPrice      decimal.Decimal `json:"sell_price"`
	Amount         decimal.Decimal `json:"available_amount"`
	TransferMethod string          `json:"transfer_method"`
	TransferFee    decimal.Decimal `json:"transfer_fee"`
	Profit         decimal.Decimal `json:"potential_profit"`
	ProfitPercent  decimal.Decimal `json:"profit_percentage"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ProfitCalc is the arithmetic of one trade.
type ProfitCalc struct {
	BuyCost       decimal.Decimal
	SellRevenue   decimal.Decimal
	TotalCost     decimal.Decimal
	Profit        decimal.Decimal
	ProfitPercent decimal.Decimal
}

// Profit computes profit for amount units with a fixed transfer fee. The
// percentage is relative to the total cost including the fee.
func Profit(buyPrice, sellPrice, amount, fee decimal.Decimal) ProfitCalc {
	c := ProfitCalc{
		BuyCost:     buyPrice.Mul(amount),
		SellRevenue: sellPrice.Mul(amount),
	}
	c.TotalCost = c.BuyCost.Add(fee)
	c.Profit = c.SellRevenue.Sub(c.TotalCost)
	if c.TotalCost.IsPositive() {
		c.ProfitPercent = c.Profit.Div(c.TotalCost).Mul(hundred)
	}
	return c
}

type book struct {
	bestBuy  *storage.P2POrder // lowest taker-buy price
	bestSell *storage.P2POrder // highest taker-sell price
}

// FindOpportunities scans the latest P2P snapshot for asset. Routes without
// a configured transfer are skipped.
func (a *Analyzer) FindOpportunities(ctx context.Context, asset string, minProfitPct float64, maxResults int) ([]Opportunity, error) {
	snap, err := a.reader.LatestP2PSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	orders, err := a.reader.P2POrders(ctx, snap.ID, storage.OrderFilter{Asset: asset})
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	// fiat -> exchange -> best prices
	books := make(map[string]map[string]*book)
	for i := range orders {
		o := &orders[i]
		if o.Exchange == nil || o.Fiat == nil || !o.Available.IsPositive() {
			continue
		}
		byExchange := books[o.Fiat.Code]
		if byExchange == nil {
			byExchange = make(map[string]*book)
			books[o.Fiat.Code] = byExchange
		}
		b := byExchange[o.Exchange.Name]
		if b == nil {
			b = &book{}
			byExchange[o.Exchange.Name] = b
		}
		switch market.Side(o.Side) {
		case market.SideBuy:
			if b.bestBuy == nil || o.Price.LessThan(b.bestBuy.Price) {
				b.bestBuy = o
			}
		case market.SideSell:
			if b.bestSell == nil || o.Price.GreaterThan(b.bestSell.Price) {
				b.bestSell = o
			}
		}
	}

	minPct := decimal.NewFromFloat(minProfitPct)
	var out []Opportunity
	for fiat, byExchange := range books {
		for buyEx, buy := range byExchange {
			for sellEx, sell := range byExchange {
				if buyEx == sellEx || buy.bestBuy == nil || sell.bestSell == nil {
					continue
				}
				route, ok := a.route(buyEx, sellEx)
				if !ok {
					continue
				}
				amount := decimal.Min(buy.bestBuy.Available, sell.bestSell.Available)
				fee := decimal.NewFromFloat(route.FixedFee)
				calc := Profit(buy.bestBuy.Price, sell.bestSell.Price, amount, fee)
				if calc.ProfitPercent.LessThan(minPct) {
					continue
				}
				out = append(out, Opportunity{
					BuyExchange:    buyEx,
					SellExchange:   sellEx,
					Asset:          strings.ToUpper(asset),
					Fiat:           fiat,
					BuyPrice:       buy.bestBuy.Price,
					SellPrice:      sell.bestSell.Price,
					Amount:         amount,
					TransferMethod: route.Network,
					TransferFee:    fee,
					Profit:         calc.Profit,
					ProfitPercent:  calc.ProfitPercent,
					Timestamp:      snap.CreatedAt,
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].ProfitPercent.Cmp(out[j].ProfitPercent); c != 0 {
			return c > 0
		}
		if out[i].BuyExchange != out[j].BuyExchange {
			return out[i].BuyExchange < out[j].BuyExchange
		}
		return out[i].SellExchange < out[j].SellExchange
	})
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// route looks up buy_to_sell, then sell_to_buy.
func (a *Analyzer) route(buyEx, sellEx string) (config.TransferRoute, bool) {
	buyEx, sellEx = strings.ToLower(buyEx), strings.ToLower(sellEx)
	if r, ok := a.transfers[buyEx+"_to_"+sellEx]; ok {
		return r, true
	}
	r, ok := a.transfers[sellEx+"_to_"+buyEx]
	return r, ok
}

// Details is an opportunity recomputed for a chosen amount.
type Details struct {
	Opportunity
	TradeAmount        decimal.Decimal `json:"amount"`
	PriceDifference    decimal.Decimal `json:"price_difference"`
	PriceDifferencePct decimal.Decimal `json:"price_difference_percentage"`
	BuyCost            decimal.Decimal `json:"buy_cost"`
	SellRevenue        decimal.Decimal `json:"sell_revenue"`
	NetProfit          decimal.Decimal `json:"net_profit"`
	NetProfitPercent   decimal.Decimal `json:"net_profit_percentage"`
	ROIPerHour         decimal.Decimal `json:"roi_per_hour"`
	ROIPerDay          decimal.Decimal `json:"roi_per_day"`
}

// OpportunityDetails recomputes op for amount. A non-positive amount or one
// above the available amount uses the available amount.
func OpportunityDetails(op Opportunity, amount decimal.Decimal) Details {
	if !amount.IsPositive() || amount.GreaterThan(op.Amount) {
		amount = op.Amount
	}
	calc := Profit(op.BuyPrice, op.SellPrice, amount, op.TransferFee)

	d := Details{
		Opportunity:      op,
		TradeAmount:      amount,
		PriceDifference:  op.SellPrice.Sub(op.BuyPrice),
		BuyCost:          calc.BuyCost,
		SellRevenue:      calc.SellRevenue,
		NetProfit:        calc.Profit,
		NetProfitPercent: calc.ProfitPercent,
		ROIPerHour:       calc.ProfitPercent.Div(decimal.NewFromInt(executionHours)),
		ROIPerDay:        calc.ProfitPercent.Mul(decimal.NewFromInt(24 / executionHours)),
	}
	if op.BuyPrice.IsPositive() {
		d.PriceDifferencePct = d.PriceDifference.Div(op.BuyPrice).Mul(hundred)
	}
	return d
}
