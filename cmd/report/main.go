// Command report prints arbitrage opportunities and liquidity for one
// asset from the collected snapshots.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"p2pcollector/config"
	"p2pcollector/internal/analysis"
	"p2pcollector/internal/app"
	"p2pcollector/logger"
)

type report struct {
	Asset         string                     `json:"asset"`
	Opportunities []analysis.Opportunity     `json:"opportunities"`
	Details       *analysis.Details          `json:"best_details,omitempty"`
	Liquidity     []analysis.LiquidityReport `json:"liquidity,omitempty"`
}

func main() {
	asset := flag.String("asset", "USDT", "asset to analyze")
	minProfit := flag.Float64("min-profit", -1, "minimum profit percent, negative uses the configured value")
	amount := flag.Float64("amount", 0, "trade amount for the best opportunity details, 0 skips")
	window := flag.Duration("window", 24*time.Hour, "liquidity window")
	flag.Parse()

	cfg := config.Load()
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	client, store, err := app.OpenStore(cfg, false, false, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if !client.IsHealthy(ctx) {
		log.Fatal("postgres is not reachable")
	}

	if *minProfit < 0 {
		*minProfit = cfg.Analysis.MinProfitPercent
	}
	analyzer := analysis.New(store, cfg.Analysis.Transfers)

	ops, err := analyzer.FindOpportunities(ctx, *asset, *minProfit, cfg.Analysis.MaxResults)
	if err != nil {
		log.Fatal("failed to find opportunities", zap.Error(err))
	}
	out := report{Asset: *asset, Opportunities: ops}

	if *amount > 0 && len(ops) > 0 {
		d := analysis.OpportunityDetails(ops[0], decimal.NewFromFloat(*amount))
		out.Details = &d
	}

	for _, name := range app.EnabledExchanges(cfg) {
		rep, err := analyzer.AnalyzeLiquidity(ctx, name, *asset, *window)
		if errors.Is(err, analysis.ErrNoSnapshots) {
			continue
		}
		if err != nil {
			log.Warn("liquidity analysis failed", zap.String("exchange", name), zap.Error(err))
			continue
		}
		out.Liquidity = append(out.Liquidity, rep)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal("failed to encode report", zap.Error(err))
	}
}
