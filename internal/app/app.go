// Package app wires configuration into a running collector.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"p2pcollector/config"
	"p2pcollector/internal/analysis"
	"p2pcollector/internal/market"
	"p2pcollector/internal/refdata"
	"p2pcollector/internal/scheduler"
	"p2pcollector/internal/snapshot"
	"p2pcollector/pkg/exchange"
	"p2pcollector/pkg/exchange/binance"
	"p2pcollector/pkg/exchange/bitget"
	"p2pcollector/pkg/exchange/bybit"
	"p2pcollector/pkg/exchange/mexc"
	"p2pcollector/pkg/storage"
	"p2pcollector/pkg/storage/postgres"
)

// Exchanges is what BuildExchanges produces.
type Exchanges struct {
	Collectors []market.Collector
	// Streams are long-running loops, currently the Bybit spot stream.
	Streams []func(context.Context) error
}

// BuildExchanges creates a collector per enabled exchange and registers it
// as a reference data source.
func BuildExchanges(cfg *config.Config, cache *refdata.Cache, logger *zap.Logger) Exchanges {
	opts := exchange.OptionsFromConfig(cfg.HTTP)
	var out Exchanges

	if ex := cfg.Exchanges.Binance; ex.Enabled {
		c := binance.New(ex, opts, cache, logger)
		cache.Register(binance.Name, c)
		out.Collectors = append(out.Collectors, c)
	}

	if ex := cfg.Exchanges.Bybit; ex.Enabled {
		c := bybit.New(ex, opts, cache, logger)
		cache.Register(bybit.Name, c)
		out.Collectors = append(out.Collectors, c)

		if ex.WS.Enabled {
			tickers := bybit.NewTickerStore()
			c.UseStream(tickers)

			base, quote := cfg.Collector.SpotBase, cfg.Collector.SpotQuote
			ws := bybit.NewWSClient(ex.WS.URL, func(ctx context.Context) []string {
				return bybit.StreamTopics(cache.AllSymbols(ctx, bybit.Name), base, quote)
			}, ex.WS.Timeout, logger.Named("bybit"))
			ws.SetMessageHandler(bybit.MakeMessageHandler(logger.Named("bybit"), tickers))
			out.Streams = append(out.Streams, ws.Run)
		}
	}

	if ex := cfg.Exchanges.Bitget; ex.Enabled {
		c := bitget.New(ex, opts, cache, logger)
		cache.Register(bitget.Name, c)
		out.Collectors = append(out.Collectors, c)
	}

	if ex := cfg.Exchanges.Mexc; ex.Enabled {
		c := mexc.New(ex, opts, cache, logger)
		cache.Register(mexc.Name, c)
		out.Collectors = append(out.Collectors, c)
	}

	return out
}

// EnabledExchanges lists the names of enabled exchanges in a fixed order.
func EnabledExchanges(cfg *config.Config) []string {
	var names []string
	if cfg.Exchanges.Binance.Enabled {
		names = append(names, binance.Name)
	}
	if cfg.Exchanges.Bybit.Enabled {
		names = append(names, bybit.Name)
	}
	if cfg.Exchanges.Bitget.Enabled {
		names = append(names, bitget.Name)
	}
	if cfg.Exchanges.Mexc.Enabled {
		names = append(names, mexc.Name)
	}
	return names
}

// DimensionMeta maps exchange configuration onto the attributes stored with
// new exchange rows.
func DimensionMeta(cfg *config.Config) map[string]storage.ExchangeMeta {
	meta := make(map[string]storage.ExchangeMeta, 4)
	for name, ex := range map[string]config.ExchangeConfig{
		binance.Name: cfg.Exchanges.Binance,
		bybit.Name:   cfg.Exchanges.Bybit,
		bitget.Name:  cfg.Exchanges.Bitget,
		mexc.Name:    cfg.Exchanges.Mexc,
	} {
		meta[name] = storage.ExchangeMeta{BaseURL: ex.BaseURL, P2PURL: ex.P2PURL, Fiats: ex.Fiats}
	}
	return meta
}

// OpenStore connects to Postgres. The collector creates and migrates the
// schema; read-only callers pass false for both.
func OpenStore(cfg *config.Config, createDB, migrate bool, logger *zap.Logger) (*postgres.Client, *postgres.Store, error) {
	client, err := postgres.Initialize(cfg.Postgres, cfg.App.Environment, createDB, migrate, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize postgres: %w", err)
	}
	return client, postgres.NewStore(client), nil
}

// Run builds every component and blocks until ctx is done.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	client, store, err := OpenStore(cfg, true, true, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close postgres", zap.Error(err))
		}
	}()

	cache := refdata.New(logger,
		refdata.WithTTL(cfg.Cache.TTL),
		refdata.WithFailureBackoff(cfg.Cache.FailureBackoff),
	)
	exchanges := BuildExchanges(cfg, cache, logger)
	if len(exchanges.Collectors) == 0 {
		return errors.New("no exchange enabled")
	}

	cc := cfg.Collector
	writer := storage.NewFactWriter(storage.NewDimensions(DimensionMeta(cfg)), storage.WriterOptions{
		ChunkSize:  cc.ChunkSize,
		Attempts:   cc.InsertAttempts,
		RetryDelay: cc.RetryDelay,
	}, logger)

	orchestrator := snapshot.New(store, writer, exchanges.Collectors, cache, snapshot.Options{
		Assets:    cc.Assets,
		Fiats:     cc.Fiats,
		SpotBase:  cc.SpotBase,
		SpotQuote: cc.SpotQuote,
		Workers:   cc.Concurrency,
		Timeout:   cc.CycleTimeout,
		FailFast:  cc.FailFast,
	}, logger)

	analyzer := analysis.New(store, cfg.Analysis.Transfers)

	locker, closeLocker, err := newLocker(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	sched := scheduler.New(orchestrator, analyzer, locker, scheduler.Options{
		P2PInterval:      cc.P2PInterval,
		SpotInterval:     cc.SpotInterval,
		LockTTL:          cfg.Redis.LockTTL,
		Assets:           cc.Assets,
		MinProfitPercent: cfg.Analysis.MinProfitPercent,
		MaxResults:       cfg.Analysis.MaxResults,
	}, logger)

	refresher := &refdata.Refresher{
		Cache:           cache,
		SymbolInterval:  cfg.Cache.SymbolRefreshInterval,
		PaymentInterval: cfg.Cache.PaymentRefreshInterval,
		Logger:          logger.Named("refdata"),
	}
	sched.Go(refresher.Run)
	for _, stream := range exchanges.Streams {
		sched.Go(stream)
	}

	logger.Info("collector started",
		zap.String("exchanges", strings.Join(EnabledExchanges(cfg), ",")),
		zap.Strings("assets", cc.Assets),
		zap.Strings("fiats", cc.Fiats),
		zap.Bool("redis_lock", cfg.Redis.Enabled),
	)

	return sched.Run(ctx)
}

func newLocker(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (scheduler.Locker, func(), error) {
	if !cfg.Enabled {
		return scheduler.NoopLocker{}, func() {}, nil
	}
	rdb, err := scheduler.NewRedisClient(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("redis lock enabled", zap.String("addr", cfg.Addr))
	return scheduler.NewRedisLocker(rdb, "p2pcollector:"), func() { _ = rdb.Close() }, nil
}
