// Package snapshot drives one collection cycle per market family: create
// the snapshot, fan out collection tasks, persist, aggregate statistics.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"p2pcollector/internal/executor"
	"p2pcollector/internal/market"
	"p2pcollector/internal/refdata"
	"p2pcollector/pkg/storage"
)

// Family names the two snapshot families.
type Family string

const (
	P2P  Family = "p2p"
	Spot Family = "spot"
)

// SymbolResolver fills in base and quote assets a collector left empty.
type SymbolResolver interface {
	SymbolInfo(ctx context.Context, exchange, symbol string) refdata.SymbolInfo
}

type Options struct {
	Assets    []string
	Fiats     []string
	SpotBase  string
	SpotQuote string

	Workers  int // 0 = collectors + 1
	Timeout  time.Duration
	FailFast bool
}

type Orchestrator struct {
	store      storage.Store
	writer     *storage.FactWriter
	collectors []market.Collector
	symbols    SymbolResolver
	opts       Options
	logger     *zap.Logger
}

// New builds an orchestrator. symbols may be nil.
func New(store storage.Store, writer *storage.FactWriter, collectors []market.Collector, symbols SymbolResolver, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = len(collectors) + 1
	}
	return &Orchestrator{
		store:      store,
		writer:     writer,
		collectors: collectors,
		symbols:    symbols,
		opts:       opts,
		logger:     logger.Named("snapshot"),
	}
}

// task is one work item. Fiat is empty for spot tasks.
type task struct {
	collector market.Collector
	exchange  string
	asset     string
	fiat      string
}

func (t task) String() string {
	parts := []string{t.exchange}
	if t.asset != "" {
		parts = append(parts, t.asset)
	}
	if t.fiat != "" {
		parts = append(parts, t.fiat)
	}
	return strings.Join(parts, "/")
}

// taskResult is what one task reports back.
type taskResult struct {
	fetched int
	write   storage.WriteResult
}

// RunP2P runs one P2P cycle. It only fails when the snapshot itself cannot
// be created; task failures are reported in the summary.
func (o *Orchestrator) RunP2P(ctx context.Context) (Summary, error) {
	begin := time.Now()
	snap, err := o.store.CreateP2PSnapshot(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("create p2p snapshot: %w", err)
	}

	var tasks []task
	for _, c := range o.collectors {
		for _, asset := range o.opts.Assets {
			for _, fiat := range o.opts.Fiats {
				tasks = append(tasks, task{collector: c, exchange: c.ExchangeName(), asset: asset, fiat: fiat})
			}
		}
	}

	return o.run(ctx, P2P, snap.ID, snap.CreatedAt, begin, tasks, func(ctx context.Context, sess storage.Session, t task) (taskResult, error) {
		orders, err := t.collector.FetchP2POrders(ctx, t.asset, []string{t.fiat})
		if err != nil {
			return taskResult{}, fmt.Errorf("fetch p2p orders: %w", err)
		}
		for i := range orders {
			if orders[i].Exchange == "" {
				orders[i].Exchange = t.exchange
			}
		}
		res, err := o.writer.WriteP2POrders(ctx, sess, snap.ID, orders)
		if err != nil {
			return taskResult{fetched: len(orders)}, fmt.Errorf("persist p2p orders: %w", err)
		}
		return taskResult{fetched: len(orders), write: res}, nil
	})
}

// RunSpot runs one spot cycle with one task per collector.
func (o *Orchestrator) RunSpot(ctx context.Context) (Summary, error) {
	begin := time.Now()
	snap, err := o.store.CreateSpotSnapshot(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("create spot snapshot: %w", err)
	}

	tasks := make([]task, 0, len(o.collectors))
	for _, c := range o.collectors {
		tasks = append(tasks, task{collector: c, exchange: c.ExchangeName()})
	}

	return o.run(ctx, Spot, snap.ID, snap.CreatedAt, begin, tasks, func(ctx context.Context, sess storage.Session, t task) (taskResult, error) {
		pairs, err := t.collector.FetchSpotPairs(ctx, o.opts.SpotBase, o.opts.SpotQuote)
		if err != nil {
			return taskResult{}, fmt.Errorf("fetch spot pairs: %w", err)
		}
		o.normalizePairs(ctx, t.exchange, pairs)
		res, err := o.writer.WriteSpotPairs(ctx, sess, snap.ID, pairs)
		if err != nil {
			return taskResult{fetched: len(pairs)}, fmt.Errorf("persist spot pairs: %w", err)
		}
		return taskResult{fetched: len(pairs), write: res}, nil
	})
}

func (o *Orchestrator) normalizePairs(ctx context.Context, exchange string, pairs []market.SpotPair) {
	for i := range pairs {
		p := &pairs[i]
		if p.Exchange == "" {
			p.Exchange = exchange
		}
		if (p.BaseAsset == "" || p.QuoteAsset == "") && o.symbols != nil {
			info := o.symbols.SymbolInfo(ctx, p.Exchange, p.Symbol)
			if p.BaseAsset == "" {
				p.BaseAsset = info.Base
			}
			if p.QuoteAsset == "" {
				p.QuoteAsset = info.Quote
			}
		}
	}
}

type taskFunc func(ctx context.Context, sess storage.Session, t task) (taskResult, error)

func (o *Orchestrator) run(ctx context.Context, family Family, snapshotID uint, createdAt, begin time.Time, tasks []task, fn taskFunc) (Summary, error) {
	logger := o.logger.With(zap.String("family", string(family)), zap.Uint("snapshot_id", snapshotID))
	logger.Info("collection cycle started", zap.Int("tasks", len(tasks)), zap.Int("workers", o.opts.Workers))

	results := executor.Run(ctx, tasks, func(ctx context.Context, t task) (taskResult, error) {
		var out taskResult
		// the session is released on every path, including panics in fn
		err := o.store.WithSession(ctx, func(sess storage.Session) error {
			var err error
			out, err = fn(ctx, sess, t)
			return err
		})
		return out, err
	}, executor.Options{
		Workers:         o.opts.Workers,
		Timeout:         o.opts.Timeout,
		CancelOnFailure: o.opts.FailFast,
	})

	summary := Summary{
		Family:     family,
		SnapshotID: snapshotID,
		CreatedAt:  createdAt,
		Tasks:      len(tasks),
		Exchanges:  make(map[string]*ExchangeStats, len(o.collectors)),
	}
	for _, c := range o.collectors {
		summary.Exchanges[c.ExchangeName()] = newExchangeStats(c.ExchangeName())
	}

	for _, r := range results {
		st := summary.Exchanges[r.Item.exchange]
		if st == nil {
			st = newExchangeStats(r.Item.exchange)
			summary.Exchanges[r.Item.exchange] = st
		}
		st.Tasks++
		st.Elapsed += r.Elapsed

		if !r.OK {
			summary.FailedTasks++
			st.FailedTasks++
			st.Errors = append(st.Errors, fmt.Sprintf("%s: %v", r.Item, r.Err))

			level := logger.Warn
			if errors.Is(r.Err, executor.ErrPanic) {
				level = logger.Error
			}
			level("collection task failed",
				zap.String("task", r.Item.String()),
				zap.Duration("elapsed", r.Elapsed),
				zap.Error(r.Err),
			)
			continue
		}

		st.Fetched += r.Value.fetched
		st.Persisted += r.Value.write.Inserted
		st.Dropped += r.Value.write.Dropped
		for asset, n := range r.Value.write.ByAsset {
			st.ByAsset[asset] += n
		}
		summary.Total += r.Value.write.Inserted
		summary.Dropped += r.Value.write.Dropped
	}

	summary.Duration = time.Since(begin)
	summary.log(logger)
	return summary, nil
}
