// Package scheduler runs the P2P and spot cycles on their own intervals,
// plus any long-running background loops, until the context ends.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"p2pcollector/internal/analysis"
	"p2pcollector/internal/snapshot"
)

// Runner runs single cycles.
type Runner interface {
	RunP2P(ctx context.Context) (snapshot.Summary, error)
	RunSpot(ctx context.Context) (snapshot.Summary, error)
}

// OpportunityFinder is run after each P2P cycle.
type OpportunityFinder interface {
	FindOpportunities(ctx context.Context, asset string, minProfitPct float64, maxResults int) ([]analysis.Opportunity, error)
}

type Options struct {
	P2PInterval  time.Duration
	SpotInterval time.Duration
	// LockTTL bounds how long a crashed holder blocks other processes.
	// Zero uses the family's interval.
	LockTTL time.Duration

	Assets           []string
	MinProfitPercent float64
	MaxResults       int
}

type Scheduler struct {
	runner Runner
	finder OpportunityFinder
	locker Locker
	loops  []func(context.Context) error
	opts   Options
	logger *zap.Logger
}

// New builds a scheduler. finder may be nil; locker nil means NoopLocker.
func New(runner Runner, finder OpportunityFinder, locker Locker, opts Options, logger *zap.Logger) *Scheduler {
	if locker == nil {
		locker = NoopLocker{}
	}
	if opts.P2PInterval <= 0 {
		opts.P2PInterval = 5 * time.Minute
	}
	if opts.SpotInterval <= 0 {
		opts.SpotInterval = 5 * time.Minute
	}
	return &Scheduler{
		runner: runner,
		finder: finder,
		locker: locker,
		opts:   opts,
		logger: logger.Named("scheduler"),
	}
}

// Go adds a background loop started by Run, e.g. the reference refresher
// or a ticker stream. A loop returning an error stops the scheduler.
func (s *Scheduler) Go(loop func(context.Context) error) {
	s.loops = append(s.loops, loop)
}

// Run blocks until ctx is done or a background loop fails.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.every(ctx, snapshot.P2P, s.opts.P2PInterval, s.P2PCycle)
		return nil
	})
	g.Go(func() error {
		s.every(ctx, snapshot.Spot, s.opts.SpotInterval, s.SpotCycle)
		return nil
	})
	for _, loop := range s.loops {
		loop := loop
		g.Go(func() error { return loop(ctx) })
	}

	return g.Wait()
}

// every runs cycle now and then on each tick. Ticks that arrive while a
// cycle is running are dropped.
func (s *Scheduler) every(ctx context.Context, family snapshot.Family, interval time.Duration, cycle func(context.Context) bool) {
	s.logger.Info("cycle loop started", zap.String("family", string(family)), zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		cycle(ctx)
		select {
		case <-ticker.C:
		default:
		}
		select {
		case <-ctx.Done():
			s.logger.Info("cycle loop stopped", zap.String("family", string(family)))
			return
		case <-ticker.C:
		}
	}
}

// P2PCycle runs one locked P2P cycle followed by opportunity search. It
// reports whether the cycle ran.
func (s *Scheduler) P2PCycle(ctx context.Context) bool {
	return s.locked(ctx, snapshot.P2P, s.opts.P2PInterval, func(ctx context.Context) {
		summary, err := s.runner.RunP2P(ctx)
		if err != nil {
			s.logger.Error("p2p cycle failed", zap.Error(err))
			return
		}
		s.findOpportunities(ctx, summary.SnapshotID)
	})
}

// SpotCycle runs one locked spot cycle and reports whether it ran.
func (s *Scheduler) SpotCycle(ctx context.Context) bool {
	return s.locked(ctx, snapshot.Spot, s.opts.SpotInterval, func(ctx context.Context) {
		if _, err := s.runner.RunSpot(ctx); err != nil {
			s.logger.Error("spot cycle failed", zap.Error(err))
		}
	})
}

func (s *Scheduler) locked(ctx context.Context, family snapshot.Family, interval time.Duration, fn func(context.Context)) bool {
	if ctx.Err() != nil {
		return false
	}
	ttl := s.opts.LockTTL
	if ttl <= 0 {
		ttl = interval
	}
	release, ok, err := s.locker.Acquire(ctx, "cycle:"+string(family), ttl)
	if err != nil {
		s.logger.Warn("cycle lock unavailable, skipping", zap.String("family", string(family)), zap.Error(err))
		return false
	}
	if !ok {
		s.logger.Info("cycle running elsewhere, skipping", zap.String("family", string(family)))
		return false
	}
	defer release()

	fn(ctx)
	return true
}

func (s *Scheduler) findOpportunities(ctx context.Context, snapshotID uint) {
	if s.finder == nil {
		return
	}
	for _, asset := range s.opts.Assets {
		ops, err := s.finder.FindOpportunities(ctx, asset, s.opts.MinProfitPercent, s.opts.MaxResults)
		if err != nil {
			s.logger.Warn("opportunity search failed", zap.String("asset", asset), zap.Error(err))
			continue
		}
		for _, op := range ops {
			s.logger.Info("arbitrage opportunity",
				zap.Uint("snapshot_id", snapshotID),
				zap.String("asset", op.Asset),
				zap.String("fiat", op.Fiat),
				zap.String("buy_exchange", op.BuyExchange),
				zap.String("sell_exchange", op.SellExchange),
				zap.String("buy_price", op.BuyPrice.String()),
				zap.String("sell_price", op.SellPrice.String()),
				zap.String("amount", op.Amount.String()),
				zap.String("profit_pct", op.ProfitPercent.StringFixed(2)),
			)
		}
	}
}
