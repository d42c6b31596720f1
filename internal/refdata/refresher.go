package refdata

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher keeps the cache warm independently of lookups: every
// registered exchange is refreshed once at start and then on a fixed
// schedule per table.
type Refresher struct {
	Cache           *Cache
	SymbolInterval  time.Duration
	PaymentInterval time.Duration
	Logger          *zap.Logger

	newTicker func(time.Duration) (<-chan time.Time, func())
}

// Run blocks until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	r.refreshAll(ctx, r.Cache.RefreshSymbols, "symbols")
	r.refreshAll(ctx, r.Cache.RefreshPayments, "payments")

	tick := r.newTicker
	if tick == nil {
		tick = systemTicker
	}
	symbolTick, stopSymbols := tick(orDefault(r.SymbolInterval, 6*time.Hour))
	defer stopSymbols()
	paymentTick, stopPayments := tick(orDefault(r.PaymentInterval, 12*time.Hour))
	defer stopPayments()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-symbolTick:
			r.refreshAll(ctx, r.Cache.RefreshSymbols, "symbols")
		case <-paymentTick:
			r.refreshAll(ctx, r.Cache.RefreshPayments, "payments")
		}
	}
}

func (r *Refresher) refreshAll(ctx context.Context, fn func(context.Context, string) error, table string) {
	for _, ex := range r.Cache.Exchanges() {
		if ctx.Err() != nil {
			return
		}
		if err := fn(ctx, ex); err != nil {
			r.Logger.Warn("scheduled reference refresh failed",
				zap.String("exchange", ex), zap.String("table", table), zap.Error(err))
		}
	}
}

func systemTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
