// Package refdata caches exchange reference data (symbol → base/quote,
// payment method id → name) with a TTL and per-exchange bulk refresh.
package refdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL            = time.Hour
	DefaultFailureBackoff = 30 * time.Second
)

// SymbolInfo splits a trading pair into its assets.
type SymbolInfo struct {
	Base  string
	Quote string
}

// Source fetches the full reference tables of one exchange.
type Source interface {
	Symbols(ctx context.Context) (map[string]SymbolInfo, error)
	PaymentMethods(ctx context.Context) (map[string]string, error)
}

type kind string

const (
	kindSymbols  kind = "symbols"
	kindPayments kind = "payments"
)

type table[V any] struct {
	entries   map[string]V
	expiresAt time.Time
}

// Cache is safe for concurrent use. Lookups on a valid table only take a
// read lock; a miss or expiry refreshes the whole table for that exchange.
type Cache struct {
	mu       sync.RWMutex
	sources  map[string]Source
	symbols  map[string]*table[SymbolInfo]
	payments map[string]*table[string]

	flights singleflight.Group

	ttl            time.Duration
	failureBackoff time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

type Option func(*Cache)

func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func WithFailureBackoff(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.failureBackoff = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		sources:        make(map[string]Source),
		symbols:        make(map[string]*table[SymbolInfo]),
		payments:       make(map[string]*table[string]),
		ttl:            DefaultTTL,
		failureBackoff: DefaultFailureBackoff,
		now:            time.Now,
		logger:         logger.Named("refdata"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.failureBackoff > c.ttl {
		c.failureBackoff = c.ttl
	}
	return c
}

// Register attaches the metadata source for an exchange.
func (c *Cache) Register(exchange string, src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[key(exchange)] = src
}

// Exchanges lists registered exchange keys.
func (c *Cache) Exchanges() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.sources))
	for k := range c.sources {
		out = append(out, k)
	}
	return out
}

// SymbolInfo resolves a trading pair symbol. Unknown symbols fall back to
// SplitSymbol; the result may be empty but lookups never fail.
func (c *Cache) SymbolInfo(ctx context.Context, exchange, symbol string) SymbolInfo {
	ex := key(exchange)
	if info, ok := c.lookupSymbol(ex, symbol); ok {
		return info
	}
	if !c.symbolsValid(ex) {
		c.refresh(ctx, ex, kindSymbols)
		if info, ok := c.lookupSymbol(ex, symbol); ok {
			return info
		}
	}
	info, _ := SplitSymbol(symbol)
	return info
}

// PaymentNames maps payment method ids to names, keeping input order.
// Unknown ids become "Unknown-<id>".
func (c *Cache) PaymentNames(ctx context.Context, exchange string, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	ex := key(exchange)
	if !c.paymentsValid(ex) {
		c.refresh(ctx, ex, kindPayments)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	var entries map[string]string
	if t := c.payments[ex]; t != nil {
		entries = t.entries
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		if name, ok := entries[id]; ok {
			out[i] = name
		} else {
			out[i] = "Unknown-" + id
		}
	}
	return out
}

// AllSymbols returns a copy of the symbol table, refreshing it if needed.
func (c *Cache) AllSymbols(ctx context.Context, exchange string) map[string]SymbolInfo {
	ex := key(exchange)
	if !c.symbolsValid(ex) {
		c.refresh(ctx, ex, kindSymbols)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]SymbolInfo)
	if t := c.symbols[ex]; t != nil {
		for k, v := range t.entries {
			out[k] = v
		}
	}
	return out
}

// Refresh reloads both tables of an exchange regardless of expiry.
func (c *Cache) Refresh(ctx context.Context, exchange string) error {
	ex := key(exchange)
	if err := c.load(ctx, ex, kindSymbols, true); err != nil {
		return err
	}
	return c.load(ctx, ex, kindPayments, true)
}

// RefreshSymbols reloads only the symbol table regardless of expiry.
func (c *Cache) RefreshSymbols(ctx context.Context, exchange string) error {
	return c.load(ctx, key(exchange), kindSymbols, true)
}

// RefreshPayments reloads only the payment table regardless of expiry.
func (c *Cache) RefreshPayments(ctx context.Context, exchange string) error {
	return c.load(ctx, key(exchange), kindPayments, true)
}

// Expire marks every table stale so the next lookup refreshes.
func (c *Cache) Expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.symbols {
		t.expiresAt = time.Time{}
	}
	for _, t := range c.payments {
		t.expiresAt = time.Time{}
	}
}

// Reset drops all cached tables. Sources stay registered.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols = make(map[string]*table[SymbolInfo])
	c.payments = make(map[string]*table[string])
}

func (c *Cache) lookupSymbol(ex, symbol string) (SymbolInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := c.symbols[ex]
	if t == nil || !c.now().Before(t.expiresAt) {
		return SymbolInfo{}, false
	}
	info, ok := t.entries[symbol]
	return info, ok
}

func (c *Cache) symbolsValid(ex string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := c.symbols[ex]
	return t != nil && c.now().Before(t.expiresAt)
}

func (c *Cache) paymentsValid(ex string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := c.payments[ex]
	return t != nil && c.now().Before(t.expiresAt)
}

func (c *Cache) refresh(ctx context.Context, ex string, k kind) {
	if err := c.load(ctx, ex, k, false); err != nil {
		c.logger.Warn("reference data refresh failed",
			zap.String("exchange", ex), zap.String("table", string(k)), zap.Error(err))
	}
}

// load fetches one table. Concurrent loads of the same table share one
// fetch; unless forced, a table made valid by a previous flight is kept.
func (c *Cache) load(ctx context.Context, ex string, k kind, force bool) error {
	_, err, _ := c.flights.Do(string(k)+":"+ex, func() (any, error) {
		if !force {
			if (k == kindSymbols && c.symbolsValid(ex)) || (k == kindPayments && c.paymentsValid(ex)) {
				return nil, nil
			}
		}

		c.mu.RLock()
		src := c.sources[ex]
		c.mu.RUnlock()
		if src == nil {
			c.markFailed(ex, k)
			return nil, fmt.Errorf("no reference data source for %q", ex)
		}

		begin := c.now()
		switch k {
		case kindSymbols:
			entries, err := src.Symbols(ctx)
			if err != nil {
				c.fail(ctx, ex, k, err)
				return nil, fmt.Errorf("fetch symbols: %w", err)
			}
			c.mu.Lock()
			c.symbols[ex] = &table[SymbolInfo]{entries: entries, expiresAt: c.now().Add(c.ttl)}
			c.mu.Unlock()
			c.logger.Info("symbol cache refreshed", zap.String("exchange", ex),
				zap.Int("count", len(entries)), zap.Duration("took", c.now().Sub(begin)))
		case kindPayments:
			entries, err := src.PaymentMethods(ctx)
			if err != nil {
				c.fail(ctx, ex, k, err)
				return nil, fmt.Errorf("fetch payment methods: %w", err)
			}
			c.mu.Lock()
			c.payments[ex] = &table[string]{entries: entries, expiresAt: c.now().Add(c.ttl)}
			c.mu.Unlock()
			c.logger.Info("payment method cache refreshed", zap.String("exchange", ex),
				zap.Int("count", len(entries)), zap.Duration("took", c.now().Sub(begin)))
		}
		return nil, nil
	})
	return err
}

// fail backs off after a source error. A caller that gave up says nothing
// about the source, so the table stays due for the next lookup.
func (c *Cache) fail(ctx context.Context, ex string, k kind, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	c.markFailed(ex, k)
}

// markFailed keeps stale entries but postpones the next attempt.
func (c *Cache) markFailed(ex string, k kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	retryAt := c.now().Add(c.failureBackoff)
	switch k {
	case kindSymbols:
		t := c.symbols[ex]
		if t == nil {
			t = &table[SymbolInfo]{}
			c.symbols[ex] = t
		}
		t.expiresAt = retryAt
	case kindPayments:
		t := c.payments[ex]
		if t == nil {
			t = &table[string]{}
			c.payments[ex] = t
		}
		t.expiresAt = retryAt
	}
}

func key(exchange string) string {
	return strings.ToLower(strings.TrimSpace(exchange))
}
