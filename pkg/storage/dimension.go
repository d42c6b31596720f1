package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Keyed is implemented by dimension rows.
type Keyed interface {
	NaturalKey() string
}

// DimensionSpec describes how keys of one dimension are normalized,
// validated and turned into new rows.
type DimensionSpec[T Keyed] struct {
	Kind      string
	Normalize func(string) string
	Validate  func(string) error
	New       func(key string) T
}

// Resolver implements get-or-create for one dimension on top of any
// DimensionStore. Its cache is shared by every caller; the store passed to
// Resolve is the caller's own session.
type Resolver[T Keyed] struct {
	spec  DimensionSpec[T]
	mu    sync.RWMutex
	cache map[string]T
}

func NewResolver[T Keyed](spec DimensionSpec[T]) *Resolver[T] {
	if spec.Normalize == nil {
		spec.Normalize = strings.TrimSpace
	}
	return &Resolver[T]{spec: spec, cache: make(map[string]T)}
}

// Normalize maps a raw key to its stored form.
func (r *Resolver[T]) Normalize(key string) string {
	return r.spec.Normalize(key)
}

// Resolve returns normalized key -> row for every valid key, creating
// missing rows. Invalid keys are left out of the result. A valid key that
// still cannot be found after the conflict-tolerant insert fails the call.
func (r *Resolver[T]) Resolve(ctx context.Context, store DimensionStore[T], keys []string) (map[string]T, error) {
	out := make(map[string]T, len(keys))
	var misses []string
	seen := make(map[string]bool, len(keys))

	r.mu.RLock()
	for _, raw := range keys {
		k := r.spec.Normalize(raw)
		if seen[k] {
			continue
		}
		seen[k] = true
		if r.spec.Validate != nil && r.spec.Validate(k) != nil {
			continue
		}
		if row, ok := r.cache[k]; ok {
			out[k] = row
			continue
		}
		misses = append(misses, k)
	}
	r.mu.RUnlock()

	if len(misses) == 0 {
		return out, nil
	}

	found, err := store.FindByKeys(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", r.spec.Kind, err)
	}
	r.collect(found, out)

	var create []T
	var missing []string
	for _, k := range misses {
		if _, ok := out[k]; !ok {
			create = append(create, r.spec.New(k))
			missing = append(missing, k)
		}
	}
	if len(create) == 0 {
		return out, nil
	}

	// concurrent writers may insert the same keys; losers re-select the
	// winner's rows
	if err := store.InsertIgnore(ctx, create); err != nil {
		return nil, fmt.Errorf("insert %s: %w", r.spec.Kind, err)
	}
	found, err = store.FindByKeys(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("reselect %s: %w", r.spec.Kind, err)
	}
	r.collect(found, out)

	for _, k := range missing {
		if _, ok := out[k]; !ok {
			return nil, fmt.Errorf("%s %q: %w", r.spec.Kind, k, ErrUnresolvedDimension)
		}
	}
	return out, nil
}

func (r *Resolver[T]) collect(rows []T, out map[string]T) {
	if len(rows) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		k := row.NaturalKey()
		r.cache[k] = row
		out[k] = row
	}
}

// Validate checks key after normalization.
func (r *Resolver[T]) Validate(key string) error {
	if r.spec.Validate == nil {
		return nil
	}
	return r.spec.Validate(r.spec.Normalize(key))
}

// Forget evicts keys so the next Resolve re-reads them from storage.
func (r *Resolver[T]) Forget(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.cache, r.spec.Normalize(k))
	}
}

// Reset drops the whole cache.
func (r *Resolver[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]T)
}

// Cached returns the number of cached rows.
func (r *Resolver[T]) Cached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

var (
	assetPattern = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)
	fiatPattern  = regexp.MustCompile(`^[A-Z]{3}$`)
)

// ExchangeMeta is copied onto Exchange rows when they are first created.
type ExchangeMeta struct {
	BaseURL string
	P2PURL  string
	Fiats   []string
}

// Dimensions bundles the three resolvers shared by every writer.
type Dimensions struct {
	Exchanges *Resolver[Exchange]
	Assets    *Resolver[Asset]
	Fiats     *Resolver[Fiat]
}

// NewDimensions builds resolvers. meta is keyed by exchange name, case
// insensitively.
func NewDimensions(meta map[string]ExchangeMeta) *Dimensions {
	byName := make(map[string]ExchangeMeta, len(meta))
	for name, m := range meta {
		byName[strings.ToLower(strings.TrimSpace(name))] = m
	}

	return &Dimensions{
		Exchanges: NewResolver(DimensionSpec[Exchange]{
			Kind:      "exchange",
			Normalize: strings.TrimSpace,
			Validate:  validateExchange,
			New: func(name string) Exchange {
				m := byName[strings.ToLower(name)]
				return Exchange{Name: name, BaseURL: m.BaseURL, P2PURL: m.P2PURL, Fiats: m.Fiats}
			},
		}),
		Assets: NewResolver(DimensionSpec[Asset]{
			Kind:      "asset",
			Normalize: upper,
			Validate:  validateAsset,
			New: func(symbol string) Asset {
				return Asset{Symbol: symbol, Name: AssetName(symbol)}
			},
		}),
		Fiats: NewResolver(DimensionSpec[Fiat]{
			Kind:      "fiat",
			Normalize: upper,
			Validate:  validateFiat,
			New: func(code string) Fiat {
				return Fiat{Code: code, Name: FiatName(code)}
			},
		}),
	}
}

// Reset clears every resolver cache.
func (d *Dimensions) Reset() {
	d.Exchanges.Reset()
	d.Assets.Reset()
	d.Fiats.Reset()
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func validateExchange(name string) error {
	if name == "" || len(name) > 64 {
		return fmt.Errorf("invalid exchange name %q", name)
	}
	return nil
}

func validateAsset(symbol string) error {
	if !assetPattern.MatchString(symbol) {
		return fmt.Errorf("invalid asset symbol %q", symbol)
	}
	return nil
}

func validateFiat(code string) error {
	if !fiatPattern.MatchString(code) {
		return fmt.Errorf("invalid fiat code %q", code)
	}
	return nil
}
