// Package memory is a map-backed storage implementation. It enforces the
// same natural-key uniqueness and foreign keys as the Postgres schema.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"p2pcollector/pkg/storage"
)

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Reader = (*Store)(nil)
)

var errSessionClosed = errors.New("memory: session used after release")

type Option func(*Store)

// WithClock sets the clock used for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	exchanges *table[storage.Exchange]
	assets    *table[storage.Asset]
	fiats     *table[storage.Fiat]

	p2pSnapshots  []storage.P2PSnapshot
	spotSnapshots []storage.SpotSnapshot
	orders        []storage.P2POrder
	pairs         []storage.SpotPair
	nextFactID    uint64

	failFK      int
	unavailable error

	openSessions atomic.Int64
	maxSessions  atomic.Int64
}

func New(opts ...Option) *Store {
	s := &Store{
		now: time.Now,
		exchanges: newTable(
			func(e storage.Exchange, id uint) storage.Exchange { e.ID = id; return e },
		),
		assets: newTable(
			func(a storage.Asset, id uint) storage.Asset { a.ID = id; return a },
		),
		fiats: newTable(
			func(f storage.Fiat, id uint) storage.Fiat { f.ID = id; return f },
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailNextInserts makes the next n fact transactions fail with a foreign
// key violation.
func (s *Store) FailNextInserts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFK = n
}

// SetUnavailable makes every dimension lookup fail with err until it is
// called again with nil.
func (s *Store) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = err
}

func (s *Store) CreateP2PSnapshot(_ context.Context) (storage.P2PSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storage.P2PSnapshot{ID: uint(len(s.p2pSnapshots) + 1), CreatedAt: s.now()}
	s.p2pSnapshots = append(s.p2pSnapshots, snap)
	return snap, nil
}

func (s *Store) CreateSpotSnapshot(_ context.Context) (storage.SpotSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storage.SpotSnapshot{ID: uint(len(s.spotSnapshots) + 1), CreatedAt: s.now()}
	s.spotSnapshots = append(s.spotSnapshots, snap)
	return snap, nil
}

func (s *Store) WithSession(ctx context.Context, fn func(storage.Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	open := s.openSessions.Add(1)
	for {
		peak := s.maxSessions.Load()
		if open <= peak || s.maxSessions.CompareAndSwap(peak, open) {
			break
		}
	}
	sess := &session{store: s}
	defer func() {
		sess.closed.Store(true)
		s.openSessions.Add(-1)
	}()
	return fn(sess)
}

func (s *Store) Close() error { return nil }

// OpenSessions is the number of sessions not yet released.
func (s *Store) OpenSessions() int { return int(s.openSessions.Load()) }

// PeakSessions is the highest number of sessions open at once.
func (s *Store) PeakSessions() int { return int(s.maxSessions.Load()) }

// P2POrderRows returns a copy of every stored order.
func (s *Store) P2POrderRows() []storage.P2POrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.P2POrder(nil), s.orders...)
}

// SpotPairRows returns a copy of every stored pair.
func (s *Store) SpotPairRows() []storage.SpotPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.SpotPair(nil), s.pairs...)
}

// DimensionCounts returns the number of exchange, asset and fiat rows.
func (s *Store) DimensionCounts() (exchanges, assets, fiats int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exchanges.rows), len(s.assets.rows), len(s.fiats.rows)
}

type session struct {
	store  *Store
	closed atomic.Bool
}

func (ss *session) Exchanges() storage.DimensionStore[storage.Exchange] {
	return &dimension[storage.Exchange]{sess: ss, table: ss.store.exchanges}
}

func (ss *session) Assets() storage.DimensionStore[storage.Asset] {
	return &dimension[storage.Asset]{sess: ss, table: ss.store.assets}
}

func (ss *session) Fiats() storage.DimensionStore[storage.Fiat] {
	return &dimension[storage.Fiat]{sess: ss, table: ss.store.fiats}
}

// InTx buffers inserts and applies them atomically when fn succeeds.
func (ss *session) InTx(ctx context.Context, fn func(storage.FactTx) error) error {
	if ss.closed.Load() {
		return errSessionClosed
	}
	tx := &factTx{}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ss.store.commit(tx)
}

type factTx struct {
	orders []storage.P2POrder
	pairs  []storage.SpotPair
}

func (tx *factTx) InsertP2POrders(_ context.Context, rows []storage.P2POrder) error {
	tx.orders = append(tx.orders, rows...)
	return nil
}

func (tx *factTx) InsertSpotPairs(_ context.Context, rows []storage.SpotPair) error {
	tx.pairs = append(tx.pairs, rows...)
	return nil
}

func (s *Store) commit(tx *factTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFK > 0 {
		s.failFK--
		return fmt.Errorf("insert facts: %w", storage.ErrForeignKeyViolation)
	}
	for _, o := range tx.orders {
		if int(o.SnapshotID) < 1 || int(o.SnapshotID) > len(s.p2pSnapshots) ||
			!s.exchanges.hasID(o.ExchangeID) || !s.assets.hasID(o.AssetID) || !s.fiats.hasID(o.FiatID) {
			return fmt.Errorf("insert p2p_order: %w", storage.ErrForeignKeyViolation)
		}
	}
	for _, p := range tx.pairs {
		if int(p.SnapshotID) < 1 || int(p.SnapshotID) > len(s.spotSnapshots) ||
			!s.exchanges.hasID(p.ExchangeID) || !s.assets.hasID(p.BaseAssetID) || !s.assets.hasID(p.QuoteAssetID) {
			return fmt.Errorf("insert spot_pair: %w", storage.ErrForeignKeyViolation)
		}
	}

	for _, o := range tx.orders {
		s.nextFactID++
		o.ID = s.nextFactID
		o.PaymentMethods = append([]string(nil), o.PaymentMethods...)
		s.orders = append(s.orders, o)
	}
	for _, p := range tx.pairs {
		s.nextFactID++
		p.ID = s.nextFactID
		s.pairs = append(s.pairs, p)
	}
	return nil
}

type table[T storage.Keyed] struct {
	rows   map[string]T
	ids    map[uint]string
	nextID uint
	withID func(T, uint) T
}

func newTable[T storage.Keyed](withID func(T, uint) T) *table[T] {
	return &table[T]{rows: make(map[string]T), ids: make(map[uint]string), withID: withID}
}

func (t *table[T]) hasID(id uint) bool {
	_, ok := t.ids[id]
	return ok
}

func (t *table[T]) byID(id uint) (T, bool) {
	var zero T
	key, ok := t.ids[id]
	if !ok {
		return zero, false
	}
	return t.rows[key], true
}

type dimension[T storage.Keyed] struct {
	sess  *session
	table *table[T]
}

func (d *dimension[T]) FindByKeys(ctx context.Context, keys []string) ([]T, error) {
	if d.sess.closed.Load() {
		return nil, errSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := d.sess.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable != nil {
		return nil, s.unavailable
	}
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		if row, ok := d.table.rows[k]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (d *dimension[T]) InsertIgnore(ctx context.Context, rows []T) error {
	if d.sess.closed.Load() {
		return errSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s := d.sess.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable != nil {
		return s.unavailable
	}
	for _, row := range rows {
		key := row.NaturalKey()
		if _, exists := d.table.rows[key]; exists {
			continue
		}
		d.table.nextID++
		d.table.rows[key] = d.table.withID(row, d.table.nextID)
		d.table.ids[d.table.nextID] = key
	}
	return nil
}

func (s *Store) LatestP2PSnapshot(_ context.Context) (storage.P2PSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.p2pSnapshots) == 0 {
		return storage.P2PSnapshot{}, storage.ErrNotFound
	}
	return s.p2pSnapshots[len(s.p2pSnapshots)-1], nil
}

func (s *Store) P2POrders(_ context.Context, snapshotID uint, filter storage.OrderFilter) ([]storage.P2POrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset := strings.ToUpper(filter.Asset)
	side := strings.ToUpper(filter.Side)
	var out []storage.P2POrder
	for _, o := range s.orders {
		if o.SnapshotID != snapshotID {
			continue
		}
		o = s.populate(o)
		if filter.Exchange != "" && o.Exchange.Name != filter.Exchange {
			continue
		}
		if asset != "" && o.Asset.Symbol != asset {
			continue
		}
		if side != "" && o.Side != side {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) P2PSnapshotsBetween(_ context.Context, from, to time.Time) ([]storage.P2PSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.P2PSnapshot
	for _, snap := range s.p2pSnapshots {
		if !snap.CreatedAt.Before(from) && !snap.CreatedAt.After(to) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *Store) OrderHistory(_ context.Context, exchange, asset string, snapshotIDs []uint) ([]storage.P2POrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[uint]bool, len(snapshotIDs))
	for _, id := range snapshotIDs {
		wanted[id] = true
	}
	asset = strings.ToUpper(asset)
	var out []storage.P2POrder
	for _, o := range s.orders {
		if !wanted[o.SnapshotID] {
			continue
		}
		o = s.populate(o)
		if o.Exchange.Name == exchange && o.Asset.Symbol == asset {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SnapshotID < out[j].SnapshotID })
	return out, nil
}

func (s *Store) CountSpotPairs(_ context.Context, snapshotID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.pairs {
		if p.SnapshotID == snapshotID {
			n++
		}
	}
	return n, nil
}

func (s *Store) populate(o storage.P2POrder) storage.P2POrder {
	if ex, ok := s.exchanges.byID(o.ExchangeID); ok {
		o.Exchange = &ex
	}
	if as, ok := s.assets.byID(o.AssetID); ok {
		o.Asset = &as
	}
	if fi, ok := s.fiats.byID(o.FiatID); ok {
		o.Fiat = &fi
	}
	snap := s.p2pSnapshots[o.SnapshotID-1]
	o.Snapshot = &snap
	return o
}
