package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"p2pcollector/pkg/storage"
)

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Reader = (*Store)(nil)
)

// Store implements storage.Store and storage.Reader on top of gorm.
type Store struct {
	client *Client
}

func NewStore(client *Client) *Store {
	return &Store{client: client}
}

func (s *Store) CreateP2PSnapshot(ctx context.Context) (storage.P2PSnapshot, error) {
	snap := storage.P2PSnapshot{CreatedAt: time.Now().UTC()}
	if err := s.client.DB.WithContext(ctx).Create(&snap).Error; err != nil {
		return storage.P2PSnapshot{}, fmt.Errorf("create p2p snapshot: %w", mapError(err))
	}
	return snap, nil
}

func (s *Store) CreateSpotSnapshot(ctx context.Context) (storage.SpotSnapshot, error) {
	snap := storage.SpotSnapshot{CreatedAt: time.Now().UTC()}
	if err := s.client.DB.WithContext(ctx).Create(&snap).Error; err != nil {
		return storage.SpotSnapshot{}, fmt.Errorf("create spot snapshot: %w", mapError(err))
	}
	return snap, nil
}

// WithSession pins one pooled connection for fn and returns it to the pool
// when fn returns.
func (s *Store) WithSession(ctx context.Context, fn func(storage.Session) error) error {
	return s.client.DB.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fn(&session{db: conn})
	})
}

func (s *Store) Close() error {
	return s.client.Close()
}

type session struct {
	db *gorm.DB
}

func (s *session) Exchanges() storage.DimensionStore[storage.Exchange] {
	return &dimension[storage.Exchange]{db: s.db, column: "name"}
}

func (s *session) Assets() storage.DimensionStore[storage.Asset] {
	return &dimension[storage.Asset]{db: s.db, column: "symbol"}
}

func (s *session) Fiats() storage.DimensionStore[storage.Fiat] {
	return &dimension[storage.Fiat]{db: s.db, column: "code"}
}

func (s *session) InTx(ctx context.Context, fn func(storage.FactTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&factTx{db: tx})
	})
	return mapError(err)
}

// dimension is a natural-key table. column is its unique key column.
type dimension[T storage.Keyed] struct {
	db     *gorm.DB
	column string
}

func (d *dimension[T]) FindByKeys(ctx context.Context, keys []string) ([]T, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var rows []T
	err := d.db.WithContext(ctx).
		Where(clause.IN{Column: clause.Column{Name: d.column}, Values: toValues(keys)}).
		Find(&rows).Error
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (d *dimension[T]) InsertIgnore(ctx context.Context, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: d.column}},
		DoNothing: true,
	}).Create(&rows).Error
	return mapError(err)
}

type factTx struct {
	db *gorm.DB
}

func (tx *factTx) InsertP2POrders(ctx context.Context, rows []storage.P2POrder) error {
	if len(rows) == 0 {
		return nil
	}
	return mapError(tx.db.WithContext(ctx).Omit(clause.Associations).Create(&rows).Error)
}

func (tx *factTx) InsertSpotPairs(ctx context.Context, rows []storage.SpotPair) error {
	if len(rows) == 0 {
		return nil
	}
	return mapError(tx.db.WithContext(ctx).Omit(clause.Associations).Create(&rows).Error)
}

func toValues(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}
