// Package storage defines the snapshot/dimension/fact persistence model and
// the backend-independent protocols that write it: get-or-create of
// dimension rows and transactional batch insertion of facts.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("storage: not found")
	ErrDuplicateKey        = errors.New("storage: duplicate key")
	ErrForeignKeyViolation = errors.New("storage: foreign key violation")
	ErrUnresolvedDimension = errors.New("storage: dimension could not be resolved")
)

// Store is the write side used by the snapshot cycle.
type Store interface {
	CreateP2PSnapshot(ctx context.Context) (P2PSnapshot, error)
	CreateSpotSnapshot(ctx context.Context) (SpotSnapshot, error)

	// WithSession hands fn a session bound to one dedicated connection,
	// released when fn returns on every path. Sessions must not be shared
	// between goroutines.
	WithSession(ctx context.Context, fn func(Session) error) error

	Close() error
}

// Session is one task's connection.
type Session interface {
	Exchanges() DimensionStore[Exchange]
	Assets() DimensionStore[Asset]
	Fiats() DimensionStore[Fiat]

	// InTx runs fn in a transaction, committed when fn returns nil.
	InTx(ctx context.Context, fn func(FactTx) error) error
}

// DimensionStore is the backend of one dimension table.
type DimensionStore[T Keyed] interface {
	// FindByKeys returns the rows whose natural key is in keys.
	FindByKeys(ctx context.Context, keys []string) ([]T, error)
	// InsertIgnore inserts rows, silently skipping natural keys that
	// already exist.
	InsertIgnore(ctx context.Context, rows []T) error
}

// FactTx inserts fact rows inside a transaction.
type FactTx interface {
	InsertP2POrders(ctx context.Context, rows []P2POrder) error
	InsertSpotPairs(ctx context.Context, rows []SpotPair) error
}

// OrderFilter narrows P2P order reads. Empty fields match everything.
type OrderFilter struct {
	Exchange string
	Asset    string
	Side     string
}

// Reader is the read side used by analytics and reports. Returned orders
// have Exchange, Asset and Fiat populated.
type Reader interface {
	LatestP2PSnapshot(ctx context.Context) (P2PSnapshot, error)
	P2POrders(ctx context.Context, snapshotID uint, filter OrderFilter) ([]P2POrder, error)
	P2PSnapshotsBetween(ctx context.Context, from, to time.Time) ([]P2PSnapshot, error)
	OrderHistory(ctx context.Context, exchange, asset string, snapshotIDs []uint) ([]P2POrder, error)
	CountSpotPairs(ctx context.Context, snapshotID uint) (int64, error)
}
