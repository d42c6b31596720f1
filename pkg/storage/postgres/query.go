package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"p2pcollector/pkg/storage"
)

func (s *Store) LatestP2PSnapshot(ctx context.Context) (storage.P2PSnapshot, error) {
	var snap storage.P2PSnapshot
	err := s.client.DB.WithContext(ctx).Order("id DESC").Limit(1).Take(&snap).Error
	if err != nil {
		return storage.P2PSnapshot{}, fmt.Errorf("latest p2p snapshot: %w", mapError(err))
	}
	return snap, nil
}

func (s *Store) P2POrders(ctx context.Context, snapshotID uint, filter storage.OrderFilter) ([]storage.P2POrder, error) {
	q := s.orders(ctx).Where("p2p_order.snapshot_id = ?", snapshotID)
	if filter.Exchange != "" {
		q = q.Where("exchange.name = ?", filter.Exchange)
	}
	if filter.Asset != "" {
		q = q.Where("asset.symbol = ?", strings.ToUpper(filter.Asset))
	}
	if filter.Side != "" {
		q = q.Where("p2p_order.side = ?", strings.ToUpper(filter.Side))
	}

	var rows []storage.P2POrder
	if err := q.Order("p2p_order.id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("p2p orders: %w", mapError(err))
	}
	return rows, nil
}

func (s *Store) P2PSnapshotsBetween(ctx context.Context, from, to time.Time) ([]storage.P2PSnapshot, error) {
	var snaps []storage.P2PSnapshot
	err := s.client.DB.WithContext(ctx).
		Where("created_at BETWEEN ? AND ?", from.UTC(), to.UTC()).
		Order("id").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("p2p snapshots: %w", mapError(err))
	}
	return snaps, nil
}

func (s *Store) OrderHistory(ctx context.Context, exchange, asset string, snapshotIDs []uint) ([]storage.P2POrder, error) {
	if len(snapshotIDs) == 0 {
		return nil, nil
	}
	var rows []storage.P2POrder
	err := s.orders(ctx).
		Where("p2p_order.snapshot_id IN ?", snapshotIDs).
		Where("exchange.name = ? AND asset.symbol = ?", exchange, strings.ToUpper(asset)).
		Order("p2p_order.snapshot_id, p2p_order.id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("order history: %w", mapError(err))
	}
	return rows, nil
}

func (s *Store) CountSpotPairs(ctx context.Context, snapshotID uint) (int64, error) {
	var n int64
	err := s.client.DB.WithContext(ctx).
		Model(&storage.SpotPair{}).
		Where("snapshot_id = ?", snapshotID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count spot pairs: %w", mapError(err))
	}
	return n, nil
}

// orders joins the dimensions used by filters and preloads every
// association of the returned rows.
func (s *Store) orders(ctx context.Context) *gorm.DB {
	return s.client.DB.WithContext(ctx).
		Model(&storage.P2POrder{}).
		Select("p2p_order.*").
		Joins("JOIN exchange ON exchange.id = p2p_order.exchange_id").
		Joins("JOIN asset ON asset.id = p2p_order.asset_id").
		Preload("Snapshot").
		Preload("Exchange").
		Preload("Asset").
		Preload("Fiat")
}
