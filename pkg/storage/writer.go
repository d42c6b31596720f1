package storage

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"p2pcollector/internal/market"
)

const (
	DefaultChunkSize  = 1000
	DefaultAttempts   = 3
	DefaultRetryDelay = 200 * time.Millisecond
)

type WriterOptions struct {
	ChunkSize  int
	Attempts   int
	RetryDelay time.Duration
}

// WriteResult reports one batch. ByAsset counts inserted rows per asset
// symbol (base asset for spot pairs).
type WriteResult struct {
	Inserted int
	Dropped  int
	ByAsset  map[string]int
}

// FactWriter inserts fact batches for one snapshot. It is safe for
// concurrent use; each call works on the caller's Session.
type FactWriter struct {
	dims   *Dimensions
	opts   WriterOptions
	logger *zap.Logger
}

func NewFactWriter(dims *Dimensions, opts WriterOptions, logger *zap.Logger) *FactWriter {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	return &FactWriter{dims: dims, opts: opts, logger: logger.Named("writer")}
}

// dropped describes a record left out of a batch.
type dropped struct {
	index    int
	exchange string
	asset    string
	other    string
	reason   string
	invalid  bool // a field does not fit its column
}

// WriteP2POrders persists orders under snapshotID in one transaction.
// Orders whose exchange, asset or fiat cannot be resolved, or whose fields
// do not fit their columns, are dropped and logged.
func (w *FactWriter) WriteP2POrders(ctx context.Context, sess Session, snapshotID uint, orders []market.P2POrder) (WriteResult, error) {
	if len(orders) == 0 {
		return WriteResult{ByAsset: map[string]int{}}, nil
	}

	exchangeKeys := make([]string, 0, len(orders))
	assetKeys := make([]string, 0, len(orders))
	fiatKeys := make([]string, 0, len(orders))
	for _, o := range orders {
		exchangeKeys = append(exchangeKeys, o.Exchange)
		assetKeys = append(assetKeys, o.Asset)
		fiatKeys = append(fiatKeys, o.Fiat)
	}

	var (
		result WriteResult
		drops  []dropped
	)
	op := func() error {
		result = WriteResult{ByAsset: make(map[string]int)}
		drops = drops[:0]

		exchanges, err := w.dims.Exchanges.Resolve(ctx, sess.Exchanges(), exchangeKeys)
		if err != nil {
			return backoff.Permanent(err)
		}
		assets, err := w.dims.Assets.Resolve(ctx, sess.Assets(), assetKeys)
		if err != nil {
			return backoff.Permanent(err)
		}
		fiats, err := w.dims.Fiats.Resolve(ctx, sess.Fiats(), fiatKeys)
		if err != nil {
			return backoff.Permanent(err)
		}

		rows := make([]P2POrder, 0, len(orders))
		for i, o := range orders {
			if reason := checkP2POrder(o); reason != "" {
				drops = append(drops, dropped{
					index: i, exchange: o.Exchange, asset: o.Asset, other: o.OrderID,
					reason: reason, invalid: true,
				})
				continue
			}
			ex, okEx := exchanges[w.dims.Exchanges.Normalize(o.Exchange)]
			as, okAs := assets[w.dims.Assets.Normalize(o.Asset)]
			fi, okFi := fiats[w.dims.Fiats.Normalize(o.Fiat)]
			if !okEx || !okAs || !okFi {
				drops = append(drops, dropped{
					index: i, exchange: o.Exchange, asset: o.Asset, other: o.Fiat,
					reason: unresolvedReason(okEx, okAs, okFi, "fiat"),
				})
				continue
			}
			rows = append(rows, P2POrder{
				SnapshotID:     snapshotID,
				ExchangeID:     ex.ID,
				AssetID:        as.ID,
				FiatID:         fi.ID,
				Side:           string(market.ParseSide(string(o.Side))),
				Price:          o.Price,
				Available:      o.Available,
				MinAmount:      o.MinAmount,
				MaxAmount:      o.MaxAmount,
				PaymentMethods: o.PaymentMethods,
				OrderID:        o.OrderID,
				UserID:         o.UserID,
				UserName:       o.UserName,
				CompletionRate: o.CompletionRate,
			})
			result.ByAsset[as.Symbol]++
		}

		err = sess.InTx(ctx, func(tx FactTx) error {
			return inChunks(rows, w.opts.ChunkSize, func(chunk []P2POrder) error {
				return tx.InsertP2POrders(ctx, chunk)
			})
		})
		if err != nil {
			return w.classify(err, exchangeKeys, assetKeys, fiatKeys)
		}
		result.Inserted = len(rows)
		result.Dropped = len(drops)
		return nil
	}

	if err := w.retry(ctx, snapshotID, op); err != nil {
		return WriteResult{}, err
	}
	w.logDrops(snapshotID, "p2p_order", drops)
	return result, nil
}

// WriteSpotPairs persists pairs under snapshotID in one transaction. Pairs
// whose exchange or either asset cannot be resolved, or whose fields do not
// fit their columns, are dropped and logged.
func (w *FactWriter) WriteSpotPairs(ctx context.Context, sess Session, snapshotID uint, pairs []market.SpotPair) (WriteResult, error) {
	if len(pairs) == 0 {
		return WriteResult{ByAsset: map[string]int{}}, nil
	}

	exchangeKeys := make([]string, 0, len(pairs))
	assetKeys := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		exchangeKeys = append(exchangeKeys, p.Exchange)
		assetKeys = append(assetKeys, p.BaseAsset, p.QuoteAsset)
	}

	var (
		result WriteResult
		drops  []dropped
	)
	op := func() error {
		result = WriteResult{ByAsset: make(map[string]int)}
		drops = drops[:0]

		exchanges, err := w.dims.Exchanges.Resolve(ctx, sess.Exchanges(), exchangeKeys)
		if err != nil {
			return backoff.Permanent(err)
		}
		assets, err := w.dims.Assets.Resolve(ctx, sess.Assets(), assetKeys)
		if err != nil {
			return backoff.Permanent(err)
		}

		rows := make([]SpotPair, 0, len(pairs))
		for i, p := range pairs {
			if reason := checkSpotPair(p); reason != "" {
				drops = append(drops, dropped{
					index: i, exchange: p.Exchange, asset: p.BaseAsset, other: p.Symbol,
					reason: reason, invalid: true,
				})
				continue
			}
			ex, okEx := exchanges[w.dims.Exchanges.Normalize(p.Exchange)]
			base, okBase := assets[w.dims.Assets.Normalize(p.BaseAsset)]
			quote, okQuote := assets[w.dims.Assets.Normalize(p.QuoteAsset)]
			if !okEx || !okBase || !okQuote {
				drops = append(drops, dropped{
					index: i, exchange: p.Exchange, asset: p.BaseAsset, other: p.QuoteAsset,
					reason: unresolvedReason(okEx, okBase, okQuote, "quote asset"),
				})
				continue
			}
			rows = append(rows, SpotPair{
				SnapshotID:   snapshotID,
				ExchangeID:   ex.ID,
				BaseAssetID:  base.ID,
				QuoteAssetID: quote.ID,
				Symbol:       p.Symbol,
				Price:        p.Price,
				Bid:          p.Bid,
				Ask:          p.Ask,
				Volume24h:    p.Volume24h,
				High24h:      p.High24h,
				Low24h:       p.Low24h,
			})
			result.ByAsset[base.Symbol]++
		}

		err = sess.InTx(ctx, func(tx FactTx) error {
			return inChunks(rows, w.opts.ChunkSize, func(chunk []SpotPair) error {
				return tx.InsertSpotPairs(ctx, chunk)
			})
		})
		if err != nil {
			return w.classify(err, exchangeKeys, assetKeys, nil)
		}
		result.Inserted = len(rows)
		result.Dropped = len(drops)
		return nil
	}

	if err := w.retry(ctx, snapshotID, op); err != nil {
		return WriteResult{}, err
	}
	w.logDrops(snapshotID, "spot_pair", drops)
	return result, nil
}

// classify keeps FK violations retryable and evicts the batch's dimension
// keys so the next attempt re-selects them. Everything else is permanent.
func (w *FactWriter) classify(err error, exchangeKeys, assetKeys, fiatKeys []string) error {
	if !errors.Is(err, ErrForeignKeyViolation) {
		return backoff.Permanent(err)
	}
	w.dims.Exchanges.Forget(exchangeKeys...)
	w.dims.Assets.Forget(assetKeys...)
	w.dims.Fiats.Forget(fiatKeys...)
	return err
}

func (w *FactWriter) retry(ctx context.Context, snapshotID uint, op backoff.Operation) error {
	var b backoff.BackOff = backoff.NewConstantBackOff(w.opts.RetryDelay)
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.opts.Attempts-1)), ctx)

	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		w.logger.Warn("fact batch hit a foreign key violation, retrying",
			zap.Uint("snapshot_id", snapshotID),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

func (w *FactWriter) logDrops(snapshotID uint, table string, drops []dropped) {
	for _, d := range drops {
		msg := "dropping record with unresolved dimension"
		if d.invalid {
			msg = "dropping record with invalid field"
		}
		w.logger.Warn(msg,
			zap.String("table", table),
			zap.Uint("snapshot_id", snapshotID),
			zap.Int("index", d.index),
			zap.String("exchange", d.exchange),
			zap.String("asset", d.asset),
			zap.String("key", d.other),
			zap.String("reason", d.reason),
		)
	}
}

func unresolvedReason(okExchange, okAsset, okOther bool, other string) string {
	switch {
	case !okExchange:
		return "exchange"
	case !okAsset:
		return "asset"
	case !okOther:
		return other
	}
	return ""
}

func inChunks[T any](rows []T, size int, fn func([]T) error) error {
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		if err := fn(rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}
