package snapshot

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

const maxLoggedErrors = 5

// ExchangeStats aggregates every task of one exchange within a cycle.
// Fetched counts records returned by the collector, Persisted those
// inserted.
type ExchangeStats struct {
	Exchange    string         `json:"exchange"`
	Tasks       int            `json:"tasks"`
	FailedTasks int            `json:"failed_tasks"`
	Fetched     int            `json:"fetched"`
	Persisted   int            `json:"persisted"`
	Dropped     int            `json:"dropped"`
	ByAsset     map[string]int `json:"by_asset"`
	Errors      []string       `json:"errors,omitempty"`
	Elapsed     time.Duration  `json:"elapsed"`
}

func newExchangeStats(name string) *ExchangeStats {
	return &ExchangeStats{Exchange: name, ByAsset: make(map[string]int)}
}

// Summary describes one finished cycle.
type Summary struct {
	Family      Family                    `json:"family"`
	SnapshotID  uint                      `json:"snapshot_id"`
	CreatedAt   time.Time                 `json:"created_at"`
	Total       int                       `json:"total"`
	Dropped     int                       `json:"dropped"`
	Tasks       int                       `json:"tasks"`
	FailedTasks int                       `json:"failed_tasks"`
	Duration    time.Duration             `json:"duration"`
	Exchanges   map[string]*ExchangeStats `json:"exchanges"`
}

// ByExchange returns persisted counts per exchange.
func (s Summary) ByExchange() map[string]int {
	out := make(map[string]int, len(s.Exchanges))
	for name, st := range s.Exchanges {
		out[name] = st.Persisted
	}
	return out
}

func (s Summary) log(logger *zap.Logger) {
	names := make([]string, 0, len(s.Exchanges))
	for name := range s.Exchanges {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := s.Exchanges[name]
		logger.Info("exchange collection stats",
			zap.String("exchange", name),
			zap.Int("persisted", st.Persisted),
			zap.Int("fetched", st.Fetched),
			zap.Int("dropped", st.Dropped),
			zap.Int("tasks", st.Tasks),
			zap.Int("failed_tasks", st.FailedTasks),
			zap.Any("by_asset", st.ByAsset),
		)
		if len(st.Errors) > 0 {
			shown := st.Errors
			if len(shown) > maxLoggedErrors {
				shown = shown[:maxLoggedErrors]
			}
			logger.Warn("exchange collection errors",
				zap.String("exchange", name),
				zap.Strings("errors", shown),
				zap.Int("more", len(st.Errors)-len(shown)),
			)
		}
	}

	logger.Info("collection cycle completed",
		zap.Int("total", s.Total),
		zap.Int("dropped", s.Dropped),
		zap.Int("exchanges", len(s.Exchanges)),
		zap.Int("failed_tasks", s.FailedTasks),
		zap.Duration("duration", s.Duration),
	)
}
