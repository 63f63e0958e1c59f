package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/syntick/syntick/shared/models"
)

// MemoryStore keeps candles in memory. It backs tests and runs without a
// configured database; history is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	candles []models.Candle
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveCandle appends or replaces the candle with the same key.
func (s *MemoryStore) SaveCandle(_ context.Context, c models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.candles {
		if s.candles[i].Symbol == c.Symbol &&
			s.candles[i].Resolution == c.Resolution &&
			s.candles[i].Timestamp == c.Timestamp {
			s.candles[i] = c
			return nil
		}
	}
	s.candles = append(s.candles, c)
	return nil
}

// LastCandle returns the most recent stored candle, or nil.
func (s *MemoryStore) LastCandle(_ context.Context, symbol, resolution string) (*models.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *models.Candle
	for i := range s.candles {
		c := s.candles[i]
		if c.Symbol != symbol || c.Resolution != resolution {
			continue
		}
		if last == nil || c.Timestamp > last.Timestamp {
			last = &c
		}
	}
	return last, nil
}

// History returns candles in [fromMs, toMs] ascending, capped by limit.
func (s *MemoryStore) History(_ context.Context, symbol, resolution string, fromMs, toMs int64, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	s.mu.RLock()
	var out []models.Candle
	for _, c := range s.candles {
		if c.Symbol == symbol && c.Resolution == resolution &&
			c.Timestamp >= fromMs && c.Timestamp <= toMs {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveControl is a no-op for the in-memory store; the control registry
// already holds history in memory.
func (s *MemoryStore) SaveControl(context.Context, models.ManualControl) error {
	return nil
}

// NoopCache satisfies the cache interface when Redis is not configured.
type NoopCache struct{}

// SetLatest discards the update.
func (NoopCache) SetLatest(context.Context, float64, models.LiveSnapshot, models.SystemStatus) error {
	return nil
}
