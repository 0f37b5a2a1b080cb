package storage

import (
	"context"
	"sync"

	"proxima/src/engine"
)

// MemoryTradeStore keeps the most recent maxSize trades in a ring buffer.
type MemoryTradeStore struct {
	mu      sync.RWMutex
	trades  []engine.Trade
	next    int
	full    bool
	maxSize int
}

func NewMemoryTradeStore(maxSize int) *MemoryTradeStore {
	if maxSize < 1 {
		maxSize = 1
	}
	return &MemoryTradeStore{
		trades:  make([]engine.Trade, maxSize),
		maxSize: maxSize,
	}
}

func (s *MemoryTradeStore) Save(_ context.Context, trades []engine.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range trades {
		s.trades[s.next] = t
		s.next = (s.next + 1) % s.maxSize
		if s.next == 0 {
			s.full = true
		}
	}
	return nil
}

func (s *MemoryTradeStore) Recent(_ context.Context, limit int) ([]engine.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = s.maxSize
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]engine.Trade, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + s.maxSize) % s.maxSize
		out = append(out, s.trades[idx])
	}
	return out, nil
}

func (s *MemoryTradeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.full {
		return s.maxSize
	}
	return s.next
}

func (s *MemoryTradeStore) Close() error {
	return nil
}
