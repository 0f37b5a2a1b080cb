package exchange

import "sync/atomic"

// Sequencer hands out monotonically increasing order ids for requests that
// arrive without one.
type Sequencer struct {
	next atomic.Uint64
}

func NewSequencer(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Observe moves the sequencer past an id chosen by a client so generated ids
// do not walk into it later.
func (s *Sequencer) Observe(id uint64) {
	for {
		cur := s.next.Load()
		if id <= cur || s.next.CompareAndSwap(cur, id) {
			return
		}
	}
}
