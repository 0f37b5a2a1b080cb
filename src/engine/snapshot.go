package engine

// LevelInfo is the public depth of one price level.
type LevelInfo struct {
	Price      Price
	Quantity   Quantity
	OrderCount int
}

// Snapshot is an aggregated, order-anonymous view of both sides, best-first.
// Sequence is the admission sequence of the last order applied before it was taken.
type Snapshot struct {
	Sequence uint64
	Bids     []LevelInfo
	Asks     []LevelInfo
}

func (s Snapshot) BestBid() (LevelInfo, bool) {
	if len(s.Bids) == 0 {
		return LevelInfo{}, false
	}
	return s.Bids[0], true
}

func (s Snapshot) BestAsk() (LevelInfo, bool) {
	if len(s.Asks) == 0 {
		return LevelInfo{}, false
	}
	return s.Asks[0], true
}

// Spread is best ask minus best bid, when both sides are present.
func (s Snapshot) Spread() (Price, bool) {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

func (e *MatchingEngine) Snapshot() Snapshot {
	return e.SnapshotDepth(0)
}

// SnapshotDepth limits each side to depth levels; depth <= 0 returns every level.
func (e *MatchingEngine) SnapshotDepth(depth int) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Snapshot{
		Sequence: e.seq,
		Bids:     e.bids.Depth(depth),
		Asks:     e.asks.Depth(depth),
	}
}

// BestBid returns the highest resting bid; ok is false when there are no bids.
func (e *MatchingEngine) BestBid() (price Price, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	level, ok := e.bids.Best()
	if !ok {
		return 0, false
	}
	return level.Price, true
}

// BestAsk returns the lowest resting ask; ok is false when there are no asks.
func (e *MatchingEngine) BestAsk() (price Price, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	level, ok := e.asks.Best()
	if !ok {
		return 0, false
	}
	return level.Price, true
}

func (e *MatchingEngine) Order(id OrderID) (OrderView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[id]
	if !ok {
		return OrderView{}, false
	}
	return order.View(), true
}

// Len is the number of resting orders.
func (e *MatchingEngine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.orders)
}

func (e *MatchingEngine) Sequence() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.seq
}
