package engine

import (
	"github.com/google/btree"
)

const defaultBTreeDegree = 32

// PriceLevel is the FIFO queue of orders resting at one price. TotalQuantity is
// kept equal to the sum of Remaining over the queue on every push, fill and unlink.
type PriceLevel struct {
	Price         Price
	TotalQuantity Quantity
	OrderCount    int

	head, tail *Order
}

func newPriceLevel(price Price) *PriceLevel {
	return &PriceLevel{Price: price}
}

func (l *PriceLevel) Head() *Order {
	return l.head
}

func (l *PriceLevel) Empty() bool {
	return l.head == nil
}

// Orders returns the queue oldest-first.
func (l *PriceLevel) Orders() []*Order {
	orders := make([]*Order, 0, l.OrderCount)
	for o := l.head; o != nil; o = o.next {
		orders = append(orders, o)
	}
	return orders
}

func (l *PriceLevel) push(o *Order) {
	o.level = l
	o.prev = l.tail
	o.next = nil
	if l.tail == nil {
		l.head = o
	} else {
		l.tail.next = o
	}
	l.tail = o
	l.TotalQuantity += o.Remaining
	l.OrderCount++
}

func (l *PriceLevel) unlink(o *Order) {
	if o.prev == nil {
		l.head = o.next
	} else {
		o.prev.next = o.next
	}
	if o.next == nil {
		l.tail = o.prev
	} else {
		o.next.prev = o.prev
	}
	l.TotalQuantity -= o.Remaining
	l.OrderCount--
	o.level, o.prev, o.next = nil, nil, nil
}

// fill executes q against o, which must rest in l.
func (l *PriceLevel) fill(o *Order, q Quantity) {
	o.Fill(q)
	l.TotalQuantity -= q
}

// BookSide keeps one side's price levels ordered best-first: descending for
// bids, ascending for asks.
type BookSide struct {
	side   Side
	levels *btree.BTreeG[*PriceLevel]
}

func newBookSide(side Side, degree int) *BookSide {
	less := func(a, b *PriceLevel) bool { return a.Price < b.Price }
	if side == SideBuy {
		less = func(a, b *PriceLevel) bool { return a.Price > b.Price }
	}
	return &BookSide{
		side:   side,
		levels: btree.NewG(degree, less),
	}
}

func (s *BookSide) Side() Side {
	return s.side
}

func (s *BookSide) Len() int {
	return s.levels.Len()
}

// Best returns the top of book level.
func (s *BookSide) Best() (*PriceLevel, bool) {
	return s.levels.Min()
}

func (s *BookSide) Level(price Price) (*PriceLevel, bool) {
	return s.levels.Get(&PriceLevel{Price: price})
}

func (s *BookSide) levelFor(price Price) *PriceLevel {
	if level, ok := s.Level(price); ok {
		return level
	}
	level := newPriceLevel(price)
	s.levels.ReplaceOrInsert(level)
	return level
}

func (s *BookSide) removeLevel(level *PriceLevel) {
	s.levels.Delete(level)
}

// Ascend walks levels best-first until fn returns false.
func (s *BookSide) Ascend(fn func(*PriceLevel) bool) {
	s.levels.Ascend(fn)
}

// crosses reports whether an incoming order on the opposite side with the given
// limit would trade against level.
func (s *BookSide) crosses(level *PriceLevel, limit Price) bool {
	if s.side == SideSell {
		return limit >= level.Price
	}
	return limit <= level.Price
}

// AvailableAt sums resting quantity at prices an opposite-side order limited
// at limit could trade against. It stops once want is reached.
func (s *BookSide) AvailableAt(limit Price, want Quantity) Quantity {
	var total Quantity
	s.Ascend(func(level *PriceLevel) bool {
		if !s.crosses(level, limit) {
			return false
		}
		total += level.TotalQuantity
		return total < want
	})
	return total
}

// Depth returns up to n levels best-first; n <= 0 means all of them.
func (s *BookSide) Depth(n int) []LevelInfo {
	size := s.levels.Len()
	if n > 0 && n < size {
		size = n
	}
	infos := make([]LevelInfo, 0, size)
	s.Ascend(func(level *PriceLevel) bool {
		if n > 0 && len(infos) >= n {
			return false
		}
		infos = append(infos, LevelInfo{
			Price:      level.Price,
			Quantity:   level.TotalQuantity,
			OrderCount: level.OrderCount,
		})
		return true
	})
	return infos
}
