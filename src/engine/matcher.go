package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusResting         OrderStatus = "RESTING"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	// StatusCancelled means the unfilled remainder of a Market or FillAndKill
	// order was discarded.
	StatusCancelled OrderStatus = "CANCELLED"
	// StatusKilled means a FillOrKill order could not be filled in full and
	// did not trade at all.
	StatusKilled OrderStatus = "KILLED"
)

type MatchResult struct {
	OrderID   OrderID
	Status    OrderStatus
	Filled    Quantity
	Remaining Quantity
	Trades    []Trade
}

// MatchingEngine is a single-instrument limit order book with price-time
// priority. Every public method holds mu for its whole duration, so callers
// only ever observe the book between complete operations.
type MatchingEngine struct {
	mu sync.Mutex

	bids   *BookSide
	asks   *BookSide
	orders map[OrderID]*Order

	seq      uint64
	tradeSeq uint64

	degree     int
	now        func() time.Time
	newTradeID func() string
}

type Option func(*MatchingEngine)

func WithClock(now func() time.Time) Option {
	return func(e *MatchingEngine) {
		e.now = now
	}
}

func WithTradeIDs(gen func() string) Option {
	return func(e *MatchingEngine) {
		e.newTradeID = gen
	}
}

func WithBTreeDegree(degree int) Option {
	return func(e *MatchingEngine) {
		if degree >= 2 {
			e.degree = degree
		}
	}
}

func NewMatchingEngine(opts ...Option) *MatchingEngine {
	e := &MatchingEngine{
		orders:     make(map[OrderID]*Order),
		degree:     defaultBTreeDegree,
		now:        time.Now,
		newTradeID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.bids = newBookSide(SideBuy, e.degree)
	e.asks = newBookSide(SideSell, e.degree)
	return e
}

// AddOrder admits one order: it matches against the opposite side while the
// order crosses, then rests a GoodTillCancel remainder. A rejected order
// leaves the book unchanged.
func (e *MatchingEngine) AddOrder(req OrderRequest) (*MatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validate(req); err != nil {
		return nil, err
	}

	e.seq++
	order := newOrder(req, e.seq, e.now())

	result := &MatchResult{
		OrderID: order.ID,
		Trades:  make([]Trade, 0),
	}

	if order.Type == FillOrKill && !e.canFullyFill(order) {
		result.Status = StatusKilled
		result.Remaining = order.Remaining
		return result, nil
	}

	result.Trades = e.match(order, result.Trades)
	result.Filled = order.Filled()
	result.Remaining = order.Remaining

	switch {
	case order.IsFilled():
		result.Status = StatusFilled
	case order.Type.Rests():
		e.rest(order)
		if result.Filled == 0 {
			result.Status = StatusResting
		} else {
			result.Status = StatusPartiallyFilled
		}
	default:
		result.Status = StatusCancelled
	}

	return result, nil
}

func (e *MatchingEngine) validate(req OrderRequest) error {
	if !req.Side.Valid() {
		return reject(req.ID, ErrInvalidSide)
	}
	if !req.Type.Valid() {
		return reject(req.ID, ErrInvalidOrderType)
	}
	if req.Quantity <= 0 || req.Quantity > MaxQuantity {
		return reject(req.ID, ErrInvalidQuantity)
	}
	if req.Type.RequiresPrice() && req.Price <= 0 {
		return reject(req.ID, ErrInvalidPrice)
	}
	if _, exists := e.orders[req.ID]; exists {
		return reject(req.ID, ErrDuplicateOrderID)
	}
	// An order that finds a same-side level at its own price cannot cross, so
	// all of its quantity would join that level.
	if req.Type.Rests() {
		if level, ok := e.sideOf(req.Side).Level(req.Price); ok && level.TotalQuantity > MaxQuantity-req.Quantity {
			return reject(req.ID, ErrLevelFull)
		}
	}
	return nil
}

func (e *MatchingEngine) sideOf(side Side) *BookSide {
	if side == SideBuy {
		return e.bids
	}
	return e.asks
}

// match walks the opposite side best level first, oldest order first, until
// the incoming order is filled or stops crossing. Market orders cross while
// any liquidity remains.
func (e *MatchingEngine) match(order *Order, trades []Trade) []Trade {
	opposite := e.sideOf(order.Side.Opposite())

	for order.Remaining > 0 {
		level, ok := opposite.Best()
		if !ok {
			break
		}
		if order.Type.RequiresPrice() && !opposite.crosses(level, order.Price) {
			break
		}

		for order.Remaining > 0 && !level.Empty() {
			resting := level.Head()
			qty := min(order.Remaining, resting.Remaining)

			order.Fill(qty)
			level.fill(resting, qty)
			trades = append(trades, e.trade(order, resting, qty))

			if resting.IsFilled() {
				level.unlink(resting)
				delete(e.orders, resting.ID)
			}
		}

		if level.Empty() {
			opposite.removeLevel(level)
		}
	}

	return trades
}

func (e *MatchingEngine) canFullyFill(order *Order) bool {
	opposite := e.sideOf(order.Side.Opposite())
	return opposite.AvailableAt(order.Price, order.Remaining) >= order.Remaining
}

// trade prices the execution at the resting order's price.
func (e *MatchingEngine) trade(aggressor, resting *Order, qty Quantity) Trade {
	e.tradeSeq++
	t := Trade{
		TradeID:   e.newTradeID(),
		Price:     resting.Price,
		Quantity:  qty,
		Aggressor: aggressor.Side,
		Sequence:  e.tradeSeq,
		Timestamp: e.now().UnixMilli(),
	}
	if aggressor.Side == SideBuy {
		t.BuyOrderID = aggressor.ID
		t.SellOrderID = resting.ID
	} else {
		t.BuyOrderID = resting.ID
		t.SellOrderID = aggressor.ID
	}
	return t
}

func (e *MatchingEngine) rest(order *Order) {
	e.sideOf(order.Side).levelFor(order.Price).push(order)
	e.orders[order.ID] = order
}

// CancelOrder removes a resting order and returns its state at removal.
func (e *MatchingEngine) CancelOrder(id OrderID) (OrderView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[id]
	if !ok {
		return OrderView{}, fmt.Errorf("cancel order %d: %w", id, ErrOrderNotFound)
	}

	view := order.View()
	level := order.level
	level.unlink(order)
	if level.Empty() {
		e.sideOf(order.Side).removeLevel(level)
	}
	delete(e.orders, id)

	return view, nil
}
