package engine

import (
	"fmt"
	"strings"
	"time"
)

type OrderID uint64

// Price is an integer number of ticks. No floating point is used anywhere in
// the matching path.
type Price int64

type Quantity int64

// MaxQuantity bounds a single order and the aggregate resting at one price
// level. Sums of two bounded values cannot overflow int64.
const MaxQuantity Quantity = 1 << 53

type Side uint8

const (
	SideBuy Side = iota + 1
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "BUY", "BID", "B":
		return SideBuy, nil
	case "SELL", "ASK", "S":
		return SideSell, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSide, v)
}

type OrderType uint8

const (
	// GoodTillCancel rests in the book until filled or cancelled.
	GoodTillCancel OrderType = iota + 1
	// Market takes any available liquidity; the unfilled remainder is discarded.
	Market
	// FillAndKill matches up to its limit price and discards the remainder.
	FillAndKill
	// FillOrKill executes in full at or better than its limit price, or not at all.
	FillOrKill
)

func (t OrderType) String() string {
	switch t {
	case GoodTillCancel:
		return "GOOD_TILL_CANCEL"
	case Market:
		return "MARKET"
	case FillAndKill:
		return "FILL_AND_KILL"
	case FillOrKill:
		return "FILL_OR_KILL"
	default:
		return fmt.Sprintf("OrderType(%d)", uint8(t))
	}
}

func (t OrderType) Valid() bool {
	return t >= GoodTillCancel && t <= FillOrKill
}

// RequiresPrice reports whether orders of this type carry a limit price.
func (t OrderType) RequiresPrice() bool {
	return t != Market
}

// Rests reports whether an unfilled remainder is kept in the book.
func (t OrderType) Rests() bool {
	return t == GoodTillCancel
}

func ParseOrderType(v string) (OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "GOOD_TILL_CANCEL", "GTC", "LIMIT":
		return GoodTillCancel, nil
	case "MARKET":
		return Market, nil
	case "FILL_AND_KILL", "FAK", "IOC":
		return FillAndKill, nil
	case "FILL_OR_KILL", "FOK":
		return FillOrKill, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOrderType, v)
}

// OrderRequest is everything a caller supplies to admit an order.
type OrderRequest struct {
	ID       OrderID
	Side     Side
	Type     OrderType
	Price    Price // ignored for Market
	Quantity Quantity
}

// Order is owned by the engine. Only the matching loop mutates Remaining.
type Order struct {
	ID        OrderID
	Side      Side
	Type      OrderType
	Price     Price
	Original  Quantity
	Remaining Quantity
	Sequence  uint64
	Timestamp int64 // unix millis at admission

	level      *PriceLevel
	prev, next *Order
}

func newOrder(req OrderRequest, seq uint64, now time.Time) *Order {
	price := req.Price
	if !req.Type.RequiresPrice() {
		price = 0
	}
	return &Order{
		ID:        req.ID,
		Side:      req.Side,
		Type:      req.Type,
		Price:     price,
		Original:  req.Quantity,
		Remaining: req.Quantity,
		Sequence:  seq,
		Timestamp: now.UnixMilli(),
	}
}

func (o *Order) Filled() Quantity {
	return o.Original - o.Remaining
}

func (o *Order) IsFilled() bool {
	return o.Remaining == 0
}

// Fill decrements the remaining quantity. Overfilling is a broken invariant in
// the matching loop, not a caller error.
func (o *Order) Fill(q Quantity) {
	if q <= 0 || q > o.Remaining {
		panic(fmt.Sprintf("order %d: fill %d exceeds remaining %d", o.ID, q, o.Remaining))
	}
	o.Remaining -= q
}

func (o *Order) View() OrderView {
	return OrderView{
		ID:        o.ID,
		Side:      o.Side,
		Type:      o.Type,
		Price:     o.Price,
		Original:  o.Original,
		Remaining: o.Remaining,
		Sequence:  o.Sequence,
		Timestamp: o.Timestamp,
	}
}

// OrderView is a detached copy of an order's state.
type OrderView struct {
	ID        OrderID
	Side      Side
	Type      OrderType
	Price     Price
	Original  Quantity
	Remaining Quantity
	Sequence  uint64
	Timestamp int64
}

func (v OrderView) Filled() Quantity {
	return v.Original - v.Remaining
}

type Trade struct {
	TradeID     string
	Price       Price
	Quantity    Quantity
	BuyOrderID  OrderID
	SellOrderID OrderID
	Aggressor   Side
	Sequence    uint64
	Timestamp   int64 // unix millis
}
