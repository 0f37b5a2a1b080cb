package engine

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *MatchingEngine {
	var n int
	return NewMatchingEngine(
		WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) }),
		WithTradeIDs(func() string {
			n++
			return fmt.Sprintf("t-%d", n)
		}),
	)
}

func gtc(id OrderID, side Side, price Price, qty Quantity) OrderRequest {
	return OrderRequest{ID: id, Side: side, Type: GoodTillCancel, Price: price, Quantity: qty}
}

func market(id OrderID, side Side, qty Quantity) OrderRequest {
	return OrderRequest{ID: id, Side: side, Type: Market, Quantity: qty}
}

func mustAdd(t *testing.T, e *MatchingEngine, req OrderRequest) *MatchResult {
	t.Helper()
	result, err := e.AddOrder(req)
	require.NoError(t, err)
	assertBookInvariants(t, e)
	return result
}

// assertBookInvariants checks level aggregates, ordering, the id index and
// that the book is not left crossed.
func assertBookInvariants(t *testing.T, e *MatchingEngine) {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()

	indexed := 0
	for _, side := range []*BookSide{e.bids, e.asks} {
		var prev *PriceLevel
		side.Ascend(func(level *PriceLevel) bool {
			require.False(t, level.Empty(), "empty level %d persisted", level.Price)
			if prev != nil {
				if side.Side() == SideBuy {
					require.Greater(t, prev.Price, level.Price)
				} else {
					require.Less(t, prev.Price, level.Price)
				}
			}
			var sum Quantity
			var lastSeq uint64
			for _, o := range level.Orders() {
				require.Equal(t, level.Price, o.Price)
				require.Positive(t, int64(o.Remaining))
				require.LessOrEqual(t, o.Remaining, o.Original)
				require.Greater(t, o.Sequence, lastSeq, "fifo order broken at %d", level.Price)
				lastSeq = o.Sequence
				require.Same(t, o, e.orders[o.ID])
				sum += o.Remaining
				indexed++
			}
			require.Equal(t, sum, level.TotalQuantity)
			require.Equal(t, len(level.Orders()), level.OrderCount)
			prev = level
			return true
		})
	}
	require.Equal(t, len(e.orders), indexed)

	bid, okBid := e.bids.Best()
	ask, okAsk := e.asks.Best()
	if okBid && okAsk {
		require.Less(t, bid.Price, ask.Price, "book left crossed")
	}
}

func TestWalkthroughScenarios(t *testing.T) {
	e := newTestEngine()

	// 1. resting bid on an empty book
	res := mustAdd(t, e, gtc(1001, SideBuy, 150, 100))
	assert.Empty(t, res.Trades)
	assert.Equal(t, StatusResting, res.Status)
	snap := e.Snapshot()
	assert.Equal(t, []LevelInfo{{Price: 150, Quantity: 100, OrderCount: 1}}, snap.Bids)
	assert.Empty(t, snap.Asks)

	// 2. partial fill of the resting bid
	res = mustAdd(t, e, gtc(2001, SideSell, 150, 50))
	require.Len(t, res.Trades, 1)
	assert.Equal(t, Price(150), res.Trades[0].Price)
	assert.Equal(t, Quantity(50), res.Trades[0].Quantity)
	assert.Equal(t, OrderID(1001), res.Trades[0].BuyOrderID)
	assert.Equal(t, OrderID(2001), res.Trades[0].SellOrderID)
	assert.Equal(t, StatusFilled, res.Status)
	snap = e.Snapshot()
	assert.Equal(t, []LevelInfo{{Price: 150, Quantity: 50, OrderCount: 1}}, snap.Bids)
	assert.Empty(t, snap.Asks)

	// 3. bid consumed, remainder of the sell rests
	res = mustAdd(t, e, gtc(2002, SideSell, 150, 60))
	require.Len(t, res.Trades, 1)
	assert.Equal(t, Quantity(50), res.Trades[0].Quantity)
	assert.Equal(t, OrderID(1001), res.Trades[0].BuyOrderID)
	assert.Equal(t, OrderID(2002), res.Trades[0].SellOrderID)
	assert.Equal(t, StatusPartiallyFilled, res.Status)
	_, found := e.Order(1001)
	assert.False(t, found)
	snap = e.Snapshot()
	assert.Empty(t, snap.Bids)
	assert.Equal(t, []LevelInfo{{Price: 150, Quantity: 10, OrderCount: 1}}, snap.Asks)

	// 6. duplicate of a resting id is rejected atomically
	before := e.Snapshot()
	_, err := e.AddOrder(gtc(2002, SideSell, 151, 5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateOrderID))
	var rejectErr *RejectError
	require.ErrorAs(t, err, &rejectErr)
	assert.Equal(t, OrderID(2002), rejectErr.OrderID)
	assert.Equal(t, before, e.Snapshot())

	// 4. market buy lifts the resting ask
	res = mustAdd(t, e, market(3001, SideBuy, 10))
	require.Len(t, res.Trades, 1)
	assert.Equal(t, Trade{
		TradeID:     res.Trades[0].TradeID,
		Price:       150,
		Quantity:    10,
		BuyOrderID:  3001,
		SellOrderID: 2002,
		Aggressor:   SideBuy,
		Sequence:    res.Trades[0].Sequence,
		Timestamp:   res.Trades[0].Timestamp,
	}, res.Trades[0])
	snap = e.Snapshot()
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
	assert.Zero(t, e.Len())

	// 5. market order against an empty side is discarded
	res = mustAdd(t, e, market(3002, SideBuy, 5))
	assert.Empty(t, res.Trades)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, Quantity(5), res.Remaining)
	_, found = e.Order(3002)
	assert.False(t, found)
	snap = e.Snapshot()
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
}

func TestAddOrderValidation(t *testing.T) {
	tests := []struct {
		name string
		req  OrderRequest
		want error
	}{
		{"zero quantity", gtc(1, SideBuy, 100, 0), ErrInvalidQuantity},
		{"negative quantity", gtc(1, SideBuy, 100, -5), ErrInvalidQuantity},
		{"market zero quantity", market(1, SideSell, 0), ErrInvalidQuantity},
		{"quantity above max", gtc(1, SideBuy, 100, MaxQuantity+1), ErrInvalidQuantity},
		{"market quantity above max", market(1, SideBuy, math.MaxInt64), ErrInvalidQuantity},
		{"zero price", gtc(1, SideBuy, 0, 10), ErrInvalidPrice},
		{"negative price", gtc(1, SideSell, -1, 10), ErrInvalidPrice},
		{"fill and kill without price", OrderRequest{ID: 1, Side: SideBuy, Type: FillAndKill, Quantity: 10}, ErrInvalidPrice},
		{"fill or kill without price", OrderRequest{ID: 1, Side: SideBuy, Type: FillOrKill, Quantity: 10}, ErrInvalidPrice},
		{"unknown side", OrderRequest{ID: 1, Side: 9, Type: GoodTillCancel, Price: 1, Quantity: 1}, ErrInvalidSide},
		{"unknown type", OrderRequest{ID: 1, Side: SideBuy, Type: 0, Price: 1, Quantity: 1}, ErrInvalidOrderType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			mustAdd(t, e, gtc(500, SideSell, 120, 10))
			before := e.Snapshot()

			res, err := e.AddOrder(tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
			assert.Equal(t, before, e.Snapshot())
			assert.Equal(t, 1, e.Len())
		})
	}
}

func TestLevelQuantityCannotOverflow(t *testing.T) {
	e := newTestEngine()
	mustAdd(t, e, gtc(1, SideSell, 100, MaxQuantity))
	before := e.Snapshot()

	res, err := e.AddOrder(gtc(2, SideSell, 100, 10))
	require.ErrorIs(t, err, ErrLevelFull)
	assert.Nil(t, res)
	assert.Equal(t, before, e.Snapshot())
	assert.Equal(t, MaxQuantity, e.Snapshot().Asks[0].Quantity)

	// A different price opens its own level.
	mustAdd(t, e, gtc(3, SideSell, 101, MaxQuantity))

	// Bounded levels keep the fill-or-kill pre-check exact.
	res = mustAdd(t, e, OrderRequest{ID: 4, Side: SideBuy, Type: FillOrKill, Price: 101, Quantity: MaxQuantity})
	assert.Equal(t, StatusFilled, res.Status)
	assert.Equal(t, MaxQuantity, res.Filled)

	snap := e.Snapshot()
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, Price(101), snap.Asks[0].Price)
	assert.Equal(t, MaxQuantity, snap.Asks[0].Quantity)
}

func TestLevelFillsBackUpAfterTrades(t *testing.T) {
	e := newTestEngine()
	mustAdd(t, e, gtc(1, SideBuy, 100, MaxQuantity))
	mustAdd(t, e, gtc(2, SideSell, 100, 10))

	res := mustAdd(t, e, gtc(3, SideBuy, 100, 10))
	assert.Equal(t, StatusResting, res.Status)

	_, err := e.AddOrder(gtc(4, SideBuy, 100, 1))
	assert.ErrorIs(t, err, ErrLevelFull)
}

func TestMarketOrderIgnoresPrice(t *testing.T) {
	e := newTestEngine()
	mustAdd(t, e, gtc(1, SideSell, 200, 10))

	res := mustAdd(t, e, OrderRequest{ID: 2, Side: SideBuy, Type: Market, Price: -7, Quantity: 4})
	require.Len(t, res.Trades, 1)
	assert.Equal(t, Price(200), res.Trades[0].Price)
}

func TestPricePriority(t *testing.T) {
	e := newTestEngine()
	mustAdd(t, e, gtc(1, SideBuy, 99, 10))
	mustAdd(t, e, gtc(2, SideBuy, 101, 10))
	mustAdd(t, e, gtc(3, SideBuy, 100, 10))
	mustAdd(t, e, gtc(4, SideSell, 105, 10))
	mustAdd(t, e, gtc(5, SideSell, 103, 10))
	mustAdd(t, e, gtc(6, SideSell, 104, 10))

	snap := e.Snapshot()
	require.Len(t, snap.Bids, 3)
	require.Len(t, snap.Asks, 3)
	assert.Equal(t, []Price{101, 100, 99}, prices(snap.Bids))
	assert.Equal(t, []Price{103, 104, 105}, prices(snap.Asks))

	bid, ok := e.BestBid()
	require.True(t, ok)
	assert.Equal(t, Price(101), bid)
	ask, ok := e.BestAsk()
	require.True(t, ok)
	assert.Equal(t, Price(103), ask)
	spread, ok := snap.Spread()
	require.True(t, ok)
	assert.Equal(t, Price(2), spread)

	res := mustAdd(t, e, gtc(7, SideSell, 99, 15))
	require.Len(t, res.Trades, 2)
	assert.Equal(t, OrderID(2), res.Trades[0].BuyOrderID)
	assert.Equal(t, Price(101), res.Trades[0].Price)
	assert.Equal(t, OrderID(3), res.Trades[1].BuyOrderID)
	assert.Equal(t, Price(100), res.Trades[1].Price)
	assert.Equal(t, Quantity(5), res.Trades[1].Quantity)
}

func TestTimePriority(t *testing.T) {
	e := newTestEngine()
	mustAdd(t, e, gtc(10, SideSell, 100, 5))
	mustAdd(t, e, gtc(11, SideSell, 100, 5))
	mustAdd(t, e, gtc(12, SideSell, 100, 5))

	res := mustAdd(t, e, gtc(20, SideBuy, 100, 7))
	require.Len(t, res.Trades, 2)
	assert.Equal(t, OrderID(10), res.Trades[0].SellOrderID)
	assert.Equal(t, Quantity(5), res.Trades[0].Quantity)
	assert.Equal(t, OrderID(11), res.Trades[1].SellOrderID)
	assert.Equal(t, Quantity(2), res.Trades[1].Quantity)

	view, ok := e.Order(11)
	require.True(t, ok)
	assert.Equal(t, Quantity(3), view.Remaining)
	assert.Equal(t, Quantity(2), view.Filled())

	// a later arrival at the same price queues behind the partially filled head
	mustAdd(t, e, gtc(13, SideSell, 100, 5))
	res = mustAdd(t, e, market(21, SideBuy, 4))
	require.Len(t, res.Trades, 2)
	assert.Equal(t, OrderID(11), res.Trades[0].SellOrderID)
	assert.Equal(t, OrderID(12), res.Trades[1].SellOrderID)
}

func TestAggressorGetsRestingPrice(t *testing.T) {
	e := newTestEngine()
	mustAdd(t, e, gtc(1, SideSell, 100, 10))

	res := mustAdd(t, e, gtc(2, SideBuy, 110, 10))
	require.Len(t, res.Trades, 1)
	assert.Equal(t, Price(100), res.Trades[0].Price)

	mustAdd(t, e, gtc(3, SideBuy, 95, 10))
	res = mustAdd(t, e, gtc(4, SideSell, 90, 4))
	require.Len(t, res.Trades, 1)
	assert.Equal(t, Price(95), res.Trades[0].Price)
	assert.Equal(t, SideSell, res.Trades[0].Aggressor)
}

func TestMultiLevelSweepRestsRemainder(t *testing.T) {
	e := newTestEngine()
	mustAdd(t, e, gtc(1, SideSell, 101, 10))
	mustAdd(t, e, gtc(2, SideSell, 102, 10))
	mustAdd(t, e, gtc(3, SideSell, 103, 10))
	mustAdd(t, e, gtc(4, SideSell, 110, 10))

	res := mustAdd(t, e, gtc(9, SideBuy, 103, 45))
	require.Len(t, res.Trades, 3)
	assert.Equal(t, []Price{101, 102, 103}, []Price{res.Trades[0].Price, res.Trades[1].Price, res.Trades[2].Price})
	assert.Equal(t, StatusPartiallyFilled, res.Status)
	assert.Equal(t, Quantity(30), res.Filled)
	assert.Equal(t, Quantity(15), res.Remaining)

	snap := e.Snapshot()
	assert.Equal(t, []LevelInfo{{Price: 103, Quantity: 15, OrderCount: 1}}, snap.Bids)
	assert.Equal(t, []LevelInfo{{Price: 110, Quantity: 10, OrderCount: 1}}, snap.Asks)
}

func TestMarketSweepDiscardsRemainder(t *testing.T) {
	e := newTestEngine()
	mustAdd(t, e, gtc(1, SideBuy, 150, 200))
	mustAdd(t, e, gtc(2, SideBuy, 148, 300))
	mustAdd(t, e, gtc(3, SideBuy, 145, 400))

	res := mustAdd(t, e, market(4, SideSell, 1000))
	require.Len(t, res.Trades, 3)
	assert.Equal(t, Quantity(900), res.Filled)
	assert.Equal(t, Quantity(100), res.Remaining)
	assert.Equal(t, StatusCancelled, res.Status)

	snap := e.Snapshot()
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
	_, found := e.Order(4)
	assert.False(t, found)
}

func TestFillAndKill(t *testing.T) {
	e := newTestEngine()
	mustAdd(t, e, gtc(1, SideSell, 100, 5))
	mustAdd(t, e, gtc(2, SideSell, 105, 5))

	res := mustAdd(t, e, OrderRequest{ID: 3, Side: SideBuy, Type: FillAndKill, Price: 102, Quantity: 8})
	require.Len(t, res.Trades, 1)
	assert.Equal(t, Quantity(5), res.Filled)
	assert.Equal(t, StatusCancelled, res.Status)

	snap := e.Snapshot()
	assert.Empty(t, snap.Bids)
	assert.Equal(t, []LevelInfo{{Price: 105, Quantity: 5, OrderCount: 1}}, snap.Asks)
}

func TestFillOrKill(t *testing.T) {
	e := newTestEngine()
	mustAdd(t, e, gtc(1, SideSell, 100, 5))
	mustAdd(t, e, gtc(2, SideSell, 101, 5))
	mustAdd(t, e, gtc(3, SideSell, 120, 50))

	t.Run("killed when liquidity inside the limit is short", func(t *testing.T) {
		before := e.Snapshot()
		res := mustAdd(t, e, OrderRequest{ID: 10, Side: SideBuy, Type: FillOrKill, Price: 101, Quantity: 11})
		assert.Equal(t, StatusKilled, res.Status)
		assert.Empty(t, res.Trades)
		assert.Equal(t, Quantity(11), res.Remaining)
		after := e.Snapshot()
		assert.Equal(t, before.Bids, after.Bids)
		assert.Equal(t, before.Asks, after.Asks)
	})

	t.Run("fills in full across levels", func(t *testing.T) {
		res := mustAdd(t, e, OrderRequest{ID: 11, Side: SideBuy, Type: FillOrKill, Price: 101, Quantity: 10})
		assert.Equal(t, StatusFilled, res.Status)
		require.Len(t, res.Trades, 2)
		assert.Equal(t, []LevelInfo{{Price: 120, Quantity: 50, OrderCount: 1}}, e.Snapshot().Asks)
	})
}

func TestCancelOrder(t *testing.T) {
	e := newTestEngine()
	mustAdd(t, e, gtc(1, SideBuy, 100, 10))
	mustAdd(t, e, gtc(2, SideBuy, 100, 20))
	mustAdd(t, e, gtc(3, SideBuy, 100, 30))

	view, err := e.CancelOrder(2)
	require.NoError(t, err)
	assert.Equal(t, Quantity(20), view.Remaining)
	assertBookInvariants(t, e)
	assert.Equal(t, []LevelInfo{{Price: 100, Quantity: 40, OrderCount: 2}}, e.Snapshot().Bids)

	_, err = e.CancelOrder(2)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	// the cancelled id may be reused once it no longer rests
	mustAdd(t, e, gtc(2, SideBuy, 99, 1))

	_, err = e.CancelOrder(1)
	require.NoError(t, err)
	_, err = e.CancelOrder(3)
	require.NoError(t, err)
	assertBookInvariants(t, e)
	assert.Equal(t, []LevelInfo{{Price: 99, Quantity: 1, OrderCount: 1}}, e.Snapshot().Bids)
}

func TestSnapshotDepth(t *testing.T) {
	e := newTestEngine()
	for i := 0; i < 5; i++ {
		mustAdd(t, e, gtc(OrderID(i+1), SideBuy, Price(100-i), 1))
		mustAdd(t, e, gtc(OrderID(i+100), SideSell, Price(200+i), 1))
	}

	snap := e.SnapshotDepth(2)
	assert.Equal(t, []Price{100, 99}, prices(snap.Bids))
	assert.Equal(t, []Price{200, 201}, prices(snap.Asks))
	assert.Len(t, e.SnapshotDepth(0).Bids, 5)
	assert.Len(t, e.SnapshotDepth(50).Asks, 5)
	assert.Equal(t, uint64(10), snap.Sequence)
}

func TestEmptyBookQueries(t *testing.T) {
	e := newTestEngine()
	_, ok := e.BestBid()
	assert.False(t, ok)
	_, ok = e.BestAsk()
	assert.False(t, ok)
	_, ok = e.Snapshot().Spread()
	assert.False(t, ok)
	assert.Zero(t, e.Sequence())
}

// TestRandomFlowPreservesInvariants drives a seeded random order flow and
// checks conservation of quantity for every trade.
func TestRandomFlowPreservesInvariants(t *testing.T) {
	e := newTestEngine()
	rng := rand.New(rand.NewSource(42))
	types := []OrderType{GoodTillCancel, GoodTillCancel, GoodTillCancel, Market, FillAndKill, FillOrKill}

	for i := 1; i <= 2000; i++ {
		side := SideBuy
		if rng.Intn(2) == 1 {
			side = SideSell
		}
		req := OrderRequest{
			ID:       OrderID(i),
			Side:     side,
			Type:     types[rng.Intn(len(types))],
			Price:    Price(95 + rng.Intn(11)),
			Quantity: Quantity(1 + rng.Intn(50)),
		}

		before := restingQuantities(e)
		res := mustAdd(t, e, req)
		after := restingQuantities(e)

		var traded Quantity
		for _, tr := range res.Trades {
			traded += tr.Quantity
			resting := tr.SellOrderID
			if side == SideSell {
				resting = tr.BuyOrderID
			}
			prev, ok := before[resting]
			require.True(t, ok, "trade against non-resting order %d", resting)
			before[resting] = prev - tr.Quantity
		}
		assert.Equal(t, res.Filled, traded)
		assert.Equal(t, req.Quantity, res.Filled+res.Remaining)

		for id, qty := range before {
			if qty == 0 {
				_, stillThere := after[id]
				assert.False(t, stillThere, "filled order %d still rests", id)
				continue
			}
			assert.Equal(t, qty, after[id], "order %d", id)
		}
		if req.Type != GoodTillCancel {
			_, rests := after[req.ID]
			assert.False(t, rests, "%s order %d rests", req.Type, req.ID)
		}
	}
}

func restingQuantities(e *MatchingEngine) map[OrderID]Quantity {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[OrderID]Quantity, len(e.orders))
	for id, o := range e.orders {
		out[id] = o.Remaining
	}
	return out
}

func prices(levels []LevelInfo) []Price {
	out := make([]Price, len(levels))
	for i, l := range levels {
		out[i] = l.Price
	}
	return out
}
