package exchange

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"proxima/src/engine"
)

var ErrClosed = errors.New("exchange closed")

// SnapshotPublisher receives the book after every mutation, in mutation order.
type SnapshotPublisher interface {
	Publish(snapshot engine.Snapshot, trades []engine.Trade)
}

// TradeRecorder persists executed trades.
type TradeRecorder interface {
	Save(ctx context.Context, trades []engine.Trade) error
}

// RecorderFunc adapts a function to TradeRecorder.
type RecorderFunc func(ctx context.Context, trades []engine.Trade) error

func (f RecorderFunc) Save(ctx context.Context, trades []engine.Trade) error {
	return f(ctx, trades)
}

type commandKind uint8

const (
	cmdSubmit commandKind = iota + 1
	cmdCancel
	cmdSnapshot
	cmdOrder
)

type command struct {
	kind  commandKind
	req   engine.OrderRequest
	id    engine.OrderID
	depth int
	reply chan reply
}

type reply struct {
	result   *engine.MatchResult
	view     engine.OrderView
	found    bool
	snapshot engine.Snapshot
	err      error
}

type Stats struct {
	OrdersReceived  int64
	OrdersMatched   int64
	OrdersCancelled int64
	OrdersRejected  int64
	TradesExecuted  int64
	TradesDropped   int64 // replica queue overflow
	OrdersInBook    int
	Sequence        uint64
}

// Exchange serializes every request through a single goroutine in front of
// the matching engine. Publishing and in-memory trade recording happen on that
// same goroutine, so observers see mutations in the order they were applied.
// Replica backends are written from a second goroutine and never hold up
// matching.
type Exchange struct {
	engine   *engine.MatchingEngine
	ids      *Sequencer
	commands chan command
	t        tomb.Tomb

	publisher    SnapshotPublisher
	recorder     TradeRecorder
	publishDepth int
	queueSize    int

	replica        TradeRecorder
	replicaQueue   chan []engine.Trade
	replicaSize    int
	replicaTimeout time.Duration

	received  atomic.Int64
	matched   atomic.Int64
	cancelled atomic.Int64
	rejected  atomic.Int64
	trades    atomic.Int64
	dropped   atomic.Int64
}

type Option func(*Exchange)

func WithPublisher(p SnapshotPublisher) Option {
	return func(x *Exchange) {
		x.publisher = p
	}
}

// WithRecorder saves trades on the engine goroutine. It must not block on
// network I/O; use WithReplica for that.
func WithRecorder(r TradeRecorder) Option {
	return func(x *Exchange) {
		x.recorder = r
	}
}

// WithReplica hands trades to r from a separate goroutine through a queue of
// size batches. Each Save gets timeout. Batches that do not fit are dropped.
func WithReplica(r TradeRecorder, size int, timeout time.Duration) Option {
	return func(x *Exchange) {
		x.replica = r
		if size > 0 {
			x.replicaSize = size
		}
		if timeout > 0 {
			x.replicaTimeout = timeout
		}
	}
}

// WithPublishDepth limits published snapshots to the best n levels per side.
// Zero publishes the full book.
func WithPublishDepth(n int) Option {
	return func(x *Exchange) {
		if n >= 0 {
			x.publishDepth = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(x *Exchange) {
		if n > 0 {
			x.queueSize = n
		}
	}
}

func New(eng *engine.MatchingEngine, opts ...Option) *Exchange {
	x := &Exchange{
		engine:    eng,
		ids:       NewSequencer(0),
		queueSize:      1024,
		replicaSize:    4096,
		replicaTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(x)
	}
	x.commands = make(chan command, x.queueSize)
	x.t.Go(x.loop)
	if x.replica != nil {
		x.replicaQueue = make(chan []engine.Trade, x.replicaSize)
		x.t.Go(x.replicaLoop)
	}
	return x
}

func (x *Exchange) loop() error {
	ctx := x.t.Context(context.Background())
	for {
		select {
		case <-x.t.Dying():
			return nil
		case cmd := <-x.commands:
			cmd.reply <- x.apply(ctx, cmd)
		}
	}
}

func (x *Exchange) apply(ctx context.Context, cmd command) reply {
	switch cmd.kind {
	case cmdSubmit:
		return x.applySubmit(ctx, cmd.req)
	case cmdCancel:
		view, err := x.engine.CancelOrder(cmd.id)
		if err != nil {
			return reply{err: err}
		}
		x.cancelled.Add(1)
		snap := x.publish(nil)
		log.Info().Uint64("order_id", uint64(cmd.id)).Int64("remaining", int64(view.Remaining)).Msg("Order cancelled")
		return reply{view: view, found: true, snapshot: snap}
	case cmdSnapshot:
		return reply{snapshot: x.engine.SnapshotDepth(cmd.depth)}
	case cmdOrder:
		view, ok := x.engine.Order(cmd.id)
		return reply{view: view, found: ok}
	default:
		return reply{err: errors.New("unknown command")}
	}
}

func (x *Exchange) applySubmit(ctx context.Context, req engine.OrderRequest) reply {
	x.received.Add(1)

	if req.ID == 0 {
		req.ID = x.nextFreeID()
	} else {
		x.ids.Observe(uint64(req.ID))
	}

	result, err := x.engine.AddOrder(req)
	if err != nil {
		x.rejected.Add(1)
		return reply{err: err}
	}

	if result.Filled > 0 {
		x.matched.Add(1)
	}
	if n := len(result.Trades); n > 0 {
		x.trades.Add(int64(n))
		if x.recorder != nil {
			if err := x.recorder.Save(ctx, result.Trades); err != nil {
				log.Error().Err(err).Int("trades", n).Msg("Failed to record trades")
			}
		}
		x.replicate(result.Trades)
	}

	return reply{result: result, snapshot: x.publish(result.Trades)}
}

func (x *Exchange) replicate(trades []engine.Trade) {
	if x.replicaQueue == nil {
		return
	}
	select {
	case x.replicaQueue <- trades:
	default:
		x.dropped.Add(int64(len(trades)))
		log.Warn().
			Int("trades", len(trades)).
			Uint64("sequence", trades[len(trades)-1].Sequence).
			Msg("Trade replica queue full, dropping batch")
	}
}

// replicaLoop drains the replica queue until the tomb dies, then flushes
// whatever is still queued within one replica timeout.
func (x *Exchange) replicaLoop() error {
	ctx := x.t.Context(context.Background())
	for {
		select {
		case <-x.t.Dying():
			x.flushReplica()
			return nil
		case trades := <-x.replicaQueue:
			x.saveReplica(ctx, trades)
		}
	}
}

func (x *Exchange) flushReplica() {
	ctx, cancel := context.WithTimeout(context.Background(), x.replicaTimeout)
	defer cancel()

	for {
		select {
		case trades := <-x.replicaQueue:
			if ctx.Err() != nil {
				x.dropped.Add(int64(len(trades)))
				continue
			}
			x.saveReplica(ctx, trades)
		default:
			return
		}
	}
}

func (x *Exchange) saveReplica(parent context.Context, trades []engine.Trade) {
	ctx, cancel := context.WithTimeout(parent, x.replicaTimeout)
	defer cancel()

	if err := x.replica.Save(ctx, trades); err != nil {
		log.Error().Err(err).Int("trades", len(trades)).Msg("Failed to replicate trades")
	}
}

// nextFreeID skips zero and ids a client already has resting in the book.
func (x *Exchange) nextFreeID() engine.OrderID {
	for {
		id := engine.OrderID(x.ids.Next())
		if id == 0 {
			continue
		}
		if _, taken := x.engine.Order(id); !taken {
			return id
		}
	}
}

func (x *Exchange) publish(trades []engine.Trade) engine.Snapshot {
	snap := x.engine.SnapshotDepth(x.publishDepth)
	if x.publisher != nil {
		x.publisher.Publish(snap, trades)
	}
	return snap
}

// do enqueues a command and waits for its reply. A command that was already
// enqueued still runs if ctx is cancelled while waiting.
func (x *Exchange) do(ctx context.Context, cmd command) (reply, error) {
	cmd.reply = make(chan reply, 1)

	select {
	case x.commands <- cmd:
	case <-x.t.Dying():
		return reply{}, ErrClosed
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}

	select {
	case r := <-cmd.reply:
		return r, nil
	case <-x.t.Dying():
		return reply{}, ErrClosed
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

// Submit admits an order. A zero req.ID is replaced with a generated id. The
// returned snapshot is the book immediately after this order was applied.
func (x *Exchange) Submit(ctx context.Context, req engine.OrderRequest) (*engine.MatchResult, engine.Snapshot, error) {
	r, err := x.do(ctx, command{kind: cmdSubmit, req: req})
	if err != nil {
		return nil, engine.Snapshot{}, err
	}
	return r.result, r.snapshot, r.err
}

func (x *Exchange) Cancel(ctx context.Context, id engine.OrderID) (engine.OrderView, engine.Snapshot, error) {
	r, err := x.do(ctx, command{kind: cmdCancel, id: id})
	if err != nil {
		return engine.OrderView{}, engine.Snapshot{}, err
	}
	return r.view, r.snapshot, r.err
}

// Snapshot returns the best depth levels per side; depth <= 0 means all.
func (x *Exchange) Snapshot(ctx context.Context, depth int) (engine.Snapshot, error) {
	r, err := x.do(ctx, command{kind: cmdSnapshot, depth: depth})
	if err != nil {
		return engine.Snapshot{}, err
	}
	return r.snapshot, nil
}

// Order looks up a resting order.
func (x *Exchange) Order(ctx context.Context, id engine.OrderID) (engine.OrderView, bool, error) {
	r, err := x.do(ctx, command{kind: cmdOrder, id: id})
	if err != nil {
		return engine.OrderView{}, false, err
	}
	return r.view, r.found, nil
}

func (x *Exchange) Stats() Stats {
	return Stats{
		OrdersReceived:  x.received.Load(),
		OrdersMatched:   x.matched.Load(),
		OrdersCancelled: x.cancelled.Load(),
		OrdersRejected:  x.rejected.Load(),
		TradesExecuted:  x.trades.Load(),
		TradesDropped:   x.dropped.Load(),
		OrdersInBook:    x.engine.Len(),
		Sequence:        x.engine.Sequence(),
	}
}

func (x *Exchange) Alive() bool {
	return x.t.Alive()
}

// Close stops the loop and waits for it to exit. Commands still queued are
// dropped and their callers receive ErrClosed.
func (x *Exchange) Close() error {
	x.t.Kill(nil)
	return x.t.Wait()
}
