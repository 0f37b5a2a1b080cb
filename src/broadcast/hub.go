package broadcast

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"proxima/src/engine"
	"proxima/src/models"
)

// Frame is one encoded book update.
type Frame struct {
	Sequence uint64
	Data     []byte
}

type Subscriber struct {
	id      uint64
	frames  chan Frame
	dropped atomic.Int64
}

func (s *Subscriber) ID() uint64 {
	return s.id
}

// Frames is closed when the subscriber is removed or the hub closes.
func (s *Subscriber) Frames() <-chan Frame {
	return s.frames
}

// Dropped counts frames discarded because the subscriber fell behind.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// offer never blocks; when the buffer is full the oldest frame is discarded.
func (s *Subscriber) offer(f Frame) {
	for {
		select {
		case s.frames <- f:
			return
		default:
		}
		select {
		case <-s.frames:
			s.dropped.Add(1)
		default:
		}
	}
}

// Hub fans book snapshots out to stream subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscriber
	nextID uint64
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[uint64]*Subscriber),
		buffer: buffer,
	}
}

func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscriber{id: h.nextID, frames: make(chan Frame, h.buffer)}
	if h.closed {
		close(sub.frames)
		return sub
	}
	h.subs[sub.id] = sub
	log.Debug().Uint64("subscriber", sub.id).Int("subscribers", len(h.subs)).Msg("Stream subscriber added")
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)
	close(sub.frames)
	log.Debug().
		Uint64("subscriber", sub.id).
		Int64("dropped", sub.Dropped()).
		Int("subscribers", len(h.subs)).
		Msg("Stream subscriber removed")
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish encodes the snapshot once and offers it to every subscriber.
func (h *Hub) Publish(snapshot engine.Snapshot, trades []engine.Trade) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.subs) == 0 {
		return
	}

	frame, err := Encode(snapshot, trades)
	if err != nil {
		log.Error().Err(err).Uint64("sequence", snapshot.Sequence).Msg("Failed to encode book frame")
		return
	}
	for _, sub := range h.subs {
		sub.offer(frame)
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.frames)
		delete(h.subs, id)
	}
}

func Encode(snapshot engine.Snapshot, trades []engine.Trade) (Frame, error) {
	data, err := json.Marshal(models.NewBookFrame(snapshot, trades))
	if err != nil {
		return Frame{}, err
	}
	return Frame{Sequence: snapshot.Sequence, Data: data}, nil
}
