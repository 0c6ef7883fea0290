package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	publishTimeout = 100 * time.Millisecond
	defaultBuffer  = 100
)

// MessageBus carries turn requests to the agent and results back to the
// source that sent them. A publish that cannot be queued within
// publishTimeout is dropped and counted.
type MessageBus struct {
	inbound  chan TurnRequest
	outbound chan TurnResult

	mu       sync.RWMutex
	handlers map[string]ResultHandler
	closed   bool

	accepted        atomic.Uint64
	answered        atomic.Uint64
	droppedInbound  atomic.Uint64
	droppedOutbound atomic.Uint64
}

// Stats is a point-in-time view of the bus counters.
type Stats struct {
	Accepted        uint64 `json:"accepted"`
	Answered        uint64 `json:"answered"`
	DroppedInbound  uint64 `json:"dropped_inbound"`
	DroppedOutbound uint64 `json:"dropped_outbound"`
	QueuedInbound   int    `json:"queued_inbound"`
	QueuedOutbound  int    `json:"queued_outbound"`
}

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(defaultBuffer)
}

func NewMessageBusSize(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &MessageBus{
		inbound:  make(chan TurnRequest, buffer),
		outbound: make(chan TurnResult, buffer),
		handlers: map[string]ResultHandler{},
	}
}

// PublishInbound queues req for the agent and reports whether it was
// accepted.
func (mb *MessageBus) PublishInbound(ctx context.Context, req TurnRequest) bool {
	if !enqueue(ctx, &mb.mu, &mb.closed, mb.inbound, req) {
		mb.droppedInbound.Add(1)
		return false
	}
	mb.accepted.Add(1)
	return true
}

// PublishOutbound queues a result for its source.
func (mb *MessageBus) PublishOutbound(res TurnResult) bool {
	if !enqueue(context.Background(), &mb.mu, &mb.closed, mb.outbound, res) {
		mb.droppedOutbound.Add(1)
		return false
	}
	mb.answered.Add(1)
	return true
}

func enqueue[T any](ctx context.Context, mu *sync.RWMutex, closed *bool, ch chan T, v T) bool {
	mu.RLock()
	defer mu.RUnlock()
	if *closed {
		return false
	}
	select {
	case ch <- v:
		return true
	default:
	}
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case ch <- v:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (TurnRequest, bool) {
	return receive(ctx, mb.inbound)
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (TurnResult, bool) {
	return receive(ctx, mb.outbound)
}

func receive[T any](ctx context.Context, ch chan T) (T, bool) {
	var zero T
	select {
	case v, ok := <-ch:
		if !ok {
			return zero, false
		}
		return v, true
	case <-ctx.Done():
		return zero, false
	}
}

func (mb *MessageBus) RegisterHandler(source string, handler ResultHandler) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.handlers[source] = handler
}

// Dispatch hands res to the handler registered for its source.
func (mb *MessageBus) Dispatch(res TurnResult) bool {
	mb.mu.RLock()
	handler, ok := mb.handlers[res.Source]
	mb.mu.RUnlock()
	if !ok {
		return false
	}
	handler(res)
	return true
}

// Close stops publishing; consumers drain what is queued and then see
// ok=false.
func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
	close(mb.outbound)
}

func (mb *MessageBus) Stats() Stats {
	return Stats{
		Accepted:        mb.accepted.Load(),
		Answered:        mb.answered.Load(),
		DroppedInbound:  mb.droppedInbound.Load(),
		DroppedOutbound: mb.droppedOutbound.Load(),
		QueuedInbound:   len(mb.inbound),
		QueuedOutbound:  len(mb.outbound),
	}
}
