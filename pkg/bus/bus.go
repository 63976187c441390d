// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package bus implements the swarm Message Bus: per-agent FIFO queues
// drained cooperatively by Tick, request/response correlation, a bounded
// history ring, and delivery statistics.
package bus

import (
	"sync"
	"time"

	"github.com/sipeed/swarmcore/internal/corelog"
	"github.com/sipeed/swarmcore/pkg/corerr"
	"github.com/sipeed/swarmcore/pkg/identity"
	"github.com/sipeed/swarmcore/pkg/message"
)

const component = "bus"

// historyCapacity bounds the ring buffer of sent messages kept for
// GetHistory; messages are recorded when enqueued, not when delivered.
const historyCapacity = 1024

// MessageHandler processes a message delivered during Tick.
type MessageHandler interface {
	HandleMessage(m *message.Message)
}

// MessageHandlerFunc adapts a plain function to MessageHandler.
type MessageHandlerFunc func(m *message.Message)

func (f MessageHandlerFunc) HandleMessage(m *message.Message) { f(m) }

// Stats is a snapshot of bus delivery counters.
type Stats struct {
	Sent       int64
	Delivered  int64
	Received   int64
	Failed     int64
	SentByType map[message.Type]int64
}

// waiter tracks one SendRequest caller's outstanding correlation. agentID
// is the requester, recorded so Unregister can cancel its waiters; a nil
// message delivered on ch signals cancellation rather than a response.
type waiter struct {
	ch      chan *message.Message
	agentID identity.AgentId
}

// Bus is the thread-safe, single-threaded-cooperative message bus.
type Bus struct {
	mu       sync.Mutex
	handlers map[identity.AgentId]MessageHandler
	order    []identity.AgentId
	queues   map[identity.AgentId][]*message.Message

	pendingMu sync.Mutex
	pending   map[identity.Id]*waiter

	historyMu sync.Mutex
	history   []*message.Message

	statsMu    sync.Mutex
	sent       int64
	delivered  int64
	received   int64
	failed     int64
	sentByType map[message.Type]int64

	running bool

	historyCapacity       int
	defaultRequestTimeout time.Duration

	clock identity.Clock
	gen   identity.Generator
}

// Option configures optional Bus fields at construction time, letting a
// host thread its BusConfig defaults through New.
type Option func(*Bus)

// WithHistoryCapacity overrides the default 1024-message history ring
// bound. Values <= 0 are ignored.
func WithHistoryCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.historyCapacity = n
		}
	}
}

// WithDefaultRequestTimeout sets the timeout SendRequestDefault uses in
// place of an explicit per-call value. Values <= 0 are ignored.
func WithDefaultRequestTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.defaultRequestTimeout = d
		}
	}
}

// New creates an empty, running Bus.
func New(clock identity.Clock, gen identity.Generator, opts ...Option) *Bus {
	if clock == nil {
		clock = identity.SystemClock
	}
	if gen == nil {
		gen = identity.DefaultGenerator
	}
	b := &Bus{
		handlers:              make(map[identity.AgentId]MessageHandler),
		queues:                make(map[identity.AgentId][]*message.Message),
		pending:               make(map[identity.Id]*waiter),
		sentByType:            make(map[message.Type]int64),
		running:               true,
		historyCapacity:       historyCapacity,
		defaultRequestTimeout: 5 * time.Second,
		clock:                 clock,
		gen:                   gen,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register attaches a handler for id. Fails with INVALID_ARG on a zero id
// or nil handler.
func (b *Bus) Register(id identity.AgentId, handler MessageHandler) error {
	if id.IsZero() || handler == nil {
		return corerr.New(corerr.InvalidArg, "bus: register requires a non-zero id and non-nil handler")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[id]; !exists {
		b.order = append(b.order, id)
	}
	b.handlers[id] = handler
	if _, ok := b.queues[id]; !ok {
		b.queues[id] = nil
	}
	return nil
}

// Unregister removes the handler and drops the pending queue for id.
// Subsequent messages addressed to id count as failed. Any SendRequest
// calls still outstanding on behalf of id are resolved with CANCELLED
// (spec: unregistering an agent with outstanding request waiters cancels
// them).
func (b *Bus) Unregister(id identity.AgentId) {
	b.mu.Lock()
	delete(b.handlers, id)
	delete(b.queues, id)
	for i, existing := range b.order {
		if existing.Equal(id) {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	b.cancelWaitersFor(id)
}

func (b *Bus) cancelWaitersFor(id identity.AgentId) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	for corrID, w := range b.pending {
		if !w.agentID.Equal(id) {
			continue
		}
		delete(b.pending, corrID)
		select {
		case w.ch <- nil:
		default:
		}
	}
}

// Send enqueues m for its recipient. If the recipient is unknown, the
// message is dropped and counted as failed. A nil-recipient message is
// routed like a Broadcast to preserve per-recipient ordering.
func (b *Bus) Send(m *message.Message) {
	recipient, ok := m.RecipientID()
	if !ok {
		b.Broadcast(m)
		return
	}

	b.mu.Lock()
	_, known := b.handlers[recipient]
	if known {
		b.queues[recipient] = append(b.queues[recipient], m)
	}
	b.mu.Unlock()

	if !known {
		b.bumpFailed()
		return
	}

	b.appendHistory(m)
	b.bumpSent(m.Type())
}

// Broadcast enqueues m to every registered agent except its sender.
func (b *Bus) Broadcast(m *message.Message) {
	sender := m.SenderID()

	b.mu.Lock()
	for id := range b.handlers {
		if id.Equal(sender) {
			continue
		}
		b.queues[id] = append(b.queues[id], m)
	}
	b.mu.Unlock()

	b.appendHistory(m)
	b.bumpSent(m.Type())
}

// SendRequest enqueues m, correlating it against a fresh id if it does not
// already carry one (the enqueued message is then a copy of m carrying that
// id, so the recipient can echo it back), and blocks until a correlated
// RESPONSE arrives or timeout elapses.
func (b *Bus) SendRequest(m *message.Message, timeout time.Duration) (*message.Message, error) {
	corrID, ok := m.CorrelationID()
	if !ok {
		corrID = b.gen.NewId()
		opts := []message.Option{message.WithPayload(m.Payload()), message.WithCorrelationID(corrID)}
		var err error
		if recipient, addressed := m.RecipientID(); addressed {
			m, err = message.New(b.clock, b.gen, m.SenderID(), recipient, m.Type(), m.Content(), opts...)
		} else {
			m, err = message.NewBroadcast(b.clock, b.gen, m.SenderID(), m.Type(), m.Content(), opts...)
		}
		if err != nil {
			return nil, err
		}
	}

	w := &waiter{ch: make(chan *message.Message, 1), agentID: m.SenderID()}
	b.pendingMu.Lock()
	b.pending[corrID] = w
	b.pendingMu.Unlock()

	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, corrID)
		b.pendingMu.Unlock()
	}()

	b.Send(m)

	select {
	case resp := <-w.ch:
		if resp == nil {
			return nil, corerr.New(corerr.Cancelled, "bus: request %s cancelled: requester %s unregistered", corrID, m.SenderID())
		}
		return resp, nil
	case <-time.After(timeout):
		return nil, corerr.New(corerr.Timeout, "bus: request %s timed out waiting for response", corrID)
	}
}

// SendRequestDefault is SendRequest using the configured default timeout
// (WithDefaultRequestTimeout, 5s otherwise) instead of a per-call value.
func (b *Bus) SendRequestDefault(m *message.Message) (*message.Message, error) {
	return b.SendRequest(m, b.defaultRequestTimeout)
}

// SendResponse delivers m, which must carry a correlation id, to a waiting
// SendRequest caller if one exists; otherwise it enters the normal queue.
func (b *Bus) SendResponse(m *message.Message) error {
	corrID, ok := m.CorrelationID()
	if !ok {
		return corerr.New(corerr.InvalidArg, "bus: response must carry a correlation id")
	}

	b.pendingMu.Lock()
	w, waiting := b.pending[corrID]
	if waiting {
		delete(b.pending, corrID)
	}
	b.pendingMu.Unlock()

	if waiting {
		b.appendHistory(m)
		b.bumpSent(m.Type())
		select {
		case w.ch <- m:
		default:
		}
		return nil
	}

	b.Send(m)
	return nil
}

// Tick drains every registered queue exactly once, in registration order,
// each to empty in FIFO order. A no-op once the bus has been shut down.
func (b *Bus) Tick() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	ids := make([]identity.AgentId, len(b.order))
	copy(ids, b.order)
	b.mu.Unlock()

	for _, id := range ids {
		b.drainOne(id)
	}
}

func (b *Bus) drainOne(id identity.AgentId) {
	for {
		b.mu.Lock()
		q := b.queues[id]
		if len(q) == 0 {
			b.mu.Unlock()
			return
		}
		m := q[0]
		b.queues[id] = q[1:]
		handler := b.handlers[id]
		b.mu.Unlock()

		if handler == nil {
			b.bumpFailed()
			continue
		}
		b.deliver(handler, m)
	}
}

func (b *Bus) deliver(handler MessageHandler, m *message.Message) {
	defer func() {
		if r := recover(); r != nil {
			corelog.WarnF(component, "handler panicked, message marked failed", map[string]any{"recover": r})
			b.bumpFailed()
		}
	}()
	handler.HandleMessage(m)
	b.bumpDelivered()
	b.bumpReceived()
}

// Shutdown flips running to false; subsequent Tick calls are a no-op.
// Send/Broadcast still update counters but messages are never delivered.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
}

// Clear empties all queues without shutting down the bus.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.queues {
		b.queues[id] = nil
	}
}

func (b *Bus) appendHistory(m *message.Message) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	b.history = append(b.history, m)
	if len(b.history) > b.historyCapacity {
		b.history = b.history[len(b.history)-b.historyCapacity:]
	}
}

// GetHistory returns up to n most-recent messages, newest first.
func (b *Bus) GetHistory(n int) []*message.Message {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	if n <= 0 || len(b.history) == 0 {
		return nil
	}
	if n > len(b.history) {
		n = len(b.history)
	}
	out := make([]*message.Message, n)
	for i := 0; i < n; i++ {
		out[i] = b.history[len(b.history)-1-i]
	}
	return out
}

func (b *Bus) bumpSent(t message.Type) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	b.sent++
	b.sentByType[t]++
}

func (b *Bus) bumpDelivered() {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	b.delivered++
}

func (b *Bus) bumpReceived() {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	b.received++
}

func (b *Bus) bumpFailed() {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	b.failed++
}

// GetStats returns a snapshot of delivery counters.
func (b *Bus) GetStats() Stats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	byType := make(map[message.Type]int64, len(b.sentByType))
	for k, v := range b.sentByType {
		byType[k] = v
	}
	return Stats{
		Sent:       b.sent,
		Delivered:  b.delivered,
		Received:   b.received,
		Failed:     b.failed,
		SentByType: byType,
	}
}
