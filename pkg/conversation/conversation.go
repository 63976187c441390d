// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package conversation implements the Conversation state machine: a
// multi-party exchange of Bus messages with pause/resume and idle timeout.
package conversation

import (
	"sync"
	"time"

	"github.com/sipeed/swarmcore/pkg/corerr"
	"github.com/sipeed/swarmcore/pkg/identity"
	"github.com/sipeed/swarmcore/pkg/message"
)

// State is a Conversation's lifecycle stage.
type State string

const (
	Initiated State = "INITIATED"
	Active    State = "ACTIVE"
	Paused    State = "PAUSED"
	Completed State = "COMPLETED"
	TimedOut  State = "TIMED_OUT"
)

func (s State) isTerminal() bool {
	return s == Completed || s == TimedOut
}

// Conversation tracks a sequence of messages among a fixed set of
// participants, transitioning strictly through its state machine.
type Conversation struct {
	mu             sync.RWMutex
	id             identity.Id
	participants   map[identity.AgentId]struct{}
	state          State
	messages       []*message.Message
	timeoutAfter   time.Duration
	lastActivityMs int64
	clock          identity.Clock
}

// New creates an INITIATED conversation among participants with the given
// idle timeout.
func New(id identity.Id, participants []identity.AgentId, timeoutAfter time.Duration, clock identity.Clock) *Conversation {
	if clock == nil {
		clock = identity.SystemClock
	}
	set := make(map[identity.AgentId]struct{}, len(participants))
	for _, p := range participants {
		set[p] = struct{}{}
	}
	return &Conversation{
		id:             id,
		participants:   set,
		state:          Initiated,
		timeoutAfter:   timeoutAfter,
		lastActivityMs: clock.NowMs(),
		clock:          clock,
	}
}

func (c *Conversation) ID() identity.Id { return c.id }

func (c *Conversation) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Involves reports whether both a and b are participants.
func (c *Conversation) Involves(a, b identity.AgentId) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, okA := c.participants[a]
	_, okB := c.participants[b]
	return okA && okB
}

// AddMessage appends m, which must be from a participant. If the
// conversation is INITIATED, it transitions to ACTIVE.
func (c *Conversation) AddMessage(m *message.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.participants[m.SenderID()]; !ok {
		return corerr.New(corerr.InvalidArg, "conversation: sender %s is not a participant", m.SenderID())
	}

	c.messages = append(c.messages, m)
	c.lastActivityMs = c.clock.NowMs()
	if c.state == Initiated {
		c.state = Active
	}
	return nil
}

// Pause transitions ACTIVE -> PAUSED.
func (c *Conversation) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Active {
		return corerr.New(corerr.InvalidState, "conversation: cannot pause from %s", c.state)
	}
	c.state = Paused
	return nil
}

// Resume transitions PAUSED -> ACTIVE.
func (c *Conversation) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return corerr.New(corerr.InvalidState, "conversation: cannot resume from %s", c.state)
	}
	c.state = Active
	return nil
}

// Complete transitions any non-terminal state to COMPLETED.
func (c *Conversation) Complete() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.isTerminal() {
		return corerr.New(corerr.InvalidState, "conversation: already terminal (%s)", c.state)
	}
	c.state = Completed
	return nil
}

// Timeout forces a transition to TIMED_OUT from any state.
func (c *Conversation) Timeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = TimedOut
}

// CheckTimeout transitions to TIMED_OUT if timeoutAfter has elapsed since
// the last activity and the conversation is not already terminal. Returns
// whether a transition occurred.
func (c *Conversation) CheckTimeout(nowMs int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.isTerminal() {
		return false
	}
	if c.timeoutAfter <= 0 {
		return false
	}
	if nowMs-c.lastActivityMs < c.timeoutAfter.Milliseconds() {
		return false
	}
	c.state = TimedOut
	return true
}

// GetLastFrom returns the most recent message sent by agentID.
func (c *Conversation) GetLastFrom(agentID identity.AgentId) (*message.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].SenderID().Equal(agentID) {
			return c.messages[i], true
		}
	}
	return nil, false
}

// GetMessagesOfType returns all messages of the given type, in order.
func (c *Conversation) GetMessagesOfType(t message.Type) []*message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*message.Message, 0)
	for _, m := range c.messages {
		if m.Type() == t {
			out = append(out, m)
		}
	}
	return out
}

// Messages returns a snapshot of every message added so far.
func (c *Conversation) Messages() []*message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*message.Message, len(c.messages))
	copy(out, c.messages)
	return out
}
