// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package cnp

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sipeed/swarmcore/internal/corelog"
	"github.com/sipeed/swarmcore/pkg/identity"
	"github.com/sipeed/swarmcore/pkg/task"
)

const component = "cnp"

// defaultDeadline is used by AnnounceTask when the caller doesn't specify
// one.
const defaultDeadline = 30 * time.Second

// defaultCleanupGrace is how long a closed negotiation lingers before
// Cleanup removes it, absent an explicit configuration.
const defaultCleanupGrace = 5 * time.Minute

// ContractListener observes Manager lifecycle events.
type ContractListener interface {
	OnAnnouncement(ann *task.Announcement)
	OnBidSubmitted(announcementID string, bid task.Bid)
	OnContractAwarded(announcementID string, bid task.Bid)
	OnNegotiationExpired(announcementID string)
}

// NoopListener is embeddable so callers only override the hooks they need.
type NoopListener struct{}

func (NoopListener) OnAnnouncement(*task.Announcement)   {}
func (NoopListener) OnBidSubmitted(string, task.Bid)     {}
func (NoopListener) OnContractAwarded(string, task.Bid)  {}
func (NoopListener) OnNegotiationExpired(string)         {}

// Manager is the Contract-Net Manager: it tracks one Negotiation per
// announced task and drives it through bidding to award or expiration.
type Manager struct {
	mu           sync.RWMutex
	negotiations map[string]*Negotiation
	listeners    []ContractListener

	cleanupGrace    time.Duration
	defaultDeadline time.Duration
	clock           identity.Clock
	gen             identity.Generator

	announceLimiter *rate.Limiter
}

// Option configures optional Manager fields.
type Option func(*Manager)

// WithCleanupGrace overrides the default 5-minute grace window Cleanup
// waits before removing closed negotiations.
func WithCleanupGrace(d time.Duration) Option {
	return func(m *Manager) { m.cleanupGrace = d }
}

// WithDefaultDeadline overrides the 30s deadline AnnounceTask falls back to
// when called with deadline <= 0.
func WithDefaultDeadline(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.defaultDeadline = d
		}
	}
}

// WithAnnounceRateLimit throttles AnnounceTask to at most r announcements
// per second, with bursts up to burst. Guards against a misbehaving
// requester flooding the swarm with announcements faster than agents can
// bid on them.
func WithAnnounceRateLimit(r float64, burst int) Option {
	return func(m *Manager) { m.announceLimiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// New creates an empty Manager. clock/gen may be nil to use the process
// defaults.
func New(clock identity.Clock, gen identity.Generator, opts ...Option) *Manager {
	if clock == nil {
		clock = identity.SystemClock
	}
	if gen == nil {
		gen = identity.DefaultGenerator
	}
	m := &Manager{
		negotiations:    make(map[string]*Negotiation),
		cleanupGrace:    defaultCleanupGrace,
		defaultDeadline: defaultDeadline,
		clock:           clock,
		gen:             gen,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddListener registers a listener for future lifecycle events.
func (m *Manager) AddListener(l ContractListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) listenerSnapshot() []ContractListener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ContractListener, len(m.listeners))
	copy(out, m.listeners)
	return out
}

// AnnounceTask constructs an Announcement for t, creates its Negotiation in
// ANNOUNCED, and notifies OnAnnouncement. When deadline <= 0 the Manager's
// default deadline is used (30s unless set with WithDefaultDeadline).
// If a rate limit is configured (WithAnnounceRateLimit), this blocks until a
// token is available.
func (m *Manager) AnnounceTask(t interface{}, requester identity.AgentId, deadline time.Duration, opts ...task.AnnouncementOption) string {
	if m.announceLimiter != nil {
		_ = m.announceLimiter.Wait(context.Background())
	}
	if deadline <= 0 {
		deadline = m.defaultDeadline
	}
	now := m.clock.NowMs()
	id := task.NewAnnouncementID(now)
	ann := task.NewAnnouncement(id, t, requester, now+deadline.Milliseconds(), opts...)

	neg := newNegotiation(ann)
	m.mu.Lock()
	m.negotiations[id] = neg
	m.mu.Unlock()

	m.notifyAnnouncement(ann)
	return id
}

// SubmitBid rejects the bid (returning false) if the announcement is
// unknown, the negotiation is closed or newly expired, or the bidder
// already has a bid on file. Otherwise it appends the bid, transitioning
// ANNOUNCED -> BIDDING on the first bid, and notifies OnBidSubmitted.
func (m *Manager) SubmitBid(bid task.Bid) bool {
	neg := m.get(bid.AnnouncementID)
	if neg == nil {
		return false
	}

	now := m.clock.NowMs()

	neg.mu.Lock()
	if neg.expireIfPastDeadlineLocked(now) {
		neg.mu.Unlock()
		m.notifyExpired(bid.AnnouncementID)
		return false
	}
	if neg.state.isClosed() {
		neg.mu.Unlock()
		return false
	}
	if neg.hasBidFromLocked(bid.BidderID) {
		neg.mu.Unlock()
		return false
	}

	neg.bids = append(neg.bids, bid)
	if neg.state == Announced {
		neg.state = Bidding
	}
	neg.mu.Unlock()

	m.notifyBidSubmitted(bid.AnnouncementID, bid)
	return true
}

// SelectWinner returns the best bid under the spec's total order without
// mutating state. Returns false when there are no bids or the id is
// unknown.
func (m *Manager) SelectWinner(announcementID string) (task.Bid, bool) {
	neg := m.get(announcementID)
	if neg == nil {
		return task.Bid{}, false
	}
	return bestBid(neg.Bids())
}

// AwardContract requires bid to exist in the negotiation and the
// negotiation to be open. Transitions to AWARDED, records the winner, and
// notifies OnContractAwarded. Awarding twice fails (returns false).
func (m *Manager) AwardContract(announcementID string, bid task.Bid) bool {
	neg := m.get(announcementID)
	if neg == nil {
		return false
	}

	now := m.clock.NowMs()

	neg.mu.Lock()
	if neg.expireIfPastDeadlineLocked(now) {
		neg.mu.Unlock()
		m.notifyExpired(announcementID)
		return false
	}
	if neg.state.isClosed() {
		neg.mu.Unlock()
		return false
	}
	if !neg.hasBidFromLocked(bid.BidderID) {
		neg.mu.Unlock()
		return false
	}

	winner := bid
	neg.winningBid = &winner
	neg.awardedAgent = bid.BidderID
	neg.state = Awarded
	neg.closedMs = now
	neg.mu.Unlock()

	m.notifyAwarded(announcementID, bid)
	return true
}

// AwardToBestBidder selects the best bid and awards it in one step.
func (m *Manager) AwardToBestBidder(announcementID string) (task.Bid, bool) {
	best, ok := m.SelectWinner(announcementID)
	if !ok {
		return task.Bid{}, false
	}
	if !m.AwardContract(announcementID, best) {
		return task.Bid{}, false
	}
	return best, true
}

// CloseNegotiation forces a transition to a terminal state. A no-op on an
// unknown id.
func (m *Manager) CloseNegotiation(announcementID string, state State) {
	if !state.isClosed() {
		return
	}
	neg := m.get(announcementID)
	if neg == nil {
		return
	}
	neg.mu.Lock()
	neg.state = state
	neg.closedMs = m.clock.NowMs()
	neg.mu.Unlock()
}

// Cleanup removes negotiations that are EXPIRED and past deadline, or
// closed and older than the configured grace window. Returns the count
// removed.
func (m *Manager) Cleanup() int {
	now := m.clock.NowMs()
	graceMs := m.cleanupGrace.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, neg := range m.negotiations {
		neg.mu.Lock()
		eligible := neg.state == Expired && neg.announcement.IsExpired(now)
		if !eligible && neg.state.isClosed() {
			eligible = now-neg.closedMs > graceMs
		}
		neg.mu.Unlock()

		if eligible {
			delete(m.negotiations, id)
			removed++
		}
	}
	return removed
}

// Get returns the negotiation for announcementID, if any.
func (m *Manager) Get(announcementID string) (*Negotiation, bool) {
	neg := m.get(announcementID)
	return neg, neg != nil
}

func (m *Manager) get(announcementID string) *Negotiation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.negotiations[announcementID]
}

func (m *Manager) notifyAnnouncement(ann *task.Announcement) {
	for _, l := range m.listenerSnapshot() {
		safeCall(func() { l.OnAnnouncement(ann) })
	}
}

func (m *Manager) notifyBidSubmitted(announcementID string, bid task.Bid) {
	for _, l := range m.listenerSnapshot() {
		safeCall(func() { l.OnBidSubmitted(announcementID, bid) })
	}
}

func (m *Manager) notifyAwarded(announcementID string, bid task.Bid) {
	for _, l := range m.listenerSnapshot() {
		safeCall(func() { l.OnContractAwarded(announcementID, bid) })
	}
}

func (m *Manager) notifyExpired(announcementID string) {
	for _, l := range m.listenerSnapshot() {
		safeCall(func() { l.OnNegotiationExpired(announcementID) })
	}
}

func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			corelog.WarnF(component, "listener panicked", map[string]any{"recover": r})
		}
	}()
	fn()
}
