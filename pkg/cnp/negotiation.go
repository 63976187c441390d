// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package cnp implements the Contract-Net Manager: announcement, bidding,
// winner selection, and contract award over the negotiations the swarm
// tracks for each announced task.
package cnp

import (
	"sort"
	"sync"

	"github.com/sipeed/swarmcore/pkg/identity"
	"github.com/sipeed/swarmcore/pkg/task"
)

// State is a Negotiation's lifecycle stage.
type State string

const (
	Announced State = "ANNOUNCED"
	Bidding   State = "BIDDING"
	Awarded   State = "AWARDED"
	Completed State = "COMPLETED"
	Failed    State = "FAILED"
	Expired   State = "EXPIRED"
)

func (s State) isClosed() bool {
	switch s {
	case Awarded, Completed, Failed, Expired:
		return true
	default:
		return false
	}
}

// Negotiation tracks one announcement's bidding and award lifecycle. Every
// field is guarded by mu; mutation happens only through Manager methods,
// which hold mu for the whole compound check-then-act operation.
type Negotiation struct {
	announcement *task.Announcement

	mu           sync.Mutex
	state        State
	bids         []task.Bid
	winningBid   *task.Bid
	awardedAgent identity.AgentId
	closedMs     int64
}

func newNegotiation(ann *task.Announcement) *Negotiation {
	return &Negotiation{
		announcement: ann,
		state:        Announced,
	}
}

func (n *Negotiation) Announcement() *task.Announcement { return n.announcement }

func (n *Negotiation) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Bids returns a snapshot of all bids received so far.
func (n *Negotiation) Bids() []task.Bid {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]task.Bid, len(n.bids))
	copy(out, n.bids)
	return out
}

// WinningBid returns the awarded bid, if any.
func (n *Negotiation) WinningBid() (task.Bid, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.winningBid == nil {
		return task.Bid{}, false
	}
	return *n.winningBid, true
}

// AwardedAgent returns the agent the contract was awarded to, if any.
func (n *Negotiation) AwardedAgent() (identity.AgentId, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.winningBid == nil {
		return identity.AgentId{}, false
	}
	return n.awardedAgent, true
}

// ClosedMs returns the timestamp at which this negotiation closed, or 0.
func (n *Negotiation) ClosedMs() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closedMs
}

func (n *Negotiation) hasBidFromLocked(bidder identity.AgentId) bool {
	for _, b := range n.bids {
		if b.BidderID.Equal(bidder) {
			return true
		}
	}
	return false
}

// expireIfPastDeadlineLocked transitions to EXPIRED exactly once if the
// announcement deadline has passed and the negotiation is still open.
// Caller must hold n.mu. Returns whether this call performed the
// transition (i.e. the expiration listener should fire).
func (n *Negotiation) expireIfPastDeadlineLocked(nowMs int64) bool {
	if n.state.isClosed() {
		return false
	}
	if !n.announcement.IsExpired(nowMs) {
		return false
	}
	n.state = Expired
	n.closedMs = nowMs
	return true
}

// bestBid implements the spec's total order: bidValue desc, estimatedTime
// asc, confidence desc, bidderId lexicographic asc.
func bestBid(bids []task.Bid) (task.Bid, bool) {
	if len(bids) == 0 {
		return task.Bid{}, false
	}
	sorted := make([]task.Bid, len(bids))
	copy(sorted, bids)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.BidValue() != b.BidValue() {
			return a.BidValue() > b.BidValue()
		}
		if a.EstimatedTimeMs != b.EstimatedTimeMs {
			return a.EstimatedTimeMs < b.EstimatedTimeMs
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.BidderID.String() < b.BidderID.String()
	})
	return sorted[0], true
}
