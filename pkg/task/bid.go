// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package task

import (
	"github.com/sipeed/swarmcore/pkg/identity"
)

// Conventional capability map keys populated by Capability.CreateBid.
const (
	CapKeyProficiencies = "proficiencies"
	CapKeyTools         = "tools"
	CapKeyDistance      = "distance"
	CapKeyCurrentLoad   = "currentLoad"
)

// Bid is an immutable offer to execute an announced task. Two bids are
// equal iff they share (AnnouncementID, BidderID) — a bidder gets exactly
// one offer per announcement.
type Bid struct {
	AnnouncementID string
	BidderID       identity.AgentId
	Score          float64
	EstimatedTimeMs int64
	Confidence     float64
	Capabilities   map[string]interface{}
}

// BidValue is the primary ordering key for winner selection:
// (score * confidence) / max(1, estimatedSeconds).
func (b Bid) BidValue() float64 {
	seconds := float64(b.EstimatedTimeMs) / 1000.0
	if seconds < 1.0 {
		seconds = 1.0
	}
	return (b.Score * b.Confidence) / seconds
}

// Equal implements the spec's (announcementId, bidderId)-only equality.
func (b Bid) Equal(other Bid) bool {
	return b.AnnouncementID == other.AnnouncementID && b.BidderID.Equal(other.BidderID)
}
