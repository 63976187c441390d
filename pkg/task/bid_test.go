// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package task

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sipeed/swarmcore/pkg/identity"
)

func TestBidValue_FasterBidsScoreHigher(t *testing.T) {
	bidder := identity.NewAgentId()
	fast := Bid{AnnouncementID: "a", BidderID: bidder, Score: 0.8, Confidence: 1.0, EstimatedTimeMs: 1000}
	slow := Bid{AnnouncementID: "a", BidderID: bidder, Score: 0.8, Confidence: 1.0, EstimatedTimeMs: 10000}

	assert.True(t, fast.BidValue() > slow.BidValue())
}

func TestBidValue_ClampsSubSecondEstimates(t *testing.T) {
	b := Bid{Score: 1.0, Confidence: 1.0, EstimatedTimeMs: 100}
	assert.Equal(t, 1.0, b.BidValue())
}

func TestBidEqual_ByAnnouncementAndBidderOnly(t *testing.T) {
	bidder := identity.NewAgentId()
	a := Bid{AnnouncementID: "ann1", BidderID: bidder, Score: 0.1}
	b := Bid{AnnouncementID: "ann1", BidderID: bidder, Score: 0.9}

	assert.True(t, a.Equal(b))
}

func TestBidEqual_DifferentBidderNotEqual(t *testing.T) {
	a := Bid{AnnouncementID: "ann1", BidderID: identity.NewAgentId()}
	b := Bid{AnnouncementID: "ann1", BidderID: identity.NewAgentId()}

	assert.False(t, a.Equal(b))
}
