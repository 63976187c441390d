// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package task holds the Contract-Net data model shared by the capability
// scorer and the CNP manager: the announcement a requester publishes and
// the bid a candidate submits in response.
package task

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/sipeed/swarmcore/pkg/identity"
	"github.com/sipeed/swarmcore/pkg/spatial"
)

// Announcement is a requester's immutable offer of a task to the agent
// pool, with a deadline and capability requirements.
type Announcement struct {
	id               string
	task             interface{}
	requesterID      identity.AgentId
	deadlineMs       int64
	requiredSkills   map[string]float64
	requiredTools    map[string]struct{}
	requiredLocation *spatial.Vec3i
}

// NewAnnouncementID generates an id of the form "ann_<base36-ts>_<6-hex>",
// unique under concurrent calls because it mixes a monotonic-ish timestamp
// with crypto-random bytes.
func NewAnnouncementID(nowMs int64) string {
	var buf [3]byte
	_, _ = rand.Read(buf[:])
	return "ann_" + strconv.FormatInt(nowMs, 36) + "_" + hex.EncodeToString(buf[:])
}

// AnnouncementOption configures an optional Announcement field.
type AnnouncementOption func(*Announcement)

// WithRequiredSkills sets the skill -> minimum-proficiency requirement map.
func WithRequiredSkills(skills map[string]float64) AnnouncementOption {
	return func(a *Announcement) {
		cp := make(map[string]float64, len(skills))
		for k, v := range skills {
			cp[strings.ToLower(k)] = v
		}
		a.requiredSkills = cp
	}
}

// WithRequiredTools sets the set of tools a bidder must hold.
func WithRequiredTools(tools []string) AnnouncementOption {
	return func(a *Announcement) {
		set := make(map[string]struct{}, len(tools))
		for _, t := range tools {
			set[strings.ToLower(t)] = struct{}{}
		}
		a.requiredTools = set
	}
}

// WithRequiredLocation sets the task's required position, used for
// distance-weighted scoring.
func WithRequiredLocation(pos spatial.Vec3i) AnnouncementOption {
	return func(a *Announcement) {
		a.requiredLocation = &pos
	}
}

// NewAnnouncement builds an Announcement. deadlineMs is an absolute
// epoch-ms deadline.
func NewAnnouncement(id string, t interface{}, requesterID identity.AgentId, deadlineMs int64, opts ...AnnouncementOption) *Announcement {
	a := &Announcement{
		id:          id,
		task:        t,
		requesterID: requesterID,
		deadlineMs:  deadlineMs,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Announcement) ID() string                  { return a.id }
func (a *Announcement) Task() interface{}            { return a.task }
func (a *Announcement) RequesterID() identity.AgentId { return a.requesterID }
func (a *Announcement) DeadlineMs() int64            { return a.deadlineMs }

// RequiredSkills returns an unmodifiable snapshot of skill -> minimum
// proficiency requirements.
func (a *Announcement) RequiredSkills() map[string]float64 {
	cp := make(map[string]float64, len(a.requiredSkills))
	for k, v := range a.requiredSkills {
		cp[k] = v
	}
	return cp
}

// RequiredTools returns an unmodifiable snapshot of the required tool set.
func (a *Announcement) RequiredTools() map[string]struct{} {
	cp := make(map[string]struct{}, len(a.requiredTools))
	for k := range a.requiredTools {
		cp[k] = struct{}{}
	}
	return cp
}

// RequiredLocation returns the required position and whether one is set.
func (a *Announcement) RequiredLocation() (spatial.Vec3i, bool) {
	if a.requiredLocation == nil {
		return spatial.Vec3i{}, false
	}
	return *a.requiredLocation, true
}

// IsExpired compares the deadline against the given current time.
func (a *Announcement) IsExpired(nowMs int64) bool {
	return nowMs >= a.deadlineMs
}

// RemainingTime returns max(0, deadline-now) as a duration.
func (a *Announcement) RemainingTime(nowMs int64) time.Duration {
	remaining := a.deadlineMs - nowMs
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining) * time.Millisecond
}
