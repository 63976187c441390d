// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package identity provides the opaque identifiers and monotonic clock the
// swarm core builds everything else on: AgentId, message/announcement/bid
// Id, and correlation ids. Generation is injectable so tests can produce
// deterministic sequences without depending on a process-wide singleton.
package identity

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// AgentId is an opaque, globally unique identifier for an agent. It is a
// value type: two AgentIds are equal iff their underlying values match.
type AgentId struct {
	value string
}

// NewAgentId creates a fresh, random AgentId.
func NewAgentId() AgentId {
	return AgentId{value: uuid.New().String()}
}

// ParseAgentId builds an AgentId from its string form. The core treats the
// value as opaque, so any non-empty string round-trips.
func ParseAgentId(s string) (AgentId, error) {
	if s == "" {
		return AgentId{}, fmt.Errorf("agent id: empty value")
	}
	return AgentId{value: s}, nil
}

func (a AgentId) String() string { return a.value }

// IsZero reports whether this is the zero-value AgentId (never assigned).
func (a AgentId) IsZero() bool { return a.value == "" }

// Equal compares two AgentIds by value.
func (a AgentId) Equal(other AgentId) bool { return a.value == other.value }

// Id is an opaque unique identifier used for messages, announcements, bids,
// and correlation tokens. Distinct from AgentId only by intent, not by
// representation, matching the teacher's habit of keeping identifier types
// thin wrappers rather than a single untyped string threaded everywhere.
type Id struct {
	value string
}

// NewId creates a fresh, time-sortable Id using a ULID, so ids generated in
// the same tick naturally sort in creation order.
func NewId() Id {
	return Id{value: ulid.Make().String()}
}

func (i Id) String() string  { return i.value }
func (i Id) IsZero() bool    { return i.value == "" }
func (i Id) Equal(o Id) bool { return i.value == o.value }

// Generator produces AgentIds and Ids. The default implementation is
// process-wide but stateless (safe for concurrent use); tests may supply a
// deterministic Generator instead, per the core's "no hidden globals" rule.
type Generator interface {
	NewAgentId() AgentId
	NewId() Id
}

type defaultGenerator struct{}

func (defaultGenerator) NewAgentId() AgentId { return NewAgentId() }
func (defaultGenerator) NewId() Id           { return NewId() }

// DefaultGenerator is the process-wide identity generator. It is the one
// permissible singleton the core ships with (spec §9 design notes); every
// component that needs ids also accepts an injected Generator for tests.
var DefaultGenerator Generator = defaultGenerator{}
