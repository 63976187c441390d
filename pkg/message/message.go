// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

// Package message defines the immutable Message exchanged over the swarm
// Bus: typed, addressed (direct or broadcast), and optionally correlated to
// a prior request.
package message

import (
	"github.com/sipeed/swarmcore/pkg/corerr"
	"github.com/sipeed/swarmcore/pkg/identity"
)

// Type is the message's tag. It is a plain string rather than a closed
// enum so the set can grow without breaking code that switches on known
// values (spec: "extending this set must not break deserialization-style
// code").
type Type string

const (
	StatusUpdate Type = "STATUS_UPDATE"
	Coordination Type = "COORDINATION"
	Alert        Type = "ALERT"
	Query        Type = "QUERY"
	Response     Type = "RESPONSE"
)

// Message is immutable once constructed. All fields are read through
// accessors so callers cannot mutate shared state after delivery.
type Message struct {
	senderID      identity.AgentId
	recipientID   *identity.AgentId
	msgType       Type
	content       string
	payload       map[string]interface{}
	correlationID *identity.Id
	timestampMs   int64
	messageID     identity.Id
}

// Option configures an optional Message field at construction time.
type Option func(*Message)

// WithPayload attaches a payload map. The map is copied defensively.
func WithPayload(payload map[string]interface{}) Option {
	return func(m *Message) {
		if len(payload) == 0 {
			return
		}
		cp := make(map[string]interface{}, len(payload))
		for k, v := range payload {
			cp[k] = v
		}
		m.payload = cp
	}
}

// WithCorrelationID marks this message as correlated to a prior request,
// i.e. a response.
func WithCorrelationID(id identity.Id) Option {
	return func(m *Message) {
		m.correlationID = &id
	}
}

// New constructs a direct message from sender to recipient. content must be
// non-empty or New fails with INVALID_ARG.
func New(clock identity.Clock, gen identity.Generator, sender identity.AgentId, recipient identity.AgentId, msgType Type, content string, opts ...Option) (*Message, error) {
	return build(clock, gen, sender, &recipient, msgType, content, opts...)
}

// NewBroadcast constructs a message with no recipient (isBroadcast() == true).
func NewBroadcast(clock identity.Clock, gen identity.Generator, sender identity.AgentId, msgType Type, content string, opts ...Option) (*Message, error) {
	return build(clock, gen, sender, nil, msgType, content, opts...)
}

func build(clock identity.Clock, gen identity.Generator, sender identity.AgentId, recipient *identity.AgentId, msgType Type, content string, opts ...Option) (*Message, error) {
	if sender.IsZero() {
		return nil, corerr.New(corerr.InvalidArg, "message: sender id is required")
	}
	if content == "" {
		return nil, corerr.New(corerr.InvalidArg, "message: content is required")
	}
	if msgType == "" {
		return nil, corerr.New(corerr.InvalidArg, "message: type is required")
	}

	m := &Message{
		senderID:    sender,
		recipientID: recipient,
		msgType:     msgType,
		content:     content,
		timestampMs: clock.NowMs(),
		messageID:   gen.NewId(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Message) SenderID() identity.AgentId { return m.senderID }

// RecipientID returns the recipient and whether this message is addressed
// (false for a broadcast).
func (m *Message) RecipientID() (identity.AgentId, bool) {
	if m.recipientID == nil {
		return identity.AgentId{}, false
	}
	return *m.recipientID, true
}

func (m *Message) Type() Type       { return m.msgType }
func (m *Message) Content() string  { return m.content }
func (m *Message) TimestampMs() int64 { return m.timestampMs }
func (m *Message) MessageID() identity.Id { return m.messageID }

// Payload returns an unmodifiable snapshot of the payload map.
func (m *Message) Payload() map[string]interface{} {
	if len(m.payload) == 0 {
		return map[string]interface{}{}
	}
	cp := make(map[string]interface{}, len(m.payload))
	for k, v := range m.payload {
		cp[k] = v
	}
	return cp
}

// CorrelationID returns the correlation id and whether one is set.
func (m *Message) CorrelationID() (identity.Id, bool) {
	if m.correlationID == nil {
		return identity.Id{}, false
	}
	return *m.correlationID, true
}

// IsBroadcast reports whether this message has no specific recipient.
func (m *Message) IsBroadcast() bool { return m.recipientID == nil }

// IsResponse reports whether this message carries a correlation id.
func (m *Message) IsResponse() bool { return m.correlationID != nil }
