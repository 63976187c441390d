// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/swarmcore/pkg/identity"
	"github.com/sipeed/swarmcore/pkg/message"
)

func newTestConversation(t *testing.T, a, b identity.AgentId) *Conversation {
	t.Helper()
	return New(identity.NewId(), []identity.AgentId{a, b}, time.Minute, identity.SystemClock)
}

func TestAddMessage_TransitionsInitiatedToActive(t *testing.T) {
	a := identity.NewAgentId()
	b := identity.NewAgentId()
	c := newTestConversation(t, a, b)
	assert.Equal(t, Initiated, c.State())

	m, err := message.New(identity.SystemClock, identity.DefaultGenerator, a, b, message.Query, "hi")
	require.NoError(t, err)
	require.NoError(t, c.AddMessage(m))

	assert.Equal(t, Active, c.State())
}

func TestAddMessage_RejectsNonParticipant(t *testing.T) {
	a := identity.NewAgentId()
	b := identity.NewAgentId()
	stranger := identity.NewAgentId()
	c := newTestConversation(t, a, b)

	m, err := message.New(identity.SystemClock, identity.DefaultGenerator, stranger, b, message.Query, "hi")
	require.NoError(t, err)
	assert.Error(t, c.AddMessage(m))
}

func TestPauseResume(t *testing.T) {
	a := identity.NewAgentId()
	b := identity.NewAgentId()
	c := newTestConversation(t, a, b)

	m, err := message.New(identity.SystemClock, identity.DefaultGenerator, a, b, message.Query, "hi")
	require.NoError(t, err)
	require.NoError(t, c.AddMessage(m))

	require.NoError(t, c.Pause())
	assert.Equal(t, Paused, c.State())
	require.NoError(t, c.Resume())
	assert.Equal(t, Active, c.State())
}

func TestPause_FailsFromInitiated(t *testing.T) {
	a := identity.NewAgentId()
	b := identity.NewAgentId()
	c := newTestConversation(t, a, b)
	assert.Error(t, c.Pause())
}

func TestComplete_FailsWhenAlreadyTerminal(t *testing.T) {
	a := identity.NewAgentId()
	b := identity.NewAgentId()
	c := newTestConversation(t, a, b)
	require.NoError(t, c.Complete())
	assert.Error(t, c.Complete())
}

func TestTimeout_ForcesTerminalFromAnyState(t *testing.T) {
	a := identity.NewAgentId()
	b := identity.NewAgentId()
	c := newTestConversation(t, a, b)
	c.Timeout()
	assert.Equal(t, TimedOut, c.State())
}

func TestCheckTimeout_TransitionsAfterIdlePeriod(t *testing.T) {
	a := identity.NewAgentId()
	b := identity.NewAgentId()
	c := New(identity.NewId(), []identity.AgentId{a, b}, 100*time.Millisecond, identity.SystemClock)

	now := identity.SystemClock.NowMs()
	assert.False(t, c.CheckTimeout(now))
	assert.True(t, c.CheckTimeout(now+200))
	assert.Equal(t, TimedOut, c.State())
}

func TestGetLastFromAndMessagesOfType(t *testing.T) {
	a := identity.NewAgentId()
	b := identity.NewAgentId()
	c := newTestConversation(t, a, b)

	m1, err := message.New(identity.SystemClock, identity.DefaultGenerator, a, b, message.Query, "first")
	require.NoError(t, err)
	require.NoError(t, c.AddMessage(m1))

	m2, err := message.New(identity.SystemClock, identity.DefaultGenerator, b, a, message.Response, "second")
	require.NoError(t, err)
	require.NoError(t, c.AddMessage(m2))

	m3, err := message.New(identity.SystemClock, identity.DefaultGenerator, a, b, message.Query, "third")
	require.NoError(t, err)
	require.NoError(t, c.AddMessage(m3))

	last, ok := c.GetLastFrom(a)
	require.True(t, ok)
	assert.Equal(t, "third", last.Content())

	queries := c.GetMessagesOfType(message.Query)
	require.Len(t, queries, 2)
	assert.Equal(t, "first", queries[0].Content())
	assert.Equal(t, "third", queries[1].Content())
}

func TestInvolves(t *testing.T) {
	a := identity.NewAgentId()
	b := identity.NewAgentId()
	stranger := identity.NewAgentId()
	c := newTestConversation(t, a, b)

	assert.True(t, c.Involves(a, b))
	assert.False(t, c.Involves(a, stranger))
}
