// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAgentId_Unique(t *testing.T) {
	a := NewAgentId()
	b := NewAgentId()
	assert.NotEqual(t, a.String(), b.String())
	assert.False(t, a.IsZero())
}

func TestAgentId_Equal(t *testing.T) {
	a, err := ParseAgentId("agent-1")
	assert.NoError(t, err)
	b, err := ParseAgentId("agent-1")
	assert.NoError(t, err)
	c, err := ParseAgentId("agent-2")
	assert.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestParseAgentId_Empty(t *testing.T) {
	_, err := ParseAgentId("")
	assert.Error(t, err)
}

func TestNewId_Unique(t *testing.T) {
	a := NewId()
	b := NewId()
	assert.NotEqual(t, a.String(), b.String())
	assert.False(t, a.IsZero())
}

func TestDefaultGenerator(t *testing.T) {
	gen := DefaultGenerator
	agentID := gen.NewAgentId()
	id := gen.NewId()
	assert.False(t, agentID.IsZero())
	assert.False(t, id.IsZero())
}

func TestSystemClock_Monotonic(t *testing.T) {
	t1 := SystemClock.NowMs()
	t2 := SystemClock.NowMs()
	assert.LessOrEqual(t, t1, t2)
}
