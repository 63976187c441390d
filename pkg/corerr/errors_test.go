// PicoClaw - Ultra-lightweight personal AI agent
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package corerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_Message(t *testing.T) {
	err := New(InvalidArg, "skill %q is blank", "")
	assert.Equal(t, InvalidArg, err.Kind)
	assert.Contains(t, err.Error(), "INVALID_ARG")
	assert.Contains(t, err.Error(), "skill")
}

func TestKindOf_Wrapped(t *testing.T) {
	base := New(Timeout, "request timed out")
	wrapped := fmt.Errorf("sendRequest: %w", base)

	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, Timeout, kind)
}

func TestKindOf_NotACoreError(t *testing.T) {
	_, ok := KindOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestErrorIs_MatchesByKind(t *testing.T) {
	a := New(Duplicate, "agent already registered")
	b := New(Duplicate, "different message, same kind")
	assert.True(t, errors.Is(a, b))
}
