package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityExceeded(t *testing.T) {
	err := CapacityExceeded("/ws/demo", 5*time.Second)

	assert.Equal(t, KindCapacityExceeded, err.Kind)
	assert.Equal(t, "/ws/demo", err.Workspace)
	assert.True(t, err.IsRetryable())
	assert.NotEmpty(t, err.Hint)
	assert.Contains(t, err.Error(), "capacity_exceeded")
	assert.Contains(t, err.Error(), "/ws/demo")
}

func TestOpenFailureWrapsCause(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	err := OpenFailure("/ws/demo", cause)

	assert.Equal(t, KindOpenFailure, err.Kind)
	assert.False(t, err.IsRetryable())
	require.ErrorIs(t, err, cause)
}

func TestResourceNotFound(t *testing.T) {
	err := ResourceNotFound("csearch://resource/abc")

	assert.Equal(t, KindResourceNotFound, err.Kind)
	assert.Contains(t, err.Error(), "csearch://resource/abc")
}

func TestKindOfAndIs(t *testing.T) {
	typed := CapacityExceeded("/ws", time.Second)
	wrapped := fmt.Errorf("outer: %w", typed)

	assert.Equal(t, KindCapacityExceeded, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindCapacityExceeded))
	assert.False(t, Is(wrapped, KindOpenFailure))

	plain := fmt.Errorf("plain")
	assert.Equal(t, KindInternal, KindOf(plain))
	assert.Empty(t, HintOf(plain))
	assert.Equal(t, typed.Hint, HintOf(wrapped))
}

func TestBuilderChaining(t *testing.T) {
	err := New(KindCacheCorruption, "decode", fmt.Errorf("bad payload")).
		WithWorkspace("/ws").
		WithHint("drop the entry").
		WithRetryable(true)

	assert.Equal(t, "/ws", err.Workspace)
	assert.Equal(t, "drop the entry", err.Hint)
	assert.True(t, err.Retryable)
	assert.False(t, err.Timestamp.IsZero())
}
