package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateAwareEventReplaysToLateSubscriber(t *testing.T) {
	t.Parallel()

	e := NewStateAwareEvent[string]()
	e.Fire("loaded")

	var got string
	e.Subscribe(func(v string) { got = v })
	assert.Equal(t, "loaded", got, "late subscriber must synchronously see the last fired value")
}

func TestStateAwareEventNoReplayBeforeFire(t *testing.T) {
	t.Parallel()

	e := NewStateAwareEvent[string]()
	called := false
	e.Subscribe(func(v string) { called = true })
	assert.False(t, called)

	e.Fire("loaded")
	assert.True(t, called)
}

func TestStateAwareEventSubsequentFiresAfterReplay(t *testing.T) {
	t.Parallel()

	e := NewStateAwareEvent[int]()
	e.Fire(1)

	var seen []int
	e.Subscribe(func(v int) { seen = append(seen, v) })
	e.Fire(2)
	e.Fire(3)

	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestStateAwareEventReset(t *testing.T) {
	t.Parallel()

	e := NewStateAwareEvent[int]()
	e.Fire(1)
	assert.True(t, e.HasFired())

	e.Reset()
	assert.False(t, e.HasFired())

	called := false
	e.Subscribe(func(int) { called = true })
	assert.False(t, called, "subscriber after reset must not see a stale replay")
}

func TestStateAwareEventSwallowsListenerPanic(t *testing.T) {
	t.Parallel()

	e := NewStateAwareEvent[int]()
	e.Subscribe(func(int) { panic("boom") })

	assert.NotPanics(t, func() { e.Fire(1) })
}
