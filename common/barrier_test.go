package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adam-s/cordyceps/coreerr"
)

func newTestProgress(t *testing.T, timeout time.Duration) (*Progress, *ProgressController) {
	t.Helper()
	c := NewProgressController(context.Background(), nil, timeout, nil)
	return c.Progress(), c
}

// S4: auto-wait. A user action that triggers a top-level navigation must be
// awaited by WaitForSignalsCreatedBy before it returns, even though the
// navigation commits slightly after the action function itself returns.
func TestWaitForSignalsCreatedByAwaitsLateNavigation(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))

	c := NewProgressController(context.Background(), nil, time.Second, nil)
	var commitObservedBeforeReturn bool
	err := c.Run(func(p *Progress) error {
		result, actionErr := WaitForSignalsCreatedBy(m, p, true, func() (string, error) {
			_ = m.FrameRequestedNavigation(1, strp("docA"))
			go func() {
				time.Sleep(20 * time.Millisecond)
				_ = m.FrameCommittedNewDocument(1, "https://example.com", "", "docA", false)
			}()
			return "clicked", nil
		})
		commitObservedBeforeReturn = m.MainFrame().CurrentDocument().DocumentID.Present()
		assert.Equal(t, "clicked", result)
		return actionErr
	})

	require.NoError(t, err)
	assert.True(t, commitObservedBeforeReturn, "WaitForSignalsCreatedBy must not return before the triggered navigation commits")
}

func TestWaitForSignalsCreatedByDoesNotWaitWhenWaitAfterFalse(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))

	c := NewProgressController(context.Background(), nil, time.Second, nil)
	err := c.Run(func(p *Progress) error {
		result, actionErr := WaitForSignalsCreatedBy(m, p, false, func() (string, error) {
			return "no-wait", nil
		})
		assert.Equal(t, "no-wait", result)
		return actionErr
	})
	require.NoError(t, err)
}

func TestWaitForSignalsCreatedByPropagatesActionError(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))

	c := NewProgressController(context.Background(), nil, time.Second, nil)
	err := c.Run(func(p *Progress) error {
		_, actionErr := WaitForSignalsCreatedBy(m, p, true, func() (string, error) {
			return "", assert.AnError
		})
		return actionErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSignalBarrierIgnoresSubFrameNavigation(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))
	main := FrameID(1)
	require.NoError(t, m.FrameAttached(2, &main, "about:blank"))
	child, ok := m.GetFrameByID(2)
	require.True(t, ok)

	c := NewProgressController(context.Background(), nil, 100*time.Millisecond, nil)
	err := c.Run(func(p *Progress) error {
		_, actionErr := WaitForSignalsCreatedBy(m, p, true, func() (struct{}, error) {
			// The main frame's requested navigation holds the barrier; only
			// the child frame then navigates.
			require.NoError(t, m.FrameRequestedNavigation(1, nil))
			go func() {
				time.Sleep(10 * time.Millisecond)
				child.fireInternalNavigation(NavigationEvent{URL: "https://child.example", IsPublic: true})
			}()
			return struct{}{}, nil
		})
		return actionErr
	})

	require.Error(t, err, "a child-frame-only navigation must not satisfy the barrier, so the controller times out")
}

func TestFrameWillDidPotentiallyRequestNavigationBracketsOpenBarriers(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))

	p, c := newTestProgress(t, time.Second)
	barrier := newSignalBarrier(p)
	m.addBarrier(barrier)

	m.FrameWillPotentiallyRequestNavigation()
	assert.Equal(t, 2, barrier.protectCount)

	m.FrameDidPotentiallyRequestNavigation()
	assert.Equal(t, 1, barrier.protectCount)

	c.Abort(coreerr.Aborted("test teardown", nil))
}
