package common

import (
	"runtime"
	"sync"
)

// SignalBarrier is a reference-counted waiter attached to top-level
// navigations for the duration of a user action, used to implement
// auto-wait (spec.md §3/§4.5/§4.6, component C6).
type SignalBarrier struct {
	mu           sync.Mutex
	protectCount int
	completed    bool
	completion   chan struct{}
	progress     *Progress
}

func newSignalBarrier(progress *Progress) *SignalBarrier {
	return &SignalBarrier{
		protectCount: 1,
		completion:   make(chan struct{}),
		progress:     progress,
	}
}

// retain increments the protect count.
func (b *SignalBarrier) retain() {
	b.mu.Lock()
	b.protectCount++
	b.mu.Unlock()
}

// release decrements the protect count, resolving completion exactly once
// when it reaches zero.
func (b *SignalBarrier) release() {
	b.mu.Lock()
	b.protectCount--
	resolve := b.protectCount == 0 && !b.completed
	if resolve {
		b.completed = true
	}
	b.mu.Unlock()
	if resolve {
		close(b.completion)
	}
}

// AddFrameNavigation arms the barrier against frame's next internal
// navigation event, ignoring sub-frame navigations (only top-level frames
// participate). It retains the barrier until whichever comes first: the
// frame's next navigation, the frame detaching, or the barrier's own
// Progress aborting.
func (b *SignalBarrier) AddFrameNavigation(frame *Frame) {
	if frame.ParentFrame() != nil {
		return
	}

	b.retain()

	var (
		once    sync.Once
		dispose Disposable
	)
	releaseOnce := func() {
		once.Do(func() {
			if dispose != nil {
				dispose()
			}
			b.release()
		})
	}
	dispose = frame.OnInternalNavigation(func(NavigationEvent) {
		releaseOnce()
	})

	go func() {
		select {
		case <-frame.DetachedScope().Done():
			releaseOnce()
		case <-b.progress.Context().Done():
			releaseOnce()
		case <-b.completion:
		}
	}()
}

// waitFor releases the barrier's initial hold (taken at construction) and
// awaits protectCount reaching zero, racing against the owning Progress.
func (b *SignalBarrier) waitFor() error {
	b.release()
	_, err := Race(b.progress, b.completion)
	return err
}

// WaitForSignalsCreatedBy runs action under a signal barrier registered
// with m: if waitAfter is false, action runs unprotected. Otherwise a
// barrier is opened before action runs and drained (racing progress)
// before WaitForSignalsCreatedBy returns, so any top-level navigation
// action triggers -- directly or via a child action -- is awaited. A final
// scheduler yield lets any post-navigation tasks the action enqueued flush
// before the result is returned (spec.md §4.5).
func WaitForSignalsCreatedBy[T any](
	m *FrameManager,
	progress *Progress,
	waitAfter bool,
	action func() (T, error),
) (T, error) {
	if !waitAfter {
		return action()
	}

	barrier := newSignalBarrier(progress)
	m.addBarrier(barrier)
	progress.CleanupWhenAborted(func(error) { m.removeBarrier(barrier) })

	result, err := action()
	if err != nil {
		m.removeBarrier(barrier)
		var zero T
		return zero, err
	}

	if waitErr := barrier.waitFor(); waitErr != nil {
		m.removeBarrier(barrier)
		var zero T
		return zero, waitErr
	}
	m.removeBarrier(barrier)

	runtime.Gosched()

	return result, nil
}
