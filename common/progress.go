package common

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adam-s/cordyceps/coreerr"
	"github.com/adam-s/cordyceps/log"
)

// DefaultTimeout is the timeout executeWithProgress falls back to when the
// caller supplies neither a timeout nor a parent Progress to reuse.
const DefaultTimeout = 30 * time.Second

type progressState int32

const (
	progressBefore progressState = iota
	progressRunning
	progressFinished
	progressAborted
)

// ProgressController owns the lifecycle of a single cooperative task: its
// deadline, its cancellation, and the abort-only cleanup callbacks
// registered against it while it runs. Run may be called at most once.
type ProgressController struct {
	mu       sync.Mutex
	state    progressState
	ctx      context.Context
	cancel   context.CancelFunc
	abortErr error
	cleanups []func(error)
	timeout  time.Duration

	logger   *log.Logger
	parent   *Progress
	progress *Progress
}

// NewProgressController creates a controller bounded by timeout (zero means
// no deadline alarm, though the caller's ctx may still carry one). parent,
// if non-nil, is the Progress whose Log calls this controller's Progress
// delegates to.
func NewProgressController(ctx context.Context, logger *log.Logger, timeout time.Duration, parent *Progress) *ProgressController {
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithCancel(ctx)
	c := &ProgressController{
		state:  progressBefore,
		ctx:    cctx,
		cancel: cancel,
		logger: logger,
		parent: parent,
	}
	c.progress = &Progress{controller: c}
	c.timeout = timeout
	return c
}

// watchTimeout blocks until timeout elapses or the controller's context is
// done, aborting the controller on the former. Run races it against the
// task goroutine via errgroup.
func (c *ProgressController) watchTimeout(timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-t.C:
		c.Abort(coreerr.Timeout("deadline exceeded"))
	case <-c.ctx.Done():
	}
	return nil
}

// Progress returns the handle passed into the task given to Run.
func (c *ProgressController) Progress() *Progress {
	return c.progress
}

func (c *ProgressController) currentState() progressState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run transitions the controller before -> running, invokes task with the
// controller's Progress handle, and finalizes the state once task returns:
// finished on success, aborted (stamping the returned error) on failure. It
// always runs registered cleanups if the terminal state is aborted, and
// always stops the timeout alarm. Run must not be called more than once.
//
// Internally it races the task goroutine against the timeout watcher with an
// errgroup.Group rather than a bare select on two channels: the task
// goroutine folds its own finish/abort transition in before returning so the
// timeout watcher (blocked on ctx.Done()) is released and g.Wait() can
// return promptly in both the normal and the aborted case.
func (c *ProgressController) Run(task func(p *Progress) error) error {
	c.mu.Lock()
	if c.state != progressBefore {
		c.mu.Unlock()
		return coreerr.Aborted("ProgressController.Run called more than once", nil)
	}
	c.state = progressRunning
	timeout := c.timeout
	c.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		err := task(c.progress)

		c.mu.Lock()
		stillRunning := c.state == progressRunning
		c.mu.Unlock()

		if stillRunning {
			if err != nil {
				c.Abort(err)
			} else {
				c.mu.Lock()
				c.state = progressFinished
				c.mu.Unlock()
				c.cancel()
			}
		}
		return nil
	})
	if timeout > 0 {
		g.Go(func() error { return c.watchTimeout(timeout) })
	}
	_ = g.Wait()

	if c.currentState() == progressAborted {
		abortErr := c.abortError()
		c.runCleanups(abortErr)
		return abortErr
	}
	return nil
}

// Abort aborts the controller while it is running, stamping err as an abort
// error (wrapping it if it isn't already a *coreerr.Error) and rejecting the
// abort signal exactly once. Aborting a controller that isn't running is a
// no-op.
func (c *ProgressController) Abort(err error) {
	c.mu.Lock()
	if c.state != progressRunning {
		c.mu.Unlock()
		return
	}
	ce, ok := err.(*coreerr.Error)
	if !ok {
		ce = coreerr.Aborted("progress aborted", err)
	} else {
		ce.Abort = true
	}
	c.state = progressAborted
	c.abortErr = ce
	c.mu.Unlock()
	c.cancel()
}

func (c *ProgressController) runCleanups(err error) {
	c.mu.Lock()
	cleanups := c.cleanups
	c.cleanups = nil
	c.mu.Unlock()
	for _, fn := range cleanups {
		func() {
			defer func() { _ = recover() }()
			fn(err)
		}()
	}
}

// abortError returns the error the controller aborted with, or nil if it
// hasn't aborted.
func (c *ProgressController) abortError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == progressAborted {
		return c.abortErr
	}
	return nil
}

// Progress is the cooperative deadline/cancellation handle passed to tasks
// run under a ProgressController. Every suspension point a task awaits must
// go through Race, RaceAll, or Wait so that cancellation is timely.
type Progress struct {
	controller *ProgressController
}

// Context returns a context.Context that is canceled when the Progress
// aborts. Suspension points not modeled as channels can select on this
// directly.
func (p *Progress) Context() context.Context {
	return p.controller.ctx
}

// CleanupWhenAborted registers fn to run only if the controller reaches the
// aborted state; it never runs on normal completion. Registering after the
// controller has reached a terminal state is a no-op, except that a cleanup
// registered once the controller has already aborted runs immediately.
func (p *Progress) CleanupWhenAborted(fn func(err error)) {
	c := p.controller
	c.mu.Lock()
	switch c.state {
	case progressRunning, progressBefore:
		c.cleanups = append(c.cleanups, fn)
		c.mu.Unlock()
	case progressAborted:
		err := c.abortErr
		c.mu.Unlock()
		func() {
			defer func() { _ = recover() }()
			fn(err)
		}()
	default:
		c.mu.Unlock()
	}
}

// Log delegates to the parent Progress if one was supplied to
// NewProgressController, otherwise writes to the controller's logger.
func (p *Progress) Log(format string, args ...interface{}) {
	if p.controller.parent != nil {
		p.controller.parent.Log(format, args...)
		return
	}
	if p.controller.logger != nil {
		p.controller.logger.Infof("Progress", format, args...)
	}
}

// Wait races a timer of duration d against abort, per spec.md's
// wait(ms) := race(delay(ms)).
func (p *Progress) Wait(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.controller.ctx.Done():
		return p.controller.abortError()
	default:
	}
	select {
	case <-p.controller.ctx.Done():
		return p.controller.abortError()
	case <-t.C:
		return nil
	}
}

// Race races ch against abort, returning whichever settles first; abort wins
// deterministically once set, even if ch also has a value ready.
func Race[T any](p *Progress, ch <-chan T) (T, error) {
	return RaceAll(p, ch)
}

// RaceAll races zero or more channels against abort, returning the first
// value received on any of them, or the abort error if the Progress aborts
// first. Abort wins deterministically once already set.
func RaceAll[T any](p *Progress, chans ...<-chan T) (T, error) {
	var zero T
	select {
	case <-p.controller.ctx.Done():
		return zero, p.controller.abortError()
	default:
	}

	merged := make(chan T, 1)
	done := make(chan struct{})
	defer close(done)
	for _, ch := range chans {
		ch := ch
		go func() {
			select {
			case v, ok := <-ch:
				if ok {
					select {
					case merged <- v:
					case <-done:
					}
				}
			case <-p.controller.ctx.Done():
			case <-done:
			}
		}()
	}

	select {
	case <-p.controller.ctx.Done():
		return zero, p.controller.abortError()
	case v := <-merged:
		return v, nil
	}
}

// RaceWithCleanup ties cleanup's execution to the controller's terminal
// state relative to result having been produced "now":
//   - running (or not yet started): cleanup(result) is registered as
//     abort-only.
//   - finished: the controller already completed normally before this
//     result was available to register, so cleanup(result) runs immediately.
//   - aborted: cleanup does not run; the abort-time cleanup pass has
//     already happened or is under way.
func RaceWithCleanup[T any](p *Progress, result T, cleanup func(T)) {
	c := p.controller
	c.mu.Lock()
	switch c.state {
	case progressRunning, progressBefore:
		c.cleanups = append(c.cleanups, func(error) { cleanup(result) })
		c.mu.Unlock()
	case progressFinished:
		c.mu.Unlock()
		cleanup(result)
	default:
		c.mu.Unlock()
	}
}

// ExecuteWithProgress runs fn under a Progress: if parent is non-nil, fn
// reuses it directly (racing only, no new controller/timeout); otherwise a
// fresh controller is created with timeout (DefaultTimeout if timeout <= 0)
// and fn is run to completion under it.
func ExecuteWithProgress[T any](
	ctx context.Context,
	logger *log.Logger,
	parent *Progress,
	timeout time.Duration,
	fn func(p *Progress) (T, error),
) (T, error) {
	var zero T
	if parent != nil {
		return fn(parent)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := NewProgressController(ctx, logger, timeout, nil)
	var result T
	err := c.Run(func(p *Progress) error {
		v, e := fn(p)
		result = v
		return e
	})
	if err != nil {
		return zero, err
	}
	return result, nil
}
