package cdpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"

	"github.com/adam-s/cordyceps/common"
	"github.com/adam-s/cordyceps/coreerr"
	"github.com/adam-s/cordyceps/log"
)

// injectedNamespace is the global the pre-registered DOM-side helper script
// is expected to install, per spec.md §4.3/§6 ("injected script"). The
// adapter never ships that script; it only knows how to call into it.
const injectedNamespace = "window.__cordycepsInjected"

// Adapter implements common.RuntimeAdapter against a live CDP session.
// It holds no transport of its own: exec is whatever already speaks the
// Chrome DevTools Protocol (a *rpcc.Conn-backed client, a chromedp
// cdp.Executor, or a test double), matching spec.md §4.3's "no specific
// transport prescribed".
type Adapter struct {
	exec   cdp.Executor
	ids    *idRegistry
	logger *log.Logger
}

// New creates an Adapter bound to exec.
func New(exec cdp.Executor, logger *log.Logger) *Adapter {
	return &Adapter{exec: exec, ids: newIDRegistry(), logger: logger}
}

// IDs exposes the adapter's wire/local frame id registry so a caller
// feeding it Dispatch can resolve ids consistently.
func (a *Adapter) IDs() *idRegistry { return a.ids }

func (a *Adapter) wireFrameID(frame *common.Frame) (cdp.FrameID, error) {
	wire, ok := a.ids.wireID(frame.ID())
	if !ok {
		return "", coreerr.AdapterFailure(fmt.Sprintf("no wire frame id registered for frame %d", frame.ID()), nil)
	}
	return wire, nil
}

// Evaluate executes fn via Runtime.evaluate, decoding the returned remote
// object's value as a generic any. fn is expected to be a complete
// expression, not a bare statement, matching Runtime.evaluate's contract.
// frame, world and args are not used: the expression runs in the session's
// default execution context, not in a world of the given frame.
func (a *Adapter) Evaluate(ctx context.Context, frame *common.Frame, world, fn string, args ...any) (any, error) {
	action := runtime.Evaluate(fn).WithReturnByValue(true).WithAwaitPromise(true)
	result, exceptionDetails, err := action.Do(cdp.WithExecutor(ctx, a.exec))
	if err != nil {
		return nil, coreerr.AdapterFailure("evaluate failed", err)
	}
	if exceptionDetails != nil {
		return nil, coreerr.NonRetriableEvaluation(errors.New(exceptionDetails.Text))
	}
	if result == nil || len(result.Value) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(result.Value, &v); err != nil {
		return nil, coreerr.AdapterFailure("decoding evaluate result", err)
	}
	return v, nil
}

// AriaSnapshot calls the injected script's ariaSnapshot(forAI, refPrefix,
// world), per spec.md §4.3/§6.
func (a *Adapter) AriaSnapshot(ctx context.Context, frame *common.Frame, forAI bool, refPrefix, world string) (string, error) {
	expr := fmt.Sprintf("%s.ariaSnapshot(%t, %q, %q)", injectedNamespace, forAI, refPrefix, world)
	v, err := a.Evaluate(ctx, frame, world, expr)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", coreerr.AdapterFailure("ariaSnapshot did not return a string", nil)
	}
	return s, nil
}

// ElementIsAccessibleIframe reports whether selector resolves to an
// existing, iframe-tagged element in frame, used for the AI snapshot
// composer's availability check (spec.md §4.6).
func (a *Adapter) ElementIsAccessibleIframe(ctx context.Context, frame *common.Frame, selector string) (bool, error) {
	expr := fmt.Sprintf("%s.isAccessibleIframe(%q)", injectedNamespace, selector)
	v, err := a.Evaluate(ctx, frame, common.WorldMain, expr)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// ResolveChildFrame resolves frameBodySelector's "aria-ref=... >>
// internal:control=enter-frame >> body" selector to the child frame it
// denotes, per the selector protocol in spec.md §6.
func (a *Adapter) ResolveChildFrame(ctx context.Context, frame *common.Frame, frameBodySelector string) (*common.Frame, bool, error) {
	expr := fmt.Sprintf("%s.resolveFrameOwner(%q)", injectedNamespace, frameBodySelector)
	v, err := a.Evaluate(ctx, frame, common.WorldMain, expr)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	wireID, ok := v.(string)
	if !ok || wireID == "" {
		return nil, false, nil
	}
	localID := a.ids.localID(cdp.FrameID(wireID))
	for _, child := range frame.ChildFrames() {
		if child.ID() == localID {
			return child, true, nil
		}
	}
	return nil, false, nil
}

// Goto navigates frame to url. A non-empty errorText from Page.navigate is
// surfaced as a FrameAbortedNavigation-style failure through the returned
// error rather than through the event stream, since Page.navigate reports
// its own failure synchronously (there is no separate wire event for it).
func (a *Adapter) Goto(ctx context.Context, frame *common.Frame, url string, opts common.GotoOptions) error {
	wire, err := a.wireFrameID(frame)
	if err != nil {
		return err
	}
	action := cdppage.Navigate(url).WithFrameID(wire)
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	_, _, errorText, err := action.Do(cdp.WithExecutor(ctx, a.exec))
	if err != nil {
		return coreerr.AdapterFailure("navigate failed", err)
	}
	if errorText != "" {
		return coreerr.NavigationAborted("", errorText)
	}
	return nil
}

// GoBack navigates frame's tab to the previous history entry.
func (a *Adapter) GoBack(ctx context.Context, frame *common.Frame) error {
	return a.navigateHistory(ctx, -1)
}

// GoForward navigates frame's tab to the next history entry.
func (a *Adapter) GoForward(ctx context.Context, frame *common.Frame) error {
	return a.navigateHistory(ctx, 1)
}

func (a *Adapter) navigateHistory(ctx context.Context, step int) error {
	current, entries, err := cdppage.GetNavigationHistory().Do(cdp.WithExecutor(ctx, a.exec))
	if err != nil {
		return coreerr.AdapterFailure("get navigation history failed", err)
	}
	idx := -1
	for i, e := range entries {
		if e.ID == current {
			idx = i
			break
		}
	}
	target := idx + step
	if idx < 0 || target < 0 || target >= len(entries) {
		return coreerr.AdapterFailure("no such navigation history entry", nil)
	}
	if err := cdppage.NavigateToHistoryEntry(entries[target].ID).Do(cdp.WithExecutor(ctx, a.exec)); err != nil {
		return coreerr.AdapterFailure("navigate to history entry failed", err)
	}
	return nil
}

// Reload reloads frame's tab.
func (a *Adapter) Reload(ctx context.Context, frame *common.Frame) error {
	if err := cdppage.Reload().Do(cdp.WithExecutor(ctx, a.exec)); err != nil {
		return coreerr.AdapterFailure("reload failed", err)
	}
	return nil
}
