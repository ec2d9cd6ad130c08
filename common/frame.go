package common

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adam-s/cordyceps/coreerr"
	"github.com/adam-s/cordyceps/log"
)

// FrameID uniquely identifies a frame within a FrameManager for the
// frame's lifetime.
type FrameID int64

// DocumentID identifies one navigation's content identity. The zero value
// is "absent" (Present() == false), distinct from the empty string, since
// §4.5 of the spec needs to tell "no id reported yet" apart from "id is the
// empty string".
type DocumentID struct {
	value   string
	present bool
}

// NewDocumentID wraps v as a present DocumentID.
func NewDocumentID(v string) DocumentID { return DocumentID{value: v, present: true} }

// Present reports whether the DocumentID carries a value.
func (d DocumentID) Present() bool { return d.present }

// String returns the wrapped value, or "" if absent.
func (d DocumentID) String() string { return d.value }

// Equal reports whether d and o carry the same presence and value.
func (d DocumentID) Equal(o DocumentID) bool {
	return d.present == o.present && d.value == o.value
}

// Document is the navigation-identity descriptor from spec.md §3. Request
// is intentionally absent: the core does not track network requests.
type Document struct {
	DocumentID DocumentID
}

// NavigationEvent is one emission on a Frame's internal navigation event
// stream (spec.md §3, "navigation event stream").
type NavigationEvent struct {
	URL      string
	Name     string
	Document *Document // nil == absent
	Err      error     // nil == absent
	IsPublic bool
}

// Disposable cancels a subscription created by Frame.OnInternalNavigation.
type Disposable func()

// lifecycle events, spec.md §3's "lifecycle flags" set {domcontentloaded,
// load, networkidle-surrogate}.
type lifecycleEvents struct {
	domContentLoaded *StateAwareEvent[struct{}]
	load              *StateAwareEvent[struct{}]
	networkIdle       *StateAwareEvent[struct{}]
}

func newLifecycleEvents() *lifecycleEvents {
	return &lifecycleEvents{
		domContentLoaded: NewStateAwareEvent[struct{}](),
		load:              NewStateAwareEvent[struct{}](),
		networkIdle:       NewStateAwareEvent[struct{}](),
	}
}

func (l *lifecycleEvents) fireAll() {
	l.domContentLoaded.Fire(struct{}{})
	l.load.Fire(struct{}{})
	l.networkIdle.Fire(struct{}{})
}

func (l *lifecycleEvents) resetAll() {
	l.domContentLoaded.Reset()
	l.load.Reset()
	l.networkIdle.Reset()
}

type navListener struct {
	id int64
	fn func(NavigationEvent)
}

// Frame is one runtime-addressable document container within a tab: the
// main frame (parent == nil) or an iframe. FrameManager is the sole
// mutator of its attributes; Frame itself only guards concurrent readers
// against FrameManager's writes.
type Frame struct {
	mu sync.RWMutex

	id      FrameID
	manager *FrameManager

	// parent is a plain, non-owning pointer: ownership flows main frame ->
	// children (see children below), and Go's garbage collector reclaims
	// cycles on its own, so no weak-reference wrapper is needed to avoid a
	// leak -- the comment only documents the ownership direction spec.md
	// §3 calls out.
	parent *Frame

	children map[FrameID]*Frame

	url  string
	name string

	currentDocument Document
	pendingDocument *Document // nil == absent

	redirectedNavigations map[string]struct{}

	detachedCtx    context.Context
	detachedCancel context.CancelFunc
	detached       bool

	lifecycle *lifecycleEvents

	navListenersMu sync.Mutex
	navListeners   []navListener
	nextListenerID int64

	logger *log.Logger
}

func newFrame(manager *FrameManager, id FrameID, parent *Frame, initialURL string, logger *log.Logger) *Frame {
	ctx, cancel := context.WithCancel(context.Background())
	f := &Frame{
		id:                    id,
		manager:               manager,
		parent:                parent,
		children:              make(map[FrameID]*Frame),
		url:                   initialURL,
		redirectedNavigations: make(map[string]struct{}),
		detachedCtx:           ctx,
		detachedCancel:        cancel,
		lifecycle:             newLifecycleEvents(),
		logger:                logger,
	}
	return f
}

// ID returns the frame's stable identifier.
func (f *Frame) ID() FrameID {
	return f.id
}

// ParentFrame returns the parent frame, or nil for the main frame.
func (f *Frame) ParentFrame() *Frame {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.parent
}

// ChildFrames returns a snapshot of the frame's current children.
func (f *Frame) ChildFrames() []*Frame {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Frame, 0, len(f.children))
	for _, c := range f.children {
		out = append(out, c)
	}
	return out
}

// URL returns the last known committed or same-document URL.
func (f *Frame) URL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.url
}

// Name returns the frame's name attribute.
func (f *Frame) Name() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.name
}

// IsDetached reports whether the frame has been removed from its manager.
func (f *Frame) IsDetached() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.detached
}

// DetachedScope returns a context that is canceled when the frame detaches.
func (f *Frame) DetachedScope() context.Context {
	return f.detachedCtx
}

// CurrentDocument returns the frame's committed document descriptor.
func (f *Frame) CurrentDocument() Document {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.currentDocument
}

// PendingDocument returns the frame's pending document descriptor, or nil
// if there is none.
func (f *Frame) PendingDocument() *Document {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pendingDocument
}

// setURL, setName, setPendingDocument are mutated only by FrameManager.

func (f *Frame) setURL(u string) {
	f.mu.Lock()
	f.url = u
	f.mu.Unlock()
}

func (f *Frame) setName(n string) {
	f.mu.Lock()
	f.name = n
	f.mu.Unlock()
}

func (f *Frame) setPendingDocument(d *Document) {
	f.mu.Lock()
	f.pendingDocument = d
	f.mu.Unlock()
}

func (f *Frame) setCurrentDocument(d Document) {
	f.mu.Lock()
	f.currentDocument = d
	f.mu.Unlock()
}

func (f *Frame) markRedirected(documentID string) {
	f.mu.Lock()
	f.redirectedNavigations[documentID] = struct{}{}
	f.mu.Unlock()
}

func (f *Frame) wasRedirected(documentID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.redirectedNavigations[documentID]
	return ok
}

// markAlreadyLoadedPage sets load and domcontentloaded to fired, used when
// FrameManager attaches to a page that is already in some loaded state.
func (f *Frame) markAlreadyLoadedPage() {
	f.lifecycle.load.Fire(struct{}{})
	f.lifecycle.domContentLoaded.Fire(struct{}{})
}

// onClearLifecycle resets the latched lifecycle events on new-document
// commit.
func (f *Frame) onClearLifecycle() {
	f.lifecycle.resetAll()
}

// fireLifecycleEvent fires the named lifecycle flag, per spec.md §3 ("a
// subset of {domcontentloaded, load, networkidle-surrogate}; the last is
// fired via the runtime adapter's content-script-readiness signal").
func (f *Frame) fireLifecycleEvent(name string) {
	switch name {
	case LifecycleDOMContentLoaded:
		f.lifecycle.domContentLoaded.Fire(struct{}{})
	case LifecycleLoad:
		f.lifecycle.load.Fire(struct{}{})
	case LifecycleNetworkIdleSurrogate:
		f.lifecycle.networkIdle.Fire(struct{}{})
	}
}

// Lifecycle flag names, spec.md §3.
const (
	LifecycleDOMContentLoaded    = "domcontentloaded"
	LifecycleLoad                = "load"
	LifecycleNetworkIdleSurrogate = "networkidle-surrogate"
)

// fireInternalNavigation emits e to every current subscriber of the
// frame's internal navigation event stream.
func (f *Frame) fireInternalNavigation(e NavigationEvent) {
	f.navListenersMu.Lock()
	listeners := make([]navListener, len(f.navListeners))
	copy(listeners, f.navListeners)
	f.navListenersMu.Unlock()

	for _, l := range listeners {
		func(fn func(NavigationEvent)) {
			defer func() { _ = recover() }()
			fn(e)
		}(l.fn)
	}
}

// OnInternalNavigation subscribes listener to the frame's internal
// navigation event stream, returning a Disposable that removes it.
func (f *Frame) OnInternalNavigation(listener func(NavigationEvent)) Disposable {
	f.navListenersMu.Lock()
	id := f.nextListenerID
	f.nextListenerID++
	f.navListeners = append(f.navListeners, navListener{id: id, fn: listener})
	f.navListenersMu.Unlock()

	return func() {
		f.navListenersMu.Lock()
		defer f.navListenersMu.Unlock()
		for i, l := range f.navListeners {
			if l.id == id {
				f.navListeners = append(f.navListeners[:i], f.navListeners[i+1:]...)
				return
			}
		}
	}
}

// onDetached resolves detachedScope and marks the frame detached. Safe to
// call more than once. The setters do not consult the detached flag, so a
// detached frame's url, name and documents can still be changed.
func (f *Frame) onDetached() {
	f.mu.Lock()
	already := f.detached
	f.detached = true
	f.mu.Unlock()
	if !already {
		f.detachedCancel()
	}
}

func (f *Frame) addChild(c *Frame) {
	f.mu.Lock()
	f.children[c.id] = c
	f.mu.Unlock()
}

func (f *Frame) removeChild(id FrameID) {
	f.mu.Lock()
	delete(f.children, id)
	f.mu.Unlock()
}

// retryWithProgressAndTimeouts invokes fn repeatedly. fn reports done=true
// when it has a final result; done=false means "continuePolling" (retry
// after the next backoff). A non-retriable error (per isNonRetriableError)
// is returned immediately without retrying; any other error or a
// done=false result is retried after racing progress.Wait(backoff) against
// abort, consuming one backoff step per attempt and holding at the last
// step once the vector is exhausted, until the Progress itself aborts.
func retryWithProgressAndTimeouts[T any](
	progress *Progress,
	backoffs []time.Duration,
	fn func() (result T, done bool, err error),
) (T, error) {
	var zero T
	attempt := 0
	for {
		v, done, err := fn()
		if err != nil {
			var ce *coreerr.Error
			if errors.As(err, &ce) && ce.Kind == coreerr.KindNonRetriableEvaluation {
				return zero, err
			}
			if isNonRetriableError(err) {
				return zero, coreerr.NonRetriableEvaluation(err)
			}
		} else if done {
			return v, nil
		}

		backoff := backoffs[len(backoffs)-1]
		if attempt < len(backoffs) {
			backoff = backoffs[attempt]
		}
		attempt++
		if waitErr := progress.Wait(backoff); waitErr != nil {
			return zero, waitErr
		}
	}
}

var nonRetriableErrorNames = regexp.MustCompile(
	`^(ReferenceError|TypeError|SyntaxError|RangeError|EvalError|URIError)\b`,
)

// isNonRetriableError classifies JavaScript evaluation errors by name
// (ReferenceError, TypeError, SyntaxError, RangeError, EvalError, URIError)
// as non-retriable, per spec.md §4.4.
func isNonRetriableError(err error) bool {
	if err == nil {
		return false
	}
	return nonRetriableErrorNames.MatchString(err.Error())
}

// newScopeToken returns a fresh random identity token; grounded on
// google/uuid, present (indirect) in the teacher's go.mod. No frame or
// detach scope currently stores one.
func newScopeToken() string {
	return uuid.NewString()
}
