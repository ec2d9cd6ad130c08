package common

import (
	"context"
	"errors"
	"sync"

	"github.com/adam-s/cordyceps/coreerr"
	"github.com/adam-s/cordyceps/log"
)

// framePromise resolves exactly once to the tab's main frame, letting
// callers that arrive before the first frameAttached event still observe
// it (spec.md §4.5's "mainFramePromise").
type framePromise struct {
	done  chan struct{}
	once  sync.Once
	frame *Frame
}

func newFramePromise() *framePromise {
	return &framePromise{done: make(chan struct{})}
}

func (p *framePromise) resolve(f *Frame) {
	p.once.Do(func() {
		p.frame = f
		close(p.done)
	})
}

func (p *framePromise) wait(ctx context.Context) (*Frame, error) {
	select {
	case <-p.done:
		return p.frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FrameManager owns the frame tree for one tab: frame identity, parent/child
// wiring, the current/pending document state machine, and the registry of
// open SignalBarriers (spec.md §3/§4.5, component C5).
type FrameManager struct {
	mu               sync.RWMutex
	frames           map[FrameID]*Frame
	mainFrame        *Frame
	mainFramePromise *framePromise

	adapter RuntimeAdapter
	logger  *log.Logger

	barriersMu sync.RWMutex
	barriers   map[*SignalBarrier]struct{}

	publicNavMu        sync.Mutex
	publicNavListeners []func(*Frame)
}

// NewFrameManager creates an empty FrameManager. adapter may be nil for
// tests that never exercise adapter-facing operations.
func NewFrameManager(adapter RuntimeAdapter, logger *log.Logger) *FrameManager {
	return &FrameManager{
		frames:           make(map[FrameID]*Frame),
		mainFramePromise: newFramePromise(),
		adapter:          adapter,
		logger:           logger,
		barriers:         make(map[*SignalBarrier]struct{}),
	}
}

// Frames returns a snapshot of every frame currently tracked.
func (m *FrameManager) Frames() []*Frame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Frame, 0, len(m.frames))
	for _, f := range m.frames {
		out = append(out, f)
	}
	return out
}

// MainFrame returns the current main frame, or nil if none has attached yet.
func (m *FrameManager) MainFrame() *Frame {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mainFrame
}

// GetFrameByID looks up a tracked frame by id.
func (m *FrameManager) GetFrameByID(id FrameID) (*Frame, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.frames[id]
	return f, ok
}

// WaitForMainFrame blocks until a main frame has attached or ctx is done.
func (m *FrameManager) WaitForMainFrame(ctx context.Context) (*Frame, error) {
	m.mu.RLock()
	p := m.mainFramePromise
	m.mu.RUnlock()
	if p == nil {
		return nil, errors.New("frame manager has no main frame promise")
	}
	return p.wait(ctx)
}

// OnFrameNavigated subscribes listener to the public "page navigated to a
// new document" stream, fired once per non-initial committed navigation of
// any tracked frame. It returns a Disposable that removes the subscription.
func (m *FrameManager) OnFrameNavigated(listener func(*Frame)) Disposable {
	m.publicNavMu.Lock()
	m.publicNavListeners = append(m.publicNavListeners, listener)
	idx := len(m.publicNavListeners) - 1
	m.publicNavMu.Unlock()

	return func() {
		m.publicNavMu.Lock()
		defer m.publicNavMu.Unlock()
		if idx < len(m.publicNavListeners) {
			m.publicNavListeners[idx] = nil
		}
	}
}

func (m *FrameManager) emitFrameNavigated(frame *Frame) {
	m.publicNavMu.Lock()
	listeners := append([]func(*Frame){}, m.publicNavListeners...)
	m.publicNavMu.Unlock()

	for _, l := range listeners {
		if l != nil {
			l(frame)
		}
	}
}

// FrameAttached records a new frame, or updates an already-tracked one
// idempotently, per spec.md §4.5's attach-main/attach-child transition.
//
// A frameId already present in the registry is treated as a replay of the
// same attach (the url is refreshed, nothing else changes) when its current
// parent matches parentID; if the parent differs, the event names a
// conflicting frame identity and DuplicateFrameID is returned.
func (m *FrameManager) FrameAttached(id FrameID, parentID *FrameID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.frames[id]; ok {
		var existingParentID *FrameID
		if p := existing.ParentFrame(); p != nil {
			pid := p.ID()
			existingParentID = &pid
		}
		sameParent := (existingParentID == nil && parentID == nil) ||
			(existingParentID != nil && parentID != nil && *existingParentID == *parentID)
		if !sameParent {
			return coreerr.DuplicateFrameID(int64(id))
		}
		if url != "" {
			existing.setURL(url)
		}
		return nil
	}

	if parentID == nil {
		return m.attachMainLocked(id, url)
	}

	parent, ok := m.frames[*parentID]
	if !ok {
		return coreerr.ParentMissing(int64(*parentID), int64(id))
	}

	frame := newFrame(m, id, parent, url, m.logger)
	m.frames[id] = frame
	parent.addChild(frame)
	return nil
}

func (m *FrameManager) attachMainLocked(id FrameID, url string) error {
	frame := newFrame(m, id, nil, url, m.logger)
	m.frames[id] = frame

	if m.mainFrame == nil {
		m.mainFrame = frame
		frame.markAlreadyLoadedPage()
		m.mainFramePromise.resolve(frame)
		return nil
	}

	old := m.mainFrame
	m.removeFramesRecursivelyLocked(old)
	m.mainFrame = frame
	m.mainFramePromise = newFramePromise()
	m.mainFramePromise.resolve(frame)
	return nil
}

// FrameRequestedNavigation records an optimistic pending document for a
// frame, per spec.md §4.5. A pending entry with a known document id is
// never overwritten by a later absent one; an incoming id that conflicts
// with a different known pending id is ignored (the earlier pending wins
// until it commits or aborts).
func (m *FrameManager) FrameRequestedNavigation(id FrameID, documentID *string) error {
	frame, ok := m.getFrame(id)
	if !ok {
		return nil
	}

	m.notifyBarriersFrameNavigation(frame)

	var newDoc DocumentID
	if documentID != nil {
		newDoc = NewDocumentID(*documentID)
	}

	pending := frame.PendingDocument()
	switch {
	case pending == nil:
		frame.setPendingDocument(&Document{DocumentID: newDoc})
	case pending.DocumentID.Equal(newDoc):
		frame.setPendingDocument(&Document{DocumentID: newDoc})
	case !newDoc.Present():
		// known pending id, incoming is absent: never overwrite.
	default:
		// two different known ids: leave the earlier pending alone.
	}
	return nil
}

// FrameCommittedNewDocument advances a frame past a cross-document
// navigation, per spec.md §4.5.
func (m *FrameManager) FrameCommittedNewDocument(id FrameID, url, name, documentID string, initial bool) error {
	frame, ok := m.getFrame(id)
	if !ok {
		return nil
	}

	m.mu.Lock()
	for _, c := range frame.ChildFrames() {
		m.removeFramesRecursivelyLocked(c)
	}
	m.mu.Unlock()

	frame.setURL(url)
	frame.setName(name)

	newDocID := NewDocumentID(documentID)
	pending := frame.PendingDocument()

	var retainedPending *Document
	switch {
	case pending != nil && !pending.DocumentID.Present():
		frame.setCurrentDocument(Document{DocumentID: newDocID})
	case pending != nil && pending.DocumentID.Equal(newDocID):
		frame.setCurrentDocument(Document{DocumentID: newDocID})
	case pending != nil:
		// overlapping navigation: commit this one but keep the other
		// pending, it is still in flight.
		frame.setCurrentDocument(Document{DocumentID: newDocID})
		retainedPending = pending
	default:
		frame.setCurrentDocument(Document{DocumentID: newDocID})
	}
	frame.setPendingDocument(nil)

	frame.onClearLifecycle()

	doc := frame.CurrentDocument()
	frame.fireInternalNavigation(NavigationEvent{URL: url, Name: name, Document: &doc, IsPublic: true})

	if !initial {
		m.emitFrameNavigated(frame)
	}

	if retainedPending != nil {
		frame.setPendingDocument(retainedPending)
	}

	return nil
}

// FrameCommittedSameDocument records a same-document navigation (history
// API, fragment change), per spec.md §4.5.
func (m *FrameManager) FrameCommittedSameDocument(id FrameID, url string) error {
	frame, ok := m.getFrame(id)
	if !ok {
		return nil
	}

	if pending := frame.PendingDocument(); pending != nil && !pending.DocumentID.Present() {
		frame.setPendingDocument(nil)
	}

	frame.setURL(url)
	frame.fireInternalNavigation(NavigationEvent{URL: url, Document: nil, IsPublic: true})
	return nil
}

// FrameAbortedNavigation clears a frame's pending document after a failed
// navigation, per spec.md §4.5. If documentID is given and does not match
// the pending entry, the event is stale and ignored.
func (m *FrameManager) FrameAbortedNavigation(id FrameID, errorText string, documentID *string) error {
	frame, ok := m.getFrame(id)
	if !ok {
		return nil
	}

	pending := frame.PendingDocument()
	if pending == nil {
		return nil
	}
	if documentID != nil {
		incoming := NewDocumentID(*documentID)
		if !pending.DocumentID.Equal(incoming) {
			return nil
		}
	}

	docIDStr := pending.DocumentID.String()
	isPublic := !frame.wasRedirected(docIDStr)
	navErr := coreerr.NavigationAborted(docIDStr, errorText)

	frame.setPendingDocument(nil)
	frame.fireInternalNavigation(NavigationEvent{
		URL:      frame.URL(),
		Name:     frame.Name(),
		Document: nil,
		Err:      navErr,
		IsPublic: isPublic,
	})
	return nil
}

// FireLifecycleEvent fires the named lifecycle flag (LifecycleLoad,
// LifecycleDOMContentLoaded, LifecycleNetworkIdleSurrogate) on the frame
// identified by id, per spec.md §3/§4.4. Unknown frame ids are ignored.
func (m *FrameManager) FireLifecycleEvent(id FrameID, name string) {
	if frame, ok := m.getFrame(id); ok {
		frame.fireLifecycleEvent(name)
	}
}

// MarkRedirectedNavigation records that documentID's navigation was a
// redirect, suppressing a later FrameAbortedNavigation from surfacing
// publicly for it. spec.md §4.5 references this set but leaves the exact
// triggering wire event to the adapter (e.g. a CDP Network.requestWillBeSent
// redirect chain); adapters call this directly when they observe one.
func (m *FrameManager) MarkRedirectedNavigation(id FrameID, documentID string) {
	if frame, ok := m.getFrame(id); ok {
		frame.markRedirected(documentID)
	}
}

// FrameDetached removes a frame and all of its descendants, per spec.md
// §4.5.
func (m *FrameManager) FrameDetached(id FrameID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame, ok := m.frames[id]
	if !ok {
		return nil
	}
	m.removeFramesRecursivelyLocked(frame)
	return nil
}

// ClearFrames detaches every frame but the main frame, resetting the tree
// to a single node, per spec.md §4.5.
func (m *FrameManager) ClearFrames() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mainFrame == nil {
		return
	}
	for _, c := range m.mainFrame.ChildFrames() {
		m.removeFramesRecursivelyLocked(c)
	}
}

// removeFramesRecursivelyLocked detaches frame and its entire subtree,
// children first, and unlinks it from its parent. Callers hold m.mu.
func (m *FrameManager) removeFramesRecursivelyLocked(frame *Frame) {
	for _, c := range frame.ChildFrames() {
		m.removeFramesRecursivelyLocked(c)
	}
	frame.onDetached()
	delete(m.frames, frame.id)
	if p := frame.ParentFrame(); p != nil {
		p.removeChild(frame.id)
	}
}

func (m *FrameManager) getFrame(id FrameID) (*Frame, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.frames[id]
	return f, ok
}

// FrameWillPotentiallyRequestNavigation retains every open barrier,
// bracketing an action that might cause a top-level navigation before the
// navigation itself is observable (spec.md §4.6's click-handler hint).
// Callers that call this must call FrameDidPotentiallyRequestNavigation
// exactly once afterward; the core does not auto-balance the pair.
func (m *FrameManager) FrameWillPotentiallyRequestNavigation() {
	m.barriersMu.RLock()
	defer m.barriersMu.RUnlock()
	for b := range m.barriers {
		b.retain()
	}
}

// FrameDidPotentiallyRequestNavigation releases the hold taken by
// FrameWillPotentiallyRequestNavigation.
func (m *FrameManager) FrameDidPotentiallyRequestNavigation() {
	m.barriersMu.RLock()
	defer m.barriersMu.RUnlock()
	for b := range m.barriers {
		b.release()
	}
}

func (m *FrameManager) notifyBarriersFrameNavigation(frame *Frame) {
	m.barriersMu.RLock()
	defer m.barriersMu.RUnlock()
	for b := range m.barriers {
		b.AddFrameNavigation(frame)
	}
}

func (m *FrameManager) addBarrier(b *SignalBarrier) {
	m.barriersMu.Lock()
	m.barriers[b] = struct{}{}
	m.barriersMu.Unlock()
}

func (m *FrameManager) removeBarrier(b *SignalBarrier) {
	m.barriersMu.Lock()
	delete(m.barriers, b)
	m.barriersMu.Unlock()
}
