package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adam-s/cordyceps/coreerr"
)

func strp(s string) *string { return &s }

// S1: basic commit. attach(main, id=1) then frameCommittedNewDocument(1,
// url, name, "docA", initial=false) leaves frame 1's currentDocument at
// docA with no pending, and fires one public navigated event.
func TestFrameManagerBasicCommit(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))

	var navigated []FrameID
	m.OnFrameNavigated(func(f *Frame) { navigated = append(navigated, f.ID()) })

	require.NoError(t, m.FrameCommittedNewDocument(1, "https://example.com", "", "docA", false))

	main := m.MainFrame()
	require.NotNil(t, main)
	assert.Equal(t, "docA", main.CurrentDocument().DocumentID.String())
	assert.Nil(t, main.PendingDocument())
	assert.Equal(t, []FrameID{1}, navigated)
}

// S2: overlapping navigation. frameRequestedNavigation(1, "docB") while
// pending is already "docA" must not clobber docA; when a different
// document (docB) then commits, docB becomes current and docA is retained
// as pending afterward.
func TestFrameManagerOverlappingNavigationRetainsPending(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))

	require.NoError(t, m.FrameRequestedNavigation(1, strp("docA")))
	require.NoError(t, m.FrameRequestedNavigation(1, strp("docB")))

	main := m.MainFrame()
	require.NotNil(t, main.PendingDocument())
	assert.Equal(t, "docA", main.PendingDocument().DocumentID.String(), "the earlier pending id must win over a conflicting later one")

	require.NoError(t, m.FrameCommittedNewDocument(1, "https://b.example", "", "docB", false))

	assert.Equal(t, "docB", main.CurrentDocument().DocumentID.String())
	require.NotNil(t, main.PendingDocument(), "docA's request must be retained once docB commits")
	assert.Equal(t, "docA", main.PendingDocument().DocumentID.String())
}

// S3: same-document navigation clears an absent pending without touching
// currentDocument, and fires an internal navigation with no Document.
func TestFrameManagerSameDocumentNavigation(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))
	require.NoError(t, m.FrameCommittedNewDocument(1, "https://example.com", "", "docA", false))
	require.NoError(t, m.FrameRequestedNavigation(1, nil))

	var events []NavigationEvent
	main := m.MainFrame()
	main.OnInternalNavigation(func(e NavigationEvent) { events = append(events, e) })

	require.NoError(t, m.FrameCommittedSameDocument(1, "https://example.com#frag"))

	assert.Nil(t, main.PendingDocument())
	assert.Equal(t, "docA", main.CurrentDocument().DocumentID.String())
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Document)
	assert.Equal(t, "https://example.com#frag", main.URL())
}

func TestFrameManagerAttachChildRequiresKnownParent(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	missing := FrameID(99)
	err := m.FrameAttached(2, &missing, "about:blank")
	require.Error(t, err)
	var ce *coreerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, coreerr.KindParentMissing, ce.Kind)
}

func TestFrameManagerAttachIsIdempotent(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))
	require.NoError(t, m.FrameAttached(1, nil, "https://example.com"))

	assert.Equal(t, "https://example.com", m.MainFrame().URL())
	assert.Len(t, m.Frames(), 1)
}

func TestFrameManagerAttachConflictingParentIsDuplicate(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))
	parentA := FrameID(1)
	require.NoError(t, m.FrameAttached(2, &parentA, "about:blank"))
	parentB := FrameID(1)
	require.NoError(t, m.FrameAttached(4, &parentB, "about:blank"))

	underA := FrameID(2)
	require.NoError(t, m.FrameAttached(3, &underA, "https://child.example"))

	underB := FrameID(4)
	err := m.FrameAttached(3, &underB, "https://child.example")
	require.Error(t, err)
	var ce *coreerr.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, coreerr.KindDuplicateFrameID, ce.Kind)
}

func TestFrameManagerFrameDetachedRemovesSubtree(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))
	parent := FrameID(1)
	require.NoError(t, m.FrameAttached(2, &parent, "about:blank"))
	mid := FrameID(2)
	require.NoError(t, m.FrameAttached(3, &mid, "about:blank"))

	require.NoError(t, m.FrameDetached(2))

	assert.Len(t, m.Frames(), 1)
	_, ok := m.GetFrameByID(2)
	assert.False(t, ok)
	_, ok = m.GetFrameByID(3)
	assert.False(t, ok)
}

func TestFrameManagerClearFramesKeepsMain(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))
	parent := FrameID(1)
	require.NoError(t, m.FrameAttached(2, &parent, "about:blank"))

	m.ClearFrames()

	assert.Len(t, m.Frames(), 1)
	assert.NotNil(t, m.MainFrame())
	assert.Empty(t, m.MainFrame().ChildFrames())
}

func TestFrameManagerAbortedNavigationIgnoresStaleDocumentID(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))
	require.NoError(t, m.FrameRequestedNavigation(1, strp("docA")))

	require.NoError(t, m.FrameAbortedNavigation(1, "net::ERR_ABORTED", strp("docStale")))
	assert.NotNil(t, m.MainFrame().PendingDocument(), "a mismatched documentId must not clear the real pending entry")

	require.NoError(t, m.FrameAbortedNavigation(1, "net::ERR_ABORTED", strp("docA")))
	assert.Nil(t, m.MainFrame().PendingDocument())
}

func TestFrameManagerMainFrameReplacedOnReattach(t *testing.T) {
	t.Parallel()

	m := NewFrameManager(nil, nil)
	require.NoError(t, m.FrameAttached(1, nil, "about:blank"))
	old := m.MainFrame()

	require.NoError(t, m.FrameAttached(2, nil, "about:blank"))

	assert.True(t, old.IsDetached())
	assert.Equal(t, FrameID(2), m.MainFrame().ID())
	assert.Len(t, m.Frames(), 1)
}
