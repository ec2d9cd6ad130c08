// Package cdpadapter implements common.RuntimeAdapter against the Chrome
// DevTools Protocol via github.com/chromedp/cdproto, translating CDP's
// page/target/runtime events into the core's frame-tree transitions. It is
// grounded on xk6-browser's FrameSession (the event-handling loop in
// common/frame_session.go of that project), generalized from k6's
// VU/sample-tagged lifecycle handling down to the plain transitions
// common.FrameManager expects.
package cdpadapter

import (
	"sync"

	"github.com/chromedp/cdproto/cdp"

	"github.com/adam-s/cordyceps/common"
)

// idRegistry maps between the wire's cdp.FrameID (an opaque protocol
// string) and the core's common.FrameID (a dense int64), since the core
// never imports the wire protocol's identifier type.
type idRegistry struct {
	mu      sync.Mutex
	byWire  map[cdp.FrameID]common.FrameID
	byLocal map[common.FrameID]cdp.FrameID
	next    int64
}

func newIDRegistry() *idRegistry {
	return &idRegistry{
		byWire:  make(map[cdp.FrameID]common.FrameID),
		byLocal: make(map[common.FrameID]cdp.FrameID),
	}
}

// localID returns the common.FrameID for wire, minting a fresh one on first
// sight.
func (r *idRegistry) localID(wire cdp.FrameID) common.FrameID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byWire[wire]; ok {
		return id
	}
	r.next++
	id := common.FrameID(r.next)
	r.byWire[wire] = id
	r.byLocal[id] = wire
	return id
}

// wireID returns the cdp.FrameID previously registered for id, if any.
func (r *idRegistry) wireID(id common.FrameID) (cdp.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byLocal[id]
	return w, ok
}

func (r *idRegistry) forget(wire cdp.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byWire[wire]; ok {
		delete(r.byWire, wire)
		delete(r.byLocal, id)
	}
}
