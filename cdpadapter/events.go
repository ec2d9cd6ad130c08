package cdpadapter

import (
	"github.com/chromedp/cdproto/inspector"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"

	"github.com/adam-s/cordyceps/common"
	"github.com/adam-s/cordyceps/log"
)

// Dispatch translates one decoded CDP event into the corresponding
// FrameManager transition, mirroring the event switch in xk6-browser's
// FrameSession.initEvents. Event types the core has no transition for
// (execution-context and target-attach bookkeeping, the inspector crash
// signal) are logged and otherwise ignored; any other event type is ignored
// without logging.
func Dispatch(logger *log.Logger, ids *idRegistry, m *common.FrameManager, event interface{}) {
	switch ev := event.(type) {
	case *cdppage.EventFrameAttached:
		id := ids.localID(ev.FrameID)
		var parent *common.FrameID
		if ev.ParentFrameID != "" {
			p := ids.localID(ev.ParentFrameID)
			parent = &p
		}
		logger.Debugf("cdpadapter:Dispatch", "frameAttached fid:%v pfid:%v", ev.FrameID, ev.ParentFrameID)
		if err := m.FrameAttached(id, parent, ""); err != nil {
			logger.Warnf("cdpadapter:Dispatch", "frameAttached fid:%v: %v", ev.FrameID, err)
		}

	case *cdppage.EventFrameDetached:
		id := ids.localID(ev.FrameID)
		logger.Debugf("cdpadapter:Dispatch", "frameDetached fid:%v", ev.FrameID)
		if err := m.FrameDetached(id); err != nil {
			logger.Warnf("cdpadapter:Dispatch", "frameDetached fid:%v: %v", ev.FrameID, err)
		}
		ids.forget(ev.FrameID)

	case *cdppage.EventFrameNavigated:
		frame := ev.Frame
		id := ids.localID(frame.ID)
		logger.Debugf("cdpadapter:Dispatch", "frameNavigated fid:%v url:%v", frame.ID, frame.URL)
		documentID := frame.LoaderID.String()
		if err := m.FrameCommittedNewDocument(id, frame.URL+frame.URLFragment, frame.Name, documentID, false); err != nil {
			logger.Warnf("cdpadapter:Dispatch", "frameNavigated fid:%v: %v", frame.ID, err)
		}

	case *cdppage.EventFrameRequestedNavigation:
		if ev.Disposition != "currentTab" {
			return
		}
		id := ids.localID(ev.FrameID)
		logger.Debugf("cdpadapter:Dispatch", "frameRequestedNavigation fid:%v url:%v", ev.FrameID, ev.URL)
		if err := m.FrameRequestedNavigation(id, nil); err != nil {
			logger.Warnf("cdpadapter:Dispatch", "frameRequestedNavigation fid:%v: %v", ev.FrameID, err)
		}

	case *cdppage.EventNavigatedWithinDocument:
		id := ids.localID(ev.FrameID)
		logger.Debugf("cdpadapter:Dispatch", "navigatedWithinDocument fid:%v url:%v", ev.FrameID, ev.URL)
		if err := m.FrameCommittedSameDocument(id, ev.URL); err != nil {
			logger.Warnf("cdpadapter:Dispatch", "navigatedWithinDocument fid:%v: %v", ev.FrameID, err)
		}

	case *cdppage.EventLifecycleEvent:
		// Lifecycle flags are driven by the same EventLifecycleEvent stream
		// xk6-browser's onPageLifecycle consumes; this adapter forwards only
		// the flag name, leaving sample/tag bookkeeping to whatever wraps it.
		id := ids.localID(ev.FrameID)
		switch ev.Name {
		case "load":
			m.FireLifecycleEvent(id, common.LifecycleLoad)
		case "DOMContentLoaded":
			m.FireLifecycleEvent(id, common.LifecycleDOMContentLoaded)
		}

	case *inspector.EventTargetCrashed:
		logger.Errorf("cdpadapter:Dispatch", "target crashed")

	case *target.EventAttachedToTarget, *target.EventDetachedFromTarget:
		logger.Debugf("cdpadapter:Dispatch", "target attach/detach bookkeeping (unhandled by core)")

	case *runtime.EventExecutionContextCreated, *runtime.EventExecutionContextDestroyed, *runtime.EventExecutionContextsCleared:
		logger.Debugf("cdpadapter:Dispatch", "execution context bookkeeping (unhandled by core)")
	}
}
