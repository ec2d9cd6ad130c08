package common

import (
	"context"
	"time"
)

// GotoOptions mirrors the navigate-a-tab contract named in spec.md §4.3.
type GotoOptions struct {
	WaitUntil string
	Timeout   time.Duration
}

// RuntimeAdapter is the capability interface the core requires of the
// ambient browser runtime (spec.md §4.3, component C3). It is the sole
// boundary between the frame-tree/navigation core and whatever transport
// (CDP, a WebExtension debugger API, ...) actually drives the browser; the
// core never imports a concrete wire protocol.
type RuntimeAdapter interface {
	// Evaluate executes fn in the given world of frame, returning a
	// serializable result.
	Evaluate(ctx context.Context, frame *Frame, world string, fn string, args ...any) (any, error)

	// AriaSnapshot calls the injected script's ariaSnapshot(forAI,
	// refPrefix, world) in frame.
	AriaSnapshot(ctx context.Context, frame *Frame, forAI bool, refPrefix, world string) (string, error)

	// ElementIsAccessibleIframe reports whether the element matching selector exists
	// in frame and is an iframe, used for the AI snapshot composer's
	// availability check (spec.md §4.6).
	ElementIsAccessibleIframe(ctx context.Context, frame *Frame, selector string) (bool, error)

	// ResolveChildFrame resolves frameBodySelector to the child frame it
	// denotes, per the selector protocol in spec.md §6. found is false if
	// the selector resolved to no frame.
	ResolveChildFrame(ctx context.Context, frame *Frame, frameBodySelector string) (child *Frame, found bool, err error)

	// Goto, GoBack, GoForward, Reload perform tab navigation.
	Goto(ctx context.Context, frame *Frame, url string, opts GotoOptions) error
	GoBack(ctx context.Context, frame *Frame) error
	GoForward(ctx context.Context, frame *Frame) error
	Reload(ctx context.Context, frame *Frame) error
}

// World names for RuntimeAdapter.Evaluate/AriaSnapshot, per spec.md §4.3/§6.
const (
	WorldMain     = "MAIN"
	WorldIsolated = "ISOLATED"
)

// DownloadState is the lifecycle state of a tracked download, per the
// global download queue contract named in spec.md §4.3.
type DownloadState string

const (
	DownloadInProgress DownloadState = "in_progress"
	DownloadCompleted  DownloadState = "completed"
	DownloadCanceled   DownloadState = "canceled"
)

// Download mirrors the per-item fields the runtime adapter's download
// queue reports (spec.md §4.3).
type Download struct {
	SuggestedFilename string
	URL               string
	State             DownloadState
	Path              string
	Show              bool
	SaveAs            bool
}
