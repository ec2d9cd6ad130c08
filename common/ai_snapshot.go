package common

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// snapshotBackoffs is the backoff vector retryWithProgressAndTimeouts walks
// while waiting for a frame's aria-snapshot call to settle, per spec.md §9:
// "retain it unless telemetry motivates change".
var snapshotBackoffs = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
}

// iframeLinePattern matches an aria-snapshot line denoting an iframe,
// capturing its leading indentation and ref token.
var iframeLinePattern = regexp.MustCompile(`^(\s*)- iframe (?:\[active\] )?\[ref=(.*)\]`)

const (
	iframeAvailabilityTimeout = 1 * time.Second
	iframeResolveTimeout      = 3 * time.Second
)

// CreatePageSnapshotForAI composes a full-page ARIA snapshot of mainFrame,
// descending into accessible iframes via the selector protocol in spec.md
// §4.6/§6, and degrading a single inaccessible iframe to a placeholder line
// rather than failing the whole snapshot.
func CreatePageSnapshotForAI(progress *Progress, adapter RuntimeAdapter, mainFrame *Frame) (string, error) {
	return snapshotFrameForAI(progress, adapter, mainFrame, 0, nil)
}

func snapshotFrameForAI(progress *Progress, adapter RuntimeAdapter, frame *Frame, frameOrdinal int, frameIDs []FrameID) (string, error) {
	refPrefix := ""
	if frameOrdinal != 0 {
		refPrefix = "f" + strconv.Itoa(frameOrdinal)
	}

	snapshot, err := retryWithProgressAndTimeouts(progress, snapshotBackoffs, func() (string, bool, error) {
		text, evalErr := adapter.AriaSnapshot(progress.Context(), frame, true, refPrefix, WorldMain)
		if evalErr != nil {
			return "", false, evalErr
		}
		return text, true, nil
	})
	if err != nil {
		return "", err
	}

	lines := strings.Split(snapshot, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		m := iframeLinePattern.FindStringSubmatch(line)
		if m == nil {
			out = append(out, line)
			continue
		}

		leadingSpace, ref := m[1], m[2]
		rendered, newFrameIDs, descendErr := descendIntoIframe(progress, adapter, frame, line, leadingSpace, ref, frameIDs)
		if descendErr != nil {
			out = append(out, fmt.Sprintf("%s [resolution error: %v]", line, descendErr))
			continue
		}
		frameIDs = newFrameIDs
		out = append(out, rendered...)
	}

	return strings.Join(out, "\n"), nil
}

// descendIntoIframe resolves one iframe line to either a placeholder (the
// iframe is missing, inaccessible, or unresolvable) or the recursively
// composed snapshot of its child frame, per spec.md §4.6 step 3. A non-nil
// error means an exception outside the degrade-gracefully cases named
// there; the caller folds it into a "[resolution error: ...]" suffix on the
// original line instead of aborting the whole composition.
func descendIntoIframe(
	progress *Progress,
	adapter RuntimeAdapter,
	frame *Frame,
	line, leadingSpace, ref string,
	frameIDs []FrameID,
) ([]string, []FrameID, error) {
	frameSelector := "aria-ref=" + ref + " >> internal:control=enter-frame"
	frameBodySelector := frameSelector + " >> body"

	availCtx, cancel := context.WithTimeout(progress.Context(), iframeAvailabilityTimeout)
	accessible, availErr := adapter.ElementIsAccessibleIframe(availCtx, frame, frameSelector)
	cancel()
	if availErr != nil || !accessible {
		if frame.logger != nil {
			frame.logger.Debugf("snapshotFrameForAI:descendIntoIframe", "ref:%s not accessible err:%v", ref, availErr)
		}
		return []string{leadingSpace + "[iframe " + ref + " - not accessible or not ready]"}, frameIDs, nil
	}

	resolveCtx, cancel := context.WithTimeout(progress.Context(), iframeResolveTimeout)
	child, found, resolveErr := adapter.ResolveChildFrame(resolveCtx, frame, frameBodySelector)
	cancel()
	if resolveErr != nil {
		if frame.logger != nil {
			frame.logger.Warnf("snapshotFrameForAI:descendIntoIframe", "ref:%s resolve failed: %v", ref, resolveErr)
		}
		return []string{leadingSpace + "[iframe " + ref + " - resolution failed: " + resolveErr.Error() + "]"}, frameIDs, nil
	}
	if !found {
		return []string{leadingSpace + "[iframe " + ref + " - no child frame found]"}, frameIDs, nil
	}

	newFrameIDs := append(append([]FrameID{}, frameIDs...), child.ID())
	childSnapshot, err := snapshotFrameForAI(progress, adapter, child, len(newFrameIDs), newFrameIDs)
	if err != nil {
		return nil, frameIDs, err
	}

	rendered := make([]string, 0, 1+strings.Count(childSnapshot, "\n")+1)
	rendered = append(rendered, line+":")
	for _, childLine := range strings.Split(childSnapshot, "\n") {
		rendered = append(rendered, leadingSpace+"  "+childLine)
	}
	return rendered, newFrameIDs, nil
}
