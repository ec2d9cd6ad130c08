package common

import "sync"

// DownloadQueue tracks in-flight and completed downloads reported by a
// RuntimeAdapter's global download feed (spec.md §4.3, "Deliver file
// downloads via a global queue..."). The core's own transitions never read
// it; it exists because §9 names the download manager as "external to this
// spec" but owned by nobody in the distillation, and a runtime adapter
// still needs somewhere to file the events it is contractually required to
// deliver.
type DownloadQueue struct {
	mu        sync.Mutex
	items     []*Download
	started   []func(*Download)
	completed []func(*Download)
}

// NewDownloadQueue creates an empty queue.
func NewDownloadQueue() *DownloadQueue {
	return &DownloadQueue{}
}

// OnDownloadStarted subscribes listener to every download the adapter
// reports as started, replaying nothing (unlike StateAwareEvent, a download
// queue has no single "last" value worth replaying).
func (q *DownloadQueue) OnDownloadStarted(listener func(*Download)) Disposable {
	q.mu.Lock()
	q.started = append(q.started, listener)
	idx := len(q.started) - 1
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if idx < len(q.started) {
			q.started[idx] = nil
		}
	}
}

// OnDownloadCompleted subscribes listener to every download that reaches a
// terminal state (completed or canceled).
func (q *DownloadQueue) OnDownloadCompleted(listener func(*Download)) Disposable {
	q.mu.Lock()
	q.completed = append(q.completed, listener)
	idx := len(q.completed) - 1
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if idx < len(q.completed) {
			q.completed[idx] = nil
		}
	}
}

// Started records d as a newly started download and notifies subscribers.
func (q *DownloadQueue) Started(d *Download) {
	q.mu.Lock()
	d.State = DownloadInProgress
	q.items = append(q.items, d)
	listeners := append([]func(*Download){}, q.started...)
	q.mu.Unlock()

	for _, l := range listeners {
		if l != nil {
			l(d)
		}
	}
}

// Completed transitions d to state (DownloadCompleted or DownloadCanceled)
// and notifies subscribers.
func (q *DownloadQueue) Completed(d *Download, state DownloadState) {
	q.mu.Lock()
	d.State = state
	listeners := append([]func(*Download){}, q.completed...)
	q.mu.Unlock()

	for _, l := range listeners {
		if l != nil {
			l(d)
		}
	}
}

// List returns a snapshot of every download the queue has seen, in arrival
// order.
func (q *DownloadQueue) List() []*Download {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Download, len(q.items))
	copy(out, q.items)
	return out
}
