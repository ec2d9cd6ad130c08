package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownloadQueueStartedNotifiesSubscribers(t *testing.T) {
	t.Parallel()

	q := NewDownloadQueue()
	var started *Download
	q.OnDownloadStarted(func(d *Download) { started = d })

	d := &Download{SuggestedFilename: "report.pdf", URL: "https://example.com/report.pdf"}
	q.Started(d)

	require := assert.New(t)
	require.Same(d, started)
	require.Equal(DownloadInProgress, d.State)
	require.Len(q.List(), 1)
}

func TestDownloadQueueCompletedNotifiesSubscribers(t *testing.T) {
	t.Parallel()

	q := NewDownloadQueue()
	var completedState DownloadState
	q.OnDownloadCompleted(func(d *Download) { completedState = d.State })

	d := &Download{SuggestedFilename: "report.pdf"}
	q.Started(d)
	q.Completed(d, DownloadCompleted)

	assert.Equal(t, DownloadCompleted, completedState)
}

func TestDownloadQueueDisposeStopsNotification(t *testing.T) {
	t.Parallel()

	q := NewDownloadQueue()
	calls := 0
	dispose := q.OnDownloadStarted(func(*Download) { calls++ })
	dispose()

	q.Started(&Download{})
	assert.Equal(t, 0, calls)
}
