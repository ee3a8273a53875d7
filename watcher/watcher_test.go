package watcher

import (
	"testing"

	"github.com/closeio/nylas/async"
	"github.com/closeio/nylas/events"
	"github.com/stretchr/testify/require"
)

func TestWatcherFiltersByType(t *testing.T) {
	w := New[events.Event](async.NoopPanicHandler{}, events.SyncStarted{}, events.SyncFinished{})
	defer w.Close()

	require.True(t, w.IsWatching(events.SyncStarted{}))
	require.True(t, w.IsWatching(events.SyncFinished{}))
	require.False(t, w.IsWatching(events.SyncFailed{}))
}

func TestWatcherWatchesAllByDefault(t *testing.T) {
	w := New[events.Event](async.NoopPanicHandler{})
	defer w.Close()

	require.True(t, w.IsWatching(events.SyncStarted{}))
	require.True(t, w.IsWatching(events.FolderInvalidated{}))
}

func TestWatcherDeliversInOrder(t *testing.T) {
	w := New[events.Event](async.NoopPanicHandler{})

	require.True(t, w.Send(events.SyncStarted{AccountID: "a"}))
	require.True(t, w.Send(events.SyncFinished{AccountID: "a", LastLogSeq: 3}))

	require.Equal(t, events.SyncStarted{AccountID: "a"}, <-w.GetChannel())
	require.Equal(t, events.SyncFinished{AccountID: "a", LastLogSeq: 3}, <-w.GetChannel())

	w.Close()
}
