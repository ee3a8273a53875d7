package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryTryLock(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	lease, err := mem.TryLock(ctx, "account/1", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, lease.Token)

	_, err = mem.TryLock(ctx, "account/1", time.Minute)
	require.ErrorIs(t, err, ErrAlreadyLocked)

	// A different key is independent.
	_, err = mem.TryLock(ctx, "account/2", time.Minute)
	require.NoError(t, err)
}

func TestMemoryLockExpiry(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	stale, err := mem.TryLock(ctx, "account/1", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	// The expired lease no longer blocks acquisition or supports renewal.
	fresh, err := mem.TryLock(ctx, "account/1", time.Minute)
	require.NoError(t, err)
	require.NotEqual(t, stale.Token, fresh.Token)

	require.ErrorIs(t, mem.Renew(ctx, stale, time.Minute), ErrNotHeld)
	require.ErrorIs(t, mem.Unlock(ctx, stale), ErrNotHeld)
}

func TestMemoryRenew(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	lease, err := mem.TryLock(ctx, "account/1", time.Minute)
	require.NoError(t, err)

	oldRevision := lease.Revision

	require.NoError(t, mem.Renew(ctx, lease, time.Hour))
	require.Greater(t, lease.Revision, oldRevision)

	require.NoError(t, mem.Unlock(ctx, lease))

	_, err = mem.TryLock(ctx, "account/1", time.Minute)
	require.NoError(t, err)
}

func TestMemoryPubSub(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	defer func() { require.NoError(t, mem.Close()) }()

	ch, err := mem.Subscribe(ctx, "sync.status.*")
	require.NoError(t, err)

	require.NoError(t, mem.Publish(ctx, "sync.status.acc1", []byte("finished")))
	require.NoError(t, mem.Publish(ctx, "sync.other.acc1", []byte("ignored")))

	select {
	case msg := <-ch:
		require.Equal(t, "sync.status.acc1", msg.Subject)
		require.Equal(t, []byte("finished"), msg.Data)

	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message on %v", msg.Subject)

	default:
	}
}

func TestSubjectMatches(t *testing.T) {
	require.True(t, subjectMatches("a.b.c", "a.b.c"))
	require.True(t, subjectMatches("a.*.c", "a.b.c"))
	require.True(t, subjectMatches("a.>", "a.b.c"))
	require.False(t, subjectMatches("a.b", "a.b.c"))
	require.False(t, subjectMatches("a.*.c", "a.b.d"))
	require.False(t, subjectMatches("a.b.c.d", "a.b.c"))
}
