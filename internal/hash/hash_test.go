package hash

import (
	"testing"
	"time"

	"github.com/closeio/nylas/mail"
	"github.com/stretchr/testify/require"
)

func testSnapshot() mail.Snapshot {
	return mail.Snapshot{
		RemoteID: "1001",
		Type:     mail.ObjectTypeMessage,
		Subject:  "hello",
		Sender:   "alice@example.com",
		Date:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Size:     2048,
		Flags:    []string{"\\Seen", "\\Flagged"},
	}
}

func TestSnapshotHashIsDeterministic(t *testing.T) {
	require.Equal(t, Snapshot(testSnapshot()), Snapshot(testSnapshot()))
}

func TestSnapshotHashIgnoresFlagOrder(t *testing.T) {
	a := testSnapshot()
	a.Flags = []string{"\\Seen", "\\Flagged"}

	b := testSnapshot()
	b.Flags = []string{"\\Flagged", "\\Seen"}

	require.Equal(t, Snapshot(a), Snapshot(b))
}

func TestSnapshotHashIgnoresTimezone(t *testing.T) {
	a := testSnapshot()

	b := testSnapshot()
	b.Date = b.Date.In(time.FixedZone("UTC+2", 2*60*60))

	require.Equal(t, Snapshot(a), Snapshot(b))
}

func TestSnapshotHashChangesWithContent(t *testing.T) {
	base := Snapshot(testSnapshot())

	changed := testSnapshot()
	changed.Subject = "hello again"
	require.NotEqual(t, base, Snapshot(changed))

	changed = testSnapshot()
	changed.Flags = append(changed.Flags, "\\Answered")
	require.NotEqual(t, base, Snapshot(changed))

	changed = testSnapshot()
	changed.Size++
	require.NotEqual(t, base, Snapshot(changed))
}

func TestSnapshotHashDoesNotMutateFlags(t *testing.T) {
	snap := testSnapshot()
	snap.Flags = []string{"\\Seen", "\\Answered", "\\Flagged"}

	Snapshot(snap)

	require.Equal(t, []string{"\\Seen", "\\Answered", "\\Flagged"}, snap.Flags)
}
