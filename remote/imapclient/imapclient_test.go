package imapclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpungedUIDs(t *testing.T) {
	// Gaps below the watermark are expunges; UIDs above it are new mail.
	require.Equal(t, []uint32{2, 4}, expungedUIDs([]uint32{1, 3, 5, 7}, 5))

	// A fully present range reports nothing.
	require.Empty(t, expungedUIDs([]uint32{1, 2, 3}, 3))

	// An empty mailbox means everything inside the watermark is gone.
	require.Equal(t, []uint32{1, 2, 3}, expungedUIDs(nil, 3))

	// A zero watermark (fresh cursor) reports nothing.
	require.Empty(t, expungedUIDs([]uint32{1, 2}, 0))

	// Trailing gap up to the watermark.
	require.Equal(t, []uint32{3, 4}, expungedUIDs([]uint32{1, 2}, 4))
}

func TestExpungedUIDsScalesWithMailboxSize(t *testing.T) {
	// A bulk-deleted mailbox: two survivors under a large watermark. The walk
	// must not iterate per candidate UID beyond the reported gaps.
	gone := expungedUIDs([]uint32{1, 100}, 100)
	require.Len(t, gone, 98)
	require.Equal(t, uint32(2), gone[0])
	require.Equal(t, uint32(99), gone[len(gone)-1])
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := makeCursor(42, 1000)

	validity, last, err := parseCursor(cursor)
	require.NoError(t, err)
	require.Equal(t, uint32(42), validity)
	require.Equal(t, uint32(1000), last)

	_, _, err = parseCursor("not-a-cursor")
	require.Error(t, err)
}
