package remote

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/closeio/nylas/mail"
	"github.com/stretchr/testify/require"
)

func TestDummyListAllPaging(t *testing.T) {
	ctx := context.Background()
	dummy := NewDummy()

	folderID := dummy.CreateFolder("INBOX")

	for i := 0; i < 5; i++ {
		dummy.AddMessage(folderID, mail.Snapshot{Subject: "hello", Date: time.Now()}, []byte("body"))
	}

	client, err := dummy.NewClient(ctx, "acc", "cred")
	require.NoError(t, err)

	page, err := client.ListAll(ctx, folderID, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Snapshots, 2)
	require.NotEmpty(t, page.Next)
	require.Empty(t, page.Cursor)

	page, err = client.ListAll(ctx, folderID, page.Next, 2)
	require.NoError(t, err)
	require.Len(t, page.Snapshots, 2)
	require.NotEmpty(t, page.Next)

	// The final page carries the cursor.
	page, err = client.ListAll(ctx, folderID, page.Next, 2)
	require.NoError(t, err)
	require.Len(t, page.Snapshots, 1)
	require.Empty(t, page.Next)
	require.NotEmpty(t, page.Cursor)
}

func TestDummyChanges(t *testing.T) {
	ctx := context.Background()
	dummy := NewDummy()

	folderID := dummy.CreateFolder("INBOX")
	msgID := dummy.AddMessage(folderID, mail.Snapshot{Subject: "first", Date: time.Now()}, nil)

	client, err := dummy.NewClient(ctx, "acc", "cred")
	require.NoError(t, err)

	page, err := client.ListAll(ctx, folderID, "", 100)
	require.NoError(t, err)

	cursor := page.Cursor

	// Nothing changed yet.
	set, err := client.Changes(ctx, folderID, cursor)
	require.NoError(t, err)
	require.Empty(t, set.Observations)

	dummy.SetFlags(folderID, msgID, []string{"\\Seen"})
	secondID := dummy.AddMessage(folderID, mail.Snapshot{Subject: "second", Date: time.Now()}, nil)
	dummy.DeleteMessage(folderID, secondID)

	set, err = client.Changes(ctx, folderID, cursor)
	require.NoError(t, err)
	require.Len(t, set.Observations, 2)

	require.True(t, set.Observations[0].Present)
	require.Equal(t, mail.MessageID(msgID), set.Observations[0].Snapshot.RemoteID)
	require.Equal(t, []string{"\\Seen"}, set.Observations[0].Snapshot.Flags)

	require.False(t, set.Observations[1].Present)
	require.Equal(t, mail.MessageID(secondID), set.Observations[1].Snapshot.RemoteID)

	// Polling from the returned cursor is quiescent.
	set, err = client.Changes(ctx, folderID, set.Cursor)
	require.NoError(t, err)
	require.Empty(t, set.Observations)
}

func TestDummyInvalidateFolder(t *testing.T) {
	ctx := context.Background()
	dummy := NewDummy()

	folderID := dummy.CreateFolder("INBOX")

	client, err := dummy.NewClient(ctx, "acc", "cred")
	require.NoError(t, err)

	page, err := client.ListAll(ctx, folderID, "", 100)
	require.NoError(t, err)

	dummy.InvalidateFolder(folderID)

	_, err = client.Changes(ctx, folderID, page.Cursor)
	require.ErrorIs(t, err, ErrCursorInvalid)
	require.True(t, IsPermanent(err))
}

func TestDummyAuthRevoked(t *testing.T) {
	ctx := context.Background()
	dummy := NewDummy()

	dummy.RevokeAuth()

	_, err := dummy.NewClient(ctx, "acc", "cred")
	require.ErrorIs(t, err, ErrAuthRevoked)
	require.True(t, IsPermanent(err))
}

func TestDummySeedMbox(t *testing.T) {
	ctx := context.Background()
	dummy := NewDummy()

	folderID := dummy.CreateFolder("INBOX")

	const mboxData = `From alice@example.com Mon Jan  2 15:04:05 2006
From: Alice <alice@example.com>
Subject: greetings
Date: Mon, 02 Jan 2006 15:04:05 -0700

Hello there.

From bob@example.com Mon Jan  2 16:04:05 2006
From: Bob <bob@example.com>
Subject: re: greetings
Date: Mon, 02 Jan 2006 16:04:05 -0700

Hi back.
`

	count, err := dummy.SeedMbox(folderID, strings.NewReader(mboxData))
	require.NoError(t, err)
	require.Equal(t, 2, count)

	client, err := dummy.NewClient(ctx, "acc", "cred")
	require.NoError(t, err)

	page, err := client.ListAll(ctx, folderID, "", 100)
	require.NoError(t, err)
	require.Len(t, page.Snapshots, 2)
	require.Equal(t, "greetings", page.Snapshots[0].Subject)
	require.Equal(t, "Bob <bob@example.com>", page.Snapshots[1].Sender)

	body, err := client.FetchBody(ctx, folderID, string(page.Snapshots[0].RemoteID))
	require.NoError(t, err)
	require.Contains(t, string(body), "Hello there.")
}
