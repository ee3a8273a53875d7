package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/internal/db_impl/sqlite3"
	"github.com/closeio/nylas/internal/hash"
	"github.com/closeio/nylas/mail"
	"github.com/closeio/nylas/txlog"
	"github.com/stretchr/testify/require"
)

const testAccountID = mail.AccountID("account-1")

func setupFolder(t *testing.T) (db.Client, *db.Folder) {
	t.Helper()

	ctx := context.Background()

	client, err := sqlite3.NewClient(t.TempDir(), false)
	require.NoError(t, err)
	require.NoError(t, client.Init(ctx))

	t.Cleanup(func() { require.NoError(t, client.Close()) })

	var folder *db.Folder

	require.NoError(t, client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		if _, err := tx.CreateAccount(ctx, testAccountID, "cred-ref"); err != nil {
			return err
		}

		folder, err = tx.CreateFolder(ctx, testAccountID, "INBOX", "INBOX")

		return err
	}))

	return client, folder
}

func apply(t *testing.T, client db.Client, folder *db.Folder, observations []mail.Observation, policy Policy) Result {
	t.Helper()

	var result Result

	require.NoError(t, client.Write(context.Background(), func(ctx context.Context, tx db.Transaction) error {
		var err error

		result, err = Apply(ctx, tx, folder, observations, policy)

		return err
	}))

	return result
}

func snapshot(remoteID mail.MessageID, subject string, flags ...string) mail.Snapshot {
	return mail.Snapshot{
		RemoteID: remoteID,
		Type:     mail.ObjectTypeMessage,
		Subject:  subject,
		Sender:   "alice@example.com",
		Date:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Flags:    flags,
	}
}

func TestApplyCreatesMessages(t *testing.T) {
	client, folder := setupFolder(t)

	result := apply(t, client, folder, []mail.Observation{
		mail.Observed(snapshot("1", "first")),
		mail.Observed(snapshot("2", "second")),
	}, Policy{})

	require.Equal(t, 2, result.Created)
	require.Len(t, result.Entries, 2)
	require.Equal(t, mail.OpInsert, result.Entries[0].Op)
	require.Equal(t, int64(1), result.Entries[0].Seq)
	require.Equal(t, int64(2), result.Entries[1].Seq)

	msg, err := db.ClientReadType(context.Background(), client, func(ctx context.Context, read db.ReadOnly) (*db.Message, error) {
		return read.GetMessageByRemoteID(ctx, folder.ID, "1")
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), msg.Revision)
	require.Equal(t, hash.Snapshot(snapshot("1", "first")), msg.Hash)
}

func TestApplyIsIdempotent(t *testing.T) {
	client, folder := setupFolder(t)

	observations := []mail.Observation{mail.Observed(snapshot("1", "first", "\\Seen"))}

	first := apply(t, client, folder, observations, Policy{})
	require.Equal(t, 1, first.Created)

	// Replaying the same batch mutates nothing and appends nothing.
	second := apply(t, client, folder, observations, Policy{})
	require.Equal(t, 0, second.Created)
	require.Equal(t, 0, second.Updated)
	require.Equal(t, 1, second.Unchanged)
	require.Empty(t, second.Entries)

	last, err := db.ClientReadType(context.Background(), client, func(ctx context.Context, read db.ReadOnly) (int64, error) {
		return read.GetLastLogSeq(ctx, testAccountID)
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), last)
}

func TestApplyUpdateOnHashChange(t *testing.T) {
	client, folder := setupFolder(t)

	apply(t, client, folder, []mail.Observation{mail.Observed(snapshot("1", "first"))}, Policy{})

	result := apply(t, client, folder, []mail.Observation{mail.Observed(snapshot("1", "first", "\\Seen"))}, Policy{})
	require.Equal(t, 1, result.Updated)
	require.Len(t, result.Entries, 1)
	require.Equal(t, mail.OpUpdate, result.Entries[0].Op)

	msg, err := db.ClientReadType(context.Background(), client, func(ctx context.Context, read db.ReadOnly) (*db.Message, error) {
		return read.GetMessageByRemoteID(ctx, folder.ID, "1")
	})
	require.NoError(t, err)
	require.Equal(t, result.Entries[0].Seq, msg.Revision)
}

func TestApplyDelete(t *testing.T) {
	client, folder := setupFolder(t)

	apply(t, client, folder, []mail.Observation{mail.Observed(snapshot("1", "first"))}, Policy{})

	result := apply(t, client, folder, []mail.Observation{mail.ObservedGone("1")}, Policy{})
	require.Equal(t, 1, result.Deleted)
	require.Equal(t, mail.OpDelete, result.Entries[0].Op)

	// Deleting again is a no-op.
	again := apply(t, client, folder, []mail.Observation{mail.ObservedGone("1")}, Policy{})
	require.Equal(t, 0, again.Deleted)
	require.Equal(t, 1, again.Unchanged)
	require.Empty(t, again.Entries)

	msg, err := db.ClientReadType(context.Background(), client, func(ctx context.Context, read db.ReadOnly) (*db.Message, error) {
		return read.GetMessageByRemoteID(ctx, folder.ID, "1")
	})
	require.NoError(t, err)
	require.True(t, msg.Deleted)
}

func TestApplyDeleteOfUnknownIsNoop(t *testing.T) {
	client, folder := setupFolder(t)

	result := apply(t, client, folder, []mail.Observation{mail.ObservedGone("999")}, Policy{})
	require.Equal(t, 1, result.Unchanged)
	require.Empty(t, result.Entries)
}

func TestApplyResurrection(t *testing.T) {
	client, folder := setupFolder(t)

	apply(t, client, folder, []mail.Observation{mail.Observed(snapshot("1", "first"))}, Policy{})
	apply(t, client, folder, []mail.Observation{mail.ObservedGone("1")}, Policy{})

	// The object coming back is an insert from the log consumer's point of
	// view, under the same internal ID.
	result := apply(t, client, folder, []mail.Observation{mail.Observed(snapshot("1", "first"))}, Policy{})
	require.Equal(t, 1, result.Created)
	require.Equal(t, mail.OpInsert, result.Entries[0].Op)

	msg, err := db.ClientReadType(context.Background(), client, func(ctx context.Context, read db.ReadOnly) (*db.Message, error) {
		return read.GetMessageByRemoteID(ctx, folder.ID, "1")
	})
	require.NoError(t, err)
	require.False(t, msg.Deleted)
	require.Equal(t, result.Entries[0].ObjectID, msg.ID)
}

func TestApplyDeleteWinsPolicy(t *testing.T) {
	client, folder := setupFolder(t)

	apply(t, client, folder, []mail.Observation{mail.Observed(snapshot("1", "first"))}, Policy{})

	observations := []mail.Observation{
		mail.ObservedGone("1"),
		mail.Observed(snapshot("1", "first", "\\Seen")),
	}

	result := apply(t, client, folder, observations, Policy{DeleteWins: true})
	require.Equal(t, 1, result.Deleted)
	require.Equal(t, 0, result.Updated)
}

func TestApplyLastWinsPolicy(t *testing.T) {
	client, folder := setupFolder(t)

	apply(t, client, folder, []mail.Observation{mail.Observed(snapshot("1", "first"))}, Policy{})

	observations := []mail.Observation{
		mail.ObservedGone("1"),
		mail.Observed(snapshot("1", "first", "\\Seen")),
	}

	result := apply(t, client, folder, observations, Policy{})
	require.Equal(t, 0, result.Deleted)
	require.Equal(t, 1, result.Updated)
}

func TestApplyLogIsGapless(t *testing.T) {
	client, folder := setupFolder(t)

	for i := 0; i < 3; i++ {
		apply(t, client, folder, []mail.Observation{
			mail.Observed(snapshot("1", "subject", string(rune('a'+i)))),
			mail.Observed(snapshot("2", "subject", string(rune('a'+i)))),
		}, Policy{})
	}

	reader := txlog.NewReader(client)

	entries, err := reader.ReadSince(context.Background(), testAccountID, 0, 100)
	require.NoError(t, err)
	require.Len(t, entries, 6)
	require.NoError(t, txlog.Validate(0, entries))
}
