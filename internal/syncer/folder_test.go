package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/events"
	"github.com/closeio/nylas/internal/db_impl/sqlite3"
	"github.com/closeio/nylas/mail"
	"github.com/closeio/nylas/remote"
	"github.com/closeio/nylas/txlog"
)

const testAccountID = mail.AccountID("account-1")

type harness struct {
	client db.Client
	dummy  *remote.Dummy
	events []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx := context.Background()

	client, err := sqlite3.NewClient(t.TempDir(), false)
	require.NoError(t, err)
	require.NoError(t, client.Init(ctx))

	t.Cleanup(func() { require.NoError(t, client.Close()) })

	require.NoError(t, client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		_, err := tx.CreateAccount(ctx, testAccountID, "cred-ref")

		return err
	}))

	return &harness{
		client: client,
		dummy:  remote.NewDummy(),
	}
}

func (h *harness) publish(event events.Event) {
	h.events = append(h.events, event)
}

func (h *harness) accountSyncer(t *testing.T) *AccountSyncer {
	t.Helper()

	return NewAccountSyncer(h.client, h.dummy, nil, Config{BatchSize: 2}, h.publish)
}

func (h *harness) sync(t *testing.T) {
	t.Helper()

	require.NoError(t, h.accountSyncer(t).Sync(context.Background(), testAccountID))
}

func (h *harness) folder(t *testing.T, remoteID string) *db.Folder {
	t.Helper()

	folder, err := db.ClientReadType(context.Background(), h.client, func(ctx context.Context, read db.ReadOnly) (*db.Folder, error) {
		return read.GetFolderByRemoteID(ctx, testAccountID, mail.FolderID(remoteID))
	})
	require.NoError(t, err)

	return folder
}

func (h *harness) messages(t *testing.T, folderID mail.InternalFolderID, includeDeleted bool) []*db.Message {
	t.Helper()

	messages, err := db.ClientReadType(context.Background(), h.client, func(ctx context.Context, read db.ReadOnly) ([]*db.Message, error) {
		return read.GetFolderMessages(ctx, folderID, includeDeleted)
	})
	require.NoError(t, err)

	return messages
}

func (h *harness) logEntries(t *testing.T) []db.LogEntry {
	t.Helper()

	entries, err := txlog.NewReader(h.client).ReadSince(context.Background(), testAccountID, 0, 1000)
	require.NoError(t, err)
	require.NoError(t, txlog.Validate(0, entries))

	return entries
}

func snapshot(subject string, flags ...string) mail.Snapshot {
	return mail.Snapshot{
		Type:    mail.ObjectTypeMessage,
		Subject: subject,
		Sender:  "alice@example.com",
		Date:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Flags:   flags,
	}
}

func TestInitialSync(t *testing.T) {
	h := newHarness(t)

	inbox := h.dummy.CreateFolder("INBOX")
	h.dummy.AddMessage(inbox, snapshot("a"), nil)
	h.dummy.AddMessage(inbox, snapshot("b"), nil)

	h.sync(t)

	folder := h.folder(t, inbox)
	require.Equal(t, db.FolderIncremental, folder.Status)
	require.NotEmpty(t, folder.Cursor)
	require.Empty(t, folder.PageToken)

	require.Len(t, h.messages(t, folder.ID, false), 2)

	// Inserts appear in remote listing order.
	entries := h.logEntries(t)
	require.Len(t, entries, 2)
	require.Equal(t, mail.OpInsert, entries[0].Op)
	require.Equal(t, mail.OpInsert, entries[1].Op)
}

func TestIncrementalUpdateAndForeignDelete(t *testing.T) {
	h := newHarness(t)

	inbox := h.dummy.CreateFolder("INBOX")
	msgB := h.dummy.AddMessage(inbox, snapshot("b"), nil)

	h.sync(t)

	// B changes; a delete arrives for a message that was never synced.
	h.dummy.SetFlags(inbox, msgB, []string{"\\Seen"})

	ghost := h.dummy.AddMessage(inbox, snapshot("ghost"), nil)
	h.dummy.DeleteMessage(inbox, ghost)

	folder := h.folder(t, inbox)

	before := h.messages(t, folder.ID, false)
	require.Len(t, before, 1)

	h.sync(t)

	// Only the update of B is logged; the revision advanced by exactly one.
	entries := h.logEntries(t)
	require.Len(t, entries, 2)
	require.Equal(t, mail.OpUpdate, entries[1].Op)

	after := h.messages(t, folder.ID, false)
	require.Len(t, after, 1)
	require.Equal(t, before[0].Revision+1, after[0].Revision)
}

func TestCursorInvalidation(t *testing.T) {
	h := newHarness(t)

	inbox := h.dummy.CreateFolder("INBOX")
	h.dummy.AddMessage(inbox, snapshot("a"), nil)
	h.dummy.AddMessage(inbox, snapshot("b"), nil)

	h.sync(t)

	entriesBefore := h.logEntries(t)

	h.dummy.InvalidateFolder(inbox)

	h.sync(t)

	folder := h.folder(t, inbox)
	require.Equal(t, db.FolderIncremental, folder.Status)

	var invalidated bool

	for _, event := range h.events {
		if _, ok := event.(events.FolderInvalidated); ok {
			invalidated = true
		}
	}

	require.True(t, invalidated)

	// Re-enumeration reconciled everything to no-ops: no duplicated entries.
	require.Equal(t, entriesBefore, h.logEntries(t))
}

func TestInitialSyncResumesFromPageToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inbox := h.dummy.CreateFolder("INBOX")

	var remoteIDs []string
	for _, subject := range []string{"a", "b", "c", "d", "e"} {
		remoteIDs = append(remoteIDs, h.dummy.AddMessage(inbox, snapshot(subject), nil))
	}

	// Cut the pass off after the first page.
	h.sync(t)

	folder := h.folder(t, inbox)

	require.NoError(t, h.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		if err := tx.SetFolderStatus(ctx, folder.ID, db.FolderInitial); err != nil {
			return err
		}

		return tx.SetFolderPageToken(ctx, folder.ID, mail.PageToken(remoteIDs[1]))
	}))

	// The resumed listing never sees the pages before its token, so it must
	// restart from the top before sweeping, or this deletion would survive.
	h.dummy.DeleteMessage(inbox, remoteIDs[0])

	h.sync(t)

	folder = h.folder(t, inbox)
	require.Equal(t, db.FolderIncremental, folder.Status)

	live := h.messages(t, folder.ID, false)
	require.Len(t, live, 4)
}

func TestDeletionSweepAfterFreshListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inbox := h.dummy.CreateFolder("INBOX")
	msgA := h.dummy.AddMessage(inbox, snapshot("a"), nil)
	h.dummy.AddMessage(inbox, snapshot("b"), nil)

	h.sync(t)

	folder := h.folder(t, inbox)

	// Force a fresh re-enumeration with A gone and no tombstone.
	h.dummy.DeleteMessage(inbox, msgA)
	h.dummy.InvalidateFolder(inbox)

	require.NoError(t, h.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		return tx.SetFolderStatus(ctx, folder.ID, db.FolderStale)
	}))

	h.sync(t)

	live := h.messages(t, folder.ID, false)
	require.Len(t, live, 1)

	all := h.messages(t, folder.ID, true)
	require.Len(t, all, 2)

	entries := h.logEntries(t)
	require.Equal(t, mail.OpDelete, entries[len(entries)-1].Op)
}

func TestFolderDiscoveryAndRetirement(t *testing.T) {
	h := newHarness(t)

	inbox := h.dummy.CreateFolder("INBOX")
	archive := h.dummy.CreateFolder("Archive")
	h.dummy.AddMessage(archive, snapshot("old"), nil)

	h.sync(t)

	require.NotNil(t, h.folder(t, inbox))
	require.NotNil(t, h.folder(t, archive))

	// Removing the folder remotely logs deletes for its messages and retires
	// the folder; the rows survive as tombstones.
	h.dummy.DeleteFolder(archive)

	h.sync(t)

	folder := h.folder(t, archive)
	require.True(t, folder.Disabled)

	entries := h.logEntries(t)
	require.Equal(t, mail.OpDelete, entries[len(entries)-1].Op)

	// The delete entry still resolves to its tombstoned message row.
	msg, err := db.ClientReadType(context.Background(), h.client, func(ctx context.Context, read db.ReadOnly) (*db.Message, error) {
		return read.GetMessage(ctx, entries[len(entries)-1].ObjectID)
	})
	require.NoError(t, err)
	require.True(t, msg.Deleted)

	require.Empty(t, h.messages(t, folder.ID, false))
	require.Len(t, h.messages(t, folder.ID, true), 1)

	var removed bool

	for _, event := range h.events {
		if _, ok := event.(events.FolderRemoved); ok {
			removed = true
		}
	}

	require.True(t, removed)

	// The next pass leaves the retired folder alone.
	h.sync(t)
	require.Equal(t, entries, h.logEntries(t))
}

func TestFolderRename(t *testing.T) {
	h := newHarness(t)

	inbox := h.dummy.CreateFolder("INBOX")

	h.sync(t)

	h.dummy.SetFolderName(inbox, "Inbox (renamed)")

	h.sync(t)

	require.Equal(t, "Inbox (renamed)", h.folder(t, inbox).Name)
}

func TestTransientErrorAbortsPass(t *testing.T) {
	h := newHarness(t)

	inbox := h.dummy.CreateFolder("INBOX")
	h.dummy.AddMessage(inbox, snapshot("a"), nil)

	h.sync(t)

	transient := errors.New("connection reset")
	h.dummy.FailWith(transient)

	err := h.accountSyncer(t).Sync(context.Background(), testAccountID)
	require.ErrorIs(t, err, transient)

	h.dummy.FailWith(nil)
	h.sync(t)
}

func TestAuthRevokedSurfaces(t *testing.T) {
	h := newHarness(t)

	h.dummy.CreateFolder("INBOX")
	h.dummy.RevokeAuth()

	err := h.accountSyncer(t).Sync(context.Background(), testAccountID)
	require.ErrorIs(t, err, remote.ErrAuthRevoked)
}

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.PanicLevel)

	m.Run()
}
