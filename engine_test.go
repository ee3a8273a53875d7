package nylas_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/closeio/nylas"
	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/events"
	"github.com/closeio/nylas/mail"
	"github.com/closeio/nylas/remote"
	"github.com/closeio/nylas/store"
)

const testAccountID = mail.AccountID("account-1")

func newTestEngine(t *testing.T, dummy *remote.Dummy, extra ...nylas.Option) *nylas.Engine {
	t.Helper()

	opts := append([]nylas.Option{
		nylas.WithDataDir(t.TempDir()),
		nylas.WithRemoteFactory(dummy),
		nylas.WithBatchSize(10),
	}, extra...)

	engine, err := nylas.New(opts...)
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, engine.Start(ctx))

	t.Cleanup(func() { require.NoError(t, engine.Close(ctx)) })

	return engine
}

func waitFor[T events.Event](t *testing.T, ch <-chan events.Event) T {
	t.Helper()

	timeout := time.After(5 * time.Second)

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				t.Fatal("event channel closed")
			}

			if typed, ok := event.(T); ok {
				return typed
			}

		case <-timeout:
			t.Fatalf("timed out waiting for event")
		}
	}
}

func TestEngineSyncsAccountEndToEnd(t *testing.T) {
	ctx := context.Background()

	dummy := remote.NewDummy()
	inbox := dummy.CreateFolder("INBOX")
	dummy.AddMessage(inbox, mail.Snapshot{
		Type:    mail.ObjectTypeMessage,
		Subject: "hello",
		Sender:  "alice@example.com",
		Date:    time.Now().UTC(),
	}, []byte("From: alice@example.com\r\n\r\nhello"))

	engine := newTestEngine(t, dummy)

	finishedCh := engine.AddWatcher(events.SyncFinished{})

	require.NoError(t, engine.AddAccount(ctx, testAccountID, "cred-ref"))
	engine.SyncNow(testAccountID)

	finished := waitFor[events.SyncFinished](t, finishedCh)
	require.Equal(t, testAccountID, finished.AccountID)
	require.Equal(t, int64(1), finished.LastLogSeq)

	entries, err := engine.ReadLog(ctx, testAccountID, 0, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, mail.OpInsert, entries[0].Op)

	folders, err := engine.GetFolders(ctx, testAccountID)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	require.Equal(t, db.FolderIncremental, folders[0].Status)
}

func TestEngineLogCursorPagination(t *testing.T) {
	ctx := context.Background()

	dummy := remote.NewDummy()
	inbox := dummy.CreateFolder("INBOX")

	for i := 0; i < 5; i++ {
		dummy.AddMessage(inbox, mail.Snapshot{
			Type:    mail.ObjectTypeMessage,
			Subject: "msg",
			Date:    time.Now().UTC(),
		}, nil)
	}

	engine := newTestEngine(t, dummy)

	finishedCh := engine.AddWatcher(events.SyncFinished{})

	require.NoError(t, engine.AddAccount(ctx, testAccountID, "cred-ref"))
	engine.SyncNow(testAccountID)
	waitFor[events.SyncFinished](t, finishedCh)

	// Tail the log in pages of two.
	var (
		cursor int64
		total  int
	)

	for {
		entries, err := engine.ReadLog(ctx, testAccountID, cursor, 2)
		require.NoError(t, err)

		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			require.Equal(t, cursor+1, entry.Seq)
			cursor = entry.Seq
			total++
		}
	}

	require.Equal(t, 5, total)
}

func TestEngineBodyCaching(t *testing.T) {
	ctx := context.Background()

	dummy := remote.NewDummy()
	inbox := dummy.CreateFolder("INBOX")

	literal := []byte("From: alice@example.com\r\n\r\nthe body")
	dummy.AddMessage(inbox, mail.Snapshot{
		Type:    mail.ObjectTypeMessage,
		Subject: "with body",
		Date:    time.Now().UTC(),
	}, literal)

	engine := newTestEngine(t, dummy, nylas.WithBodyStore(&store.InMemoryStoreBuilder{}, []byte("passphrase")))

	finishedCh := engine.AddWatcher(events.SyncFinished{})

	require.NoError(t, engine.AddAccount(ctx, testAccountID, "cred-ref"))
	engine.SyncNow(testAccountID)
	waitFor[events.SyncFinished](t, finishedCh)

	entries, err := engine.ReadLog(ctx, testAccountID, 0, 100)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	body, err := engine.GetMessageBody(ctx, testAccountID, entries[0].ObjectID)
	require.NoError(t, err)
	require.Equal(t, literal, body)
}

func TestEnginePauseAndResume(t *testing.T) {
	ctx := context.Background()

	dummy := remote.NewDummy()
	dummy.CreateFolder("INBOX")

	engine := newTestEngine(t, dummy)

	require.NoError(t, engine.AddAccount(ctx, testAccountID, "cred-ref"))
	require.NoError(t, engine.PauseAccount(ctx, testAccountID))

	account, err := engine.GetAccount(ctx, testAccountID)
	require.NoError(t, err)
	require.Equal(t, db.AccountPaused, account.Status)

	// A paused account is not dispatched.
	engine.SyncNow(testAccountID)

	entries, err := engine.ReadLog(ctx, testAccountID, 0, 100)
	require.NoError(t, err)
	require.Empty(t, entries)

	finishedCh := engine.AddWatcher(events.SyncFinished{})

	require.NoError(t, engine.ResumeAccount(ctx, testAccountID))
	engine.SyncNow(testAccountID)
	waitFor[events.SyncFinished](t, finishedCh)
}

func TestEngineRemoveAccount(t *testing.T) {
	ctx := context.Background()

	dummy := remote.NewDummy()
	dummy.CreateFolder("INBOX")

	engine := newTestEngine(t, dummy)

	finishedCh := engine.AddWatcher(events.SyncFinished{})

	require.NoError(t, engine.AddAccount(ctx, testAccountID, "cred-ref"))
	engine.SyncNow(testAccountID)
	waitFor[events.SyncFinished](t, finishedCh)

	require.NoError(t, engine.RemoveAccount(ctx, testAccountID))

	_, err := engine.GetAccount(ctx, testAccountID)
	require.True(t, nylas.IsNoSuchAccount(err))

	require.NoError(t, engine.AddAccount(ctx, testAccountID, "cred-ref"))
}

func TestEngineDuplicateAccount(t *testing.T) {
	ctx := context.Background()

	dummy := remote.NewDummy()

	engine := newTestEngine(t, dummy)

	require.NoError(t, engine.AddAccount(ctx, testAccountID, "cred-ref"))

	err := engine.AddAccount(ctx, testAccountID, "cred-ref")
	require.Error(t, err)
	require.True(t, nylas.IsAlreadyExists(err))
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
