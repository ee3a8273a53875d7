package store_test

import (
	"bytes"
	"crypto/rand"
	"runtime"
	"testing"

	"github.com/closeio/nylas/async"
	"github.com/closeio/nylas/mail"
	"github.com/closeio/nylas/store"
	"github.com/stretchr/testify/require"
)

func TestOnDiskStoreRoundTrip(t *testing.T) {
	st, err := store.NewOnDiskStore(
		t.TempDir(),
		[]byte("pass"),
		store.WithSemaphore(store.NewSemaphore(runtime.NumCPU(), async.NoopPanicHandler{})),
	)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	data := make([]byte, 1024*1204)
	{
		_, err := rand.Read(data)
		require.NoError(t, err)
	}

	id := mail.NewInternalMessageID()

	require.NoError(t, store.Tx(st, func(tx store.Transaction) error {
		return tx.Set(id, data)
	}))

	read, err := st.Get(id)
	require.NoError(t, err)
	require.True(t, bytes.Equal(read, data))

	ids, err := st.List()
	require.NoError(t, err)
	require.Equal(t, []mail.InternalMessageID{id}, ids)

	require.NoError(t, store.Tx(st, func(tx store.Transaction) error {
		return tx.Delete(id)
	}))

	_, err = st.Get(id)
	require.Error(t, err)
}

func TestOnDiskStoreCompressed(t *testing.T) {
	st, err := store.NewOnDiskStore(
		t.TempDir(),
		[]byte("pass"),
		store.WithCompressor(store.ZLibCompressor{}),
	)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	id := mail.NewInternalMessageID()
	literal := bytes.Repeat([]byte("From: alice@example.com\r\n"), 1024)

	require.NoError(t, store.Tx(st, func(tx store.Transaction) error {
		return tx.Set(id, literal)
	}))

	read, err := st.Get(id)
	require.NoError(t, err)
	require.Equal(t, literal, read)
}

func TestStoreRollbackDiscardsWrites(t *testing.T) {
	st := store.NewInMemoryStore()
	defer func() { require.NoError(t, st.Close()) }()

	id := mail.NewInternalMessageID()

	tx := st.NewTransaction()
	require.NoError(t, tx.Set(id, []byte("literal")))
	require.NoError(t, tx.Rollback())

	_, err := st.Get(id)
	require.Error(t, err)
}

func TestInMemoryBuilderReattachesAccountState(t *testing.T) {
	builder := &store.InMemoryStoreBuilder{}

	id := mail.NewInternalMessageID()

	first, err := builder.New("", "account-1", nil)
	require.NoError(t, err)

	require.NoError(t, store.Tx(first, func(tx store.Transaction) error {
		return tx.Set(id, []byte("literal"))
	}))
	require.NoError(t, first.Close())

	// Reopening the same account's store sees the cached body.
	second, err := builder.New("", "account-1", nil)
	require.NoError(t, err)

	read, err := second.Get(id)
	require.NoError(t, err)
	require.Equal(t, []byte("literal"), read)
	require.NoError(t, second.Close())

	// Other accounts never share state.
	other, err := builder.New("", "account-2", nil)
	require.NoError(t, err)

	_, err = other.Get(id)
	require.Error(t, err)
	require.NoError(t, other.Close())

	require.NoError(t, builder.Delete("", "account-1"))

	fresh, err := builder.New("", "account-1", nil)
	require.NoError(t, err)

	_, err = fresh.Get(id)
	require.Error(t, err)
	require.NoError(t, fresh.Close())
}

func TestStoreWrongPassphrase(t *testing.T) {
	dir := t.TempDir()

	st, err := store.NewOnDiskStore(dir, []byte("pass"))
	require.NoError(t, err)

	id := mail.NewInternalMessageID()

	require.NoError(t, store.Tx(st, func(tx store.Transaction) error {
		return tx.Set(id, []byte("literal"))
	}))
	require.NoError(t, st.Close())

	other, err := store.NewOnDiskStore(dir, []byte("wrong"))
	require.NoError(t, err)
	defer func() { require.NoError(t, other.Close()) }()

	_, err = other.Get(id)
	require.Error(t, err)
}
