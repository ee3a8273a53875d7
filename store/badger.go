package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/closeio/nylas/internal/hash"
	"github.com/closeio/nylas/logging"
	"github.com/closeio/nylas/mail"
	"github.com/dgraph-io/badger/v3"
	"github.com/sirupsen/logrus"
)

type BadgerStore struct {
	db       *badger.DB
	gcExitCh chan struct{}
	wg       sync.WaitGroup
}

type badgerTransaction struct {
	tx *badger.Txn
}

func NewBadgerStore(path string, accountID mail.AccountID, passphrase []byte) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(filepath.Join(path, string(accountID))).
		WithLogger(logrus.StandardLogger()).
		WithLoggingLevel(badger.ERROR).
		WithEncryptionKey(hash.SHA256(passphrase)).
		WithIndexCacheSize(128 * 1024 * 1024),
	)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		db:       db,
		gcExitCh: make(chan struct{}),
	}

	logging.GoAnnotate(context.Background(), func(context.Context) {
		store.startGCCollector()
	}, map[string]any{
		"role":    "badger-gc",
		"account": accountID,
	})

	return store, nil
}

func (b *BadgerStore) startGCCollector() {
	// Garbage collection needs to be run manually by us at some point.
	// See https://dgraph.io/docs/badger/get-started/#garbage-collection for more details.
	b.wg.Add(1)
	defer b.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			{
			again:
				if err := b.db.RunValueLogGC(0.5); err == nil {
					goto again
				}
			}

		case <-b.gcExitCh:
			return
		}
	}
}

func (b *BadgerStore) Get(messageID mail.InternalMessageID) ([]byte, error) {
	var data []byte

	if err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(messageID))
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return data, nil
}

func (b *BadgerStore) List() ([]mail.InternalMessageID, error) {
	var ids []mail.InternalMessageID

	if err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id, err := mail.InternalMessageIDFromString(string(it.Item().Key()))
			if err != nil {
				continue
			}

			ids = append(ids, id)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return ids, nil
}

func (b *BadgerStore) NewTransaction() Transaction {
	return &badgerTransaction{tx: b.db.NewTransaction(true)}
}

func (b *badgerTransaction) Set(messageID mail.InternalMessageID, literal []byte) error {
	return b.tx.Set([]byte(messageID), literal)
}

func (b *badgerTransaction) Delete(messageID ...mail.InternalMessageID) error {
	for _, v := range messageID {
		if err := b.tx.Delete([]byte(v)); err != nil {
			return err
		}
	}

	return nil
}

func (b *badgerTransaction) Commit() error {
	return b.tx.Commit()
}

func (b *badgerTransaction) Rollback() error {
	b.tx.Discard()

	return nil
}

func (b *BadgerStore) Close() error {
	close(b.gcExitCh)
	b.wg.Wait()

	return b.db.Close()
}

type BadgerStoreBuilder struct{}

func (*BadgerStoreBuilder) New(dir string, accountID mail.AccountID, passphrase []byte) (Store, error) {
	return NewBadgerStore(dir, accountID, passphrase)
}

func (*BadgerStoreBuilder) Delete(dir string, accountID mail.AccountID) error {
	return os.RemoveAll(filepath.Join(dir, string(accountID)))
}
