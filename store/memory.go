package store

import (
	"errors"
	"sync"

	"github.com/closeio/nylas/mail"
)

type inMemoryStore struct {
	data map[mail.InternalMessageID][]byte
	lock sync.RWMutex
}

func NewInMemoryStore() Store {
	return &inMemoryStore{
		data: make(map[mail.InternalMessageID][]byte),
	}
}

func (c *inMemoryStore) Get(messageID mail.InternalMessageID) ([]byte, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	literal, ok := c.data[messageID]
	if !ok {
		return nil, errors.New("no such message in store")
	}

	return literal, nil
}

func (c *inMemoryStore) List() ([]mail.InternalMessageID, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	ids := make([]mail.InternalMessageID, 0, len(c.data))

	for id := range c.data {
		ids = append(ids, id)
	}

	return ids, nil
}

func (c *inMemoryStore) set(messageID mail.InternalMessageID, literal []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.data[messageID] = literal

	return nil
}

func (c *inMemoryStore) delete(ids ...mail.InternalMessageID) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	for _, id := range ids {
		delete(c.data, id)
	}

	return nil
}

func (c *inMemoryStore) NewTransaction() Transaction {
	return newBufferedTransaction(c.set, c.delete)
}

// Close is a no-op: the data belongs to whoever created the store, and
// builders hand the same store out across open/close cycles.
func (c *inMemoryStore) Close() error {
	return nil
}

// InMemoryStoreBuilder keeps one store per account so that, like the disk and
// badger builders, reopening an account's store reattaches to its state.
// Used by tests.
type InMemoryStoreBuilder struct {
	lock   sync.Mutex
	stores map[mail.AccountID]Store
}

func (b *InMemoryStoreBuilder) New(dir string, accountID mail.AccountID, passphrase []byte) (Store, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.stores == nil {
		b.stores = make(map[mail.AccountID]Store)
	}

	st, ok := b.stores[accountID]
	if !ok {
		st = NewInMemoryStore()
		b.stores[accountID] = st
	}

	return st, nil
}

func (b *InMemoryStoreBuilder) Delete(dir string, accountID mail.AccountID) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	delete(b.stores, accountID)

	return nil
}
