package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/closeio/nylas/internal/hash"
	"github.com/closeio/nylas/mail"
	"github.com/sirupsen/logrus"
)

type onDiskStore struct {
	path string
	gcm  cipher.AEAD
	cmp  Compressor
	sem  *Semaphore
}

// NewOnDiskStore creates a store that keeps each body as one encrypted file
// under path. Files are sealed with AES-GCM using a key derived from pass.
func NewOnDiskStore(path string, pass []byte, opt ...Option) (Store, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, err
	}

	aes, err := aes.NewCipher(hash.SHA256(pass))
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(aes)
	if err != nil {
		return nil, err
	}

	store := &onDiskStore{
		path: path,
		gcm:  gcm,
	}

	for _, opt := range opt {
		opt.config(store)
	}

	return store, nil
}

func (c *onDiskStore) Get(messageID mail.InternalMessageID) ([]byte, error) {
	if c.sem != nil {
		c.sem.Lock()
		defer c.sem.Unlock()
	}

	enc, err := os.ReadFile(filepath.Join(c.path, messageID.String()))
	if err != nil {
		return nil, err
	}

	b, err := c.gcm.Open(nil, enc[:c.gcm.NonceSize()], enc[c.gcm.NonceSize():], nil)
	if err != nil {
		return nil, err
	}

	if c.cmp != nil {
		dec, err := c.cmp.Decompress(b)
		if err != nil {
			return nil, err
		}

		b = dec
	}

	return b, nil
}

func (c *onDiskStore) set(messageID mail.InternalMessageID, b []byte) error {
	if c.sem != nil {
		c.sem.Lock()
		defer c.sem.Unlock()
	}

	nonce := make([]byte, c.gcm.NonceSize())

	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	if c.cmp != nil {
		enc, err := c.cmp.Compress(b)
		if err != nil {
			return err
		}

		b = enc
	}

	return os.WriteFile(
		filepath.Join(c.path, messageID.String()),
		c.gcm.Seal(nonce, nonce, b, nil),
		0o600,
	)
}

func (c *onDiskStore) delete(messageIDs ...mail.InternalMessageID) error {
	if c.sem != nil {
		c.sem.Lock()
		defer c.sem.Unlock()
	}

	for _, messageID := range messageIDs {
		if err := os.RemoveAll(filepath.Join(c.path, messageID.String())); err != nil {
			return err
		}
	}

	return nil
}

func (c *onDiskStore) List() ([]mail.InternalMessageID, error) {
	if c.sem != nil {
		c.sem.Lock()
		defer c.sem.Unlock()
	}

	var ids []mail.InternalMessageID

	if err := filepath.Walk(c.path, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		id, err := mail.InternalMessageIDFromString(info.Name())
		if err != nil {
			logrus.WithError(err).Errorf("Invalid id file in store: %v", info.Name())

			return nil
		}

		ids = append(ids, id)

		return nil
	}); err != nil {
		return nil, err
	}

	return ids, nil
}

// NewTransaction returns a transaction that buffers writes in memory and
// applies them on Commit. Single files are written atomically thanks to
// AES-GCM authentication, but multi-message commits are not: a crash mid
// Commit leaves a prefix applied, which the reconciler tolerates because the
// store is only a cache.
func (c *onDiskStore) NewTransaction() Transaction {
	return newBufferedTransaction(c.set, c.delete)
}

func (c *onDiskStore) Close() error {
	return nil
}

type bufferedOp struct {
	messageID mail.InternalMessageID
	literal   []byte
	delete    bool
}

type bufferedTransaction struct {
	ops    []bufferedOp
	set    func(mail.InternalMessageID, []byte) error
	delete func(...mail.InternalMessageID) error
}

func newBufferedTransaction(
	set func(mail.InternalMessageID, []byte) error,
	delete func(...mail.InternalMessageID) error,
) *bufferedTransaction {
	return &bufferedTransaction{set: set, delete: delete}
}

func (tx *bufferedTransaction) Set(messageID mail.InternalMessageID, literal []byte) error {
	tx.ops = append(tx.ops, bufferedOp{messageID: messageID, literal: literal})

	return nil
}

func (tx *bufferedTransaction) Delete(messageIDs ...mail.InternalMessageID) error {
	for _, messageID := range messageIDs {
		tx.ops = append(tx.ops, bufferedOp{messageID: messageID, delete: true})
	}

	return nil
}

func (tx *bufferedTransaction) Commit() error {
	for _, op := range tx.ops {
		if op.delete {
			if err := tx.delete(op.messageID); err != nil {
				return err
			}
		} else if err := tx.set(op.messageID, op.literal); err != nil {
			return err
		}
	}

	tx.ops = nil

	return nil
}

func (tx *bufferedTransaction) Rollback() error {
	tx.ops = nil

	return nil
}

type OnDiskStoreBuilder struct {
	Options []Option
}

func (b *OnDiskStoreBuilder) New(dir string, accountID mail.AccountID, passphrase []byte) (Store, error) {
	return NewOnDiskStore(filepath.Join(dir, string(accountID)), passphrase, b.Options...)
}

func (*OnDiskStoreBuilder) Delete(dir string, accountID mail.AccountID) error {
	return os.RemoveAll(filepath.Join(dir, string(accountID)))
}
