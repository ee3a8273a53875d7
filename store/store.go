// Package store implements the per-account message body stores.
//
// Bodies are keyed by internal message ID and may live in memory, in badger,
// or as individual encrypted files on disk. The store is subordinate to the
// sync database: a body with no message row is garbage, never truth.
package store

import (
	"fmt"

	"github.com/closeio/nylas/mail"
)

type Store interface {
	Get(messageID mail.InternalMessageID) ([]byte, error)
	List() ([]mail.InternalMessageID, error)
	NewTransaction() Transaction
	Close() error
}

type Transaction interface {
	Set(messageID mail.InternalMessageID, literal []byte) error
	Delete(messageID ...mail.InternalMessageID) error
	Commit() error
	Rollback() error
}

// Builder creates one store per account under a shared directory.
type Builder interface {
	New(dir string, accountID mail.AccountID, passphrase []byte) (Store, error)
	Delete(dir string, accountID mail.AccountID) error
}

func Tx(store Store, fn func(Transaction) error) error {
	_, err := TxResult(store, func(tx Transaction) (struct{}, error) {
		if err := fn(tx); err != nil {
			return struct{}{}, err
		}

		return struct{}{}, nil
	})

	return err
}

func TxResult[T any](store Store, fn func(Transaction) (T, error)) (T, error) {
	tx := store.NewTransaction()

	var errResult T

	result, err := fn(tx)
	if err != nil {
		if te := tx.Rollback(); te != nil {
			return errResult, fmt.Errorf("failed to rollback transaction:%v - original error: %w", te, err)
		}

		return errResult, err
	}

	if err := tx.Commit(); err != nil {
		if te := tx.Rollback(); te != nil {
			return errResult, fmt.Errorf("failed to rollback transaction:%v - original error: %w", te, err)
		}

		return errResult, err
	}

	return result, nil
}
