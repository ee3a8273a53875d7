package nylas

import (
	"errors"

	"github.com/closeio/nylas/db"
)

// ErrNoBodyStore is returned by GetMessageBody when the engine was built
// without body caching.
var ErrNoBodyStore = errors.New("engine has no body store configured")

// IsNoSuchAccount returns true if the error reports an unknown account.
func IsNoSuchAccount(err error) bool {
	return db.IsErrNotFound(err)
}

// IsAlreadyExists returns true if the error reports a duplicate account.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, db.ErrAlreadyExists)
}
