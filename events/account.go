package events

import "github.com/closeio/nylas/mail"

type AccountAdded struct {
	eventBase

	AccountID mail.AccountID
}

type AccountRemoved struct {
	eventBase

	AccountID mail.AccountID
}

// SyncStarted fires when a worker acquires an account's lock and begins a
// sync pass.
type SyncStarted struct {
	eventBase

	AccountID mail.AccountID
}

// SyncFinished fires after a pass completes with no error. LastLogSeq is the
// account's log position at the end of the pass.
type SyncFinished struct {
	eventBase

	AccountID  mail.AccountID
	LastLogSeq int64
}

// SyncFailed fires after a pass aborts. Permanent reports whether the failure
// ended scheduling for the account.
type SyncFailed struct {
	eventBase

	AccountID mail.AccountID
	Error     error
	Permanent bool
}

// SyncSkipped fires when a due account is passed over because another worker
// holds its lock.
type SyncSkipped struct {
	eventBase

	AccountID mail.AccountID
}
