package events

import "github.com/closeio/nylas/mail"

// FolderDiscovered fires when folder discovery finds a remote folder with no
// local record.
type FolderDiscovered struct {
	eventBase

	AccountID mail.AccountID
	FolderID  mail.InternalFolderID
	Name      string
}

// FolderRemoved fires when discovery notices a tracked folder no longer
// exists remotely.
type FolderRemoved struct {
	eventBase

	AccountID mail.AccountID
	FolderID  mail.InternalFolderID
}

type FolderSyncStarted struct {
	eventBase

	AccountID mail.AccountID
	FolderID  mail.InternalFolderID
}

// FolderSyncFinished fires after one folder's sync step commits. Counts
// reflect what the step changed locally.
type FolderSyncFinished struct {
	eventBase

	AccountID mail.AccountID
	FolderID  mail.InternalFolderID
	Created   int
	Updated   int
	Deleted   int
}

// FolderInvalidated fires when a folder's change cursor is rejected and its
// state falls back to a full re-enumeration.
type FolderInvalidated struct {
	eventBase

	AccountID mail.AccountID
	FolderID  mail.InternalFolderID
}

// FolderDisabled fires when a folder hits a permanent failure and is excluded
// from further syncing.
type FolderDisabled struct {
	eventBase

	AccountID mail.AccountID
	FolderID  mail.InternalFolderID
	Error     error
}
