package db

import (
	"time"

	"github.com/closeio/nylas/mail"
)

// AccountStatus is the scheduler-owned state of an account. It is only
// mutated while the account's coordination lock is held.
type AccountStatus string

const (
	AccountRunning AccountStatus = "running"

	// AccountPaused covers every operator-initiated exclusion from
	// scheduling, whether temporary or indefinite.
	AccountPaused AccountStatus = "paused"

	AccountInvalid AccountStatus = "invalid"
)

// FolderStatus is the sync state machine position of one folder.
// A folder only becomes Incremental after a complete initial enumeration has
// been committed.
type FolderStatus string

const (
	FolderUninitialized FolderStatus = "uninitialized"
	FolderInitial       FolderStatus = "initial"
	FolderIncremental   FolderStatus = "incremental"
	FolderStale         FolderStatus = "stale"
)

type Account struct {
	ID             mail.AccountID
	CredentialsRef string
	Status         AccountStatus
	LastSyncedAt   time.Time // zero value means never synced
}

type Folder struct {
	ID        mail.InternalFolderID
	AccountID mail.AccountID
	RemoteID  mail.FolderID
	Name      string
	Status    FolderStatus
	Cursor    mail.Cursor
	PageToken mail.PageToken // resume point of an interrupted initial listing
	Disabled  bool           // permanently failed or gone remotely, excluded from sync
}

type Message struct {
	ID       mail.InternalMessageID
	FolderID mail.InternalFolderID
	RemoteID mail.MessageID
	Type     mail.ObjectType
	Hash     string
	Revision int64
	Deleted  bool
}

// LogEntry is one element of the per-account transaction log. Entries are
// immutable once written; Seq is gapless and strictly increasing within an
// account.
type LogEntry struct {
	Seq        int64
	AccountID  mail.AccountID
	ObjectType mail.ObjectType
	ObjectID   mail.InternalMessageID
	Op         mail.LogOp
	Timestamp  time.Time
}
