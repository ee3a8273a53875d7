package db

import (
	"context"
	"time"

	"github.com/closeio/nylas/mail"
)

type ReadOnly interface {
	AccountReadOps
	FolderReadOps
	MessageReadOps
	LogReadOps
}

type Transaction interface {
	ReadOnly
	AccountWriteOps
	FolderWriteOps
	MessageWriteOps
	LogWriteOps
}

type AccountReadOps interface {
	GetAccount(ctx context.Context, accountID mail.AccountID) (*Account, error)
	GetAccounts(ctx context.Context) ([]*Account, error)
	GetAccountsWithStatus(ctx context.Context, status AccountStatus) ([]*Account, error)
}

type AccountWriteOps interface {
	CreateAccount(ctx context.Context, accountID mail.AccountID, credentialsRef string) (*Account, error)
	SetAccountStatus(ctx context.Context, accountID mail.AccountID, status AccountStatus) error
	SetAccountLastSynced(ctx context.Context, accountID mail.AccountID, at time.Time) error
	DeleteAccount(ctx context.Context, accountID mail.AccountID) error

	// NextLogSeq advances and returns the account's sequence counter. The
	// counter lives in the account row so the increment is guarded by the
	// surrounding transaction's row lock; it must never be cached in
	// process memory.
	NextLogSeq(ctx context.Context, accountID mail.AccountID) (int64, error)
}

type FolderReadOps interface {
	GetFolder(ctx context.Context, folderID mail.InternalFolderID) (*Folder, error)
	GetFolderByRemoteID(ctx context.Context, accountID mail.AccountID, remoteID mail.FolderID) (*Folder, error)
	GetAccountFolders(ctx context.Context, accountID mail.AccountID) ([]*Folder, error)
}

type FolderWriteOps interface {
	CreateFolder(ctx context.Context, accountID mail.AccountID, remoteID mail.FolderID, name string) (*Folder, error)
	SetFolderStatus(ctx context.Context, folderID mail.InternalFolderID, status FolderStatus) error
	SetFolderCursor(ctx context.Context, folderID mail.InternalFolderID, cursor mail.Cursor) error
	SetFolderPageToken(ctx context.Context, folderID mail.InternalFolderID, token mail.PageToken) error
	SetFolderName(ctx context.Context, folderID mail.InternalFolderID, name string) error
	SetFolderDisabled(ctx context.Context, folderID mail.InternalFolderID, disabled bool) error
}

type MessageReadOps interface {
	GetMessage(ctx context.Context, messageID mail.InternalMessageID) (*Message, error)
	GetMessageByRemoteID(ctx context.Context, folderID mail.InternalFolderID, remoteID mail.MessageID) (*Message, error)
	GetFolderMessages(ctx context.Context, folderID mail.InternalFolderID, includeDeleted bool) ([]*Message, error)
	CountFolderMessages(ctx context.Context, folderID mail.InternalFolderID) (int, error)
}

type MessageWriteOps interface {
	CreateMessage(ctx context.Context, msg *Message) error
	SetMessageHash(ctx context.Context, messageID mail.InternalMessageID, hash string, revision int64) error
	SetMessageDeleted(ctx context.Context, messageID mail.InternalMessageID, revision int64) error
}

type LogReadOps interface {
	GetLogEntriesSince(ctx context.Context, accountID mail.AccountID, cursor int64, limit int) ([]LogEntry, error)
	GetLastLogSeq(ctx context.Context, accountID mail.AccountID) (int64, error)
}

type LogWriteOps interface {
	InsertLogEntry(ctx context.Context, entry LogEntry) error
}
