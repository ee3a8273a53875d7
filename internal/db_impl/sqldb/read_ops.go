package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/mail"
)

type readOps struct {
	qw QueryWrapper
}

// NewReadOnly wraps a query wrapper in the read half of the durable store
// interface.
func NewReadOnly(qw QueryWrapper) db.ReadOnly {
	return &readOps{qw: qw}
}

func scanAccount(scanner RowScanner) (*db.Account, error) {
	account := new(db.Account)

	var lastSynced sql.NullTime

	if err := scanner.Scan(&account.ID, &account.CredentialsRef, &account.Status, &lastSynced); err != nil {
		return nil, err
	}

	if lastSynced.Valid {
		account.LastSyncedAt = lastSynced.Time
	}

	return account, nil
}

func accountColumns() string {
	return fmt.Sprintf("%v, %v, %v, %v",
		AccountsFieldID,
		AccountsFieldCredentialsRef,
		AccountsFieldStatus,
		AccountsFieldLastSyncedAt,
	)
}

func (r readOps) GetAccount(ctx context.Context, accountID mail.AccountID) (*db.Account, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE %v = ?",
		accountColumns(),
		AccountsTableName,
		AccountsFieldID,
	)

	return MapQueryRowFn(ctx, r.qw, query, scanAccount, accountID)
}

func (r readOps) GetAccounts(ctx context.Context) ([]*db.Account, error) {
	query := fmt.Sprintf("SELECT %v FROM %v ORDER BY %v",
		accountColumns(),
		AccountsTableName,
		AccountsFieldID,
	)

	return MapQueryRowsFn(ctx, r.qw, query, scanAccount)
}

func (r readOps) GetAccountsWithStatus(ctx context.Context, status db.AccountStatus) ([]*db.Account, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE %v = ? ORDER BY %v",
		accountColumns(),
		AccountsTableName,
		AccountsFieldStatus,
		AccountsFieldID,
	)

	return MapQueryRowsFn(ctx, r.qw, query, scanAccount, status)
}

func scanFolder(scanner RowScanner) (*db.Folder, error) {
	folder := new(db.Folder)

	if err := scanner.Scan(
		&folder.ID,
		&folder.AccountID,
		&folder.RemoteID,
		&folder.Name,
		&folder.Status,
		&folder.Cursor,
		&folder.PageToken,
		&folder.Disabled,
	); err != nil {
		return nil, err
	}

	return folder, nil
}

func folderColumns() string {
	return fmt.Sprintf("%v, %v, %v, %v, %v, %v, %v, %v",
		FoldersFieldID,
		FoldersFieldAccountID,
		FoldersFieldRemoteID,
		FoldersFieldName,
		FoldersFieldStatus,
		FoldersFieldCursor,
		FoldersFieldPageToken,
		FoldersFieldDisabled,
	)
}

func (r readOps) GetFolder(ctx context.Context, folderID mail.InternalFolderID) (*db.Folder, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE %v = ?",
		folderColumns(),
		FoldersTableName,
		FoldersFieldID,
	)

	return MapQueryRowFn(ctx, r.qw, query, scanFolder, folderID)
}

func (r readOps) GetFolderByRemoteID(ctx context.Context, accountID mail.AccountID, remoteID mail.FolderID) (*db.Folder, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE %v = ? AND %v = ?",
		folderColumns(),
		FoldersTableName,
		FoldersFieldAccountID,
		FoldersFieldRemoteID,
	)

	return MapQueryRowFn(ctx, r.qw, query, scanFolder, accountID, remoteID)
}

func (r readOps) GetAccountFolders(ctx context.Context, accountID mail.AccountID) ([]*db.Folder, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE %v = ? ORDER BY %v",
		folderColumns(),
		FoldersTableName,
		FoldersFieldAccountID,
		FoldersFieldName,
	)

	return MapQueryRowsFn(ctx, r.qw, query, scanFolder, accountID)
}

func scanMessage(scanner RowScanner) (*db.Message, error) {
	msg := new(db.Message)

	if err := scanner.Scan(
		&msg.ID,
		&msg.FolderID,
		&msg.RemoteID,
		&msg.Type,
		&msg.Hash,
		&msg.Revision,
		&msg.Deleted,
	); err != nil {
		return nil, err
	}

	return msg, nil
}

func messageColumns() string {
	return fmt.Sprintf("%v, %v, %v, %v, %v, %v, %v",
		MessagesFieldID,
		MessagesFieldFolderID,
		MessagesFieldRemoteID,
		MessagesFieldObjectType,
		MessagesFieldHash,
		MessagesFieldRevision,
		MessagesFieldDeleted,
	)
}

func (r readOps) GetMessage(ctx context.Context, messageID mail.InternalMessageID) (*db.Message, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE %v = ?",
		messageColumns(),
		MessagesTableName,
		MessagesFieldID,
	)

	return MapQueryRowFn(ctx, r.qw, query, scanMessage, messageID)
}

func (r readOps) GetMessageByRemoteID(ctx context.Context, folderID mail.InternalFolderID, remoteID mail.MessageID) (*db.Message, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE %v = ? AND %v = ?",
		messageColumns(),
		MessagesTableName,
		MessagesFieldFolderID,
		MessagesFieldRemoteID,
	)

	return MapQueryRowFn(ctx, r.qw, query, scanMessage, folderID, remoteID)
}

func (r readOps) GetFolderMessages(ctx context.Context, folderID mail.InternalFolderID, includeDeleted bool) ([]*db.Message, error) {
	query := fmt.Sprintf("SELECT %v FROM %v WHERE %v = ?",
		messageColumns(),
		MessagesTableName,
		MessagesFieldFolderID,
	)

	if !includeDeleted {
		query += fmt.Sprintf(" AND %v = FALSE", MessagesFieldDeleted)
	}

	query += fmt.Sprintf(" ORDER BY %v", MessagesFieldRemoteID)

	return MapQueryRowsFn(ctx, r.qw, query, scanMessage, folderID)
}

func (r readOps) CountFolderMessages(ctx context.Context, folderID mail.InternalFolderID) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %v WHERE %v = ? AND %v = FALSE",
		MessagesTableName,
		MessagesFieldFolderID,
		MessagesFieldDeleted,
	)

	return MapQueryRow[int](ctx, r.qw, query, folderID)
}

func scanLogEntry(scanner RowScanner) (db.LogEntry, error) {
	var entry db.LogEntry

	var ts time.Time

	if err := scanner.Scan(
		&entry.Seq,
		&entry.AccountID,
		&entry.ObjectType,
		&entry.ObjectID,
		&entry.Op,
		&ts,
	); err != nil {
		return db.LogEntry{}, err
	}

	entry.Timestamp = ts.UTC()

	return entry, nil
}

func logColumns() string {
	return fmt.Sprintf("%v, %v, %v, %v, %v, %v",
		LogFieldSeq,
		LogFieldAccountID,
		LogFieldObjectType,
		LogFieldObjectID,
		LogFieldOp,
		LogFieldTimestamp,
	)
}

func (r readOps) GetLogEntriesSince(ctx context.Context, accountID mail.AccountID, cursor int64, limit int) ([]db.LogEntry, error) {
	if limit <= 0 || limit > db.ChunkLimit {
		limit = db.ChunkLimit
	}

	query := fmt.Sprintf("SELECT %v FROM %v WHERE %v = ? AND %v > ? ORDER BY %v ASC LIMIT %v",
		logColumns(),
		LogTableName,
		LogFieldAccountID,
		LogFieldSeq,
		LogFieldSeq,
		limit,
	)

	return MapQueryRowsFn(ctx, r.qw, query, scanLogEntry, accountID, cursor)
}

func (r readOps) GetLastLogSeq(ctx context.Context, accountID mail.AccountID) (int64, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(%v), 0) FROM %v WHERE %v = ?",
		LogFieldSeq,
		LogTableName,
		LogFieldAccountID,
	)

	return MapQueryRow[int64](ctx, r.qw, query, accountID)
}
