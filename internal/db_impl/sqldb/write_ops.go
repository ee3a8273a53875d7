package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/mail"
)

type writeOps struct {
	readOps
	qw QueryWrapper
}

// NewTransaction wraps a transaction-scoped query wrapper in the full durable
// store interface.
func NewTransaction(qw QueryWrapper) db.Transaction {
	return &writeOps{
		readOps: readOps{qw: qw},
		qw:      qw,
	}
}

func (w writeOps) CreateAccount(ctx context.Context, accountID mail.AccountID, credentialsRef string) (*db.Account, error) {
	query := fmt.Sprintf("INSERT INTO %v (%v, %v, %v, %v) VALUES (?, ?, ?, 0)",
		AccountsTableName,
		AccountsFieldID,
		AccountsFieldCredentialsRef,
		AccountsFieldStatus,
		AccountsFieldLogSeq,
	)

	if _, err := ExecQuery(ctx, w.qw, query, accountID, credentialsRef, db.AccountRunning); err != nil {
		return nil, err
	}

	return &db.Account{
		ID:             accountID,
		CredentialsRef: credentialsRef,
		Status:         db.AccountRunning,
	}, nil
}

func (w writeOps) SetAccountStatus(ctx context.Context, accountID mail.AccountID, status db.AccountStatus) error {
	query := fmt.Sprintf("UPDATE %v SET %v = ? WHERE %v = ?",
		AccountsTableName,
		AccountsFieldStatus,
		AccountsFieldID,
	)

	return ExecQueryAndCheckUpdatedNotZero(ctx, w.qw, query, status, accountID)
}

func (w writeOps) SetAccountLastSynced(ctx context.Context, accountID mail.AccountID, at time.Time) error {
	query := fmt.Sprintf("UPDATE %v SET %v = ? WHERE %v = ?",
		AccountsTableName,
		AccountsFieldLastSyncedAt,
		AccountsFieldID,
	)

	return ExecQueryAndCheckUpdatedNotZero(ctx, w.qw, query, at.UTC(), accountID)
}

func (w writeOps) DeleteAccount(ctx context.Context, accountID mail.AccountID) error {
	query := fmt.Sprintf("DELETE FROM %v WHERE %v = ?",
		AccountsTableName,
		AccountsFieldID,
	)

	_, err := ExecQuery(ctx, w.qw, query, accountID)

	return err
}

func (w writeOps) NextLogSeq(ctx context.Context, accountID mail.AccountID) (int64, error) {
	query := fmt.Sprintf("UPDATE %v SET %v = %v + 1 WHERE %v = ? RETURNING %v",
		AccountsTableName,
		AccountsFieldLogSeq,
		AccountsFieldLogSeq,
		AccountsFieldID,
		AccountsFieldLogSeq,
	)

	return MapQueryRow[int64](ctx, w.qw, query, accountID)
}

func (w writeOps) CreateFolder(ctx context.Context, accountID mail.AccountID, remoteID mail.FolderID, name string) (*db.Folder, error) {
	folder := &db.Folder{
		ID:        mail.NewInternalFolderID(),
		AccountID: accountID,
		RemoteID:  remoteID,
		Name:      name,
		Status:    db.FolderUninitialized,
	}

	query := fmt.Sprintf("INSERT INTO %v (%v, %v, %v, %v, %v, %v, %v, %v) VALUES (?, ?, ?, ?, ?, '', '', FALSE)",
		FoldersTableName,
		FoldersFieldID,
		FoldersFieldAccountID,
		FoldersFieldRemoteID,
		FoldersFieldName,
		FoldersFieldStatus,
		FoldersFieldCursor,
		FoldersFieldPageToken,
		FoldersFieldDisabled,
	)

	if _, err := ExecQuery(ctx, w.qw, query, folder.ID, accountID, remoteID, name, folder.Status); err != nil {
		return nil, err
	}

	return folder, nil
}

func (w writeOps) setFolderField(ctx context.Context, folderID mail.InternalFolderID, field string, value any) error {
	query := fmt.Sprintf("UPDATE %v SET %v = ? WHERE %v = ?",
		FoldersTableName,
		field,
		FoldersFieldID,
	)

	return ExecQueryAndCheckUpdatedNotZero(ctx, w.qw, query, value, folderID)
}

func (w writeOps) SetFolderStatus(ctx context.Context, folderID mail.InternalFolderID, status db.FolderStatus) error {
	return w.setFolderField(ctx, folderID, FoldersFieldStatus, status)
}

func (w writeOps) SetFolderCursor(ctx context.Context, folderID mail.InternalFolderID, cursor mail.Cursor) error {
	return w.setFolderField(ctx, folderID, FoldersFieldCursor, cursor)
}

func (w writeOps) SetFolderPageToken(ctx context.Context, folderID mail.InternalFolderID, token mail.PageToken) error {
	return w.setFolderField(ctx, folderID, FoldersFieldPageToken, token)
}

func (w writeOps) SetFolderName(ctx context.Context, folderID mail.InternalFolderID, name string) error {
	return w.setFolderField(ctx, folderID, FoldersFieldName, name)
}

func (w writeOps) SetFolderDisabled(ctx context.Context, folderID mail.InternalFolderID, disabled bool) error {
	return w.setFolderField(ctx, folderID, FoldersFieldDisabled, disabled)
}

func (w writeOps) CreateMessage(ctx context.Context, msg *db.Message) error {
	query := fmt.Sprintf("INSERT INTO %v (%v, %v, %v, %v, %v, %v, %v) VALUES (?, ?, ?, ?, ?, ?, FALSE)",
		MessagesTableName,
		MessagesFieldID,
		MessagesFieldFolderID,
		MessagesFieldRemoteID,
		MessagesFieldObjectType,
		MessagesFieldHash,
		MessagesFieldRevision,
		MessagesFieldDeleted,
	)

	_, err := ExecQuery(ctx, w.qw, query, msg.ID, msg.FolderID, msg.RemoteID, msg.Type, msg.Hash, msg.Revision)

	return err
}

func (w writeOps) SetMessageHash(ctx context.Context, messageID mail.InternalMessageID, hash string, revision int64) error {
	query := fmt.Sprintf("UPDATE %v SET %v = ?, %v = ?, %v = FALSE WHERE %v = ?",
		MessagesTableName,
		MessagesFieldHash,
		MessagesFieldRevision,
		MessagesFieldDeleted,
		MessagesFieldID,
	)

	return ExecQueryAndCheckUpdatedNotZero(ctx, w.qw, query, hash, revision, messageID)
}

func (w writeOps) SetMessageDeleted(ctx context.Context, messageID mail.InternalMessageID, revision int64) error {
	query := fmt.Sprintf("UPDATE %v SET %v = TRUE, %v = ? WHERE %v = ?",
		MessagesTableName,
		MessagesFieldDeleted,
		MessagesFieldRevision,
		MessagesFieldID,
	)

	return ExecQueryAndCheckUpdatedNotZero(ctx, w.qw, query, revision, messageID)
}

func (w writeOps) InsertLogEntry(ctx context.Context, entry db.LogEntry) error {
	query := fmt.Sprintf("INSERT INTO %v (%v, %v, %v, %v, %v, %v) VALUES (?, ?, ?, ?, ?, ?)",
		LogTableName,
		LogFieldAccountID,
		LogFieldSeq,
		LogFieldObjectType,
		LogFieldObjectID,
		LogFieldOp,
		LogFieldTimestamp,
	)

	_, err := ExecQuery(ctx, w.qw, query,
		entry.AccountID,
		entry.Seq,
		entry.ObjectType,
		entry.ObjectID,
		entry.Op,
		entry.Timestamp.UTC(),
	)

	return err
}
