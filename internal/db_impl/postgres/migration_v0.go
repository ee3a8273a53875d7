package postgres

import (
	"context"
	"fmt"

	"github.com/closeio/nylas/internal/db_impl/sqldb"
)

func migrations() []sqldb.Migration {
	return []sqldb.Migration{
		&MigrationV0{},
	}
}

type versionOps struct{}

func (versionOps) GetVersion(ctx context.Context, qw sqldb.QueryWrapper) (int, error) {
	query := fmt.Sprintf("SELECT 1 FROM information_schema.tables WHERE table_name = '%v'",
		sqldb.VersionTableName)

	exists, err := sqldb.QueryExists(ctx, qw, query)
	if err != nil {
		return 0, err
	}

	if !exists {
		return -1, nil
	}

	versionQuery := fmt.Sprintf("SELECT %v FROM %v WHERE %v = 0",
		sqldb.VersionFieldVersion,
		sqldb.VersionTableName,
		sqldb.VersionFieldID,
	)

	return sqldb.MapQueryRow[int](ctx, qw, versionQuery)
}

func (versionOps) SetVersion(ctx context.Context, qw sqldb.QueryWrapper, version int) error {
	query := fmt.Sprintf("INSERT INTO %v (%v, %v) VALUES (0, ?) ON CONFLICT (%v) DO UPDATE SET %v = EXCLUDED.%v",
		sqldb.VersionTableName,
		sqldb.VersionFieldID,
		sqldb.VersionFieldVersion,
		sqldb.VersionFieldID,
		sqldb.VersionFieldVersion,
		sqldb.VersionFieldVersion,
	)

	_, err := sqldb.ExecQuery(ctx, qw, query, version)

	return err
}

// MigrationV0 creates the initial schema.
type MigrationV0 struct{}

func (MigrationV0) Run(ctx context.Context, qw sqldb.QueryWrapper) error {
	queries := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %v (%v INTEGER PRIMARY KEY, %v INTEGER NOT NULL)",
			sqldb.VersionTableName,
			sqldb.VersionFieldID,
			sqldb.VersionFieldVersion,
		),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %v (
%v TEXT PRIMARY KEY,
%v TEXT NOT NULL,
%v TEXT NOT NULL,
%v TIMESTAMPTZ,
%v BIGINT NOT NULL DEFAULT 0
)`,
			sqldb.AccountsTableName,
			sqldb.AccountsFieldID,
			sqldb.AccountsFieldCredentialsRef,
			sqldb.AccountsFieldStatus,
			sqldb.AccountsFieldLastSyncedAt,
			sqldb.AccountsFieldLogSeq,
		),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %v (
%v TEXT PRIMARY KEY,
%v TEXT NOT NULL REFERENCES %v(%v) ON DELETE CASCADE,
%v TEXT NOT NULL,
%v TEXT NOT NULL,
%v TEXT NOT NULL,
%v TEXT NOT NULL DEFAULT '',
%v TEXT NOT NULL DEFAULT '',
%v BOOLEAN NOT NULL DEFAULT FALSE,
UNIQUE (%v, %v)
)`,
			sqldb.FoldersTableName,
			sqldb.FoldersFieldID,
			sqldb.FoldersFieldAccountID,
			sqldb.AccountsTableName,
			sqldb.AccountsFieldID,
			sqldb.FoldersFieldRemoteID,
			sqldb.FoldersFieldName,
			sqldb.FoldersFieldStatus,
			sqldb.FoldersFieldCursor,
			sqldb.FoldersFieldPageToken,
			sqldb.FoldersFieldDisabled,
			sqldb.FoldersFieldAccountID,
			sqldb.FoldersFieldRemoteID,
		),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %v (
%v TEXT PRIMARY KEY,
%v TEXT NOT NULL REFERENCES %v(%v) ON DELETE CASCADE,
%v TEXT NOT NULL,
%v TEXT NOT NULL,
%v TEXT NOT NULL,
%v BIGINT NOT NULL,
%v BOOLEAN NOT NULL DEFAULT FALSE,
UNIQUE (%v, %v)
)`,
			sqldb.MessagesTableName,
			sqldb.MessagesFieldID,
			sqldb.MessagesFieldFolderID,
			sqldb.FoldersTableName,
			sqldb.FoldersFieldID,
			sqldb.MessagesFieldRemoteID,
			sqldb.MessagesFieldObjectType,
			sqldb.MessagesFieldHash,
			sqldb.MessagesFieldRevision,
			sqldb.MessagesFieldDeleted,
			sqldb.MessagesFieldFolderID,
			sqldb.MessagesFieldRemoteID,
		),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %v (
%v TEXT NOT NULL REFERENCES %v(%v) ON DELETE CASCADE,
%v BIGINT NOT NULL,
%v TEXT NOT NULL,
%v TEXT NOT NULL,
%v TEXT NOT NULL,
%v TIMESTAMPTZ NOT NULL,
PRIMARY KEY (%v, %v)
)`,
			sqldb.LogTableName,
			sqldb.LogFieldAccountID,
			sqldb.AccountsTableName,
			sqldb.AccountsFieldID,
			sqldb.LogFieldSeq,
			sqldb.LogFieldObjectType,
			sqldb.LogFieldObjectID,
			sqldb.LogFieldOp,
			sqldb.LogFieldTimestamp,
			sqldb.LogFieldAccountID,
			sqldb.LogFieldSeq,
		),
	}

	for _, query := range queries {
		if _, err := sqldb.ExecQuery(ctx, qw, query); err != nil {
			return err
		}
	}

	return nil
}
