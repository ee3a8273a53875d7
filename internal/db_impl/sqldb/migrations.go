package sqldb

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration is one schema version step. The DDL is dialect specific, so each
// backend carries its own migration list; the runner is shared.
type Migration interface {
	Run(ctx context.Context, qw QueryWrapper) error
}

// VersionOps abstracts the dialect specific bits of the schema version table.
// GetVersion returns -1 when the version table does not exist yet.
type VersionOps interface {
	GetVersion(ctx context.Context, qw QueryWrapper) (int, error)
	SetVersion(ctx context.Context, qw QueryWrapper, version int) error
}

func RunMigrations(ctx context.Context, qw QueryWrapper, versions VersionOps, migrations []Migration) error {
	dbVersion, err := versions.GetVersion(ctx, qw)
	if err != nil {
		return fmt.Errorf("failed to get db version: %w", err)
	}

	if dbVersion < 0 {
		logrus.Debug("Version table does not exist, running all migrations")

		dbVersion = -1
	} else {
		logrus.Debugf("DB version is %v", dbVersion)
	}

	for i := dbVersion + 1; i < len(migrations); i++ {
		logrus.Debugf("Running migration for version %v", i)

		if err := migrations[i].Run(ctx, qw); err != nil {
			return fmt.Errorf("failed to run migration %v: %w", i, err)
		}
	}

	if err := versions.SetVersion(ctx, qw, len(migrations)-1); err != nil {
		return fmt.Errorf("failed to update db version: %w", err)
	}

	logrus.Debug("Migrations completed")

	return nil
}
