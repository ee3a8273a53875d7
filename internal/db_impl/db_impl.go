package db_impl

import (
	"fmt"

	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/internal/db_impl/postgres"
	"github.com/closeio/nylas/internal/db_impl/sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// New opens a durable store client for the configured driver. For sqlite the
// dsn is a directory path; for postgres it is a lib/pq connection string.
func New(driver, dsn string, debug bool) (db.Client, error) {
	switch driver {
	case DriverSQLite:
		var opts []sqlite3.Option

		if debug {
			opts = append(opts, sqlite3.Debug())
		}

		return sqlite3.NewBuilder(opts...).New(dsn)

	case DriverPostgres:
		var opts []postgres.Option

		if debug {
			opts = append(opts, postgres.Debug())
		}

		return postgres.NewBuilder(opts...).New(dsn)

	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
