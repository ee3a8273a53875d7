package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/internal/db_impl/sqldb"
	"github.com/closeio/nylas/reporter"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

type Client struct {
	db    *sql.DB
	lock  sync.RWMutex
	debug bool
}

func NewClient(dir string, debug bool) (*Client, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	client, err := sql.Open("sqlite3", getDatabaseConn(getDatabasePath(dir)))
	if err != nil {
		return nil, err
	}

	return &Client{db: client, debug: debug}, nil
}

func (c *Client) Init(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable db pragma: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("failed to enable db pragma: %w", err)
	}

	return c.wrapTx(ctx, func(ctx context.Context, qw sqldb.QueryWrapper, entry *logrus.Entry) error {
		entry.Debugf("Running database migrations")

		if err := sqldb.RunMigrations(ctx, qw, versionOps{}, migrations()); err != nil {
			return fmt.Errorf("%w: %v", db.ErrMigrationFailed, err)
		}

		return nil
	})
}

func (c *Client) Read(ctx context.Context, op func(context.Context, db.ReadOnly) error) error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	var qw sqldb.QueryWrapper = &sqldb.DBWrapper{
		DB: c.db,
	}

	if c.debug {
		qw = &sqldb.DebugQueryWrapper{
			QW:    qw,
			Entry: logrus.WithField("rd", uuid.NewString()),
		}
	}

	return op(ctx, sqldb.NewReadOnly(qw))
}

func (c *Client) Write(ctx context.Context, op func(context.Context, db.Transaction) error) error {
	return c.wrapTx(ctx, func(ctx context.Context, qw sqldb.QueryWrapper, _ *logrus.Entry) error {
		return op(ctx, sqldb.NewTransaction(qw))
	})
}

func (c *Client) wrapTx(ctx context.Context, op func(context.Context, sqldb.QueryWrapper, *logrus.Entry) error) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	var entry *logrus.Entry

	if c.debug {
		entry = logrus.WithField("tx", uuid.NewString())
	} else {
		entry = logrus.WithField("tx", "tx")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if v := recover(); v != nil {
			if err := tx.Rollback(); err != nil {
				panic(fmt.Errorf("rolling back while recovering (%v): %w", v, err))
			}

			panic(v)
		}
	}()

	var qw sqldb.QueryWrapper = &sqldb.TXWrapper{
		TX: tx,
	}

	if c.debug {
		qw = &sqldb.DebugQueryWrapper{
			QW:    qw,
			Entry: entry,
		}
	}

	if err := op(ctx, qw, entry); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("rolling back transaction: %w", rerr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		if !errors.Is(err, context.Canceled) {
			reporter.MessageWithContext(ctx,
				"Failed to commit database transaction",
				reporter.Context{"error": err},
			)
		}

		return fmt.Errorf("%v: %w", err, db.ErrTransactionFailed)
	}

	return nil
}

func (c *Client) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.db.Close()
}

type Builder struct {
	debug bool
}

type Option interface {
	apply(builder *Builder)
}

type dbDebugOption struct{}

func (dbDebugOption) apply(builder *Builder) {
	builder.debug = true
}

// Debug enables logging of the SQL queries and their values.
func Debug() Option {
	return &dbDebugOption{}
}

func NewBuilder(options ...Option) db.ClientInterface {
	builder := &Builder{}

	for _, opt := range options {
		opt.apply(builder)
	}

	return builder
}

// New opens a sqlite database below the given directory. The dsn is the
// directory path; the database file name is fixed.
func (b Builder) New(dsn string) (db.Client, error) {
	return NewClient(dsn, b.debug)
}

func getDatabasePath(dir string) string {
	return filepath.Join(dir, "sync.db")
}

func getDatabaseConn(path string) string {
	return fmt.Sprintf("file:%v?cache=shared&_fk=1&_journal=WAL", path)
}
