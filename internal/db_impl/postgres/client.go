package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/internal/db_impl/sqldb"
	"github.com/closeio/nylas/reporter"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Client implements the durable store over postgres. The query ops are shared
// with the sqlite backend; only the DDL and the placeholder syntax differ,
// the latter handled by sqldb.RebindWrapper.
type Client struct {
	db    *sql.DB
	lock  sync.RWMutex
	debug bool
}

func NewClient(dsn string, debug bool) (*Client, error) {
	client, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	return &Client{db: client, debug: debug}, nil
}

func (c *Client) Init(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}

	return c.wrapTx(ctx, func(ctx context.Context, qw sqldb.QueryWrapper) error {
		if err := sqldb.RunMigrations(ctx, qw, versionOps{}, migrations()); err != nil {
			return fmt.Errorf("%w: %v", db.ErrMigrationFailed, err)
		}

		return nil
	})
}

func (c *Client) Read(ctx context.Context, op func(context.Context, db.ReadOnly) error) error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return op(ctx, sqldb.NewReadOnly(c.wrap(&sqldb.DBWrapper{DB: c.db}, "rd")))
}

func (c *Client) Write(ctx context.Context, op func(context.Context, db.Transaction) error) error {
	return c.wrapTx(ctx, func(ctx context.Context, qw sqldb.QueryWrapper) error {
		return op(ctx, sqldb.NewTransaction(qw))
	})
}

func (c *Client) wrap(qw sqldb.QueryWrapper, kind string) sqldb.QueryWrapper {
	if c.debug {
		qw = &sqldb.DebugQueryWrapper{
			QW:    qw,
			Entry: logrus.WithField(kind, uuid.NewString()),
		}
	}

	return &sqldb.RebindWrapper{QW: qw}
}

func (c *Client) wrapTx(ctx context.Context, op func(context.Context, sqldb.QueryWrapper) error) error {
	c.lock.Lock()
	defer c.lock.Unlock()

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

	if err := op(ctx, c.wrap(&sqldb.TXWrapper{TX: tx}, "tx")); err != nil {
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

func (b Builder) New(dsn string) (db.Client, error) {
	return NewClient(dsn, b.debug)
}
