package sqldb

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Collection of wrappers around go's sql.DB and sql.Tx types so the query ops
// can be shared between backends and overridden with trackers (debugging,
// placeholder rebinding).

type QueryWrapper interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type DBWrapper struct {
	DB *sql.DB
}

func (d DBWrapper) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.DB.QueryContext(ctx, query, args...)
}

func (d DBWrapper) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.DB.QueryRowContext(ctx, query, args...)
}

func (d DBWrapper) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.DB.ExecContext(ctx, query, args...)
}

type TXWrapper struct {
	TX *sql.Tx
}

func (t TXWrapper) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.TX.QueryContext(ctx, query, args...)
}

func (t TXWrapper) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.TX.QueryRowContext(ctx, query, args...)
}

func (t TXWrapper) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.TX.ExecContext(ctx, query, args...)
}

// RebindWrapper rewrites '?' placeholders to the dollar placeholders expected
// by lib/pq before forwarding queries. The query ops are written once against
// the '?' syntax; the postgres client wraps its connection with this.
type RebindWrapper struct {
	QW QueryWrapper
}

func (r RebindWrapper) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.QW.QueryContext(ctx, Rebind(query), args...)
}

func (r RebindWrapper) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.QW.QueryRowContext(ctx, Rebind(query), args...)
}

func (r RebindWrapper) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.QW.ExecContext(ctx, Rebind(query), args...)
}

// Rebind converts '?' placeholders to '$1'..'$n'. Placeholders never appear
// inside quoted literals in the query ops, so a plain scan is enough.
func Rebind(query string) string {
	if !strings.ContainsRune(query, '?') {
		return query
	}

	var b strings.Builder

	n := 0

	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteRune(r)
		}
	}

	return b.String()
}

type DebugQueryWrapper struct {
	QW    QueryWrapper
	Entry *logrus.Entry
}

func (d DebugQueryWrapper) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	d.Entry.Debugf("query=%v args=%v", query, args)

	return d.QW.QueryContext(ctx, query, args...)
}

func (d DebugQueryWrapper) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	d.Entry.Debugf("query=%v args=%v", query, args)

	return d.QW.QueryRowContext(ctx, query, args...)
}

func (d DebugQueryWrapper) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	d.Entry.Debugf("exec=%v args=%v", query, args)

	return d.QW.ExecContext(ctx, query, args...)
}

