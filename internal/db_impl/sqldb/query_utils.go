package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/closeio/nylas/db"
)

// Collection of SQL utilities to process SQL rows and to convert SQL errors
// to db errors.

type RowScanner interface {
	Scan(args ...any) error
}

func MapQueryRowsFn[T any](ctx context.Context, qw QueryWrapper, query string, m func(RowScanner) (T, error), args ...any) ([]T, error) {
	rows, err := qw.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLError(err)
	}

	return mapSQLRowsFn(rows, m)
}

func MapQueryRows[T any](ctx context.Context, qw QueryWrapper, query string, args ...any) ([]T, error) {
	return MapQueryRowsFn(ctx, qw, query, func(scanner RowScanner) (T, error) {
		var v T

		err := scanner.Scan(&v)

		return v, err
	}, args...)
}

func MapQueryRowFn[T any](ctx context.Context, qw QueryWrapper, query string, m func(RowScanner) (T, error), args ...any) (T, error) {
	row := qw.QueryRowContext(ctx, query, args...)

	return mapSQLRowFn(row, m)
}

func MapQueryRow[T any](ctx context.Context, qw QueryWrapper, query string, args ...any) (T, error) {
	return MapQueryRowFn(ctx, qw, query, func(scanner RowScanner) (T, error) {
		var v T

		err := scanner.Scan(&v)

		return v, err
	}, args...)
}

func ExecQueryAndCheckUpdatedNotZero(ctx context.Context, qw QueryWrapper, query string, args ...any) error {
	updated, err := ExecQuery(ctx, qw, query, args...)
	if err != nil {
		return err
	}

	if updated == 0 {
		return db.ErrNotFound
	}

	return nil
}

func ExecQuery(ctx context.Context, qw QueryWrapper, query string, args ...any) (int, error) {
	r, err := qw.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapSQLError(err)
	}

	affected, err := r.RowsAffected()
	if err != nil {
		panic("affected rows is unsupported")
	}

	return int(affected), nil
}

func QueryExists(ctx context.Context, qw QueryWrapper, query string, args ...any) (bool, error) {
	if _, err := MapQueryRow[int](ctx, qw, query, args...); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func mapSQLError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return db.ErrNotFound
	}

	// go-sqlite3 reports "UNIQUE constraint failed", lib/pq reports
	// "duplicate key value violates unique constraint".
	if msg := strings.ToLower(err.Error()); strings.Contains(msg, "unique constraint") {
		return fmt.Errorf("%w: %v", db.ErrAlreadyExists, err)
	}

	return err
}

func mapSQLRowsFn[T any](rows *sql.Rows, m func(RowScanner) (T, error)) ([]T, error) {
	defer func() { _ = rows.Close() }()

	var result []T

	for rows.Next() {
		val, err := m(rows)
		if err != nil {
			return nil, err
		}

		result = append(result, val)
	}

	return result, rows.Err()
}

func mapSQLRowFn[T any](row *sql.Row, m func(scanner RowScanner) (T, error)) (T, error) {
	v, err := m(row)

	return v, mapSQLError(err)
}
