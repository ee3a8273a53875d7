package db

import (
	"context"
)

const ChunkLimit = 1000

// Client is the durable store capability consumed by the sync core. All
// mutations happen through Write, which wraps the given op in a single
// transaction: the op either commits in full or leaves no trace.
type Client interface {
	Init(ctx context.Context) error
	Read(ctx context.Context, op func(context.Context, ReadOnly) error) error
	Write(ctx context.Context, op func(context.Context, Transaction) error) error
	Close() error
}

// ClientInterface constructs Clients for a configured backend.
type ClientInterface interface {
	New(dsn string) (Client, error)
}

func ClientReadType[T any](ctx context.Context, c Client, op func(context.Context, ReadOnly) (T, error)) (T, error) {
	var result T

	err := c.Read(ctx, func(ctx context.Context, read ReadOnly) error {
		var err error

		result, err = op(ctx, read)

		return err
	})

	return result, err
}

func ClientWriteType[T any](ctx context.Context, c Client, op func(context.Context, Transaction) (T, error)) (T, error) {
	var result T

	err := c.Write(ctx, func(ctx context.Context, t Transaction) error {
		var err error

		result, err = op(ctx, t)

		return err
	})

	return result, err
}
