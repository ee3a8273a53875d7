// Package coordination defines the cross-process primitives the scheduler
// uses to make sure every account is synced by at most one worker at a time:
// TTL lease locks plus a lightweight publish/subscribe channel for sync
// status fan-out.
package coordination

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAlreadyLocked is returned by TryLock when another holder owns the key.
	ErrAlreadyLocked = errors.New("key is already locked")

	// ErrNotHeld is returned by Renew and Unlock when the lease has expired
	// or was never acquired by this holder.
	ErrNotHeld = errors.New("lease is not held")
)

// Lease is proof of lock ownership. Renew and Unlock only succeed while the
// token still matches the stored holder, so a worker that lost its lease
// cannot stomp on the next holder.
type Lease struct {
	Key       string
	Token     string
	Revision  uint64
	ExpiresAt time.Time
}

// Locker hands out TTL leases on string keys. TryLock never blocks: a held
// key fails fast with ErrAlreadyLocked so the caller can move on to other
// work instead of queueing.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
	Renew(ctx context.Context, lease *Lease, ttl time.Duration) error
	Unlock(ctx context.Context, lease *Lease) error
}

// Message is a published notification on a subject.
type Message struct {
	Subject string
	Data    []byte
}

// PubSub is best-effort fan-out between processes. Delivery is at-most-once
// to currently connected subscribers; it carries status signals, never state.
type PubSub interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string) (<-chan Message, error)
	Close() error
}
