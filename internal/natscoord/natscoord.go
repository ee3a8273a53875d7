// Package natscoord backs the coordination capability with NATS: JetStream
// key-value buckets provide the TTL lease locks, core NATS subjects provide
// best-effort status fan-out.
package natscoord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/closeio/nylas/coordination"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type leaseValue struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Coordinator implements coordination.Locker and coordination.PubSub on a
// single NATS connection. Lock expiry is enforced server-side through the
// bucket TTL, so a crashed holder's lease disappears without any sweeper.
type Coordinator struct {
	conn *nats.Conn
	kv   nats.KeyValue
	ttl  time.Duration

	subLock sync.Mutex
	subs    []*nats.Subscription
}

// New connects to the given NATS URL and ensures the lock bucket exists. The
// bucket TTL is fixed at creation time; TryLock requests must not exceed it.
func New(url, bucket string, ttl time.Duration) (*Coordinator, error) {
	conn, err := nats.Connect(url,
		nats.Name("nylas-sync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("getting jetstream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: bucket,
			TTL:    ttl,
		})
	}

	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening lock bucket %q: %w", bucket, err)
	}

	return &Coordinator{
		conn: conn,
		kv:   kv,
		ttl:  ttl,
	}, nil
}

func (c *Coordinator) TryLock(ctx context.Context, key string, ttl time.Duration) (*coordination.Lease, error) {
	if ttl > c.ttl {
		return nil, fmt.Errorf("lease ttl %v exceeds bucket ttl %v", ttl, c.ttl)
	}

	value := leaseValue{
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(ttl),
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	// Create is an atomic put-if-absent: exactly one contender wins.
	revision, err := c.kv.Create(key, data)
	if errors.Is(err, nats.ErrKeyExists) {
		return nil, coordination.ErrAlreadyLocked
	} else if err != nil {
		return nil, fmt.Errorf("acquiring lock %q: %w", key, err)
	}

	return &coordination.Lease{
		Key:       key,
		Token:     value.Token,
		Revision:  revision,
		ExpiresAt: value.ExpiresAt,
	}, nil
}

func (c *Coordinator) Renew(ctx context.Context, lease *coordination.Lease, ttl time.Duration) error {
	value := leaseValue{
		Token:     lease.Token,
		ExpiresAt: time.Now().Add(ttl),
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	// The compare-and-swap on the stored revision rejects renewals from a
	// holder whose lease already expired and was re-acquired.
	revision, err := c.kv.Update(lease.Key, data, lease.Revision)
	if err != nil {
		return coordination.ErrNotHeld
	}

	lease.Revision = revision
	lease.ExpiresAt = value.ExpiresAt

	return nil
}

func (c *Coordinator) Unlock(ctx context.Context, lease *coordination.Lease) error {
	if err := c.kv.Delete(lease.Key, nats.LastRevision(lease.Revision)); err != nil {
		return coordination.ErrNotHeld
	}

	return nil
}

func (c *Coordinator) Publish(ctx context.Context, subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

func (c *Coordinator) Subscribe(ctx context.Context, subject string) (<-chan coordination.Message, error) {
	ch := make(chan coordination.Message, 64)

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		select {
		case ch <- coordination.Message{Subject: msg.Subject, Data: msg.Data}:

		default:
			logrus.WithField("subject", msg.Subject).Warn("Dropping coordination message, subscriber is slow")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %q: %w", subject, err)
	}

	c.subLock.Lock()
	c.subs = append(c.subs, sub)
	c.subLock.Unlock()

	return ch, nil
}

func (c *Coordinator) Close() error {
	c.subLock.Lock()
	defer c.subLock.Unlock()

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			logrus.WithError(err).Warn("Failed to unsubscribe coordination subject")
		}
	}

	c.subs = nil

	c.conn.Close()

	return nil
}
