package coordination

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryLease struct {
	token     string
	revision  uint64
	expiresAt time.Time
}

// Memory is an in-process Locker and PubSub, used by tests and by
// single-process deployments that have no coordination backend configured.
type Memory struct {
	lock     sync.Mutex
	leases   map[string]memoryLease
	revision uint64

	subLock sync.RWMutex
	subs    map[string][]chan Message
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{
		leases: make(map[string]memoryLease),
		subs:   make(map[string][]chan Message),
	}
}

func (m *Memory) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := time.Now()

	if cur, ok := m.leases[key]; ok && cur.expiresAt.After(now) {
		return nil, ErrAlreadyLocked
	}

	m.revision++

	lease := memoryLease{
		token:     uuid.NewString(),
		revision:  m.revision,
		expiresAt: now.Add(ttl),
	}

	m.leases[key] = lease

	return &Lease{
		Key:       key,
		Token:     lease.token,
		Revision:  lease.revision,
		ExpiresAt: lease.expiresAt,
	}, nil
}

func (m *Memory) Renew(ctx context.Context, lease *Lease, ttl time.Duration) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	cur, ok := m.leases[lease.Key]
	if !ok || cur.token != lease.Token || !cur.expiresAt.After(time.Now()) {
		return ErrNotHeld
	}

	m.revision++

	cur.revision = m.revision
	cur.expiresAt = time.Now().Add(ttl)
	m.leases[lease.Key] = cur

	lease.Revision = cur.revision
	lease.ExpiresAt = cur.expiresAt

	return nil
}

func (m *Memory) Unlock(ctx context.Context, lease *Lease) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	cur, ok := m.leases[lease.Key]
	if !ok || cur.token != lease.Token {
		return ErrNotHeld
	}

	delete(m.leases, lease.Key)

	return nil
}

func (m *Memory) Publish(ctx context.Context, subject string, data []byte) error {
	m.subLock.RLock()
	defer m.subLock.RUnlock()

	for pattern, subs := range m.subs {
		if !subjectMatches(pattern, subject) {
			continue
		}

		for _, ch := range subs {
			select {
			case ch <- Message{Subject: subject, Data: data}:

			default:
				// Slow subscribers drop messages rather than block publishers.
			}
		}
	}

	return nil
}

func (m *Memory) Subscribe(ctx context.Context, subject string) (<-chan Message, error) {
	m.subLock.Lock()
	defer m.subLock.Unlock()

	ch := make(chan Message, 64)
	m.subs[subject] = append(m.subs[subject], ch)

	return ch, nil
}

func (m *Memory) Close() error {
	m.subLock.Lock()
	defer m.subLock.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true

	for _, subs := range m.subs {
		for _, ch := range subs {
			close(ch)
		}
	}

	m.subs = make(map[string][]chan Message)

	return nil
}

// subjectMatches implements NATS-style token matching with the "*" single
// token and ">" trailing wildcard.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	pTokens := strings.Split(pattern, ".")
	sTokens := strings.Split(subject, ".")

	for idx, p := range pTokens {
		if p == ">" {
			return true
		}

		if idx >= len(sTokens) {
			return false
		}

		if p != "*" && p != sTokens[idx] {
			return false
		}
	}

	return len(pTokens) == len(sTokens)
}
