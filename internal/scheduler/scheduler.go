// Package scheduler decides when accounts sync and on which worker. A
// dispatcher ticks on a poll interval, picks the accounts that are due and
// feeds them to a bounded worker pool. Cross-process exclusivity comes from
// the coordination lease: a worker that cannot take an account's lock skips
// it instead of waiting.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/closeio/nylas/async"
	"github.com/closeio/nylas/coordination"
	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/events"
	"github.com/closeio/nylas/internal/ticker"
	"github.com/closeio/nylas/logging"
	"github.com/closeio/nylas/mail"
	"github.com/closeio/nylas/remote"
)

// AccountSync runs one full sync pass over an account.
type AccountSync interface {
	Sync(ctx context.Context, accountID mail.AccountID) error
}

type Config struct {
	// Workers bounds how many accounts sync concurrently in this process.
	Workers int

	// PollInterval is how often the dispatcher looks for due accounts.
	PollInterval time.Duration

	// SyncInterval is how stale an account may get before it is due again.
	SyncInterval time.Duration

	// LeaseTTL and RenewInterval size the coordination lock. The TTL must
	// comfortably exceed the renew interval so a healthy pass never loses
	// its lease.
	LeaseTTL      time.Duration
	RenewInterval time.Duration

	// PassTimeout caps one sync pass. Zero means no cap.
	PassTimeout time.Duration

	// BackoffMin and BackoffMax bound the exponential retry delay after
	// transient failures.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

type backoffState struct {
	failures    int
	nextAttempt time.Time
}

type Scheduler struct {
	client  db.Client
	locker  coordination.Locker
	syncer  AccountSync
	cfg     Config
	publish func(events.Event)
	log     *logrus.Entry

	group  *async.Group
	ticker *ticker.Ticker
	workCh *async.QueuedChannel[mail.AccountID]

	lock     sync.Mutex
	backoff  map[mail.AccountID]*backoffState
	inFlight map[mail.AccountID]struct{}
	flagged  map[mail.AccountID]struct{}
}

func New(ctx context.Context, client db.Client, locker coordination.Locker, accountSyncer AccountSync, cfg Config, publish func(events.Event), panicHandler async.PanicHandler) *Scheduler {
	return &Scheduler{
		client:  client,
		locker:  locker,
		syncer:  accountSyncer,
		cfg:     cfg,
		publish: publish,
		log:     logrus.WithField("pkg", "scheduler"),

		group:  async.NewGroup(ctx, panicHandler),
		ticker: ticker.New(cfg.PollInterval),
		workCh: async.NewQueuedChannel[mail.AccountID](cfg.Workers, 0, panicHandler),

		backoff:  make(map[mail.AccountID]*backoffState),
		inFlight: make(map[mail.AccountID]struct{}),
		flagged:  make(map[mail.AccountID]struct{}),
	}
}

// Start launches the dispatcher and the worker pool. It returns immediately.
func (s *Scheduler) Start() {
	for i := 0; i < s.cfg.Workers; i++ {
		worker := i

		s.group.Go(func(ctx context.Context) {
			logging.DoAnnotate(ctx, s.work, map[string]any{"role": "worker", "worker": worker})
		})
	}

	s.group.Go(func(ctx context.Context) {
		logging.DoAnnotate(ctx, func(ctx context.Context) {
			s.ticker.Tick(func(time.Time) {
				s.dispatch(ctx)
			})
		}, map[string]any{"role": "dispatcher"})
	})
}

// Stop shuts the dispatcher and workers down and waits for in-flight passes.
func (s *Scheduler) Stop() {
	s.ticker.Stop()
	s.workCh.Close()
	s.group.Wait()
}

// Poll forces a dispatch round and blocks until it completed.
func (s *Scheduler) Poll() {
	s.ticker.Poll()
}

// Flag marks an account as due regardless of its sync interval. The flag is
// cleared when a pass for the account completes.
func (s *Scheduler) Flag(accountID mail.AccountID) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.flagged[accountID] = struct{}{}
}

// Forget drops all scheduling state for an account. Call after removing it.
func (s *Scheduler) Forget(accountID mail.AccountID) {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.backoff, accountID)
	delete(s.flagged, accountID)
}

func (s *Scheduler) dispatch(ctx context.Context) {
	accounts, err := db.ClientReadType(ctx, s.client, func(ctx context.Context, read db.ReadOnly) ([]*db.Account, error) {
		return read.GetAccountsWithStatus(ctx, db.AccountRunning)
	})
	if err != nil {
		s.log.WithError(err).Error("Failed to list accounts for dispatch")

		return
	}

	now := time.Now()

	for _, account := range accounts {
		if !s.claim(account, now) {
			continue
		}

		s.workCh.Enqueue(account.ID)
	}
}

// claim decides whether the account is due and, if so, marks it in flight.
func (s *Scheduler) claim(account *db.Account, now time.Time) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.inFlight[account.ID]; ok {
		return false
	}

	if state, ok := s.backoff[account.ID]; ok && now.Before(state.nextAttempt) {
		return false
	}

	_, flagged := s.flagged[account.ID]

	due := flagged ||
		account.LastSyncedAt.IsZero() ||
		now.Sub(account.LastSyncedAt) >= s.cfg.SyncInterval

	if !due {
		return false
	}

	s.inFlight[account.ID] = struct{}{}

	return true
}

func (s *Scheduler) work(ctx context.Context) {
	for accountID := range s.workCh.GetChannel() {
		s.runPass(ctx, accountID)
	}
}

func (s *Scheduler) runPass(ctx context.Context, accountID mail.AccountID) {
	defer func() {
		s.lock.Lock()
		delete(s.inFlight, accountID)
		s.lock.Unlock()
	}()

	lease, err := s.locker.TryLock(ctx, lockKey(accountID), s.cfg.LeaseTTL)
	if errors.Is(err, coordination.ErrAlreadyLocked) {
		s.publish(events.SyncSkipped{AccountID: accountID})

		return
	} else if err != nil {
		s.log.WithError(err).WithField("account", accountID).Error("Failed to acquire account lock")

		return
	}

	passCtx := ctx

	var cancel context.CancelFunc

	if s.cfg.PassTimeout > 0 {
		passCtx, cancel = context.WithTimeout(ctx, s.cfg.PassTimeout)
	} else {
		passCtx, cancel = context.WithCancel(ctx)
	}

	defer cancel()

	stopRenewal := s.keepLeaseAlive(passCtx, lease, cancel)

	err = s.syncer.Sync(passCtx, accountID)

	stopRenewal()

	if unlockErr := s.locker.Unlock(context.Background(), lease); unlockErr != nil {
		s.log.WithError(unlockErr).WithField("account", accountID).Warn("Failed to release account lock")
	}

	s.settle(accountID, err)
}

// keepLeaseAlive renews the lease in the background until stopped. Losing the
// lease cancels the pass: without it another process may already be syncing
// the account.
func (s *Scheduler) keepLeaseAlive(ctx context.Context, lease *coordination.Lease, cancel context.CancelFunc) (stop func()) {
	renewTicker := ticker.New(s.cfg.RenewInterval)
	doneCh := make(chan struct{})

	s.group.Go(func(context.Context) {
		defer close(doneCh)

		renewTicker.Tick(func(time.Time) {
			if ctx.Err() != nil {
				return
			}

			if err := s.locker.Renew(ctx, lease, s.cfg.LeaseTTL); err != nil {
				s.log.WithError(err).WithField("key", lease.Key).Error("Lost account lease, aborting pass")
				cancel()
			}
		})
	})

	var once sync.Once

	return func() {
		once.Do(func() {
			renewTicker.Stop()
			<-doneCh
		})
	}
}

// settle updates the account's scheduling state after a pass.
func (s *Scheduler) settle(accountID mail.AccountID, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err == nil {
		delete(s.backoff, accountID)
		delete(s.flagged, accountID)

		return
	}

	if errors.Is(err, remote.ErrAuthRevoked) {
		delete(s.backoff, accountID)
		delete(s.flagged, accountID)

		if dbErr := s.client.Write(context.Background(), func(ctx context.Context, tx db.Transaction) error {
			return tx.SetAccountStatus(ctx, accountID, db.AccountInvalid)
		}); dbErr != nil {
			s.log.WithError(dbErr).WithField("account", accountID).Error("Failed to mark account invalid")
		}

		s.publish(events.SyncFailed{AccountID: accountID, Error: err, Permanent: true})

		return
	}

	state, ok := s.backoff[accountID]
	if !ok {
		state = &backoffState{}
		s.backoff[accountID] = state
	}

	delay := s.cfg.BackoffMin << state.failures
	if delay > s.cfg.BackoffMax || delay <= 0 {
		delay = s.cfg.BackoffMax
	}

	state.failures++
	state.nextAttempt = time.Now().Add(delay)

	s.log.WithError(err).WithFields(logrus.Fields{
		"account": accountID,
		"retryIn": delay,
	}).Warn("Sync pass failed")

	s.publish(events.SyncFailed{AccountID: accountID, Error: err, Permanent: false})
}

func lockKey(accountID mail.AccountID) string {
	return fmt.Sprintf("sync.account.%v", accountID)
}
