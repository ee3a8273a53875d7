// Package nylas implements a mail account synchronization engine: it mirrors
// remote mailboxes into a local store and exposes every local mutation as a
// gapless, per-account transaction log that downstream consumers tail.
package nylas

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/closeio/nylas/async"
	"github.com/closeio/nylas/coordination"
	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/events"
	"github.com/closeio/nylas/internal/scheduler"
	"github.com/closeio/nylas/internal/syncer"
	"github.com/closeio/nylas/mail"
	"github.com/closeio/nylas/remote"
	"github.com/closeio/nylas/reporter"
	"github.com/closeio/nylas/store"
	"github.com/closeio/nylas/txlog"
	"github.com/closeio/nylas/version"
	"github.com/closeio/nylas/watcher"
)

// Engine owns the durable store, the scheduler and its workers, and the
// event fan-out. Create one with New, start it with Start, and always Close
// it to release the store and any held leases.
type Engine struct {
	dir string

	client  db.Client
	locker  coordination.Locker
	pubsub  coordination.PubSub
	factory remote.Factory

	storeBuilder store.Builder
	passphrase   []byte

	syncCfg  syncer.Config
	schedCfg scheduler.Config

	reporter     reporter.Reporter
	panicHandler async.PanicHandler
	versionInfo  version.Info

	sched  *scheduler.Scheduler
	reader *txlog.Reader

	watchers     map[*watcher.Watcher[events.Event]]struct{}
	watchersLock sync.RWMutex

	log *logrus.Entry

	startOnce sync.Once
	closeOnce sync.Once
}

// New creates an unstarted engine with the given options. A remote factory
// is required; everything else has defaults (sqlite store under the data
// directory, in-process coordination, no body caching).
func New(withOpt ...Option) (*Engine, error) {
	builder, err := newBuilder()
	if err != nil {
		return nil, err
	}

	for _, opt := range withOpt {
		opt.config(builder)
	}

	return builder.build()
}

// Start initializes the durable store and launches the scheduler.
func (e *Engine) Start(ctx context.Context) error {
	ctx = reporter.NewContextWithReporter(ctx, e.reporter)

	if err := e.client.Init(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	e.startOnce.Do(func() {
		accountSyncer := syncer.NewAccountSyncer(e.client, e.factory, e.storeOpener(), e.syncCfg, e.publish)

		e.sched = scheduler.New(ctx, e.client, e.locker, accountSyncer, e.schedCfg, e.publish, e.panicHandler)
		e.sched.Start()
	})

	e.log.WithField("version", e.versionInfo.Version.String()).Info("Sync engine started")

	return nil
}

// Close stops the scheduler, waits for in-flight passes and closes the store.
func (e *Engine) Close(ctx context.Context) error {
	var err error

	e.closeOnce.Do(func() {
		if e.sched != nil {
			e.sched.Stop()
		}

		e.watchersLock.Lock()

		for w := range e.watchers {
			w.Close()
		}

		e.watchers = make(map[*watcher.Watcher[events.Event]]struct{})

		e.watchersLock.Unlock()

		if e.pubsub != nil {
			if closeErr := e.pubsub.Close(); closeErr != nil {
				e.log.WithError(closeErr).Warn("Failed to close pubsub")
			}
		}

		err = e.client.Close()
	})

	return err
}

// AddAccount registers an account for syncing. The credentials reference is
// opaque to the engine; the remote factory resolves it. The first sync pass
// is requested immediately.
func (e *Engine) AddAccount(ctx context.Context, accountID mail.AccountID, credentialsRef string) error {
	account, err := db.ClientWriteType(ctx, e.client, func(ctx context.Context, tx db.Transaction) (*db.Account, error) {
		return tx.CreateAccount(ctx, accountID, credentialsRef)
	})
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"account": account.ID,
		"status":  account.Status,
	}).Info("Account registered")

	e.publish(events.AccountAdded{AccountID: accountID})

	if e.sched != nil {
		e.sched.Flag(accountID)
	}

	return nil
}

// RemoveAccount deletes the account, its folders, messages, log and cached
// bodies.
func (e *Engine) RemoveAccount(ctx context.Context, accountID mail.AccountID) error {
	if e.sched != nil {
		e.sched.Forget(accountID)
	}

	if err := e.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		return tx.DeleteAccount(ctx, accountID)
	}); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}

	if e.storeBuilder != nil {
		if err := e.storeBuilder.Delete(e.dir, accountID); err != nil {
			e.log.WithError(err).WithField("account", accountID).Warn("Failed to delete body store")
		}
	}

	e.publish(events.AccountRemoved{AccountID: accountID})

	return nil
}

// PauseAccount excludes the account from scheduling without deleting state.
func (e *Engine) PauseAccount(ctx context.Context, accountID mail.AccountID) error {
	return e.setAccountStatus(ctx, accountID, db.AccountPaused)
}

// ResumeAccount puts a paused or invalid account back into rotation.
func (e *Engine) ResumeAccount(ctx context.Context, accountID mail.AccountID) error {
	if err := e.setAccountStatus(ctx, accountID, db.AccountRunning); err != nil {
		return err
	}

	if e.sched != nil {
		e.sched.Flag(accountID)
	}

	return nil
}

func (e *Engine) setAccountStatus(ctx context.Context, accountID mail.AccountID, status db.AccountStatus) error {
	return e.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		return tx.SetAccountStatus(ctx, accountID, status)
	})
}

// SyncNow flags the account and forces a dispatch round. It returns once the
// round has dispatched; the pass itself runs on a worker.
func (e *Engine) SyncNow(accountID mail.AccountID) {
	if e.sched == nil {
		return
	}

	e.sched.Flag(accountID)
	e.sched.Poll()
}

// GetAccount returns the account's current record.
func (e *Engine) GetAccount(ctx context.Context, accountID mail.AccountID) (*db.Account, error) {
	return db.ClientReadType(ctx, e.client, func(ctx context.Context, read db.ReadOnly) (*db.Account, error) {
		return read.GetAccount(ctx, accountID)
	})
}

// GetAccounts lists all tracked accounts.
func (e *Engine) GetAccounts(ctx context.Context) ([]*db.Account, error) {
	return db.ClientReadType(ctx, e.client, func(ctx context.Context, read db.ReadOnly) ([]*db.Account, error) {
		return read.GetAccounts(ctx)
	})
}

// GetFolders lists the account's tracked folders.
func (e *Engine) GetFolders(ctx context.Context, accountID mail.AccountID) ([]*db.Folder, error) {
	return db.ClientReadType(ctx, e.client, func(ctx context.Context, read db.ReadOnly) ([]*db.Folder, error) {
		return read.GetAccountFolders(ctx, accountID)
	})
}

// ReadLog returns up to limit transaction log entries with sequence numbers
// strictly greater than cursor, in order.
func (e *Engine) ReadLog(ctx context.Context, accountID mail.AccountID, cursor int64, limit int) ([]db.LogEntry, error) {
	return e.reader.ReadSince(ctx, accountID, cursor, limit)
}

// GetMessageBody returns the cached literal of a message, if body caching is
// enabled and the body has been fetched.
func (e *Engine) GetMessageBody(ctx context.Context, accountID mail.AccountID, messageID mail.InternalMessageID) ([]byte, error) {
	opener := e.storeOpener()
	if opener == nil {
		return nil, ErrNoBodyStore
	}

	bodyStore, err := opener(accountID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := bodyStore.Close(); err != nil {
			e.log.WithError(err).Warn("Failed to close body store")
		}
	}()

	return bodyStore.Get(messageID)
}

// AddWatcher returns a channel delivering the engine's events of the given
// types, all of them if none are given. The channel closes when the engine
// does.
func (e *Engine) AddWatcher(ofType ...events.Event) <-chan events.Event {
	e.watchersLock.Lock()
	defer e.watchersLock.Unlock()

	w := watcher.New(e.panicHandler, ofType...)

	e.watchers[w] = struct{}{}

	return w.GetChannel()
}

func (e *Engine) publish(event events.Event) {
	e.watchersLock.RLock()
	defer e.watchersLock.RUnlock()

	for w := range e.watchers {
		if w.IsWatching(event) {
			w.Send(event)
		}
	}

	e.broadcast(event)
}

// broadcast mirrors terminal sync outcomes onto the coordination pubsub so
// sibling processes can observe account progress.
func (e *Engine) broadcast(event events.Event) {
	if e.pubsub == nil {
		return
	}

	var (
		subject string
		payload any
	)

	switch event := event.(type) {
	case events.SyncFinished:
		subject = fmt.Sprintf("nylas.sync.finished.%v", event.AccountID)
		payload = event

	case events.SyncFailed:
		subject = fmt.Sprintf("nylas.sync.failed.%v", event.AccountID)
		payload = struct {
			AccountID mail.AccountID `json:"account_id"`
			Error     string         `json:"error"`
			Permanent bool           `json:"permanent"`
		}{event.AccountID, fmt.Sprint(event.Error), event.Permanent}

	default:
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	if err := e.pubsub.Publish(context.Background(), subject, data); err != nil {
		e.log.WithError(err).Warn("Failed to broadcast sync status")
	}
}

func (e *Engine) storeOpener() syncer.StoreOpener {
	if e.storeBuilder == nil || !e.syncCfg.FetchBodies {
		return nil
	}

	return func(accountID mail.AccountID) (store.Store, error) {
		return e.storeBuilder.New(e.dir, accountID, e.passphrase)
	}
}
