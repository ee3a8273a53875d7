package nylas

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/closeio/nylas/async"
	"github.com/closeio/nylas/coordination"
	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/events"
	"github.com/closeio/nylas/internal/db_impl"
	"github.com/closeio/nylas/internal/scheduler"
	"github.com/closeio/nylas/internal/syncer"
	"github.com/closeio/nylas/remote"
	"github.com/closeio/nylas/reporter"
	"github.com/closeio/nylas/store"
	"github.com/closeio/nylas/txlog"
	"github.com/closeio/nylas/version"
	"github.com/closeio/nylas/watcher"
)

type engineBuilder struct {
	dir string

	client  db.Client
	dbDebug bool

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
}

func newBuilder() (*engineBuilder, error) {
	memory := coordination.NewMemory()

	return &engineBuilder{
		locker: memory,
		pubsub: memory,

		syncCfg: syncer.Config{
			BatchSize: 250,
		},

		schedCfg: scheduler.Config{
			Workers:       4,
			PollInterval:  30 * time.Second,
			SyncInterval:  5 * time.Minute,
			LeaseTTL:      2 * time.Minute,
			RenewInterval: 30 * time.Second,
			BackoffMin:    time.Minute,
			BackoffMax:    time.Hour,
		},

		reporter:     &reporter.NullReporter{},
		panicHandler: async.NoopPanicHandler{},
	}, nil
}

func (builder *engineBuilder) build() (*Engine, error) {
	if builder.factory == nil {
		return nil, fmt.Errorf("an engine needs a remote factory")
	}

	if builder.dir == "" {
		dir, err := os.MkdirTemp("", "nylas-*")
		if err != nil {
			return nil, err
		}

		builder.dir = dir
	}

	if err := os.MkdirAll(builder.dir, 0o700); err != nil {
		return nil, err
	}

	client := builder.client

	if client == nil {
		var err error

		if client, err = db_impl.New(db_impl.DriverSQLite, builder.dir, builder.dbDebug); err != nil {
			return nil, err
		}
	}

	return &Engine{
		dir: builder.dir,

		client:  client,
		locker:  builder.locker,
		pubsub:  builder.pubsub,
		factory: builder.factory,

		storeBuilder: builder.storeBuilder,
		passphrase:   builder.passphrase,

		syncCfg:  builder.syncCfg,
		schedCfg: builder.schedCfg,

		reporter:     builder.reporter,
		panicHandler: builder.panicHandler,
		versionInfo:  builder.versionInfo,

		reader:   txlog.NewReader(client),
		watchers: make(map[*watcher.Watcher[events.Event]]struct{}),

		log: logrus.WithField("pkg", "nylas"),
	}, nil
}
