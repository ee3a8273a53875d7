package nylas

import (
	"github.com/closeio/nylas/async"
	"github.com/closeio/nylas/coordination"
	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/internal/reconcile"
	"github.com/closeio/nylas/internal/scheduler"
	"github.com/closeio/nylas/remote"
	"github.com/closeio/nylas/reporter"
	"github.com/closeio/nylas/store"
	"github.com/closeio/nylas/version"
)

// Option configures the engine at construction time.
type Option interface {
	config(builder *engineBuilder)
}

// WithDataDir sets the directory holding the sync database and body stores.
// A temporary directory is used when unset.
func WithDataDir(dir string) Option {
	return &withDataDir{dir: dir}
}

type withDataDir struct {
	dir string
}

func (opt withDataDir) config(builder *engineBuilder) {
	builder.dir = opt.dir
}

// WithRemoteFactory sets the provider the engine syncs accounts against.
// Required.
func WithRemoteFactory(factory remote.Factory) Option {
	return &withRemoteFactory{factory: factory}
}

type withRemoteFactory struct {
	factory remote.Factory
}

func (opt withRemoteFactory) config(builder *engineBuilder) {
	builder.factory = opt.factory
}

// WithDBClient supplies a pre-built store client, e.g. a postgres one.
func WithDBClient(client db.Client) Option {
	return &withDBClient{client: client}
}

type withDBClient struct {
	client db.Client
}

func (opt withDBClient) config(builder *engineBuilder) {
	builder.client = opt.client
}

// WithDBDebug logs every SQL query and its timing.
func WithDBDebug() Option {
	return &withDBDebug{}
}

type withDBDebug struct{}

func (withDBDebug) config(builder *engineBuilder) {
	builder.dbDebug = true
}

// WithCoordination replaces the default in-process locker and pubsub, wiring
// the engine into a multi-process deployment.
func WithCoordination(locker coordination.Locker, pubsub coordination.PubSub) Option {
	return &withCoordination{locker: locker, pubsub: pubsub}
}

type withCoordination struct {
	locker coordination.Locker
	pubsub coordination.PubSub
}

func (opt withCoordination) config(builder *engineBuilder) {
	builder.locker = opt.locker
	builder.pubsub = opt.pubsub
}

// WithBodyStore enables caching message literals through the given store
// builder, encrypted with the given passphrase.
func WithBodyStore(storeBuilder store.Builder, passphrase []byte) Option {
	return &withBodyStore{storeBuilder: storeBuilder, passphrase: passphrase}
}

type withBodyStore struct {
	storeBuilder store.Builder
	passphrase   []byte
}

func (opt withBodyStore) config(builder *engineBuilder) {
	builder.storeBuilder = opt.storeBuilder
	builder.passphrase = opt.passphrase
	builder.syncCfg.FetchBodies = true
}

// WithBatchSize bounds how many observations commit per transaction.
func WithBatchSize(size int) Option {
	return &withBatchSize{size: size}
}

type withBatchSize struct {
	size int
}

func (opt withBatchSize) config(builder *engineBuilder) {
	builder.syncCfg.BatchSize = opt.size
}

// WithDeleteWins makes a deletion beat a concurrent modification when one
// sync batch reports both for the same object.
func WithDeleteWins() Option {
	return &withDeleteWins{}
}

type withDeleteWins struct{}

func (withDeleteWins) config(builder *engineBuilder) {
	builder.syncCfg.Policy = reconcile.Policy{DeleteWins: true}
}

// WithSchedulerConfig replaces the scheduler's timing defaults.
func WithSchedulerConfig(cfg scheduler.Config) Option {
	return &withSchedulerConfig{cfg: cfg}
}

type withSchedulerConfig struct {
	cfg scheduler.Config
}

func (opt withSchedulerConfig) config(builder *engineBuilder) {
	builder.schedCfg = opt.cfg
}

// WithReporter forwards internal errors to the given exception sink.
func WithReporter(reporter reporter.Reporter) Option {
	return &withReporter{reporter: reporter}
}

type withReporter struct {
	reporter reporter.Reporter
}

func (opt withReporter) config(builder *engineBuilder) {
	builder.reporter = opt.reporter
}

// WithPanicHandler recovers panics on the engine's goroutines.
func WithPanicHandler(panicHandler async.PanicHandler) Option {
	return &withPanicHandler{panicHandler: panicHandler}
}

type withPanicHandler struct {
	panicHandler async.PanicHandler
}

func (opt withPanicHandler) config(builder *engineBuilder) {
	builder.panicHandler = opt.panicHandler
}

func WithVersionInfo(vmajor, vminor, vpatch int, name, vendor, supportURL string) Option {
	return &withVersionInfo{
		versionInfo: version.Info{
			Name: name,
			Version: version.Version{
				Major: vmajor,
				Minor: vminor,
				Patch: vpatch,
			},
			Vendor:     vendor,
			SupportURL: supportURL,
		},
	}
}

type withVersionInfo struct {
	versionInfo version.Info
}

func (opt *withVersionInfo) config(builder *engineBuilder) {
	builder.versionInfo = opt.versionInfo
}
