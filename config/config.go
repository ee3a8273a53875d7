// Package config loads the daemon's TOML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}

	d.Duration = parsed

	return nil
}

type Store struct {
	// Driver is "sqlite3" or "postgres".
	Driver string `toml:"driver"`

	// DSN is a directory path for sqlite3, a connection string for postgres.
	DSN string `toml:"dsn"`

	Debug bool `toml:"debug"`
}

type NATS struct {
	URL string `toml:"url"`

	// Bucket is the JetStream key-value bucket holding account leases.
	Bucket string `toml:"bucket"`
}

type Bodies struct {
	Enabled bool `toml:"enabled"`

	// Backend is "disk" or "badger".
	Backend    string `toml:"backend"`
	Passphrase string `toml:"passphrase"`
	Compress   bool   `toml:"compress"`
}

type Sync struct {
	Workers       int      `toml:"workers"`
	PollInterval  Duration `toml:"poll_interval"`
	SyncInterval  Duration `toml:"sync_interval"`
	LeaseTTL      Duration `toml:"lease_ttl"`
	RenewInterval Duration `toml:"renew_interval"`
	PassTimeout   Duration `toml:"pass_timeout"`
	BackoffMin    Duration `toml:"backoff_min"`
	BackoffMax    Duration `toml:"backoff_max"`
	BatchSize     int      `toml:"batch_size"`
	DeleteWins    bool     `toml:"delete_wins"`
}

type IMAP struct {
	// Insecure skips TLS certificate verification. Test setups only.
	Insecure bool `toml:"insecure"`
}

type Config struct {
	// DataDir holds the sqlite database (when used) and the body stores.
	DataDir string `toml:"data_dir"`

	LogLevel string `toml:"log_level"`

	Store  Store  `toml:"store"`
	NATS   NATS   `toml:"nats"`
	Bodies Bodies `toml:"bodies"`
	Sync   Sync   `toml:"sync"`
	IMAP   IMAP   `toml:"imap"`
}

// Default returns the configuration used when a field is absent from the
// file.
func Default() Config {
	return Config{
		DataDir:  "data",
		LogLevel: "info",

		Store: Store{
			Driver: "sqlite3",
		},

		NATS: NATS{
			Bucket: "nylas-sync-leases",
		},

		Bodies: Bodies{
			Backend: "disk",
		},

		Sync: Sync{
			Workers:       4,
			PollInterval:  Duration{30 * time.Second},
			SyncInterval:  Duration{5 * time.Minute},
			LeaseTTL:      Duration{2 * time.Minute},
			RenewInterval: Duration{30 * time.Second},
			BackoffMin:    Duration{time.Minute},
			BackoffMax:    Duration{time.Hour},
			BatchSize:     250,
		},
	}
}

// Load reads the file at path over the defaults. A missing file is an error;
// call Default directly to run without one.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "sqlite3", "postgres":

	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Bodies.Backend {
	case "disk", "badger":

	default:
		return fmt.Errorf("unknown bodies backend %q", c.Bodies.Backend)
	}

	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be positive")
	}

	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}

	if c.Sync.LeaseTTL.Duration <= c.Sync.RenewInterval.Duration {
		return fmt.Errorf("sync.lease_ttl must exceed sync.renew_interval")
	}

	return nil
}
