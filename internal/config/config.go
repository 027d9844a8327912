// Package config loads dispatchd settings from .env files, the environment,
// and an optional YAML file
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	// Config holds every setting dispatchd reads at startup
	Config struct {
		HTTP     HTTPConfig
		Store    StoreConfig
		Redis    RedisConfig
		Pubsub   PubsubConfig
		Log      LogConfig
		File     string
		Registry RegistryConfig
	}

	HTTPConfig struct {
		Addr string
	}

	// StoreConfig selects the EventStore back end. Path is used by the
	// file-based stores and URL by postgres
	StoreConfig struct {
		Kind  string
		Path  string
		URL   string
		Table string
	}

	RedisConfig struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}

	// PubsubConfig selects where published events go. Deferred delivery
	// hands each subscriber its own ordered view of the published events
	PubsubConfig struct {
		Kind           string
		Deferred       bool
		QueueSize      int
		DeliverTimeout time.Duration
	}

	LogConfig struct {
		Level  string
		Format string
	}

	RegistryConfig struct {
		RejectCollisions bool
	}
)

const (
	EnvPrefix = "DISPATCH"

	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StoreBolt     = "bolt"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	PubsubLocal = "local"
	PubsubRedis = "redis"

	FormatJSON    = "json"
	FormatConsole = "console"
)

// Keys understood in the YAML file. Each is also read from the environment
// as DISPATCH_ followed by the key in upper case, with dots as underscores
const (
	KeyHTTPAddr             = "http.addr"
	KeyStoreKind            = "store.kind"
	KeyStorePath            = "store.path"
	KeyStoreURL             = "store.url"
	KeyStoreTable           = "store.table"
	KeyRedisAddr            = "redis.addr"
	KeyRedisPassword        = "redis.password"
	KeyRedisPrefix          = "redis.prefix"
	KeyRedisDB              = "redis.db"
	KeyPubsubKind           = "pubsub.kind"
	KeyPubsubDeferred       = "pubsub.deferred"
	KeyPubsubQueueSize      = "pubsub.queue_size"
	KeyPubsubDeliverTimeout = "pubsub.deliver_timeout"
	KeyLogLevel             = "log.level"
	KeyLogFormat            = "log.format"
	KeyRejectCollisions     = "registry.reject_collisions"
)

var (
	// ErrUnknownStore indicates an unsupported store kind
	ErrUnknownStore = errors.New("unknown store kind")

	// ErrUnknownPubsub indicates an unsupported pubsub kind
	ErrUnknownPubsub = errors.New("unknown pubsub kind")

	// ErrUnknownFormat indicates an unsupported log format
	ErrUnknownFormat = errors.New("unknown log format")

	// ErrStorePathRequired indicates a file-based store without a path
	ErrStorePathRequired = errors.New("store path is required")

	// ErrStoreURLRequired indicates a postgres store without a URL
	ErrStoreURLRequired = errors.New("store url is required")

	storeKinds = []string{
		StoreMemory, StoreRedis, StoreBolt, StoreSQLite, StorePostgres,
	}
	pubsubKinds = []string{PubsubLocal, PubsubRedis}
	logFormats  = []string{FormatJSON, FormatConsole}

	// EnvFiles are loaded, when present, before the environment is read.
	// Variables already set in the environment win
	EnvFiles = []string{".env", ".env.local"}
)

// Defaults registers the default value of every key on v
func Defaults(v *viper.Viper) {
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyStoreKind, StoreMemory)
	v.SetDefault(KeyStorePath, "")
	v.SetDefault(KeyStoreURL, "")
	v.SetDefault(KeyStoreTable, "dispatch_events")
	v.SetDefault(KeyRedisAddr, "localhost:6379")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRedisPrefix, "dispatch")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyPubsubKind, PubsubLocal)
	v.SetDefault(KeyPubsubDeferred, false)
	v.SetDefault(KeyPubsubQueueSize, 1024)
	v.SetDefault(KeyPubsubDeliverTimeout, 30*time.Second)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, FormatJSON)
	v.SetDefault(KeyRejectCollisions, false)
}

// NewViper returns a viper instance with defaults registered and the
// environment bound under the DISPATCH prefix
func NewViper() *viper.Viper {
	v := viper.New()
	Defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the .env files, then the YAML file at path when it is not
// empty, and returns the resulting Config from v
func Load(v *viper.Viper, path string) (*Config, error) {
	LoadEnvFiles(EnvFiles...)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads each file that exists, without overriding variables
// that are already set
func LoadEnvFiles(files ...string) {
	for _, file := range files {
		_ = godotenv.Load(file)
	}
}

// FromViper builds a Config from the current values of v
func FromViper(v *viper.Viper) *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr: v.GetString(KeyHTTPAddr),
		},
		Store: StoreConfig{
			Kind:  strings.ToLower(v.GetString(KeyStoreKind)),
			Path:  v.GetString(KeyStorePath),
			URL:   v.GetString(KeyStoreURL),
			Table: v.GetString(KeyStoreTable),
		},
		Redis: RedisConfig{
			Addr:     v.GetString(KeyRedisAddr),
			Password: v.GetString(KeyRedisPassword),
			Prefix:   v.GetString(KeyRedisPrefix),
			DB:       v.GetInt(KeyRedisDB),
		},
		Pubsub: PubsubConfig{
			Kind:           strings.ToLower(v.GetString(KeyPubsubKind)),
			Deferred:       v.GetBool(KeyPubsubDeferred),
			QueueSize:      v.GetInt(KeyPubsubQueueSize),
			DeliverTimeout: v.GetDuration(KeyPubsubDeliverTimeout),
		},
		Log: LogConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: strings.ToLower(v.GetString(KeyLogFormat)),
		},
		Registry: RegistryConfig{
			RejectCollisions: v.GetBool(KeyRejectCollisions),
		},
		File: v.ConfigFileUsed(),
	}
}

// Validate checks that the selected back ends exist and have what they
// need to open
func (c *Config) Validate() error {
	if !slices.Contains(storeKinds, c.Store.Kind) {
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store.Kind)
	}
	if !slices.Contains(pubsubKinds, c.Pubsub.Kind) {
		return fmt.Errorf("%w: %q", ErrUnknownPubsub, c.Pubsub.Kind)
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, c.Log.Format)
	}
	switch c.Store.Kind {
	case StoreBolt, StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("%w for %s", ErrStorePathRequired, c.Store.Kind)
		}
	case StorePostgres:
		if c.Store.URL == "" {
			return ErrStoreURLRequired
		}
	}
	return nil
}
