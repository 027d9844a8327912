package redis

import (
	"time"

	"go.uber.org/zap"

	"github.com/kode4food/dispatch"
)

type (
	// Config addresses the Redis server and key space used by a Store or
	// a Pubsub
	Config struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}

	// PubsubConfig controls a Redis-backed Pubsub
	PubsubConfig struct {
		Config
		Hub    dispatch.HubConfig
		Logger *zap.Logger
	}
)

const (
	DefaultEndpoint = "localhost:6379"
	DefaultPrefix   = "dispatch"
	DefaultDB       = 0

	ConnectTimeout = 5 * time.Second
)

func DefaultConfig() Config {
	return Config{
		Addr:     DefaultEndpoint,
		Password: "",
		Prefix:   DefaultPrefix,
		DB:       DefaultDB,
	}
}

func DefaultPubsubConfig() PubsubConfig {
	return PubsubConfig{
		Config: DefaultConfig(),
		Hub:    dispatch.DefaultHubConfig(),
		Logger: zap.NewNop(),
	}
}
