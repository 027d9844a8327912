package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/kode4food/dispatch/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load(config.NewViper(), "")
	assert.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, config.StoreMemory, cfg.Store.Kind)
	assert.Equal(t, config.PubsubLocal, cfg.Pubsub.Kind)
	assert.Equal(t, 30*time.Second, cfg.Pubsub.DeliverTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Registry.RejectCollisions)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("DISPATCH_STORE_KIND", "BOLT")
	t.Setenv("DISPATCH_STORE_PATH", "/tmp/events.db")
	t.Setenv("DISPATCH_PUBSUB_DEFERRED", "true")
	t.Setenv("DISPATCH_REDIS_DB", "3")

	cfg, err := config.Load(config.NewViper(), "")
	assert.NoError(t, err)
	assert.Equal(t, config.StoreBolt, cfg.Store.Kind)
	assert.Equal(t, "/tmp/events.db", cfg.Store.Path)
	assert.True(t, cfg.Pubsub.Deferred)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	data := []byte(`
http:
  addr: ":9090"
store:
  kind: sqlite
  path: events.db
pubsub:
  kind: redis
  deliver_timeout: 5s
log:
  level: debug
  format: console
registry:
  reject_collisions: true
`)
	assert.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := config.Load(config.NewViper(), path)
	assert.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, config.StoreSQLite, cfg.Store.Kind)
	assert.Equal(t, "events.db", cfg.Store.Path)
	assert.Equal(t, config.PubsubRedis, cfg.Pubsub.Kind)
	assert.Equal(t, 5*time.Second, cfg.Pubsub.DeliverTimeout)
	assert.Equal(t, config.FormatConsole, cfg.Log.Format)
	assert.True(t, cfg.Registry.RejectCollisions)
	assert.Equal(t, path, cfg.File)
}

func TestMissingFile(t *testing.T) {
	_, err := config.Load(config.NewViper(),
		filepath.Join(t.TempDir(), "missing.yaml"),
	)
	assert.Error(t, err)
}

func TestEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	assert.NoError(t, os.WriteFile(path,
		[]byte("DISPATCH_TEST_ENV_FILE=loaded\n"), 0o600,
	))
	t.Cleanup(func() { _ = os.Unsetenv("DISPATCH_TEST_ENV_FILE") })

	config.LoadEnvFiles(path, filepath.Join(t.TempDir(), "absent"))
	assert.Equal(t, "loaded", os.Getenv("DISPATCH_TEST_ENV_FILE"))
}

func TestValidate(t *testing.T) {
	base := func() *config.Config {
		return config.FromViper(config.NewViper())
	}

	cfg := base()
	cfg.Store.Kind = "mongo"
	assert.ErrorIs(t, cfg.Validate(), config.ErrUnknownStore)

	cfg = base()
	cfg.Pubsub.Kind = "kafka"
	assert.ErrorIs(t, cfg.Validate(), config.ErrUnknownPubsub)

	cfg = base()
	cfg.Log.Format = "xml"
	assert.ErrorIs(t, cfg.Validate(), config.ErrUnknownFormat)

	cfg = base()
	cfg.Store.Kind = config.StoreSQLite
	assert.ErrorIs(t, cfg.Validate(), config.ErrStorePathRequired)

	cfg = base()
	cfg.Store.Kind = config.StorePostgres
	assert.ErrorIs(t, cfg.Validate(), config.ErrStoreURLRequired)
}

func TestNewLogger(t *testing.T) {
	logger, err := config.NewLogger(config.LogConfig{
		Level: "warn", Format: config.FormatJSON,
	})
	assert.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = config.NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = config.NewLogger(config.LogConfig{Level: "info", Format: "xml"})
	assert.ErrorIs(t, err, config.ErrUnknownFormat)
}
