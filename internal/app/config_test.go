package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearPlatformEnv(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "REDIS_URL", "PORT"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("LOYALTY_DATABASE_URL", "postgres://localhost/loyalty")
	t.Setenv("LOYALTY_AUTH_PEPPER", "pepper")

	cfg, err := loadConfig([]string{}, nil, (*Config).Validate)
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
	assert.Equal(t, TransportInline, cfg.Notify.Transport)
	assert.Equal(t, MailerLog, cfg.Notify.Mailer)
	assert.Equal(t, "loyalty:notifications", cfg.Redis.Key)
	assert.Equal(t, "loyalty.notifications", cfg.Kafka.Topic)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, "0 0 * * *", cfg.Sweep.Schedule)
	assert.Equal(t, "UTC", cfg.Sweep.Timezone)
	assert.False(t, cfg.Sweep.Dedup)
}

func TestLoadConfigPlatformDefaults(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://platform:6379/0")
	t.Setenv("PORT", "9090")
	t.Setenv("LOYALTY_AUTH_ENABLED", "false")

	cfg, err := loadConfig([]string{}, nil, (*Config).Validate)
	require.NoError(t, err)

	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://platform:6379/0", cfg.Redis.URL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfigFile(t *testing.T) {
	clearPlatformEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage: memory
auth:
  pepper: pepper
  keys: [dev-key]
notify:
  transport: redis
redis:
  url: redis://localhost:6379/1
sweep:
  schedule: "@hourly"
  timezone: Europe/Berlin
  dedup: true
`), 0o600))

	cfg, err := loadConfig([]string{}, []string{path}, (*Config).Validate)
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, []string{"dev-key"}, cfg.Auth.Keys)
	assert.Equal(t, TransportRedis, cfg.Notify.Transport)
	assert.Equal(t, "@hourly", cfg.Sweep.Schedule)
	assert.Equal(t, "Europe/Berlin", cfg.Sweep.Timezone)
	assert.True(t, cfg.Sweep.Dedup)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Addr:        defaultAddr,
			Storage:     StoragePostgres,
			DatabaseURL: "postgres://localhost/loyalty",
			Auth:        AuthConfig{Enabled: true, Pepper: "pepper"},
			Notify:      NotifyConfig{Transport: TransportInline, Mailer: MailerLog},
			Sweep:       SweepConfig{Enabled: true, Schedule: "0 0 * * *", Timezone: "UTC"},
		}
	}
	require.NoError(t, func() error { c := valid(); return c.Validate() }())

	tests := []struct {
		name   string
		mutate func(c *Config)
		err    string
	}{
		{"UnknownStorage", func(c *Config) { c.Storage = "sqlite" }, `storage: unknown value "sqlite"`},
		{"NoDatabase", func(c *Config) { c.DatabaseURL = "" }, "database URL is required"},
		{"NoPepper", func(c *Config) { c.Auth.Pepper = "" }, "auth pepper is required"},
		{"MemoryWithoutKeys", func(c *Config) { c.Storage = StorageMemory }, "at least one static key"},
		{"UnknownTransport", func(c *Config) { c.Notify.Transport = "sqs" }, "notify.transport"},
		{"UnknownMailer", func(c *Config) { c.Notify.Mailer = "smtp" }, "notify.mailer"},
		{"ResendWithoutKey", func(c *Config) { c.Notify.Mailer = MailerResend }, "requires an API key"},
		{"RedisWithoutURL", func(c *Config) { c.Notify.Transport = TransportRedis }, "requires a Redis URL"},
		{"KafkaWithoutBrokers", func(c *Config) { c.Notify.Transport = TransportKafka }, "requires brokers"},
		{"InlineWorker", func(c *Config) { c.Notify.EmbeddedWorker = true }, "needs a queue transport"},
		{"BadSchedule", func(c *Config) { c.Sweep.Schedule = "0 0 0 * * *" }, "parse schedule"},
		{"BadTimezone", func(c *Config) { c.Sweep.Timezone = "Mars/Olympus" }, "sweep timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tt.err)
		})
	}

	t.Run("DisabledSweepSkipsSchedule", func(t *testing.T) {
		c := valid()
		c.Sweep = SweepConfig{Schedule: "nonsense"}
		assert.NoError(t, c.Validate())
	})
	t.Run("DisabledAuthNeedsNoPepper", func(t *testing.T) {
		c := valid()
		c.Auth = AuthConfig{}
		assert.NoError(t, c.Validate())
	})
}

func TestLoadWorkerConfig(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("LOYALTY_NOTIFY_TRANSPORT", "kafka")
	t.Setenv("LOYALTY_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := loadConfig([]string{}, nil, (*Config).validateNotify)
	require.NoError(t, err, "worker needs no database or pepper")
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)

	_, err = loadConfig([]string{}, nil, (*Config).Validate)
	assert.ErrorContains(t, err, "database URL is required")
}
