package app

import (
	"os"
	"slices"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/loyalty-orders/internal/queue"
	"github.com/xenking/loyalty-orders/internal/scheduler"
)

const defaultAddr = "0.0.0.0:8080"

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Notification transports and mailers.
const (
	TransportInline = "inline"
	TransportRedis  = "redis"
	TransportKafka  = "kafka"

	MailerLog    = "log"
	MailerResend = "resend"
)

// Config holds the complete application configuration, loadable from
// environment variables (LOYALTY_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage     string `default:"postgres" usage:"Storage backend: postgres or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (LOYALTY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
	Notify      NotifyConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Sweep       SweepConfig
}

// AuthConfig controls API key authentication of mutating routes.
type AuthConfig struct {
	Enabled bool   `default:"true" usage:"Require an API key on POST, PUT and DELETE"`
	Pepper  string `usage:"HMAC pepper for API key hashing (LOYALTY_AUTH_PEPPER)"`
	// Keys are raw keys granted every scope. Only used with memory storage;
	// postgres keys live in the api_keys table.
	Keys []string `usage:"Static API keys for memory storage"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// NotifyConfig controls how notifications reach customers.
type NotifyConfig struct {
	Transport      string        `default:"inline" usage:"Notification transport: inline, redis or kafka"`
	Mailer         string        `default:"log" usage:"Email delivery: log or resend"`
	From           string        `default:"loyalty@example.com" usage:"Sender address"`
	ResendURL      string        `default:"https://api.resend.com" usage:"Resend compatible API base URL" flag:"resend-url"`
	ResendAPIKey   string        `usage:"Resend API key" flag:"resend-api-key"`
	Concurrency    int           `default:"4" usage:"Concurrent inline deliveries or queue handlers"`
	Backlog        int           `default:"1024" usage:"Inline notifications waiting for delivery before new ones are dropped"`
	Timeout        time.Duration `default:"10s" usage:"Per notification timeout"`
	EmbeddedWorker bool          `default:"false" usage:"Run the queue worker inside the API server" flag:"embedded-worker"`
}

// RedisConfig locates the Redis server used by the redis transport and the
// shared alert ledger.
type RedisConfig struct {
	URL string `usage:"Redis URL (LOYALTY_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	Key string `default:"loyalty:notifications" usage:"Queue list key"`
}

// KafkaConfig locates the Kafka cluster used by the kafka transport.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses"`
	Topic   string   `default:"loyalty.notifications" usage:"Notification topic"`
	GroupID string   `default:"loyalty-notify" usage:"Consumer group of the worker"`
}

// SweepConfig controls the periodic progression sweep.
type SweepConfig struct {
	Enabled  bool          `default:"true" usage:"Run the progression sweep"`
	Schedule string        `default:"0 0 * * *" usage:"Cron schedule (five fields or @descriptor)"`
	Timezone string        `default:"UTC" usage:"IANA zone the schedule is evaluated in"`
	Dedup    bool          `default:"false" usage:"Send each progression alert at most once per customer and order count"`
	DedupTTL time.Duration `default:"720h" usage:"How long a sent alert is remembered" flag:"sweep-dedup-ttl"`
}

func (c KafkaConfig) queue() queue.KafkaConfig {
	return queue.KafkaConfig{Brokers: c.Brokers, Topic: c.Topic, GroupID: c.GroupID}
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and flags, then applies platform-specific defaults and validates the result.
func LoadConfig() (*Config, error) {
	return loadConfig(nil, configFiles, (*Config).Validate)
}

// LoadWorkerConfig is LoadConfig for the notify worker, which needs no
// storage and serves no API.
func LoadWorkerConfig() (*Config, error) {
	return loadConfig(nil, configFiles, (*Config).validateNotify)
}

var configFiles = []string{"config.yaml", "/etc/loyalty/config.yaml"}

func loadConfig(args, files []string, validate func(*Config) error) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "LOYALTY",
		Files:     files,
		Args:      args,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's LOYALTY_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func oneOf(field, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return errors.Errorf("%s: unknown value %q, want one of %v", field, value, allowed)
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	if err := oneOf("storage", c.Storage, StoragePostgres, StorageMemory); err != nil {
		return err
	}
	if c.Storage == StoragePostgres && c.DatabaseURL == "" {
		return errors.New("database URL is required: set LOYALTY_DATABASE_URL or DATABASE_URL")
	}

	if c.Auth.Enabled {
		if c.Auth.Pepper == "" {
			return errors.New("auth pepper is required when auth is enabled")
		}
		if c.Storage == StorageMemory && len(c.Auth.Keys) == 0 {
			return errors.New("memory storage with auth needs at least one static key")
		}
	}

	if err := c.validateNotify(); err != nil {
		return err
	}

	if c.Sweep.Enabled {
		if err := scheduler.Validate(c.Sweep.Schedule); err != nil {
			return errors.Wrap(err, "sweep")
		}
		if _, err := time.LoadLocation(c.Sweep.Timezone); err != nil {
			return errors.Wrap(err, "sweep timezone")
		}
	}
	return nil
}

func (c *Config) validateNotify() error {
	n := c.Notify
	if err := oneOf("notify.transport", n.Transport, TransportInline, TransportRedis, TransportKafka); err != nil {
		return err
	}
	if err := oneOf("notify.mailer", n.Mailer, MailerLog, MailerResend); err != nil {
		return err
	}
	if n.Mailer == MailerResend && n.ResendAPIKey == "" {
		return errors.New("resend mailer requires an API key")
	}
	if n.Transport == TransportRedis && c.Redis.URL == "" {
		return errors.New("redis transport requires a Redis URL")
	}
	if n.Transport == TransportKafka && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka transport requires brokers")
	}
	if n.EmbeddedWorker && n.Transport == TransportInline {
		return errors.New("embedded worker needs a queue transport")
	}
	return nil
}
