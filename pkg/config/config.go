package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is applied by envconfig on top of explicit tags.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Dispatch     DispatchConfig
	Relay        RelayConfig
	Chat         ChatConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MILLETLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"MILLETLINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MILLETLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MILLETLINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MILLETLINK_DB_DSN"`
	Driver string `envconfig:"MILLETLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MILLETLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"MILLETLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MILLETLINK_DB_USER"`
	LegacyPassword string `envconfig:"MILLETLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"MILLETLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"MILLETLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MILLETLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MILLETLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MILLETLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MILLETLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MILLETLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MILLETLINK_REDIS_ADDR"`
	Password     string        `envconfig:"MILLETLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"MILLETLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MILLETLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MILLETLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MILLETLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MILLETLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MILLETLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"MILLETLINK_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"MILLETLINK_JWT_ISSUER" required:"true"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MILLETLINK_GCP_PROJECT_ID" required:"true"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"MILLETLINK_PUBSUB_NOTIFICATION_TOPIC" default:"ml-notification-events"`
	NotificationSubscription string `envconfig:"MILLETLINK_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MILLETLINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MILLETLINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MILLETLINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type DispatchConfig struct {
	SearchRadiusKM   float64       `envconfig:"MILLETLINK_DISPATCH_SEARCH_RADIUS_KM" default:"10"`
	LocationStaleTTL time.Duration `envconfig:"MILLETLINK_DISPATCH_LOCATION_STALE_TTL" default:"15m"`
}

type RelayConfig struct {
	AllowedOrigins []string      `envconfig:"MILLETLINK_RELAY_ALLOWED_ORIGINS"`
	SendQueueSize  int           `envconfig:"MILLETLINK_RELAY_SEND_QUEUE_SIZE" default:"64"`
	WriteTimeout   time.Duration `envconfig:"MILLETLINK_RELAY_WRITE_TIMEOUT" default:"10s"`
	PongTimeout    time.Duration `envconfig:"MILLETLINK_RELAY_PONG_TIMEOUT" default:"60s"`
	MaxMessageSize int64         `envconfig:"MILLETLINK_RELAY_MAX_MESSAGE_BYTES" default:"65536"`
}

type ChatConfig struct {
	PersistQueueSize int `envconfig:"MILLETLINK_CHAT_PERSIST_QUEUE_SIZE" default:"256"`
	PersistRetries   int `envconfig:"MILLETLINK_CHAT_PERSIST_RETRIES" default:"1"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MILLETLINK_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		"MILLETLINK_DB_HOST": db.LegacyHost,
		"MILLETLINK_DB_USER": db.LegacyUser,
		"MILLETLINK_DB_NAME": db.LegacyName,
	}
	for _, key := range []string{"MILLETLINK_DB_HOST", "MILLETLINK_DB_USER", "MILLETLINK_DB_NAME"} {
		if legacyValues[key] == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either MILLETLINK_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
