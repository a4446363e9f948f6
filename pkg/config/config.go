package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	FanoutSinkNotifications = "notifications"
	FanoutSinkLedger        = "ledger"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Feed      FeedConfig
	Fanout    FanoutConfig
	Targeting TargetingConfig
	Lifecycle LifecycleConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig configures bearer validation. Tokens are issued by the auth service.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// FeedConfig tunes forward query pagination.
type FeedConfig struct {
	DefaultLimit   int
	MaxLimit       int
	CandidateBatch int
}

// FanoutConfig tunes recipient resolution and dispatch.
type FanoutConfig struct {
	PageSize     int
	Workers      int
	Retries      int
	RetryDelay   time.Duration
	DispatchRate float64

	// EnqueueTimeout bounds how long a publish waits for fanout queue space.
	EnqueueTimeout time.Duration
	// Sink selects the delivery target: "notifications" or "ledger".
	Sink           string
}

// TargetingConfig controls attribute loading and caching.
type TargetingConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	Timezone     string
}

// LifecycleConfig toggles the scheduled publish/archive sweeper.
type LifecycleConfig struct {
	Enabled  bool
	Interval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Feed = FeedConfig{
		DefaultLimit:   positiveOr(v.GetInt("FEED_DEFAULT_LIMIT"), 20),
		MaxLimit:       positiveOr(v.GetInt("FEED_MAX_LIMIT"), 100),
		CandidateBatch: positiveOr(v.GetInt("FEED_CANDIDATE_BATCH"), 100),
	}

	cfg.Fanout = FanoutConfig{
		PageSize:       positiveOr(v.GetInt("FANOUT_PAGE_SIZE"), 500),
		Workers:        positiveOr(v.GetInt("FANOUT_WORKERS"), 2),
		Retries:        positiveOr(v.GetInt("FANOUT_RETRIES"), 3),
		RetryDelay:     parseDuration(v.GetString("FANOUT_RETRY_DELAY"), 5*time.Second),
		DispatchRate:   v.GetFloat64("FANOUT_DISPATCH_RATE"),
		EnqueueTimeout: parseDuration(v.GetString("FANOUT_ENQUEUE_TIMEOUT"), 2*time.Second),
		Sink:           strings.ToLower(v.GetString("FANOUT_SINK")),
	}

	cfg.Targeting = TargetingConfig{
		CacheEnabled: v.GetBool("ATTRIBUTE_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("ATTRIBUTE_CACHE_TTL"), time.Minute),
		Timezone:     v.GetString("TARGETING_TIMEZONE"),
	}

	cfg.Lifecycle = LifecycleConfig{
		Enabled:  v.GetBool("ENABLE_LIFECYCLE_WORKER"),
		Interval: parseDuration(v.GetString("LIFECYCLE_INTERVAL"), time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "youthhub")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("FEED_DEFAULT_LIMIT", 20)
	v.SetDefault("FEED_MAX_LIMIT", 100)
	v.SetDefault("FEED_CANDIDATE_BATCH", 100)

	v.SetDefault("FANOUT_PAGE_SIZE", 500)
	v.SetDefault("FANOUT_WORKERS", 2)
	v.SetDefault("FANOUT_RETRIES", 3)
	v.SetDefault("FANOUT_RETRY_DELAY", "5s")
	v.SetDefault("FANOUT_DISPATCH_RATE", 20.0)
	v.SetDefault("FANOUT_SINK", FanoutSinkNotifications)
	v.SetDefault("FANOUT_ENQUEUE_TIMEOUT", "2s")

	v.SetDefault("ATTRIBUTE_CACHE_ENABLED", false)
	v.SetDefault("ATTRIBUTE_CACHE_TTL", "60s")
	v.SetDefault("TARGETING_TIMEZONE", "UTC")

	v.SetDefault("ENABLE_LIFECYCLE_WORKER", false)
	v.SetDefault("LIFECYCLE_INTERVAL", "1m")
}

// Location resolves the targeting timezone, falling back to UTC.
func (c TargetingConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
