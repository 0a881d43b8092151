package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Tracker  TrackerConfig
	Audit    AuditConfig
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
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// TrackerConfig tunes change-tracking sessions and their audit write path.
type TrackerConfig struct {
	AsyncAudit      bool
	QueueWorkers    int
	QueueBuffer     int
	QueueRetries    int
	QueueRetryDelay time.Duration
}

// AuditConfig governs the audit query surface and retention.
type AuditConfig struct {
	CacheTTL          time.Duration
	RetentionEnabled  bool
	RetentionMaxAge   time.Duration
	RetentionInterval time.Duration
	ExportEnabled     bool
	ExportDir         string
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
		if !errors.As(err, &notFound) {
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
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Tracker = TrackerConfig{
		AsyncAudit:      v.GetBool("TRACKER_ASYNC_AUDIT"),
		QueueWorkers:    v.GetInt("TRACKER_QUEUE_WORKERS"),
		QueueBuffer:     v.GetInt("TRACKER_QUEUE_BUFFER"),
		QueueRetries:    v.GetInt("TRACKER_QUEUE_RETRIES"),
		QueueRetryDelay: parseDuration(v.GetString("TRACKER_QUEUE_RETRY_DELAY"), time.Second),
	}

	cfg.Audit = AuditConfig{
		CacheTTL:          parseDuration(v.GetString("AUDIT_CACHE_TTL"), 5*time.Minute),
		RetentionEnabled:  v.GetBool("AUDIT_RETENTION_ENABLED"),
		RetentionMaxAge:   parseDuration(v.GetString("AUDIT_RETENTION_MAX_AGE"), 90*24*time.Hour),
		RetentionInterval: parseDuration(v.GetString("AUDIT_RETENTION_INTERVAL"), time.Hour),
		ExportEnabled:     v.GetBool("AUDIT_EXPORT_ENABLED"),
		ExportDir:         v.GetString("AUDIT_EXPORT_DIR"),
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
	v.SetDefault("DB_NAME", "changetrack")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "changetrack")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TRACKER_ASYNC_AUDIT", false)
	v.SetDefault("TRACKER_QUEUE_WORKERS", 1)
	v.SetDefault("TRACKER_QUEUE_BUFFER", 64)
	v.SetDefault("TRACKER_QUEUE_RETRIES", 3)
	v.SetDefault("TRACKER_QUEUE_RETRY_DELAY", "1s")

	v.SetDefault("AUDIT_CACHE_TTL", "5m")
	v.SetDefault("AUDIT_RETENTION_ENABLED", false)
	v.SetDefault("AUDIT_RETENTION_MAX_AGE", "2160h")
	v.SetDefault("AUDIT_RETENTION_INTERVAL", "1h")
	v.SetDefault("AUDIT_EXPORT_ENABLED", true)
	v.SetDefault("AUDIT_EXPORT_DIR", "")
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
