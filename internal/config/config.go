package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Vovarama1992/widget-chat-bridge/internal/db"
)

const (
	EnvConfigFile         = "BRIDGE_CONFIG_FILE"
	EnvPort               = "PORT"
	EnvDBDriver           = "DB_DRIVER"
	EnvDatabaseURL        = "DATABASE_URL"
	EnvRedisURL           = "REDIS_URL"
	EnvOpenAIAPIKey       = "OPENAI_API_KEY"
	EnvOpenAIModel        = "OPENAI_MODEL"
	EnvWebhookTimeout     = "WEBHOOK_TIMEOUT"
	EnvWebhookRetryDelay  = "WEBHOOK_RETRY_DELAY"
	EnvWebhookMaxAttempts = "WEBHOOK_MAX_ATTEMPTS"
	EnvCORSOrigins        = "CORS_ALLOWED_ORIGINS"
	EnvLogLevel           = "LOG_LEVEL"
	EnvBotsFile           = "BOTS_FILE"
	EnvTrustProxy         = "TRUST_PROXY"
)

const (
	defaultHTTPAddr           = ":8080"
	defaultWebhookTimeout     = 30 * time.Second
	defaultWebhookRetryDelay  = time.Second
	defaultWebhookMaxAttempts = 2
	defaultLogLevel           = "info"
)

type Config struct {
	HTTPAddr           string
	DBDriver           string
	DBDSN              string
	RedisURL           string
	OpenAIAPIKey       string
	OpenAIModel        string
	WebhookTimeout     time.Duration
	WebhookRetryDelay  time.Duration
	WebhookMaxAttempts int
	CORSAllowedOrigins []string
	LogLevel           string
	BotsFile           string
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Only safe behind a reverse proxy that overwrites those headers.
	TrustProxy bool
}

type fileConfig struct {
	HTTPAddr           string   `yaml:"http_addr"`
	DBDriver           string   `yaml:"db_driver"`
	DBDSN              string   `yaml:"db_dsn"`
	RedisURL           string   `yaml:"redis_url"`
	OpenAIAPIKey       string   `yaml:"openai_api_key"`
	OpenAIModel        string   `yaml:"openai_model"`
	WebhookTimeout     string   `yaml:"webhook_timeout"`
	WebhookRetryDelay  string   `yaml:"webhook_retry_delay"`
	WebhookMaxAttempts int      `yaml:"webhook_max_attempts"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	LogLevel           string   `yaml:"log_level"`
	BotsFile           string   `yaml:"bots_file"`
	TrustProxy         bool     `yaml:"trust_proxy"`
}

// Load reads .env (if any), then the YAML file named by BRIDGE_CONFIG_FILE,
// then lets environment variables override individual keys.
func Load() (Config, error) {
	_ = godotenv.Load()

	file, err := loadFileConfig(envString(EnvConfigFile))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPAddr:     firstNonEmpty(portAddr(envString(EnvPort)), file.HTTPAddr, defaultHTTPAddr),
		DBDriver:     strings.ToLower(firstNonEmpty(envString(EnvDBDriver), file.DBDriver, db.DriverSQLite)),
		DBDSN:        firstNonEmpty(envString(EnvDatabaseURL), file.DBDSN),
		RedisURL:     firstNonEmpty(envString(EnvRedisURL), file.RedisURL),
		OpenAIAPIKey: firstNonEmpty(envString(EnvOpenAIAPIKey), file.OpenAIAPIKey),
		OpenAIModel:  firstNonEmpty(envString(EnvOpenAIModel), file.OpenAIModel),
		LogLevel:     strings.ToLower(firstNonEmpty(envString(EnvLogLevel), file.LogLevel, defaultLogLevel)),
		BotsFile:     firstNonEmpty(envString(EnvBotsFile), file.BotsFile),
	}

	cfg.WebhookTimeout, err = parseDuration(firstNonEmpty(envString(EnvWebhookTimeout), file.WebhookTimeout), defaultWebhookTimeout, EnvWebhookTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WebhookRetryDelay, err = parseDuration(firstNonEmpty(envString(EnvWebhookRetryDelay), file.WebhookRetryDelay), defaultWebhookRetryDelay, EnvWebhookRetryDelay)
	if err != nil {
		return Config{}, err
	}

	cfg.WebhookMaxAttempts = defaultWebhookMaxAttempts
	if file.WebhookMaxAttempts != 0 {
		cfg.WebhookMaxAttempts = file.WebhookMaxAttempts
	}
	if raw := envString(EnvWebhookMaxAttempts); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", EnvWebhookMaxAttempts, raw, err)
		}
		cfg.WebhookMaxAttempts = n
	}

	cfg.TrustProxy, err = parseBool(envString(EnvTrustProxy), file.TrustProxy, EnvTrustProxy)
	if err != nil {
		return Config{}, err
	}

	cfg.CORSAllowedOrigins = file.CORSAllowedOrigins
	if raw := envString(EnvCORSOrigins); raw != "" {
		cfg.CORSAllowedOrigins = splitList(raw)
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if cfg.DBDriver == db.DriverSQLite && cfg.DBDSN == "" {
		cfg.DBDSN = db.DefaultSQLiteDSN
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case db.DriverSQLite:
	case db.DriverPostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("%s is required for postgres", EnvDatabaseURL)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvDBDriver, c.DBDriver)
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("%s must be > 0", EnvWebhookTimeout)
	}
	if c.WebhookRetryDelay < 0 {
		return fmt.Errorf("%s must be >= 0", EnvWebhookRetryDelay)
	}
	if c.WebhookMaxAttempts < 1 {
		return fmt.Errorf("%s must be >= 1", EnvWebhookMaxAttempts)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported %s %q", EnvLogLevel, raw)
	}
}

func loadFileConfig(path string) (fileConfig, error) {
	if path == "" {
		return fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("decode config file %s: %w", path, err)
	}
	return cfg, nil
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// portAddr accepts a bare port ("8080") as well as a full listen address.
func portAddr(raw string) string {
	if raw == "" || strings.Contains(raw, ":") {
		return raw
	}
	return ":" + raw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func parseDuration(raw string, fallback time.Duration, field string) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration %q: %w", field, raw, err)
	}
	return d, nil
}

func parseBool(raw string, fallback bool, field string) (bool, error) {
	switch strings.ToLower(raw) {
	case "":
		return fallback, nil
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s %q", field, raw)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
