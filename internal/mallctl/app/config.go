package app

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wh01sJake/mall-cloud/pkg/httpx"
	"github.com/wh01sJake/mall-cloud/pkg/jwtx"
	"github.com/wh01sJake/mall-cloud/pkg/mallsdk"
)

// Base URLs per environment.
const (
	DevBaseURL  = "http://localhost:8080/api"
	ProdBaseURL = "https://vapemall-gateway-989f7ea980e6.herokuapp.com/api"
)

// Credential backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	Env            string        // Environment (dev, prod) (default: dev)
	BaseURL        string        // Gateway base URL (default: per Env)
	Timeout        time.Duration // Per-request timeout (default: 10s)
	RefreshHorizon time.Duration // Refresh tokens expiring within this window (default: 5m, 0 disables)
	ExpirySkew     time.Duration // Treat tokens expiring within this window as expired (default: 30s, 0 disables)
	LoginRoute     string        // Route session-fatal failures redirect to (default: /login)

	Backend        string // Credential backend (sqlite, redis, memory) (default: sqlite)
	CredentialFile string // SQLite file (default: ~/.mall/credentials.db)
	Profile        string // Credential profile within the backend (default: default)
	RedisAddr      string // Redis address (default: localhost:6379)
	RedisPassword  string // Optional
	RedisDB        int    // Redis database (default: 0)
	RedisPrefix    string // Key prefix (default: mall:credentials:<profile>:, see RedisKeyPrefix)

	RateLimit httpx.RateLimitConfig // Outbound limit (MALL_RATE_LIMIT_RPS, MALL_RATE_LIMIT_BURST)

	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	cfg := Config{
		Env:            getEnvOrDefault("MALL_ENV", "dev"),
		BaseURL:        os.Getenv("MALL_API_BASE_URL"),
		Timeout:        getEnvDurationOrDefault("MALL_API_TIMEOUT", mallsdk.DefaultTimeout),
		RefreshHorizon: getEnvDurationOrDefault("MALL_REFRESH_HORIZON", jwtx.DefaultRefreshHorizon),
		ExpirySkew:     getEnvDurationOrDefault("MALL_EXPIRY_SKEW", jwtx.DefaultSkew),
		LoginRoute:     getEnvOrDefault("MALL_LOGIN_ROUTE", mallsdk.DefaultLoginRoute),
		Backend:        getEnvOrDefault("MALL_CREDENTIAL_BACKEND", BackendSQLite),
		CredentialFile: getEnvOrDefault("MALL_CREDENTIAL_FILE", defaultCredentialFile()),
		Profile:        getEnvOrDefault("MALL_PROFILE", "default"),
		RedisAddr:      getEnvOrDefault("MALL_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("MALL_REDIS_PASSWORD"),
		RedisDB:        getEnvIntOrDefault("MALL_REDIS_DB", 0),
		RedisPrefix:    os.Getenv("MALL_REDIS_PREFIX"),
		RateLimit:      httpx.ParseRateLimitFromEnv("MALL", httpx.ClientLimit),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:      getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURLFor(cfg.Env)
	}

	return cfg
}

// RedisKeyPrefix returns RedisPrefix, or a prefix derived from Profile when it
// is unset, so a profile chosen after loading still gets its own keys.
func (c Config) RedisKeyPrefix() string {
	if c.RedisPrefix != "" {
		return c.RedisPrefix
	}
	return "mall:credentials:" + c.Profile + ":"
}

// BaseURLFor returns the default gateway URL for env.
func BaseURLFor(env string) string {
	if env == "prod" || env == "production" {
		return ProdBaseURL
	}
	return DevBaseURL
}

func defaultCredentialFile() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "mall-credentials.db"
	}
	return filepath.Join(dir, ".mall", "credentials.db")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
