package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Credential store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all configuration for the companion process.
type Config struct {
	Port        string
	APIBaseURL  string
	HTTPTimeout time.Duration
	// Browser origins besides loopback that may use the local API.
	UIOrigins []string

	LogLevel  string
	LogPretty bool

	CredentialStore string
	TokenFile       string
	StorageKey      string
	RedisAddr       string
	DatabaseURL     string

	KafkaBrokers []string
}

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	timeout, err := time.ParseDuration(getEnv("CAMPUSRIDE_HTTP_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("CAMPUSRIDE_HTTP_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8090"),
		APIBaseURL:      strings.TrimRight(getEnv("CAMPUSRIDE_API_URL", "http://localhost:5001/api"), "/"),
		HTTPTimeout:     timeout,
		UIOrigins:       splitList(os.Getenv("CAMPUSRIDE_UI_ORIGINS")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnv("LOG_PRETTY", "false") == "true",
		CredentialStore: strings.ToLower(getEnv("CREDENTIAL_STORE", StoreFile)),
		TokenFile:       getEnv("CAMPUSRIDE_TOKEN_FILE", defaultTokenFile()),
		StorageKey:      getEnv("CAMPUSRIDE_STORAGE_KEY", "token"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		KafkaBrokers:    splitList(os.Getenv("KAFKA_BROKERS")),
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CAMPUSRIDE_API_URL %q is not an absolute URL", c.APIBaseURL)
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("CAMPUSRIDE_HTTP_TIMEOUT must be positive")
	}
	if c.StorageKey == "" {
		return errors.New("CAMPUSRIDE_STORAGE_KEY must not be empty")
	}

	for _, o := range c.UIOrigins {
		if u, err := url.Parse(o); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CAMPUSRIDE_UI_ORIGINS entry %q is not scheme://host", o)
		}
	}

	switch c.CredentialStore {
	case StoreMemory:
	case StoreFile:
		if c.TokenFile == "" {
			return errors.New("CAMPUSRIDE_TOKEN_FILE is required for the file credential store")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis credential store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres credential store")
		}
	default:
		return fmt.Errorf("unknown CREDENTIAL_STORE %q", c.CredentialStore)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".campusride", "token")
}
