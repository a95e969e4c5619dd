package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env      string
	Addr     string
	LogLevel string

	// Data API (Supabase PostgREST) access. Used unless a direct DSN is set.
	DataAPIURL *url.URL
	DataAPIKey string

	// Direct database access. When set, the server talks to Postgres
	// directly instead of the data API.
	DBDSN string

	// Push credentials. Either or both may be absent; dispatch degrades to
	// in-app rows only.
	ServiceAccountJSON string
	LegacyServerKey    string

	DispatchConcurrency int
	SendTimeout         time.Duration

	// Enables the debug probe, direct-send and test-first modes and
	// caller-supplied server keys. Off by default.
	AllowInsecureModes bool
}

func Load() (Config, error) {
	return LoadFromEnv(os.Getenv)
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:                getenv("APP_ENV"),
		Addr:               getenv("APP_ADDR"),
		LogLevel:           getenv("APP_LOG_LEVEL"),
		DataAPIKey:         getenv("APP_DATA_API_KEY"),
		DBDSN:              getenv("APP_DB_DSN"),
		ServiceAccountJSON: getenv("APP_FCM_SERVICE_ACCOUNT_JSON"),
		LegacyServerKey:    getenv("APP_FCM_SERVER_KEY"),
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}

	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	dataAPIRaw := getenv("APP_DATA_API_URL")
	if dataAPIRaw != "" {
		parsed, err := url.Parse(dataAPIRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_DATA_API_URL: %w", err)
		}
		if !parsed.IsAbs() || parsed.Host == "" {
			return Config{}, errors.New("APP_DATA_API_URL: must be an absolute URL")
		}
		switch parsed.Scheme {
		case "http", "https":
		default:
			return Config{}, errors.New("APP_DATA_API_URL: scheme must be http or https")
		}
		cfg.DataAPIURL = parsed
	}

	concurrencyRaw := getenv("APP_DISPATCH_CONCURRENCY")
	if concurrencyRaw == "" {
		cfg.DispatchConcurrency = 30
	} else {
		n, err := strconv.Atoi(concurrencyRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_DISPATCH_CONCURRENCY: %w", err)
		}
		if n <= 0 {
			return Config{}, errors.New("APP_DISPATCH_CONCURRENCY: must be > 0")
		}
		cfg.DispatchConcurrency = n
	}

	timeoutRaw := getenv("APP_SEND_TIMEOUT")
	if timeoutRaw == "" {
		cfg.SendTimeout = 15 * time.Second
	} else {
		d, err := time.ParseDuration(timeoutRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_SEND_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Config{}, errors.New("APP_SEND_TIMEOUT: must be > 0")
		}
		cfg.SendTimeout = d
	}

	switch getenv("APP_ALLOW_INSECURE_MODES") {
	case "", "0", "false":
	case "1", "true":
		cfg.AllowInsecureModes = true
	default:
		return Config{}, errors.New("APP_ALLOW_INSECURE_MODES: must be a boolean")
	}

	if cfg.DBDSN == "" {
		if cfg.DataAPIURL == nil {
			return Config{}, errors.New("APP_DATA_API_URL: required unless APP_DB_DSN is set")
		}
		if cfg.DataAPIKey == "" {
			return Config{}, errors.New("APP_DATA_API_KEY: required unless APP_DB_DSN is set")
		}
	}

	if cfg.IsProd() && cfg.AllowInsecureModes {
		return Config{}, errors.New("APP_ALLOW_INSECURE_MODES: must not be enabled in prod")
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }
