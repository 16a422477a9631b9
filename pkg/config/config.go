// Package config resolves the moderation core's external configuration from
// the environment, following the dev/prod split used throughout the bot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/duskward/wardencore/pkg/util"
)

// Env identifies which deployment environment the process is running as.
type Env string

const (
	EnvDev  Env = "dev"
	EnvProd Env = "prod"
)

// Config holds the resolved runtime configuration for the moderation core.
type Config struct {
	Env Env

	// DatabaseURL points at the relational store backing the Case Store.
	// A bare filesystem path or a "sqlite://" URL both resolve to a local
	// modernc.org/sqlite database file.
	DatabaseURL string

	// BotToken is the Discord gateway token. Never logged.
	BotToken string

	// CacheURL is the optional Redis-compatible remote cache endpoint.
	// Empty means the in-memory backend is used exclusively.
	CacheURL string
}

// Load reads TUX_ENV plus the env/prod-specific variables and returns a
// resolved Config. It first attempts to load a local .env file (if present)
// without overriding variables already set in the process environment.
func Load() (*Config, error) {
	loadDotEnvBestEffort()

	env := Env(strings.ToLower(util.EnvString("TUX_ENV", string(EnvDev))))
	if env != EnvDev && env != EnvProd {
		return nil, fmt.Errorf("config: invalid TUX_ENV %q (expected %q or %q)", env, EnvDev, EnvProd)
	}

	dbVar := "DEV_DATABASE_URL"
	tokenVar := "DEV_BOT_TOKEN"
	if env == EnvProd {
		dbVar = "PROD_DATABASE_URL"
		tokenVar = "PROD_BOT_TOKEN"
	}

	dbURL := strings.TrimSpace(os.Getenv(dbVar))
	if dbURL == "" {
		return nil, fmt.Errorf("config: %s is required in %s environment", dbVar, env)
	}

	token, err := util.LoadEnvWithLocalBinFallback(tokenVar)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &Config{
		Env:         env,
		DatabaseURL: dbURL,
		BotToken:    token,
		CacheURL:    util.EnvString("VALKEY_URL", ""),
	}, nil
}

// loadDotEnvBestEffort mirrors the fallback-only .env loading strategy used
// elsewhere in the codebase: it never overrides already-set variables and
// tolerates a missing file.
func loadDotEnvBestEffort() {
	if wd, err := os.Getwd(); err == nil {
		_ = godotenv.Load(filepath.Join(wd, ".env"))
	}
	home := strings.TrimSpace(os.Getenv("HOME"))
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = h
		}
	}
	if home != "" {
		_ = godotenv.Load(filepath.Join(home, ".local", "bin", ".env"))
	}
}

// SQLitePath normalizes DatabaseURL into a filesystem path for modernc.org/sqlite.
// Accepts bare paths and "sqlite://" URLs; any other scheme is rejected since
// the core only ships a SQLite-backed relational store.
func (c *Config) SQLitePath() (string, error) {
	if strings.HasPrefix(c.DatabaseURL, "sqlite://") {
		return strings.TrimPrefix(c.DatabaseURL, "sqlite://"), nil
	}
	if strings.Contains(c.DatabaseURL, "://") {
		return "", fmt.Errorf("config: unsupported database scheme in %q", c.DatabaseURL)
	}
	return c.DatabaseURL, nil
}
