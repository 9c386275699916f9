// Package config loads server configuration from the environment.
//
// A .env file in the working directory is read first (if present) so local
// development does not need exported variables; real environment variables
// always win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything cmd/server needs to build the server.
type Config struct {
	Port         int
	DBPath       string
	JWTSecret    string
	SessionTTL   time.Duration
	CookieSecure bool

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	PokemonTCGURL         string
	PokemonTCGKey         string
	PocketFeedURL         string
	PocketRefreshInterval time.Duration
	CatalogTimeout        time.Duration

	S3 S3Config

	RedisURL string

	LogLevel  string
	LogFormat string
}

// S3Config configures avatar uploads. Uploads are disabled when Bucket is empty.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// Enabled reports whether avatar uploads are configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// GoogleEnabled reports whether Google sign-in routes should be registered.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// Load reads the optional .env file and then the environment.
// The returned config has already been validated.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var errs []error

	port, err := getInt("PORT", 8080)
	errs = append(errs, err)
	sessionTTL, err := getDuration("SESSION_TTL", 24*time.Hour)
	errs = append(errs, err)
	cookieSecure, err := getBool("COOKIE_SECURE", false)
	errs = append(errs, err)
	refresh, err := getDuration("POCKET_REFRESH_INTERVAL", 0)
	errs = append(errs, err)
	catalogTimeout, err := getDuration("CATALOG_TIMEOUT", 15*time.Second)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:         port,
		DBPath:       getEnv("DB_PATH", "data/poketrade.db"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		SessionTTL:   sessionTTL,
		CookieSecure: cookieSecure,

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleCallbackURL:  getEnv("GOOGLE_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/google/callback", port)),

		PokemonTCGURL:         strings.TrimRight(getEnv("POKEMONTCG_API_URL", "https://api.pokemontcg.io/v2"), "/"),
		PokemonTCGKey:         getEnv("POKEMONTCG_API_KEY", ""),
		PocketFeedURL:         getEnv("POCKET_FEED_URL", ""),
		PocketRefreshInterval: refresh,
		CatalogTimeout:        catalogTimeout,

		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "auto"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			PublicBaseURL:   strings.TrimRight(getEnv("S3_PUBLIC_BASE_URL", ""), "/"),
		},

		RedisURL: getEnv("REDIS_URL", ""),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT: %d is not a valid port", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH: must not be empty"))
	}
	// HS256 keys shorter than the hash output weaken the signature.
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET: must be at least 32 characters (openssl rand -hex 32)"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL: must be positive, got %s", c.SessionTTL))
	}
	if c.PocketRefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("POCKET_REFRESH_INTERVAL: must not be negative, got %s", c.PocketRefreshInterval))
	}
	if c.CatalogTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CATALOG_TIMEOUT: must be positive, got %s", c.CatalogTimeout))
	}
	if c.S3.Enabled() && c.S3.PublicBaseURL == "" {
		errs = append(errs, errors.New("S3_PUBLIC_BASE_URL: required when S3_BUCKET is set"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT: %q is not one of text, json", c.LogFormat))
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("LOG_LEVEL: %q is not one of debug, info, warn, error", s)
}

// getEnv returns the variable's value or def when it is not set.
func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	return b, nil
}

// getDuration accepts Go duration strings ("90s", "24h").
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	return d, nil
}
