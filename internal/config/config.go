// Package config reads the service settings from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full set of runtime settings.
type Config struct {
	Port            string
	Module          string
	Env             string
	LogLevel        string
	DatabaseURL     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBConnMaxIdle   time.Duration
	DBConnMaxLife   time.Duration
	CacheTTL        time.Duration
	AllowedOrigins  []string
	SeedFile        string
	ShutdownTimeout time.Duration
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	return Config{
		Port:            env("PORT", "8080"),
		Module:          env("MODULE_NAME", "ERP-eCommerce"),
		Env:             env("APP_ENV", "production"),
		LogLevel:        env("LOG_LEVEL", "info"),
		DatabaseURL:     databaseURL(),
		DBMaxOpenConns:  intEnv("DB_MAX_OPEN_CONNS", 60),
		DBMaxIdleConns:  intEnv("DB_MAX_IDLE_CONNS", 20),
		DBConnMaxIdle:   durationEnv("DB_CONN_MAX_IDLE", 5*time.Minute),
		DBConnMaxLife:   durationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		CacheTTL:        durationEnv("CACHE_TTL", 45*time.Second),
		AllowedOrigins:  listEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		SeedFile:        env("SEED_FILE", ""),
		ShutdownTimeout: durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Development reports whether human-readable logs were requested.
func (c Config) Development() bool {
	return strings.EqualFold(c.Env, "development")
}

// databaseURL returns DATABASE_URL, or a DSN assembled from DB_* variables
// when DB_HOST is set. Empty means no database is configured.
func databaseURL() string {
	if dsn := env("DATABASE_URL", ""); dsn != "" {
		return dsn
	}
	host := env("DB_HOST", "")
	if host == "" {
		return ""
	}
	port := env("DB_PORT", "5432")
	user := env("DB_USER", "postgres")
	pass := env("DB_PASSWORD", "postgres")
	name := env("DB_NAME", "erp_ecommerce")
	ssl := env("DB_SSLMODE", "disable")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, name, ssl)
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func listEnv(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
