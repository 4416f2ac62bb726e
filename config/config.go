// Package config reads process settings from the environment, optionally
// preloaded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	JWTSecret       string
	DBMaxConns      int32
	AppEnv          string
	LogLevel        string
	TokenTTL        time.Duration
	ShutdownTimeout time.Duration
}

// Load applies .env (when present) without overriding variables already set,
// then reads the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		DatabaseURL:     getenv("DATABASE_URL"),
		HTTPAddr:        getenv("HTTP_ADDR"),
		JWTSecret:       getenv("JWT_SECRET"),
		AppEnv:          getenv("APP_ENV"),
		LogLevel:        getenv("LOG_LEVEL"),
		DBMaxConns:      10,
		TokenTTL:        24 * time.Hour,
		ShutdownTimeout: 10 * time.Second,
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "dev"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}
	if raw := getenv("DB_MAX_CONNS"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: DB_MAX_CONNS must be a positive integer, got %q", raw)
		}
		cfg.DBMaxConns = int32(n)
	}
	if raw := getenv("TOKEN_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("config: TOKEN_TTL must be a positive duration, got %q", raw)
		}
		cfg.TokenTTL = d
	}
	return cfg, nil
}

// IsProd reports whether the process runs in production mode.
func (c Config) IsProd() bool {
	return c.AppEnv == "prod"
}
