// Package config validates and holds process-wide environment configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/opensync/docrelay/internal/logging"
)

// Config holds validated environment configuration for the relay server.
type Config struct {
	Port string

	TLSCert string
	TLSKey  string

	RequireGitHubAuth  bool
	GitHubClientID     string
	GitHubClientSecret string
	JWTSecret          string

	CORSOrigin string

	GoEnv    string
	LogLevel string

	RedisAddr     string
	RedisPassword string
	RedisEnabled  bool

	RateLimitRooms string
	RateLimitWsIP  string

	DataDir string
}

// ValidateEnv reads and validates environment variables, returning an
// accumulated error describing every problem found.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = getEnvOrDefault("PORT", "4321")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	cfg.TLSCert = os.Getenv("TLS_CERT")
	cfg.TLSKey = os.Getenv("TLS_KEY")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		errs = append(errs, "TLS_CERT and TLS_KEY must both be set, or both left empty")
	}

	cfg.RequireGitHubAuth = os.Getenv("REQUIRE_GITHUB_AUTH") == "true"
	cfg.GitHubClientID = os.Getenv("GITHUB_CLIENT_ID")
	cfg.GitHubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	if cfg.RequireGitHubAuth {
		if cfg.JWTSecret == "" {
			errs = append(errs, "JWT_SECRET is required when REQUIRE_GITHUB_AUTH=true")
		} else if len(cfg.JWTSecret) < 32 {
			errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.JWTSecret)))
		}
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			errs = append(errs, "GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET are required when REQUIRE_GITHUB_AUTH=true")
		}
	} else if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least 32 characters when set (got %d)", len(cfg.JWTSecret)))
	}

	cfg.CORSOrigin = getEnvOrDefault("CORS_ORIGIN", "*")

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.RedisEnabled = os.Getenv("REDIS_ADDR") != ""
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.RateLimitRooms = getEnvOrDefault("RATE_LIMIT_ROOMS", "30-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	cfg.DataDir = getEnvOrDefault("DATA_DIR", "./data/yjs-docs")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}
	return parts[0] != ""
}

func logValidatedConfig(cfg *Config) {
	logging.Info(nil, "environment configuration validated",
		zap.String("port", cfg.Port),
		zap.Bool("require_github_auth", cfg.RequireGitHubAuth),
		zap.String("jwt_secret", redactSecret(cfg.JWTSecret)),
		zap.Bool("redis_enabled", cfg.RedisEnabled),
		zap.String("go_env", cfg.GoEnv),
		zap.String("log_level", cfg.LogLevel),
		zap.String("rate_limit_rooms", cfg.RateLimitRooms),
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
