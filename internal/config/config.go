// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Database. Empty means in-memory stores, for local development only.
	DatabaseURL string `koanf:"database_url"`

	// JWT Authentication. The previous secret stays accepted during rotation.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTSecretPrevious string `koanf:"jwt_secret_previous"`

	// Admin login
	AdminPassword     string `koanf:"admin_password"`
	AdminPasswordFile string `koanf:"admin_password_file"`

	// Audit chain
	AuditGenesisHash string `koanf:"audit_genesis_hash"`

	// Scheduled verification. 0 disables the background job.
	AuditVerifyIntervalMinutes int `koanf:"audit_verify_interval_minutes"`

	// Rate limiting (Redis-backed when RedisAddr is set)
	RedisAddr          string `koanf:"redis_addr"`
	RedisPassword      string `koanf:"redis_password"`
	RateLimitPerMinute int    `koanf:"rate_limit_per_minute"`
	LoginRateLimit     int    `koanf:"login_rate_limit"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret       = errors.New("JWT_SECRET is required")
	ErrMissingAdminPassword   = errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_FILE is required")
	ErrInvalidGenesisHash     = errors.New("AUDIT_GENESIS_HASH must be 64 lowercase hex characters")
	ErrInvalidPort            = errors.New("PORT must be a valid integer")
	ErrInvalidRateLimit       = errors.New("rate limits must be positive integers")
	ErrInvalidVerifyInterval  = errors.New("AUDIT_VERIFY_INTERVAL_MINUTES must not be negative")
	ErrUnreadablePasswordFile = errors.New("ADMIN_PASSWORD_FILE could not be read")
)

// Default values for non-secret configuration.
const (
	DefaultPort               = 8080
	DefaultEnv                = "development"
	DefaultRateLimitPerMinute = 120
	DefaultLoginRateLimit     = 10
	// Scheduled audit verification runs every 15 minutes unless disabled.
	DefaultAuditVerifyIntervalMinutes = 15
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Parse port from env, collecting error if invalid
	// Try WAHL_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"WAHL_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	rateLimit, rateErr := getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", k.Int("rate_limit_per_minute"), DefaultRateLimitPerMinute)
	if rateErr != nil {
		loadErrs = append(loadErrs, rateErr)
	}

	loginLimit, loginErr := getEnvIntOrDefault("LOGIN_RATE_LIMIT", k.Int("login_rate_limit"), DefaultLoginRateLimit)
	if loginErr != nil {
		loadErrs = append(loadErrs, loginErr)
	}

	verifyInterval, verifyErr := getEnvIntOrDefault("AUDIT_VERIFY_INTERVAL_MINUTES",
		k.Int("audit_verify_interval_minutes"), DefaultAuditVerifyIntervalMinutes)
	if verifyErr != nil {
		loadErrs = append(loadErrs, verifyErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                       port,
		Env:                        getEnvOrDefaultMulti([]string{"WAHL_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:                getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		JWTSecret:                  getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTSecretPrevious:          getEnvOrKoanf("JWT_SECRET_PREVIOUS", k, "jwt_secret_previous"),
		AdminPassword:              getEnvOrKoanf("ADMIN_PASSWORD", k, "admin_password"),
		AdminPasswordFile:          getEnvOrKoanf("ADMIN_PASSWORD_FILE", k, "admin_password_file"),
		AuditGenesisHash:           getEnvOrKoanf("AUDIT_GENESIS_HASH", k, "audit_genesis_hash"),
		AuditVerifyIntervalMinutes: verifyInterval,
		RedisAddr:                  getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),
		RedisPassword:              getEnvOrKoanf("REDIS_PASSWORD", k, "redis_password"),
		RateLimitPerMinute:         rateLimit,
		LoginRateLimit:             loginLimit,
	}

	// A password file takes precedence over the inline value. Trailing
	// newlines from `echo > file` are trimmed.
	if cfg.AdminPasswordFile != "" {
		data, err := os.ReadFile(cfg.AdminPasswordFile)
		if err != nil {
			loadErrs = append(loadErrs, fmt.Errorf("%w: %v", ErrUnreadablePasswordFile, err))
		} else {
			cfg.AdminPassword = strings.TrimRight(string(data), "\r\n")
		}
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// isHexHash reports whether s is a 64-character lowercase hex string.
func isHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.AdminPassword == "" && c.AdminPasswordFile == "" {
		errs = append(errs, ErrMissingAdminPassword)
	}
	if c.AuditGenesisHash != "" && !isHexHash(c.AuditGenesisHash) {
		errs = append(errs, ErrInvalidGenesisHash)
	}
	if c.RateLimitPerMinute < 1 || c.LoginRateLimit < 1 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	if c.AuditVerifyIntervalMinutes < 0 {
		errs = append(errs, ErrInvalidVerifyInterval)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                          fmt.Sprintf("%d", c.Port),
		"env":                           c.Env,
		"database_url":                  maskDatabaseURL(c.DatabaseURL),
		"jwt_secret":                    maskSecret(c.JWTSecret),
		"jwt_secret_previous":           maskSecret(c.JWTSecretPrevious),
		"admin_password":                maskSecret(c.AdminPassword),
		"admin_password_file":           c.AdminPasswordFile,
		"audit_genesis_hash":            c.AuditGenesisHash,
		"audit_verify_interval_minutes": fmt.Sprintf("%d", c.AuditVerifyIntervalMinutes),
		"redis_addr":                    c.RedisAddr,
		"redis_password":                maskSecret(c.RedisPassword),
		"rate_limit_per_minute":         fmt.Sprintf("%d", c.RateLimitPerMinute),
		"login_rate_limit":              fmt.Sprintf("%d", c.LoginRateLimit),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
