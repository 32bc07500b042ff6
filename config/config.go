// Package config has the configuration file for the app
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes

	DBDriver string
	DBDSN    string

	PharmacySourceURL string
	DirectionsAPIURL  string
	DirectionsAPIKey  string
	FetchTimeout      time.Duration
	FetchRetries      int
	RouteTimeout      time.Duration

	SessionIdleTimeout time.Duration
	ClusterGridPx      int

	JWTSecret    string
	KafkaBrokers []string
	KafkaTopic   string
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	env, err := ParseEnvironment(getEnvWithDefault("ENV", "dev"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}

	port := getEnvWithDefault("PORT", "8000")
	cfg := &Config{
		Port:              port,
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               env,
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),         // 4 weeks default
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB default
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 1048576),    // 1MB default
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB default

		DBDriver: strings.ToLower(getEnvWithDefault("DB_DRIVER", "sqlite")),
		DBDSN:    getEnvWithDefault("DB_DSN", "file:pharmacies.db"),

		PharmacySourceURL: os.Getenv("PHARMACY_SOURCE_URL"),
		DirectionsAPIURL:  getEnvWithDefault("DIRECTIONS_API_URL", "https://maps.googleapis.com/maps/api/directions/json"),
		DirectionsAPIKey:  os.Getenv("DIRECTIONS_API_KEY"),
		FetchTimeout:      getDurationEnvWithDefault("FETCH_TIMEOUT", 10*time.Second),
		FetchRetries:      getIntEnvWithDefault("FETCH_RETRIES", 2),
		RouteTimeout:      getDurationEnvWithDefault("ROUTE_TIMEOUT", 10*time.Second),

		SessionIdleTimeout: getDurationEnvWithDefault("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		ClusterGridPx:      getIntEnvWithDefault("CLUSTER_GRID_PX", 60),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnvWithDefault("KAFKA_TOPIC", "pharmacy.selected"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ListenAddr is the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, c.Port)
}

// validateConfig validates all configuration values
func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	if err := validateDBDriver(cfg.DBDriver); err != nil {
		return fmt.Errorf("invalid DB_DRIVER: %w", err)
	}

	// Empty means the local directory store.
	if cfg.PharmacySourceURL != "" {
		if err := validateURL(cfg.PharmacySourceURL); err != nil {
			return fmt.Errorf("invalid PHARMACY_SOURCE_URL: %w", err)
		}
	}

	if err := validateURL(cfg.DirectionsAPIURL); err != nil {
		return fmt.Errorf("invalid DIRECTIONS_API_URL: %w", err)
	}

	if err := validateTimeout(cfg.FetchTimeout); err != nil {
		return fmt.Errorf("invalid FETCH_TIMEOUT: %w", err)
	}

	if err := validateTimeout(cfg.RouteTimeout); err != nil {
		return fmt.Errorf("invalid ROUTE_TIMEOUT: %w", err)
	}

	if cfg.FetchRetries < 0 || cfg.FetchRetries > 10 {
		return fmt.Errorf("invalid FETCH_RETRIES: must be between 0 and 10, got: %d", cfg.FetchRetries)
	}

	if cfg.SessionIdleTimeout < time.Minute {
		return fmt.Errorf("invalid SESSION_IDLE_TIMEOUT: must be at least 1m, got: %s", cfg.SessionIdleTimeout)
	}

	if cfg.ClusterGridPx < 10 || cfg.ClusterGridPx > 512 {
		return fmt.Errorf("invalid CLUSTER_GRID_PX: must be between 10 and 512, got: %d", cfg.ClusterGridPx)
	}

	if cfg.Env == EnvProduction && cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("invalid JWT_SECRET: must be at least 32 bytes in prod")
	}

	return nil
}

// validatePort validates the PORT environment variable
func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Check for privileged ports
	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

// validateAddress validates the ADDRESS environment variable
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, consider using private network ranges for security", address)
	}

	return nil
}

// validateLogLevel validates the LOG_LEVEL environment variable
func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(logLevel)) {
		return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
	}

	return nil
}

// validateSizeLimit validates size limit configuration values
func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 { // 100MB
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

// validateLogRetentionWeeks validates the LOG_RETENTION_WEEKS environment variable
func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 {
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

// validateMaxLogFileSize validates the MAX_LOG_FILE_SIZE environment variable
func validateMaxLogFileSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE must be positive, got: %d", size)
	}

	// Minimum 1MB, maximum 1GB
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

func validateDBDriver(driver string) error {
	if driver != "sqlite" && driver != "postgres" {
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got: %s", driver)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	return nil
}

func validateTimeout(d time.Duration) error {
	if d <= 0 || d > 2*time.Minute {
		return fmt.Errorf("must be between 0 and 2m, got: %s", d)
	}
	return nil
}

// getEnvWithDefault gets an environment variable with a default value
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnvWithDefault gets an environment variable as int with a default value
func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64EnvWithDefault gets an environment variable as int64 with a default value
func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnvWithDefault parses values like "10s" or "30m".
func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"DB_DRIVER",
		"DB_DSN",
		"PHARMACY_SOURCE_URL",
		"DIRECTIONS_API_URL",
		"DIRECTIONS_API_KEY",
		"FETCH_TIMEOUT",
		"FETCH_RETRIES",
		"ROUTE_TIMEOUT",
		"SESSION_IDLE_TIMEOUT",
		"CLUSTER_GRID_PX",
		"JWT_SECRET",
		"KAFKA_BROKERS",
		"KAFKA_TOPIC",
	}
}
