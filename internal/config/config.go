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

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Settlement ledger
	LedgerRPCURL        string  `koanf:"ledger_rpc_url"`
	DefaultNetworkID    string  `koanf:"default_network_id"`
	BaseClaimCost       float64 `koanf:"base_claim_cost"`
	ClaimStaleAfterSec  int     `koanf:"claim_stale_after_sec"`
	ClaimRetainTermSec  int     `koanf:"claim_retain_terminal_sec"`

	// Movement recording thresholds
	AccuracyThresholdMeters float64 `koanf:"accuracy_threshold_meters"`
	MinSampleIntervalMs     int64   `koanf:"min_sample_interval_ms"`
	MinMovementMeters       float64 `koanf:"min_movement_meters"`
	SmoothingFactor         float64 `koanf:"smoothing_factor"`

	// Territory eligibility
	MinTerritoryDistanceMeters float64 `koanf:"min_territory_distance_meters"`
	MaxLoopDeviationMeters     float64 `koanf:"max_loop_deviation_meters"`

	// Proximity alerts
	ProximityThresholdMeters float64 `koanf:"proximity_threshold_meters"`

	// Tracing (OpenTelemetry)
	TracingEnabled  bool    `koanf:"tracing_enabled"`
	TracingEndpoint string  `koanf:"tracing_endpoint"`
	TracingProtocol string  `koanf:"tracing_protocol"` // otlp-http or otlp-grpc
	TracingSample   float64 `koanf:"tracing_sample"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL is required")
	ErrMissingLedgerRPCURL  = errors.New("LEDGER_RPC_URL is required")
	ErrInvalidPort          = errors.New("PORT must be a valid integer")
	ErrInvalidSmoothing     = errors.New("SMOOTHING_FACTOR must be in (0, 1]")
	ErrInvalidTracingSample = errors.New("TRACING_SAMPLE must be in [0, 1]")
)

// Default values for non-secret configuration.
const (
	DefaultPort                       = 8080
	DefaultEnv                        = "development"
	DefaultNetworkID                  = "base"
	DefaultBaseClaimCost              = 1.0
	DefaultClaimStaleAfterSec         = 120
	DefaultClaimRetainTermSec         = 300
	DefaultAccuracyThresholdMeters    = 20.0
	DefaultMinSampleIntervalMs        = 1000
	DefaultMinMovementMeters          = 5.0
	DefaultSmoothingFactor            = 0.3
	DefaultMinTerritoryDistanceMeters = 500.0
	DefaultMaxLoopDeviationMeters     = 50.0
	DefaultProximityThresholdMeters   = 100.0
	DefaultTracingProtocol            = "otlp-http"
	DefaultTracingSample              = 0.1
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

	// Try TURF_PORT first, then PORT for platform compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"TURF_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	intervalMs, intervalErr := getEnvIntOrDefault("MIN_SAMPLE_INTERVAL_MS", k.Int("min_sample_interval_ms"), DefaultMinSampleIntervalMs)
	if intervalErr != nil {
		loadErrs = append(loadErrs, intervalErr)
	}

	baseClaimCost, err := getEnvFloatOrDefault("BASE_CLAIM_COST", k.Float64("base_claim_cost"), DefaultBaseClaimCost)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	staleAfterSec, err := getEnvIntOrDefault("CLAIM_STALE_AFTER_SEC", k.Int("claim_stale_after_sec"), DefaultClaimStaleAfterSec)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	retainTermSec, err := getEnvIntOrDefault("CLAIM_RETAIN_TERMINAL_SEC", k.Int("claim_retain_terminal_sec"), DefaultClaimRetainTermSec)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	accuracy, err := getEnvFloatOrDefault("ACCURACY_THRESHOLD_METERS", k.Float64("accuracy_threshold_meters"), DefaultAccuracyThresholdMeters)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	movement, err := getEnvFloatOrDefault("MIN_MOVEMENT_METERS", k.Float64("min_movement_meters"), DefaultMinMovementMeters)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	smoothing, err := getEnvFloatOrDefault("SMOOTHING_FACTOR", k.Float64("smoothing_factor"), DefaultSmoothingFactor)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	minDistance, err := getEnvFloatOrDefault("MIN_TERRITORY_DISTANCE_METERS", k.Float64("min_territory_distance_meters"), DefaultMinTerritoryDistanceMeters)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	maxDeviation, err := getEnvFloatOrDefault("MAX_LOOP_DEVIATION_METERS", k.Float64("max_loop_deviation_meters"), DefaultMaxLoopDeviationMeters)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	proximity, err := getEnvFloatOrDefault("PROXIMITY_THRESHOLD_METERS", k.Float64("proximity_threshold_meters"), DefaultProximityThresholdMeters)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	tracingSample, err := getEnvFloatOrDefault("TRACING_SAMPLE", k.Float64("tracing_sample"), DefaultTracingSample)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                       port,
		Env:                        getEnvOrDefaultMulti([]string{"TURF_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:                getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		LedgerRPCURL:               getEnvOrKoanf("LEDGER_RPC_URL", k, "ledger_rpc_url"),
		DefaultNetworkID:           getEnvOrDefault("DEFAULT_NETWORK_ID", k.String("default_network_id"), DefaultNetworkID),
		BaseClaimCost:              baseClaimCost,
		ClaimStaleAfterSec:         staleAfterSec,
		ClaimRetainTermSec:         retainTermSec,
		AccuracyThresholdMeters:    accuracy,
		MinSampleIntervalMs:        int64(intervalMs),
		MinMovementMeters:          movement,
		SmoothingFactor:            smoothing,
		MinTerritoryDistanceMeters: minDistance,
		MaxLoopDeviationMeters:     maxDeviation,
		ProximityThresholdMeters:   proximity,
		TracingEnabled:             getEnvBool("TRACING_ENABLED", k, "tracing_enabled"),
		TracingEndpoint:            getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
		TracingProtocol:            getEnvOrDefault("TRACING_PROTOCOL", k.String("tracing_protocol"), DefaultTracingProtocol),
		TracingSample:              tracingSample,
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

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
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

// getEnvBool returns the environment variable as bool if set, otherwise the koanf value.
func getEnvBool(envKey string, k *koanf.Koanf, koanfKey string) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return k.Bool(koanfKey)
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

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present and in
// range. Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.LedgerRPCURL == "" {
		errs = append(errs, ErrMissingLedgerRPCURL)
	}
	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		errs = append(errs, ErrInvalidSmoothing)
	}
	if c.TracingSample < 0 || c.TracingSample > 1 {
		errs = append(errs, ErrInvalidTracingSample)
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
		"ledger_rpc_url":                maskURL(c.LedgerRPCURL),
		"default_network_id":            c.DefaultNetworkID,
		"base_claim_cost":               fmt.Sprintf("%g", c.BaseClaimCost),
		"accuracy_threshold_meters":     fmt.Sprintf("%g", c.AccuracyThresholdMeters),
		"min_sample_interval_ms":        fmt.Sprintf("%d", c.MinSampleIntervalMs),
		"min_movement_meters":           fmt.Sprintf("%g", c.MinMovementMeters),
		"smoothing_factor":              fmt.Sprintf("%g", c.SmoothingFactor),
		"min_territory_distance_meters": fmt.Sprintf("%g", c.MinTerritoryDistanceMeters),
		"max_loop_deviation_meters":     fmt.Sprintf("%g", c.MaxLoopDeviationMeters),
		"proximity_threshold_meters":    fmt.Sprintf("%g", c.ProximityThresholdMeters),
		"tracing_enabled":               fmt.Sprintf("%t", c.TracingEnabled),
		"tracing_endpoint":              c.TracingEndpoint,
		"tracing_protocol":              c.TracingProtocol,
		"tracing_sample":                fmt.Sprintf("%g", c.TracingSample),
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

// maskURL masks credentials embedded in a URL, falling back to generic
// masking when no scheme is present.
func maskURL(s string) string {
	if s == "" {
		return "<not set>"
	}
	if strings.Contains(s, "://") {
		return maskDatabaseURL(s)
	}
	return maskSecret(s)
}

// maskDatabaseURL masks the password in a database URL.
// Supports both postgres:// and postgresql:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
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

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
