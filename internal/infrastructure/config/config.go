// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	opts, err := cfg.ServiceOptions()
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/reconcile-backend/internal/application/matching"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
	"github.com/eshaffer321/reconcile-backend/internal/domain/matcher"
)

// Config represents the entire application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Matching      MatchingConfig      `yaml:"matching"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// MatchingConfig holds matcher and review settings. Unset fields keep the
// matcher defaults.
type MatchingConfig struct {
	VendorThreshold  *float64 `yaml:"vendor_threshold"`
	AmountTolerance  *float64 `yaml:"amount_tolerance"`
	DateWindowDays   *int     `yaml:"date_window_days"`
	RequireReference *bool    `yaml:"require_reference"`
	MinConfidence    *float64 `yaml:"min_confidence"`
	TopK             *int     `yaml:"top_k"`
	ReserveProposed  *bool    `yaml:"reserve_proposed"`
	RecentBuffer     int      `yaml:"recent_buffer"`

	WeightsPreset string           `yaml:"weights_preset"`
	Weights       *matcher.Weights `yaml:"weights"`
	BandsPreset   string           `yaml:"bands_preset"`
	Bands         *matcher.Bands   `yaml:"bands"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" (Maven-style) or "json"
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECONCILE_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:           os.Getenv("RECONCILE_HOST"),
			Port:           getEnvInt("RECONCILE_PORT", 0),
			AllowedOrigins: splitList(os.Getenv("RECONCILE_ALLOWED_ORIGINS")),
		},
		Storage: StorageConfig{
			DatabasePath: os.Getenv("RECONCILE_DB_PATH"),
		},
		Matching: MatchingConfig{
			VendorThreshold:  envFloat("MATCH_VENDOR_THRESHOLD"),
			AmountTolerance:  envFloat("MATCH_AMOUNT_TOLERANCE"),
			DateWindowDays:   envInt("MATCH_DATE_WINDOW_DAYS"),
			RequireReference: envBool("MATCH_REQUIRE_REFERENCE"),
			MinConfidence:    envFloat("MATCH_MIN_CONFIDENCE"),
			TopK:             envInt("MATCH_TOP_K"),
			ReserveProposed:  envBool("MATCH_RESERVE_PROPOSED"),
			WeightsPreset:    os.Getenv("MATCH_WEIGHTS_PRESET"),
			BandsPreset:      os.Getenv("MATCH_BANDS_PRESET"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  os.Getenv("LOG_LEVEL"),
				Format: os.Getenv("LOG_FORMAT"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "reconcile.db"
	}
	if c.Matching.RecentBuffer <= 0 {
		c.Matching.RecentBuffer = matching.DefaultRecentSize
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// MatcherConfig overlays the configured values on the matcher defaults and
// validates the result. Explicit weights or bands win over a preset.
func (m MatchingConfig) MatcherConfig() (matcher.Config, error) {
	cfg := matcher.DefaultConfig()

	if m.VendorThreshold != nil {
		cfg.VendorThreshold = *m.VendorThreshold
	}
	if m.AmountTolerance != nil {
		cfg.AmountTolerance = decimal.NewFromFloat(*m.AmountTolerance)
	}
	if m.DateWindowDays != nil {
		cfg.DateWindowDays = *m.DateWindowDays
	}
	if m.RequireReference != nil {
		cfg.RequireReference = *m.RequireReference
	}
	if m.MinConfidence != nil {
		cfg.MinConfidence = *m.MinConfidence
	}
	if m.TopK != nil {
		cfg.TopK = *m.TopK
	}

	weights, err := matcher.WeightsPreset(m.WeightsPreset)
	if err != nil {
		return cfg, err
	}
	cfg.Weights = weights
	if m.Weights != nil {
		cfg.Weights = *m.Weights
	}

	bands, err := matcher.BandsPreset(m.BandsPreset)
	if err != nil {
		return cfg, err
	}
	cfg.Bands = bands
	if m.Bands != nil {
		cfg.Bands = *m.Bands
	}

	return cfg, cfg.Validate()
}

// ServiceOptions builds the reconcile service options.
func (c *Config) ServiceOptions() (service.Options, error) {
	mc, err := c.Matching.MatcherConfig()
	if err != nil {
		return service.Options{}, err
	}
	opts := service.DefaultServiceOptions()
	opts.Matching = mc
	opts.RecentSize = c.Matching.RecentBuffer
	if c.Matching.ReserveProposed != nil {
		opts.ReserveProposed = *c.Matching.ReserveProposed
	}
	return opts, nil
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if v := envInt(key); v != nil {
		return *v
	}
	return fallback
}

func envInt(key string) *int {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return nil
	}
	return &n
}

func envFloat(key string) *float64 {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return nil
	}
	return &f
}

func envBool(key string) *bool {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil
	}
	return &b
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
