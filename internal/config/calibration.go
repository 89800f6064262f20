// Package config loads the calibration service configuration from JSON or
// YAML. Every field is optional; getters fall back to the built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/flowcal/internal/logapi"
	"github.com/banshee-data/flowcal/internal/retry"
	"github.com/banshee-data/flowcal/internal/units"
)

// Defaults for fields left unset.
const (
	DefaultLambda      = 0.95
	DefaultDBPath      = "flowcal.db"
	DefaultPlotPath    = "calibration.png"
	DefaultListen      = ":8080"
	DefaultHTTPTimeout = 30 * time.Second
)

// maxFileSize bounds config files read from disk.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// CalibrationConfig is the root configuration.
type CalibrationConfig struct {
	// Estimator
	Lambda *float64 `json:"lambda,omitempty" yaml:"lambda,omitempty"`

	// Log service query
	LogURL   *string `json:"log_url,omitempty" yaml:"log_url,omitempty"`
	Previous *int    `json:"previous,omitempty" yaml:"previous,omitempty"`
	Next     *int    `json:"next,omitempty" yaml:"next,omitempty"`
	PageSize *int    `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	Topic    *string `json:"topic,omitempty" yaml:"topic,omitempty"`
	LogType  *string `json:"log_type,omitempty" yaml:"log_type,omitempty"`
	Order    *string `json:"order,omitempty" yaml:"order,omitempty"`
	Timeout  *string `json:"http_timeout,omitempty" yaml:"http_timeout,omitempty"` // duration string like "30s"

	// Persistence
	DBPath        *string  `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	RetryAttempts *int     `json:"retry_attempts,omitempty" yaml:"retry_attempts,omitempty"`
	RetryDelay    *string  `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"` // duration string like "5s"
	RetryBackoff  *float64 `json:"retry_backoff,omitempty" yaml:"retry_backoff,omitempty"`

	// Outputs
	PlotPath *string `json:"plot_path,omitempty" yaml:"plot_path,omitempty"`
	Listen   *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	Units    *string `json:"units,omitempty" yaml:"units,omitempty"` // flow units served by the API
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyCalibrationConfig returns a config with every field unset.
func EmptyCalibrationConfig() *CalibrationConfig {
	return &CalibrationConfig{}
}

// LoadCalibrationConfig loads a config from a .json, .yaml or .yml file.
// Fields omitted from the file keep their defaults, so partial configs are
// safe.
func LoadCalibrationConfig(path string) (*CalibrationConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyCalibrationConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *CalibrationConfig) Validate() error {
	if c.Lambda != nil && (*c.Lambda <= 0 || *c.Lambda > 1) {
		return fmt.Errorf("lambda must be in (0, 1], got %v", *c.Lambda)
	}
	if c.PageSize != nil && *c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", *c.PageSize)
	}
	if c.RetryAttempts != nil && *c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", *c.RetryAttempts)
	}
	if c.RetryBackoff != nil && *c.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff must be non-negative, got %v", *c.RetryBackoff)
	}
	for name, v := range map[string]*string{"retry_delay": c.RetryDelay, "http_timeout": c.Timeout} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("units must be one of %s, got %q", units.GetValidUnitsString(), *c.Units)
	}
	if c.Order != nil {
		switch strings.ToLower(*c.Order) {
		case logapi.OrderAsc, logapi.OrderDesc:
		default:
			return fmt.Errorf("order must be %q or %q, got %q", logapi.OrderAsc, logapi.OrderDesc, *c.Order)
		}
	}
	return nil
}

// GetLambda returns the forgetting factor or the default.
func (c *CalibrationConfig) GetLambda() float64 {
	if c.Lambda == nil {
		return DefaultLambda
	}
	return *c.Lambda
}

// GetLogURL returns the log service URL or the default.
func (c *CalibrationConfig) GetLogURL() string {
	if c.LogURL == nil || *c.LogURL == "" {
		return logapi.DefaultBaseURL
	}
	return *c.LogURL
}

// GetLogParams overlays the configured query fields on logapi.DefaultParams.
func (c *CalibrationConfig) GetLogParams() logapi.Params {
	p := logapi.DefaultParams()
	if c.Previous != nil {
		p.Previous = *c.Previous
	}
	if c.Next != nil {
		p.Next = *c.Next
	}
	if c.PageSize != nil {
		p.PageSize = *c.PageSize
	}
	if c.Topic != nil {
		p.Topic = *c.Topic
	}
	if c.LogType != nil {
		p.Type = *c.LogType
	}
	if c.Units != nil && !units.IsValid(*c.Units) {
		return fmt.Errorf("units must be one of %s, got %q", units.GetValidUnitsString(), *c.Units)
	}
	if c.Order != nil {
		p.Order = strings.ToLower(*c.Order)
	}
	return p
}

// GetHTTPTimeout returns the log fetch timeout or the default.
func (c *CalibrationConfig) GetHTTPTimeout() time.Duration {
	return parseDurationOr(c.Timeout, DefaultHTTPTimeout)
}

// GetDBPath returns the SQLite path or the default.
func (c *CalibrationConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetRetryPolicy returns the database connection retry policy.
func (c *CalibrationConfig) GetRetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if c.RetryAttempts != nil {
		p.MaxAttempts = *c.RetryAttempts
	}
	p.Delay = parseDurationOr(c.RetryDelay, p.Delay)
	if c.RetryBackoff != nil {
		p.Backoff = *c.RetryBackoff
	}
	return p
}

// GetPlotPath returns the PNG output path or the default.
func (c *CalibrationConfig) GetPlotPath() string {
	if c.PlotPath == nil {
		return DefaultPlotPath
	}
	return *c.PlotPath
}

// GetListen returns the HTTP listen address or the default.
func (c *CalibrationConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetUnits returns the API flow units or the default (L/min).
func (c *CalibrationConfig) GetUnits() string {
	if c.Units == nil {
		return units.LPM // default
	}
	return *c.Units
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
