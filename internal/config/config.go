// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Report ReportConfig
	Sysdig SysdigConfig
	Log    LogConfig
}

// ReportConfig holds the enrichment pipeline configuration.
type ReportConfig struct {
	// SourceFile is the decompressed report CSV consumed by the pipeline.
	SourceFile string

	// LabelColumn is the CSV column holding the JSON label blob.
	// Varies by deployment, e.g. "Container Labels" or "Namespace Labels".
	LabelColumn string

	// LabelKey is the label looked up inside the blob (exact match).
	LabelKey string

	// JoinColumn identifies the image in both the source report and the
	// lookup table.
	JoinColumn string

	// OutputColumn is the appended column name in lookup and merged files.
	OutputColumn string

	// LookupFile is the intermediate two-column CSV written by extract
	// and read by merge.
	LookupFile string

	// MergedFile is the final enriched report.
	MergedFile string

	// MaxRows caps the number of source rows processed (0 = all).
	// Intended for testing against multi-million-row reports.
	MaxRows int64

	// ProgressInterval is the row cadence of progress diagnostics.
	ProgressInterval int64
}

// SysdigConfig holds the reporting API client configuration.
type SysdigConfig struct {
	Tenant       string
	APIToken     string
	PollInterval time.Duration
	PollTimeout  time.Duration
	Window       time.Duration
	Timezone     string
	HTTPTimeout  time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Report: ReportConfig{
			SourceFile:       getEnv("REPORT_SOURCE_FILE", "./v2-report.csv"),
			LabelColumn:      getEnv("REPORT_LABEL_COLUMN", "Container Labels"),
			LabelKey:         getEnv("REPORT_LABEL_KEY", "MAINTAINER"),
			JoinColumn:       getEnv("REPORT_JOIN_COLUMN", "Image ID"),
			OutputColumn:     getEnv("REPORT_OUTPUT_COLUMN", "Maintainer"),
			LookupFile:       getEnv("REPORT_LOOKUP_FILE", "./output.csv"),
			MergedFile:       getEnv("REPORT_MERGED_FILE", "./merged-report.csv"),
			MaxRows:          getEnvInt64("REPORT_MAX_ROWS", 0),
			ProgressInterval: getEnvInt64("REPORT_PROGRESS_INTERVAL", 10000),
		},
		Sysdig: SysdigConfig{
			Tenant:       getEnv("SYSDIG_TENANT", ""),
			APIToken:     getEnv("SYSDIG_API_TOKEN", ""),
			PollInterval: getEnvDuration("SYSDIG_POLL_INTERVAL", 30*time.Second),
			PollTimeout:  getEnvDuration("SYSDIG_POLL_TIMEOUT", 2*time.Hour),
			Window:       getEnvDuration("SYSDIG_WINDOW", 24*time.Hour),
			Timezone:     getEnv("SYSDIG_TIMEZONE", "America/New_York"),
			HTTPTimeout:  getEnvDuration("SYSDIG_HTTP_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Validate checks the configuration for the offline pipeline stages.
// Sysdig credentials are validated separately by ValidateSysdig so that
// extract and merge can run without API access.
func (c *Config) Validate() error {
	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("invalid LOG_LEVEL %q (expected one of %s)",
			c.Log.Level, strings.Join(validLevels, ", "))
	}

	validFormats := []string{"text", "json"}
	if !contains(validFormats, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("invalid LOG_FORMAT %q (expected text or json)", c.Log.Format)
	}

	if c.Report.SourceFile == "" {
		return fmt.Errorf("REPORT_SOURCE_FILE must not be empty")
	}
	if c.Report.LabelColumn == "" {
		return fmt.Errorf("REPORT_LABEL_COLUMN must not be empty")
	}
	if c.Report.LabelKey == "" {
		return fmt.Errorf("REPORT_LABEL_KEY must not be empty")
	}
	if c.Report.JoinColumn == "" {
		return fmt.Errorf("REPORT_JOIN_COLUMN must not be empty")
	}
	if c.Report.OutputColumn == "" {
		return fmt.Errorf("REPORT_OUTPUT_COLUMN must not be empty")
	}
	if c.Report.MaxRows < 0 {
		return fmt.Errorf("REPORT_MAX_ROWS must not be negative")
	}
	if c.Report.ProgressInterval <= 0 {
		return fmt.Errorf("REPORT_PROGRESS_INTERVAL must be positive")
	}

	return nil
}

// ValidateSysdig checks the configuration needed to reach the reporting API.
func (c *Config) ValidateSysdig() error {
	if c.Sysdig.Tenant == "" {
		return fmt.Errorf("SYSDIG_TENANT is required")
	}
	if c.Sysdig.APIToken == "" {
		return fmt.Errorf("SYSDIG_API_TOKEN is required")
	}
	if c.Sysdig.PollInterval <= 0 {
		return fmt.Errorf("SYSDIG_POLL_INTERVAL must be positive")
	}
	if c.Sysdig.PollTimeout <= 0 {
		return fmt.Errorf("SYSDIG_POLL_TIMEOUT must be positive")
	}
	if c.Sysdig.Window <= 0 {
		return fmt.Errorf("SYSDIG_WINDOW must be positive")
	}
	if _, err := time.LoadLocation(c.Sysdig.Timezone); err != nil {
		return fmt.Errorf("invalid SYSDIG_TIMEZONE %q: %w", c.Sysdig.Timezone, err)
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
