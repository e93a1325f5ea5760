package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/exposure.report/internal/exposure"
)

// DefaultConfigPath is the path to the canonical window defaults file.
const DefaultConfigPath = "config/window.defaults.json"

// ErrInvalidPolicy is returned for an unrecognised track_policy value.
var ErrInvalidPolicy = errors.New("invalid track_policy")

// WindowConfig holds the construction-time parameters of an exposure window
// and its reporter. Omitted fields fall back to the Get* defaults.
type WindowConfig struct {
	// "position_changed" or "visibility_changed"
	TrackPolicy *string `json:"track_policy,omitempty"`

	// Bound on both the retained buffer and the exported batch.
	MaxUploadAmount *int `json:"max_upload_amount,omitempty"`

	// Minimum unobstructed-area ratio for a sample to count as visible.
	CoverageThreshold *float64 `json:"coverage_threshold,omitempty"`

	ReportInterval *string `json:"report_interval,omitempty"` // duration string like "30s"

	// Record key overrides, keyed by canonical field name. An empty value
	// drops the field from exported records.
	FieldMap map[string]string `json:"field_map,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultWindowConfig returns a config with every field set to its default.
func DefaultWindowConfig() *WindowConfig {
	return &WindowConfig{
		TrackPolicy:       ptrString(exposure.PositionChanged.String()),
		MaxUploadAmount:   ptrInt(exposure.DefaultCapacity),
		CoverageThreshold: ptrFloat64(0.5),
		ReportInterval:    ptrString(exposure.DefaultReportInterval.String()),
	}
}

// LoadWindowConfig loads a WindowConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadWindowConfig(path string) (*WindowConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &WindowConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent
// directories. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *WindowConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/ or cmd/exposure/
	}
	for _, path := range candidates {
		if cfg, err := LoadWindowConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *WindowConfig) Validate() error {
	if c.TrackPolicy != nil {
		if _, err := exposure.ParsePolicy(*c.TrackPolicy); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
		}
	}

	if c.MaxUploadAmount != nil && *c.MaxUploadAmount < 1 {
		return fmt.Errorf("max_upload_amount must be positive, got %d", *c.MaxUploadAmount)
	}

	if c.CoverageThreshold != nil {
		if *c.CoverageThreshold < 0 || *c.CoverageThreshold > 1 {
			return fmt.Errorf("coverage_threshold must be between 0 and 1, got %f", *c.CoverageThreshold)
		}
	}

	if c.ReportInterval != nil && *c.ReportInterval != "" {
		d, err := time.ParseDuration(*c.ReportInterval)
		if err != nil {
			return fmt.Errorf("invalid report_interval '%s': %w", *c.ReportInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("report_interval must be positive, got %s", d)
		}
	}

	return nil
}

// GetTrackPolicy returns the parsed track policy or the default.
func (c *WindowConfig) GetTrackPolicy() exposure.Policy {
	if c.TrackPolicy == nil {
		return exposure.PositionChanged
	}
	p, err := exposure.ParsePolicy(*c.TrackPolicy)
	if err != nil {
		return exposure.PositionChanged // default on parse error
	}
	return p
}

// GetMaxUploadAmount returns the max_upload_amount value or the default.
func (c *WindowConfig) GetMaxUploadAmount() int {
	if c.MaxUploadAmount == nil {
		return exposure.DefaultCapacity
	}
	return *c.MaxUploadAmount
}

// GetCoverageThreshold returns the coverage_threshold value or the default.
func (c *WindowConfig) GetCoverageThreshold() float64 {
	if c.CoverageThreshold == nil {
		return 0.5
	}
	return *c.CoverageThreshold
}

// GetReportInterval parses and returns the ReportInterval as a time.Duration.
func (c *WindowConfig) GetReportInterval() time.Duration {
	if c.ReportInterval == nil || *c.ReportInterval == "" {
		return exposure.DefaultReportInterval
	}
	d, err := time.ParseDuration(*c.ReportInterval)
	if err != nil {
		return exposure.DefaultReportInterval
	}
	return d
}

// GetFieldMap returns a copy of the record key overrides.
func (c *WindowConfig) GetFieldMap() map[string]string {
	out := make(map[string]string, len(c.FieldMap))
	for k, v := range c.FieldMap {
		out[k] = v
	}
	return out
}

// NewWindow builds an exposure window from the configuration.
func (c *WindowConfig) NewWindow() *exposure.Window {
	return exposure.NewWindow(c.GetTrackPolicy(), c.GetMaxUploadAmount(), c.GetCoverageThreshold())
}
