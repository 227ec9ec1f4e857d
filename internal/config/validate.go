package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Capture.OutputDir) == "" {
		return nil, fmt.Errorf("capture.output_dir must not be empty")
	}
	if cfg.Capture.SampleRate <= 0 {
		return nil, fmt.Errorf("capture.sample_rate must be > 0")
	}
	if cfg.Capture.Channels != 1 && cfg.Capture.Channels != 2 {
		return nil, fmt.Errorf("capture.channels must be 1 or 2")
	}
	if cfg.Capture.DefaultMaxDurationSecs == 0 {
		return nil, fmt.Errorf("capture.default_max_duration_secs must be > 0")
	}

	if cfg.Capture.SampleRate < 8000 {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("capture.sample_rate %d is below 8000 Hz; captures will sound degraded", cfg.Capture.SampleRate),
		})
	}

	if err := validateListen("health.listen", cfg.Health.Listen); err != nil {
		return nil, err
	}
	if err := validateListen("metrics.listen", cfg.Metrics.Listen); err != nil {
		return nil, err
	}

	return warnings, nil
}

// validateListen accepts a blank value (feature disabled) or host:port.
func validateListen(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if !strings.Contains(value, ":") {
		return fmt.Errorf("%s must be a host:port address", key)
	}
	return nil
}
