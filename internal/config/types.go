// Package config resolves, parses, validates, and defaults micgrab configuration.
package config

// Config is the fully materialized runtime configuration used by micgrab.
type Config struct {
	Capture CaptureConfig
	Health  HealthConfig
	Metrics MetricsConfig
}

// CaptureConfig controls the capture stream format and artifact placement.
type CaptureConfig struct {
	OutputDir              string
	SampleRate             int
	Channels               int
	DefaultMaxDurationSecs uint32
}

// HealthConfig controls the optional gRPC health endpoint of an owner process.
type HealthConfig struct {
	Listen string
}

// MetricsConfig controls the optional Prometheus listener of an owner process.
type MetricsConfig struct {
	Listen string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
