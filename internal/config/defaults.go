package config

// Default returns the canonical runtime configuration used when no file is
// present. OutputDir is left empty here and resolved against XDG state paths
// at load time.
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			SampleRate:             16000,
			Channels:               1,
			DefaultMaxDurationSecs: 30,
		},
		Health:  HealthConfig{},
		Metrics: MetricsConfig{},
	}
}
