package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func baseForTest() Config {
	base := Default()
	base.Capture.OutputDir = "/tmp/micgrab-test"
	return base
}

func TestParseEmptyContentReturnsDefaults(t *testing.T) {
	base := baseForTest()
	cfg, warnings, err := Parse("", base)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, base, cfg)
}

func TestParseJSONCOverridesDefaults(t *testing.T) {
	content := `{
		// capture stream format
		"capture": {
			"sample_rate": 44100,
			"channels": 2,
			"default_max_duration_secs": 120, // trailing comma below too
		},
		"health": { "listen": "127.0.0.1:9411" },
		"metrics": { "listen": "127.0.0.1:9412" },
	}`

	cfg, warnings, err := Parse(content, baseForTest())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, 44100, cfg.Capture.SampleRate)
	require.Equal(t, 2, cfg.Capture.Channels)
	require.Equal(t, uint32(120), cfg.Capture.DefaultMaxDurationSecs)
	require.Equal(t, "127.0.0.1:9411", cfg.Health.Listen)
	require.Equal(t, "127.0.0.1:9412", cfg.Metrics.Listen)
	// Untouched keys keep their defaults.
	require.Equal(t, "/tmp/micgrab-test", cfg.Capture.OutputDir)
}

func TestParseJSONCBlockComment(t *testing.T) {
	content := `{
		/* multi
		   line */
		"capture": { "sample_rate": 22050 }
	}`

	cfg, _, err := Parse(content, baseForTest())
	require.NoError(t, err)
	require.Equal(t, 22050, cfg.Capture.SampleRate)
}

func TestParseJSONCUnterminatedBlockComment(t *testing.T) {
	_, _, err := Parse(`{ /* nope`, baseForTest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated block comment")
}

func TestParseUnknownKeyRejected(t *testing.T) {
	_, _, err := Parse(`{"bitrate": 128}`, baseForTest())
	require.Error(t, err)
}

func TestParseCommentInsideStringPreserved(t *testing.T) {
	cfg, _, err := Parse(`{"capture": {"output_dir": "/data//captures"}}`, baseForTest())
	require.NoError(t, err)
	require.Equal(t, "/data//captures", cfg.Capture.OutputDir)
}

func TestParseInvalidValuesFailValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "zero sample rate", content: `{"capture": {"sample_rate": 0}}`, wantErr: "sample_rate"},
		{name: "bad channels", content: `{"capture": {"channels": 5}}`, wantErr: "channels"},
		{name: "zero duration", content: `{"capture": {"default_max_duration_secs": 0}}`, wantErr: "default_max_duration_secs"},
		{name: "bad health listen", content: `{"health": {"listen": "nope"}}`, wantErr: "health.listen"},
		{name: "bad metrics listen", content: `{"metrics": {"listen": "nope"}}`, wantErr: "metrics.listen"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.content, baseForTest())
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseLowSampleRateWarns(t *testing.T) {
	cfg, warnings, err := Parse(`{"capture": {"sample_rate": 4000}}`, baseForTest())
	require.NoError(t, err)
	require.Equal(t, 4000, cfg.Capture.SampleRate)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "below 8000")
}
