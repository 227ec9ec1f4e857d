package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

type jsoncConfig struct {
	Capture *jsoncCapture `json:"capture"`
	Health  *jsoncHealth  `json:"health"`
	Metrics *jsoncMetrics `json:"metrics"`
}

type jsoncCapture struct {
	OutputDir              *string `json:"output_dir"`
	SampleRate             *int    `json:"sample_rate"`
	Channels               *int    `json:"channels"`
	DefaultMaxDurationSecs *uint32 `json:"default_max_duration_secs"`
}

type jsoncHealth struct {
	Listen *string `json:"listen"`
}

type jsoncMetrics struct {
	Listen *string `json:"listen"`
}

// Parse reads configuration content as JSONC layered over base defaults.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, fmt.Errorf("decode config JSON: %w", err)
	}

	cfg := base
	payload.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) {
	if payload.Capture != nil {
		if payload.Capture.OutputDir != nil {
			cfg.Capture.OutputDir = strings.TrimSpace(*payload.Capture.OutputDir)
		}
		if payload.Capture.SampleRate != nil {
			cfg.Capture.SampleRate = *payload.Capture.SampleRate
		}
		if payload.Capture.Channels != nil {
			cfg.Capture.Channels = *payload.Capture.Channels
		}
		if payload.Capture.DefaultMaxDurationSecs != nil {
			cfg.Capture.DefaultMaxDurationSecs = *payload.Capture.DefaultMaxDurationSecs
		}
	}

	if payload.Health != nil && payload.Health.Listen != nil {
		cfg.Health.Listen = strings.TrimSpace(*payload.Health.Listen)
	}

	if payload.Metrics != nil && payload.Metrics.Listen != nil {
		cfg.Metrics.Listen = strings.TrimSpace(*payload.Metrics.Listen)
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' || ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) {
				c := content[j]
				if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
					j++
					continue
				}
				break
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				out.WriteByte(' ')
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}
