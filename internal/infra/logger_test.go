package infra

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		env, level string
		want       zerolog.Level
	}{
		{"production", "", zerolog.InfoLevel},
		{"development", "", zerolog.DebugLevel},
		{"production", "warn", zerolog.WarnLevel},
		{"production", "nonsense", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		l := newLogger(&bytes.Buffer{}, tc.env, tc.level)
		if got := l.GetLevel(); got != tc.want {
			t.Fatalf("level(%q, %q) = %s, want %s", tc.env, tc.level, got, tc.want)
		}
	}
}

func TestNewLoggerWritesServiceField(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "production", "")
	l.Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["service"] != "stager" || line["message"] != "hello" {
		t.Fatalf("log line = %v", line)
	}
}
