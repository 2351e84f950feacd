package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelWarn, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("agent call", "agent", "xiao_mei")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug should be filtered at info level")
	}
	if !strings.Contains(out, "agent=xiao_mei") || !strings.Contains(out, `msg="agent call"`) {
		t.Errorf("unexpected log output %q", out)
	}
}

func TestSetup(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	if _, err := Setup(&buf, "bogus"); err == nil {
		t.Error("Setup should reject unknown levels")
	}
	if _, err := Setup(&buf, "debug"); err != nil {
		t.Fatal(err)
	}
	slog.Debug("via default")
	if !strings.Contains(buf.String(), "via default") {
		t.Error("Setup should install the default logger")
	}
}
