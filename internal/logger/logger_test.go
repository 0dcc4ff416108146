package logger

import (
	"errors"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "defaults",
			cfg:  Config{},
		},
		{
			name: "development debug",
			cfg:  Config{Level: "debug", Development: true},
		},
		{
			name: "explicit output path",
			cfg:  Config{Level: "warn", OutputPaths: []string{"stdout"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() error = %v, want nil", err)
			}
			if log == nil {
				t.Fatal("New() returned nil logger")
			}

			log.Info("test message")

			// Sync errors are acceptable in test environments.
			_ = log.Sync()
		})
	}
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	if log == nil {
		t.Fatal("NewNop() returned nil")
	}

	// Nop logger should not panic on any operation.
	log.Debug("debug")
	log.Info("info")
	log.Warn("warn")
	log.Error("error")

	withLogger := log.With(String("key", "value"))
	if withLogger == nil {
		t.Fatal("With() returned nil")
	}
	_ = log.Sync()
}

func TestWithAttachesFields(t *testing.T) {
	log, err := New(Config{Level: "debug"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer log.Sync()

	child := log.With(
		String("component", "worker"),
		Int("attempt", 2),
		Bool("hit", true),
		Duration("elapsed", 5*time.Millisecond),
		Error(errors.New("boom")),
		Strings("paths", []string{"/", "/index.html"}),
	)
	if child == nil {
		t.Fatal("With() returned nil")
	}
	child.Debug("fields attached")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"", "info"},
		{"warn", "warn"},
		{"warning", "warn"},
		{"error", "error"},
		{"nonsense", "info"},
	}

	for _, tt := range tests {
		t.Run("level "+tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.want {
				t.Errorf("parseLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
