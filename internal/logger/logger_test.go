package logger

import (
	"errors"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
	}{
		{name: "development mode", debug: true},
		{name: "production mode", debug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewLogger(tt.debug)
			if err != nil {
				t.Fatalf("NewLogger() error = %v, want nil", err)
			}
			if log == nil {
				t.Fatal("NewLogger() returned nil logger")
			}

			log.Info("test message")

			// Sync errors are acceptable in test environments.
			_ = log.Sync()
		})
	}
}

func TestNewNopLogger(t *testing.T) {
	log := NewNopLogger()
	if log == nil {
		t.Fatal("NewNopLogger() returned nil")
	}

	log.Debug("debug")
	log.Info("info")
	log.Warn("warn")
	log.Error("error")

	withLogger := log.With(String("key", "value"))
	if withLogger == nil {
		t.Fatal("With() returned nil")
	}
	withLogger.Info("with fields")
}

func TestFieldConstructors(t *testing.T) {
	log := NewNopLogger()

	log.Info("all field types",
		String("s", "v"),
		Int("i", 1),
		Int64("i64", 2),
		Float64("f", 3.5),
		Bool("b", true),
		Duration("d", time.Second),
		Time("t", time.Now()),
		Strings("ss", []string{"a", "b"}),
		Error(errors.New("boom")),
		Any("any", map[string]int{"x": 1}),
	)
}
