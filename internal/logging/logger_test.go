package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_DEV", "1")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FILE", "")
	if cfg := ConfigFromEnv(); !cfg.Dev || cfg.Level != "debug" {
		t.Fatalf("unexpected dev config %+v", cfg)
	}

	t.Setenv("LOG_DEV", "")
	t.Setenv("LOG_LEVEL", "warn")
	if cfg := ConfigFromEnv(); cfg.Dev || cfg.Level != "warn" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Fatalf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestInitWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tokenguard.log")
	lg, err := Init(Config{Level: "info", File: path})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	lg.Info("refresh rejected")
	_ = lg.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read linked log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"refresh rejected"`) {
		t.Fatalf("unexpected log contents %q", data)
	}
}
