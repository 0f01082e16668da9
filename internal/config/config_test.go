package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "RELEASEGATE_ADDR", "RELEASEGATE_WEBHOOK_SECRET", "RELEASEGATE_WORKFLOW",
		"RELEASEGATE_REDIS_ADDR", "RELEASEGATE_DATABASE_DSN", "RELEASEGATE_WORKERS",
		"RELEASEGATE_STEP_TIMEOUT", "RELEASEGATE_LOG_LEVEL", "RELEASEGATE_LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Workers != 1 || cfg.RedisAddr != "" || cfg.WorkflowPath != "" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "releasegate.yaml")
	data := []byte("addr: \":9000\"\nworkers: 3\nstep_timeout: 10m\nredis_addr: redis:6379\nlog_format: json\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RELEASEGATE_REDIS_ADDR", "other:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Workers != 3 || cfg.StepTimeout != 10*time.Minute || cfg.LogFormat != "json" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.RedisAddr != "other:6379" {
		t.Errorf("env should win over file, got %q", cfg.RedisAddr)
	}
}

func TestPortEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "5050")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":5050" {
		t.Errorf("addr = %q", cfg.Addr)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"RELEASEGATE_WORKERS":      "zero",
		"RELEASEGATE_STEP_TIMEOUT": "soon",
		"RELEASEGATE_LOG_LEVEL":    "loud",
		"RELEASEGATE_LOG_FORMAT":   "xml",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(k, v)
			if _, err := Load(""); err == nil {
				t.Errorf("expected error for %s=%s", k, v)
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for a missing config file")
	}
}

func TestSetupLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())
	cfg := Default()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	cfg.SetupLogging()
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v", logrus.GetLevel())
	}
	if _, ok := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter); !ok {
		t.Error("expected json formatter")
	}
	logrus.SetFormatter(&logrus.TextFormatter{})
}
