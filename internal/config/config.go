// Package config loads service settings from an optional YAML file and the
// environment. Environment variables take precedence over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string        `yaml:"addr"`
	WebhookSecret string        `yaml:"webhook_secret"`
	WorkflowPath  string        `yaml:"workflow"` // "" = built-in release workflow
	LogDir        string        `yaml:"log_dir"`
	LedgerPath    string        `yaml:"ledger"`
	KeyDir        string        `yaml:"key_dir"`
	WorkspaceRoot string        `yaml:"workspace_root"`
	RedisAddr     string        `yaml:"redis_addr"`   // "" = in-process queue
	DatabaseDSN   string        `yaml:"database_dsn"` // "" = in-memory run store
	Workers       int           `yaml:"workers"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
	DedupeTTL     time.Duration `yaml:"dedupe_ttl"`
	AgentID       string        `yaml:"agent_id"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"` // text or json
}

func Default() *Config {
	return &Config{
		Addr:       ":8080",
		LogDir:     "logs",
		LedgerPath: "ledger.jsonl",
		KeyDir:     "keys",
		Workers:    1,
		DedupeTTL:  24 * time.Hour,
		AgentID:    "releasegate",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load starts from Default, applies the file at path (if path is not empty)
// and then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	c.Addr = getEnvOrDefault("RELEASEGATE_ADDR", c.Addr)
	c.WebhookSecret = getEnvOrDefault("RELEASEGATE_WEBHOOK_SECRET", c.WebhookSecret)
	c.WorkflowPath = getEnvOrDefault("RELEASEGATE_WORKFLOW", c.WorkflowPath)
	c.LogDir = getEnvOrDefault("RELEASEGATE_LOG_DIR", c.LogDir)
	c.LedgerPath = getEnvOrDefault("RELEASEGATE_LEDGER", c.LedgerPath)
	c.KeyDir = getEnvOrDefault("RELEASEGATE_KEY_DIR", c.KeyDir)
	c.WorkspaceRoot = getEnvOrDefault("RELEASEGATE_WORKSPACE_ROOT", c.WorkspaceRoot)
	c.RedisAddr = getEnvOrDefault("RELEASEGATE_REDIS_ADDR", c.RedisAddr)
	c.DatabaseDSN = getEnvOrDefault("RELEASEGATE_DATABASE_DSN", c.DatabaseDSN)
	c.AgentID = getEnvOrDefault("RELEASEGATE_AGENT_ID", c.AgentID)
	c.LogLevel = getEnvOrDefault("RELEASEGATE_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("RELEASEGATE_LOG_FORMAT", c.LogFormat)

	if v := os.Getenv("RELEASEGATE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RELEASEGATE_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("RELEASEGATE_STEP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("RELEASEGATE_STEP_TIMEOUT: %w", err)
		}
		c.StepTimeout = d
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("step_timeout must not be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// SetupLogging applies level and format to the standard logrus logger.
func (c *Config) SetupLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}
