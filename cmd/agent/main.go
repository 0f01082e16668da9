package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"releasegate/internal/api"
	"releasegate/internal/app"
	"releasegate/internal/config"
)

var logger = logrus.WithField("package", "agent")

func main() {
	var configFile, server string

	rootCmd := &cobra.Command{
		Use:   "releasegate-agent",
		Short: "Run release gates for events queued in redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			cfg.SetupLogging()
			if cfg.RedisAddr == "" {
				return fmt.Errorf("the agent needs a redis queue: set redis_addr or RELEASEGATE_REDIS_ADDR")
			}
			return work(cfg, server)
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&server, "server", "", "server URL to register with (optional)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func work(cfg *config.Config, server string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if server != "" {
		if err := register(ctx, server, cfg.AgentID); err != nil {
			logger.WithError(err).Warn("cannot register with server")
		}
	}

	logger.Infof("agent %s waiting for release events", cfg.AgentID)
	a.Dispatcher().StartPool(ctx, cfg.Workers).Wait()
	logger.Info("agent stopped")
	return nil
}

func register(ctx context.Context, server, id string) error {
	host, _ := os.Hostname()
	body, err := json.Marshal(api.Agent{ID: id, Host: host})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(server, "/")+"/agents/register", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("register: %s", resp.Status)
	}
	logger.Infof("registered with %s", server)
	return nil
}
