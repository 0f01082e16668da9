package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"releasegate/internal/api"
	"releasegate/internal/app"
	"releasegate/internal/config"
	"releasegate/internal/queue"
)

var logger = logrus.WithField("package", "server")

func main() {
	var configFile string
	var noWorkers bool

	rootCmd := &cobra.Command{
		Use:   "releasegate-server",
		Short: "Receive push webhooks and run the release gate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			cfg.SetupLogging()
			return serve(cfg, noWorkers)
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")
	rootCmd.Flags().BoolVar(&noWorkers, "no-workers", false, "only accept events; runs are left to agents")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cfg *config.Config, noWorkers bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if noWorkers && cfg.RedisAddr == "" {
		logger.Warn("no workers and no redis queue: accepted events will never run")
	}
	var pool interface{ Wait() }
	if !noWorkers {
		pool = a.Dispatcher().StartPool(ctx, cfg.Workers)
	}
	go reportStatuses(ctx, a.Bus)

	srv := api.NewServer(a.Workflow, a.Queue, a.Deduper, a.Store)
	srv.WebhookSecret = cfg.WebhookSecret
	srv.LedgerPath = cfg.LedgerPath
	srv.Logs = a.Runner.LogStorage
	srv.Metrics = a.Metrics
	if cfg.WebhookSecret == "" {
		logger.Warn("webhook secret is not set, push events are not authenticated")
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("releasegate listening on %s", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	stop()
	if pool != nil {
		pool.Wait()
	}
	return nil
}

// reportStatuses logs the terminal status of every run, whichever process
// executed it.
func reportStatuses(ctx context.Context, bus queue.StatusBus) {
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		logger.WithError(err).Warn("cannot subscribe to run statuses")
		return
	}
	for ev := range ch {
		entry := logger.WithFields(logrus.Fields{"run_id": ev.RunID, "tag": ev.Tag, "commit": ev.Commit})
		if ev.Error != "" {
			entry.WithField("failure", ev.FailureKind).Errorf("release %s: %s", ev.Status, ev.Error)
			continue
		}
		entry.Infof("release %s", ev.Status)
	}
}
