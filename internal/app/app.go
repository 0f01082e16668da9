// Package app assembles the gate from configuration. The server, the agent
// and the CLI share it.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"releasegate/internal/config"
	"releasegate/internal/core"
	"releasegate/internal/ledger"
	"releasegate/internal/metrics"
	"releasegate/internal/queue"
	"releasegate/internal/security"
	"releasegate/internal/storage"
	"releasegate/internal/store"
	"releasegate/internal/worker"
)

var logger = logrus.WithField("package", "app")

type App struct {
	Config   *config.Config
	Workflow *core.Workflow
	Runner   *core.Runner
	Ledger   *ledger.Ledger
	Store    store.RunStore
	Queue    queue.EventQueue
	Deduper  queue.Deduper
	Bus      queue.StatusBus
	Metrics  *metrics.Metrics

	closers []io.Closer
}

// New loads the workflow, keys and ledger, and picks redis and postgres
// backends when they are configured, in-process ones otherwise.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}

	wf, err := core.LoadWorkflow(cfg.WorkflowPath)
	if err != nil {
		return nil, err
	}
	a.Workflow = wf

	_, priv, created, err := security.EnsureKeyPair(cfg.KeyDir)
	if err != nil {
		return nil, fmt.Errorf("signing keys: %w", err)
	}
	if created {
		logger.Infof("generated ledger signing keys in %s", cfg.KeyDir)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LedgerPath), 0o755); err != nil {
		return nil, fmt.Errorf("ledger dir: %w", err)
	}
	if a.Ledger, err = ledger.OpenLedger(cfg.LedgerPath); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	if err := a.openBackends(ctx); err != nil {
		a.Close()
		return nil, err
	}

	r := core.NewRunner()
	r.LogStorage = storage.NewLogStorage(cfg.LogDir)
	r.Ledger = a.Ledger
	r.SigningKey = priv
	r.AgentID = cfg.AgentID
	r.WorkspaceRoot = cfg.WorkspaceRoot
	r.StepTimeout = cfg.StepTimeout
	r.Observers = []core.Observer{a.Metrics, store.ProgressObserver{Store: a.Store}}
	a.Runner = r

	logger.WithFields(logrus.Fields{
		"workflow": wf.Name,
		"steps":    len(wf.Steps),
		"redis":    cfg.RedisAddr != "",
		"database": cfg.DatabaseDSN != "",
		"ledger":   filepath.Clean(cfg.LedgerPath),
	}).Info("release gate ready")
	return a, nil
}

func (a *App) openBackends(ctx context.Context) error {
	cfg := a.Config
	if cfg.DatabaseDSN != "" {
		gs, err := store.OpenPostgres(cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		a.Store = gs
		a.closers = append(a.closers, gs)
	} else {
		a.Store = store.NewMemoryStore()
	}

	if cfg.RedisAddr != "" {
		client, err := queue.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client)
		a.useRedis(client)
		return nil
	}
	a.Queue = queue.NewMemoryQueue(64)
	a.Deduper = queue.NewMemoryDeduper(cfg.DedupeTTL)
	a.Bus = queue.NewMemoryBus()
	return nil
}

func (a *App) useRedis(client *redis.Client) {
	a.Queue = queue.NewRedisQueue(client)
	a.Deduper = queue.NewRedisDeduper(client, a.Config.DedupeTTL)
	a.Bus = queue.NewRedisBus(client)
}

// Dispatcher returns a worker bound to the app's queue, store and bus.
func (a *App) Dispatcher() *worker.Dispatcher {
	d := worker.NewDispatcher(a.Queue, a.Workflow, a.Runner, a.Store)
	d.Bus = a.Bus
	d.Metrics = a.Metrics
	return d
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logger.WithError(err).Warn("close failed")
		}
	}
	a.closers = nil
}
