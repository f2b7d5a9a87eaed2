// Package app wires the gateway together for the server, worker and seeder
// commands.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/infinite-gateway/internal/config"
	"github.com/unclebandit/infinite-gateway/internal/db"
	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/loader"
	"github.com/unclebandit/infinite-gateway/internal/metrics"
	"github.com/unclebandit/infinite-gateway/internal/model"
	"github.com/unclebandit/infinite-gateway/internal/queue"
	"github.com/unclebandit/infinite-gateway/internal/remote"
	"github.com/unclebandit/infinite-gateway/internal/repository"
	"github.com/unclebandit/infinite-gateway/internal/service"
)

// Task names understood by the worker and the run-once commands.
const (
	TaskTokenRenew   = "token-renew"
	TaskCustomerSync = "customer-sync"
)

type App struct {
	Config *config.Config
	Log    *zap.Logger

	DB     *sql.DB
	CoreDB *sql.DB
	Queue  queue.Queue

	Customers   *repository.CustomerRepository
	Cardholders *repository.CardholderRepository
	API         *remote.Client
	Tokens      *service.TokenService
	Sync        *service.SyncService

	closers []func() error
}

// New connects the stores, applies migrations and builds the services.
// Close releases everything New opened, also after a partial failure.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log}
	if err := a.open(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg, log := a.Config, a.Log
	var err error

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	a.DB, err = db.Connect(ctx, cfg.DSN(), log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.DB.Close)
	if err := db.Migrate(ctx, a.DB); err != nil {
		return err
	}

	if cfg.CoreDatabaseURL != "" {
		a.CoreDB, err = db.Connect(ctx, cfg.CoreDatabaseURL, log.With(zap.String("db", "core")))
		if err != nil {
			return fmt.Errorf("core database: %w", err)
		}
		a.closers = append(a.closers, a.CoreDB.Close)
	} else {
		log.Info("no core database configured, cardholder lookups disabled")
	}

	if err := a.openQueue(); err != nil {
		return err
	}

	a.Customers = repository.NewCustomerRepository(a.DB)
	a.Cardholders = repository.NewCardholderRepository(a.CoreDB)
	a.API = remote.NewClient(cfg.APIURL, cfg.HTTPTimeout, log)
	a.Tokens = service.NewTokenService(repository.NewTokenRepository(a.DB), a.API,
		cfg.Login, cfg.Password, cfg.TokenRejectTTL, log)
	a.Sync = service.NewSyncService(a.Customers, a.API, a.Tokens, a.Queue, log)
	a.Sync.Topic = cfg.SyncQueue
	return nil
}

// openQueue uses RabbitMQ when AMQP_URL is set and an in-process queue
// otherwise. Either way sync events are logged by a local subscriber.
func (a *App) openQueue() error {
	if a.Config.AMQPURL != "" {
		q, err := queue.DialAMQP(a.Config.AMQPURL, a.Log)
		if err != nil {
			return err
		}
		a.Queue = q
		a.closers = append(a.closers, q.Close)
	} else {
		mem := queue.NewInMemoryQueue(a.Log)
		a.Queue = mem
		a.closers = append(a.closers, func() error { mem.Wait(); return nil })
	}
	return queue.StartSyncEventSubscriber(a.Queue, a.Config.SyncQueue, a.Log)
}

// Close runs the closers in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Tasks returns the scheduled jobs of the worker.
func (a *App) Tasks() []service.Task {
	return []service.Task{
		{Name: TaskTokenRenew, Interval: a.Config.TokenRenewInterval, Run: a.renewToken},
		{Name: TaskCustomerSync, Interval: a.Config.SyncInterval, Run: a.syncCandidates},
	}
}

func (a *App) renewToken(ctx context.Context) error {
	tok, err := a.Tokens.Renew(ctx)
	if err != nil {
		return err
	}
	a.Log.Info("token renewed", zap.Int("expires_in", tok.ExpiresIn))
	return nil
}

// syncCandidates reconciles the candidates file. A missing file means there
// is nothing to do yet.
func (a *App) syncCandidates(ctx context.Context) error {
	candidates, err := loader.LoadJSON(a.Config.CandidatesFile)
	if errors.Is(err, os.ErrNotExist) {
		a.Log.Info("no candidates file, skipping sync", zap.String("file", a.Config.CandidatesFile))
		return nil
	}
	if err != nil {
		return err
	}
	_, err = a.Sync.Run(ctx, candidates)
	if errors.Is(err, appErrors.ErrSyncInProgress) {
		a.Log.Warn("sync already running, skipping")
		return nil
	}
	return err
}

// LoadCandidates reads a candidates file. A .csv file is taken as the bank
// export and enriched through the cardholder lookup; anything else is JSON.
func (a *App) LoadCandidates(ctx context.Context, path string) ([]model.Customer, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return loader.LoadJSON(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	var lookup loader.ClientLookup
	if a.Cardholders != nil {
		lookup = a.Cardholders
	}
	return loader.ParseExport(ctx, f, lookup)
}
