package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/infinite-gateway/internal/config"
	"github.com/unclebandit/infinite-gateway/internal/logging"
	"github.com/unclebandit/infinite-gateway/internal/service"
)

const shutdownTimeout = 10 * time.Second

// BindPersistentFlags adds --config, --env-file and the config overrides to
// a root command.
func BindPersistentFlags(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.String("config", "", "YAML config file")
	fs.String("env-file", ".env", "dotenv file, ignored when missing")
	config.BindFlags(fs)
}

// Bootstrap loads the configuration for cmd and builds the logger.
func Bootstrap(cmd *cobra.Command, service string) (*config.Config, *zap.Logger, error) {
	fs := cmd.Flags()
	path, _ := fs.GetString("config")
	envFile, _ := fs.GetString("env-file")

	cfg, err := config.Load(path, envFile, fs)
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(logging.Config{Env: cfg.LogEnv, Level: cfg.LogLevel, ServiceName: service})
	return cfg, log, nil
}

// Serve runs the HTTP gateway until ctx is done, and the scheduler next to
// it when withWorker is set.
func (a *App) Serve(ctx context.Context, withWorker bool) error {
	srv := &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Log.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	if withWorker {
		g.Go(func() error {
			a.RunWorker(ctx)
			return nil
		})
	}
	return g.Wait()
}

// RunWorker renews the token once, then runs the scheduled tasks until ctx
// is done and every in-flight run has returned.
func (a *App) RunWorker(ctx context.Context) {
	w := service.NewWorker(a.Log, a.Tasks()...)
	if _, err := w.Trigger(ctx, TaskTokenRenew); err != nil {
		a.Log.Warn("initial token renewal failed, will retry on schedule", zap.Error(err))
	}
	w.Start(ctx)
	<-ctx.Done()
	w.Wait()
	a.Log.Info("worker stopped")
}

// RunOnce runs a single task now.
func (a *App) RunOnce(ctx context.Context, task string) error {
	w := service.NewWorker(a.Log, a.Tasks()...)
	_, err := w.Trigger(ctx, task)
	return err
}
