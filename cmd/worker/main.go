// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unclebandit/infinite-gateway/internal/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Periodic token renewal and customer reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "gateway-worker", func(ctx context.Context, a *app.App) error {
				a.RunWorker(ctx)
				return nil
			})
		},
	}
	app.BindPersistentFlags(cmd)
	cmd.AddCommand(runOnceCmd())
	return cmd
}

func runOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "run-once <task>",
		Short:     "Run one task now and exit",
		ValidArgs: []string{app.TaskTokenRenew, app.TaskCustomerSync},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "gateway-worker", func(ctx context.Context, a *app.App) error {
				return a.RunOnce(ctx, args[0])
			})
		},
	}
}

func withApp(cmd *cobra.Command, service string, fn func(context.Context, *app.App) error) error {
	cfg, log, err := app.Bootstrap(cmd, service)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
