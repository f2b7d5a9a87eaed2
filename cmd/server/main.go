// cmd/server/main.go
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
	var withWorker bool

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "HTTP gateway in front of the customer API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := app.Bootstrap(cmd, "gateway-server")
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
			return a.Serve(ctx, withWorker)
		},
	}
	app.BindPersistentFlags(cmd)
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run the token renewal and sync schedule in-process")
	return cmd
}
