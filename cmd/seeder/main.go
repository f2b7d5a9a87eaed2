//cmd/seeder/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/unclebandit/infinite-gateway/internal/app"
	"github.com/unclebandit/infinite-gateway/internal/db"
	"github.com/unclebandit/infinite-gateway/internal/loader"
	"github.com/unclebandit/infinite-gateway/internal/model"
	"github.com/unclebandit/infinite-gateway/internal/repository"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "seeder",
		Short:         "One-shot candidate loading and reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	app.BindPersistentFlags(cmd)
	cmd.AddCommand(syncCmd(), convertCmd())
	return cmd
}

func syncCmd() *cobra.Command {
	var (
		file   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile a candidates file (JSON or bank export CSV) once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := app.Bootstrap(cmd, "gateway-seeder")
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if file == "" {
				file = cfg.CandidatesFile
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			candidates, err := a.LoadCandidates(ctx, file)
			if err != nil {
				return err
			}
			if dryRun {
				classes, err := a.Sync.Classify(ctx, candidates)
				if err != nil {
					return err
				}
				return printClasses(cmd.OutOrStdout(), classes)
			}

			summary, runErr := a.Sync.Run(ctx, candidates)
			if summary != nil {
				if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "candidates file, defaults to CANDIDATES_FILE")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify only, no remote calls or writes")
	return cmd
}

func convertCmd() *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert the bank card export (CSV) into a JSON candidates file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := app.Bootstrap(cmd, "gateway-seeder")
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if out == "" {
				out = cfg.CandidatesFile
			}

			ctx := cmd.Context()
			var lookup loader.ClientLookup
			if cfg.CoreDatabaseURL != "" {
				core, err := db.Connect(ctx, cfg.CoreDatabaseURL, log)
				if err != nil {
					return err
				}
				defer core.Close()
				lookup = repository.NewCardholderRepository(core)
			}
			return convert(ctx, in, out, lookup)
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "bank export CSV")
	cmd.Flags().StringVarP(&out, "out", "o", "", "JSON output, defaults to CANDIDATES_FILE")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func convert(ctx context.Context, in, out string, lookup loader.ClientLookup) error {
	src, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer src.Close()

	customers, err := loader.ParseExport(ctx, src, lookup)
	if err != nil {
		return err
	}

	dst, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := loader.WriteJSON(dst, customers); err != nil {
		_ = dst.Close()
		return fmt.Errorf("write %s: %w", out, err)
	}
	if err := dst.Close(); err != nil {
		return err
	}
	fmt.Printf("Converted %d customers into %s\n", len(customers), out)
	return nil
}

func printClasses(w io.Writer, classes []model.CandidateClass) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PHONE\tCLASS\tERROR")
	counts := map[model.Classification]int{}
	for _, c := range classes {
		counts[c.Class]++
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Phone, c.Class, c.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nnew=%d changed=%d unchanged=%d invalid=%d\n",
		counts[model.ClassNew], counts[model.ClassChanged], counts[model.ClassUnchanged], counts[model.ClassInvalid])
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("print summary: %w", err)
	}
	return nil
}
