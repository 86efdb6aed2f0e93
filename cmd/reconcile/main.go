package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/eshaffer321/reconcile-backend/internal/cli"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/config"
)

var version = "dev"

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reconcile",
		Short:         "Match ledger entries against bank transactions and review the results",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if cfgFile == "" {
				cfg = config.LoadOrEnv()
				return nil
			}
			loaded, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, then environment)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(serveCmd(), runCmd(), versionCmd())
	return root
}

func serveCmd() *cobra.Command {
	var opts cli.ServeOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Verbose = verbose
			return cli.RunServe(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().IntVar(&opts.Port, "port", 0, "port to listen on (overrides config)")
	return cmd
}

func runCmd() *cobra.Command {
	var opts cli.RunOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import two files, match them and write the exports",
		Example: `  reconcile run --ledger ledger.csv --bank statement.ofx --out results
  reconcile run --ledger l.csv --bank b.csv --bank-mapping bank.yaml --auto-approve high`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Verbose = verbose
			out := cmd.OutOrStdout()

			cli.PrintHeader(out, opts.Ledger, opts.Bank)
			summary, err := cli.RunHeadless(cmd.Context(), cfg, opts, out)
			if err != nil {
				return err
			}
			cli.PrintSummary(out, *summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "ledger file (.csv, .ofx, .qfx)")
	cmd.Flags().StringVar(&opts.Bank, "bank", "", "bank file (.csv, .ofx, .qfx)")
	cmd.Flags().StringVar(&opts.LedgerMapping, "ledger-mapping", "", "YAML column mapping for the ledger CSV")
	cmd.Flags().StringVar(&opts.BankMapping, "bank-mapping", "", "YAML column mapping for the bank CSV")
	cmd.Flags().StringVar(&opts.Out, "out", "reconcile-out", "directory for the export files")
	cmd.Flags().StringVar(&opts.AutoApprove, "auto-approve", "none", "approve proposals at or above a band: high, medium or none")
	cmd.Flags().BoolVar(&opts.NoProgress, "no-progress", false, "do not draw the progress bar")
	_ = cmd.MarkFlagRequired("ledger")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reconcile %s\n", version)
		},
	}
}
