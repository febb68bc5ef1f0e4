// Package cmd provides the bankex command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/congo-pay/bankex/internal/config"
	"github.com/congo-pay/bankex/internal/ledger"
	"github.com/congo-pay/bankex/internal/logging"
	"github.com/congo-pay/bankex/internal/reader"
	"github.com/congo-pay/bankex/internal/replay"
	"github.com/congo-pay/bankex/internal/report"
)

type options struct {
	cfgFile          string
	verbose          bool
	format           string
	chargebackPolicy string
	maxDecimalPlaces int32
}

// Execute builds the root command and runs it against os.Args.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "bankex <infile>",
		Short: "Replay a transaction CSV and print the final client balances",
		Long: `bankex replays deposits, withdrawals, disputes, resolves and chargebacks
from a CSV file against per-client accounts and reports the resulting
available, held and total funds together with the lock state.

Deposits and withdrawals are applied in ascending transaction id order,
followed by disputes, resolves and chargebacks in file order.

Example:
  bankex transactions.csv > accounts.csv
  bankex -v --format json transactions.csv
  bankex --chargeback-policy held transactions.csv`,
		Version:       "0.1.0",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				logging.NewWithWriter(cmd.ErrOrStderr(), "error", opts.verbose).Error("configuration failed", "error", err)
				return err
			}

			logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, opts.verbose)
			if err := run(cmd.Context(), cfg, args[0], cmd.OutOrStdout(), logger); err != nil {
				logger.Error("replay failed", "error", err)
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.cfgFile, "config", "", "env file to load (default is .env when present)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug and error output on stderr")
	flags.StringVar(&opts.format, "format", "", "report format: csv, json, redis or postgres")
	flags.StringVar(&opts.chargebackPolicy, "chargeback-policy", "", "balance a chargeback draws from: available or held")
	flags.Int32Var(&opts.maxDecimalPlaces, "max-decimal-places", 0, "round amounts to this many decimal places")

	return cmd
}

// load reads the environment, applies flag overrides and validates the result.
func (o options) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load configuration: %w", err)
	}
	if err := o.apply(cmd, &cfg); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// apply overrides configuration values with flags the user set explicitly.
func (o options) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.ReportFormat = o.format
	}
	if flags.Changed("chargeback-policy") {
		policy, err := ledger.ParseChargebackPolicy(o.chargebackPolicy)
		if err != nil {
			return err
		}
		cfg.ChargebackPolicy = policy
	}
	if flags.Changed("max-decimal-places") {
		cfg.MaxDecimalPlaces = o.maxDecimalPlaces
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, path string, out io.Writer, logger *slog.Logger) error {
	runID := uuid.New()
	logger = logger.With("run_id", runID.String())
	logger.Debug("starting replay", "infile", path, "format", cfg.ReportFormat, "chargeback_policy", cfg.ChargebackPolicy.String())

	records, err := reader.ReadFile(path, reader.Options{MaxDecimalPlaces: cfg.MaxDecimalPlaces, Logger: logger})
	if err != nil {
		return err
	}

	batch, err := replay.Classify(records, logger)
	if err != nil {
		return err
	}
	logger.Debug("classified records",
		"movements", len(batch.Movements),
		"disputes", len(batch.Disputes),
		"resolves", len(batch.Resolves),
		"chargebacks", len(batch.Chargebacks),
	)

	engine := ledger.NewInMemory(
		ledger.WithLogger(logger),
		ledger.WithChargebackPolicy(cfg.ChargebackPolicy),
	)
	stats, err := replay.Run(ctx, engine, batch, logger)
	if err != nil {
		return err
	}

	sink, closeSink, err := openSink(ctx, cfg, runID, out)
	if err != nil {
		return err
	}
	defer closeSink()

	accounts := engine.Snapshot(ctx)
	if err := sink.Write(ctx, accounts); err != nil {
		return err
	}

	logger.Info("replay complete",
		"records", batch.Len(),
		"accounts", len(accounts),
		"digest", report.Digest(accounts),
		"stats", stats,
	)
	return nil
}

func openSink(ctx context.Context, cfg config.Config, runID uuid.UUID, out io.Writer) (report.Sink, func(), error) {
	switch cfg.ReportFormat {
	case config.FormatJSON:
		return report.NewJSONSink(out), func() {}, nil
	case config.FormatRedis:
		client, err := report.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return report.NewRedisSink(client, cfg.RedisKeyPrefix), func() { client.Close() }, nil
	case config.FormatPostgres:
		pool, err := report.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return report.NewPostgresSink(pool, runID), pool.Close, nil
	default:
		return report.NewCSVSink(out), func() {}, nil
	}
}
