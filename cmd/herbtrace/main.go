// Package main is the herbtrace binary: the traceability API server plus a
// few maintenance commands that work directly against the configured store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayulink/herbtrace/internal/config"
	"github.com/ayulink/herbtrace/internal/ledger"
	"github.com/ayulink/herbtrace/internal/logging"
	"github.com/ayulink/herbtrace/internal/store"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "herbtrace",
		Short: "Herb supply-chain traceability ledger",
		Long: `herbtrace records herb batches from harvest to retail in a tamper-evident
hash-chained ledger and serves the registration, update and verification API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a YAML/JSON/TOML config file")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("store-driver", "", "Store driver: memory, sqlite, postgres, bolt")
	pf.String("store-dsn", "", "Postgres DSN, or file path for sqlite/bolt when --store-path is unset")
	pf.String("store-path", "", "Database file for sqlite/bolt (default herbtrace.db)")

	load := func(cmd *cobra.Command) (config.Config, error) {
		return config.Load(configPath, cmd.Flags())
	}

	root.AddCommand(newServeCmd(load))
	root.AddCommand(newMigrateCmd(load))
	root.AddCommand(newVerifyCmd(load))
	root.AddCommand(newStatsCmd(load))
	root.AddCommand(newVersionCmd())
	return root
}

type configLoader func(cmd *cobra.Command) (config.Config, error)

// env bundles what every command opens from config.
type env struct {
	cfg    config.Config
	logger *zap.Logger
	store  ledger.Store
	ledger *ledger.Ledger
}

func openEnv(cmd *cobra.Command, load configLoader) (*env, error) {
	cfg, err := load(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	lc, err := cfg.Lifecycle()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	l := ledger.New(st,
		ledger.WithLifecycle(lc),
		ledger.WithAllocationRetries(cfg.Ledger.AllocationRetries),
		ledger.WithLogger(logger.Named("ledger")),
	)
	return &env{cfg: cfg, logger: logger, store: st, ledger: l}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("close store", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the herbtrace version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
