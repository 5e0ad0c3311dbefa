package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayulink/herbtrace/internal/store"
)

var errIntegrity = errors.New("hash chain verification failed")

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, load)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := store.Migrate(e.store); err != nil {
				if errors.Is(err, store.ErrNotMigratable) {
					e.logger.Info("store needs no migration", zap.String("driver", e.cfg.Store.Driver))
					return nil
				}
				return err
			}
			e.logger.Info("schema up to date", zap.String("driver", e.cfg.Store.Driver))
			return nil
		},
	}
}

func newVerifyCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <batchId>",
		Short: "Replay a batch's hash chain and print the result",
		Long: `verify reads a batch straight from the store, recomputes every event hash
and prints the integrity report as JSON. It exits non-zero when the chain is
broken.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, load)
			if err != nil {
				return err
			}
			defer e.Close()

			v, err := e.ledger.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := printJSON(cmd, map[string]any{
				"batchId":   v.BatchID,
				"events":    len(v.History),
				"integrity": v.Integrity,
			}); err != nil {
				return err
			}
			if !v.Integrity.Valid {
				return fmt.Errorf("batch %s: %w", v.BatchID, errIntegrity)
			}
			return nil
		},
	}
}

func newStatsCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print dashboard statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, load)
			if err != nil {
				return err
			}
			defer e.Close()
			stats, err := e.ledger.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
