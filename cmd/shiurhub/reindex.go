package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/beisanytime/shiurhub"
	"github.com/beisanytime/shiurhub/kv"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the category indexes from the full records",
	Long: `Reindex walks every metadata record and rewrites the per-category
indexes from scratch. Run it after a crash or partial write left an
index out of step with its records.`,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := kv.Connect(ctx, cfg.KV)
	if err != nil {
		return fmt.Errorf("connect kv: %w", err)
	}
	defer func() { _ = store.Close() }()

	service := shiurhub.NewService(store, nil)
	count, err := service.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}

	slog.Info("reindex complete", "records", count)
	return nil
}
