package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statsJSONOutput bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sync statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSONOutput, "json", false, "Output in JSON format")
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if statsJSONOutput {
		return printJSON(out, stats)
	}

	fmt.Fprintf(out, "Entries: %d\n", stats.Total)
	fmt.Fprintf(out, "  pending: %d\n", stats.Pending)
	fmt.Fprintf(out, "  synced:  %d\n", stats.Synced)
	fmt.Fprintf(out, "  failed:  %d\n", stats.Failed)
	if stats.LastSyncedAt != nil {
		fmt.Fprintf(out, "Last synced: %s\n", stats.LastSyncedAt.Format(time.RFC3339))
	}
	return nil
}
