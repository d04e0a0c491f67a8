package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flightbase/logbook/internal/netmon"
	"github.com/flightbase/logbook/internal/remote"
	"github.com/flightbase/logbook/internal/syncer"
)

var syncJSONOutput bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending entries to the remote now",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncJSONOutput, "json", false, "Output in JSON format")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	deviceID, err := s.DeviceID(ctx)
	if err != nil {
		return err
	}
	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey, deviceID,
		time.Duration(cfg.Remote.Timeout))
	monitor := netmon.NewPingMonitor(client, time.Minute)

	orch := syncer.New(s, client, monitor, syncer.Options{
		BatchLimit:     cfg.Sync.BatchLimit,
		StrictResponse: cfg.Sync.StrictResponse,
	})

	result := orch.SyncNow(ctx)
	if errors.Is(result.Err, syncer.ErrOffline) {
		return fmt.Errorf("remote unreachable at %s", cfg.Remote.BaseURL)
	}

	if syncJSONOutput {
		return printJSON(cmd.OutOrStdout(), result)
	}

	out := cmd.OutOrStdout()
	if result.Err != nil {
		fmt.Fprintf(out, "Sync failed: %s\n", result.Message)
	} else {
		fmt.Fprintf(out, "Synced %d, rejected %d\n", result.Synced, result.Failed)
	}
	if result.Stats != nil {
		fmt.Fprintf(out, "Pending: %d  Synced: %d  Failed: %d\n",
			result.Stats.Pending, result.Stats.Synced, result.Stats.Failed)
	}
	return result.Err
}
