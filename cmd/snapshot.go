package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/DefiantLabs/warden-explorer/config"
	"github.com/DefiantLabs/warden-explorer/core"
	"github.com/DefiantLabs/warden-explorer/pkg/model"
	"github.com/DefiantLabs/warden-explorer/pkg/repository"
	"github.com/spf13/cobra"
)

var snapshotConfig config.SnapshotConfig

func init() {
	config.SetupLogFlags(&snapshotConfig.Log, snapshotCmd)
	config.SetupChainFlags(&snapshotConfig.Chain, snapshotCmd)
	config.SetupSnapshotSpecificFlags(&snapshotConfig, snapshotCmd)
	rootCmd.AddCommand(snapshotCmd)
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Prints the current validator uptime and exits.",
	Long: `Fetches the most recent window of blocks once, computes every validator's uptime over it
	and prints the result as a table or as JSON.`,
	PreRunE: setupSnapshot,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		snapshot, err := takeSnapshot(ctx, snapshotConfig)
		if err != nil {
			config.Log.Fatal("Error computing uptime snapshot", err)
		}

		snapshot.Validators = filterValidators(snapshot.Validators, snapshotConfig.Output.Filter)

		if snapshotConfig.Output.Format == "json" {
			err = writeSnapshotJSON(os.Stdout, snapshot)
		} else {
			err = writeSnapshotTable(os.Stdout, snapshot)
		}
		if err != nil {
			config.Log.Fatal("Error writing snapshot", err)
		}
	},
}

func setupSnapshot(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, viperConf)
	err := snapshotConfig.Validate()
	if err != nil {
		return err
	}

	ignoredKeys := config.CheckSuperfluousSnapshotKeys(viperConf.AllKeys())

	if len(ignoredKeys) > 0 {
		config.Log.Warnf("Warning, the following invalid keys will be ignored: %v", ignoredKeys)
	}

	setupLogger(snapshotConfig.Log.Level, snapshotConfig.Log.Path, snapshotConfig.Log.Pretty)

	return nil
}

func takeSnapshot(ctx context.Context, cfg config.SnapshotConfig) (model.UptimeSnapshot, error) {
	cacheSize := cfg.Uptime.CacheSize
	if cacheSize < cfg.Uptime.WindowSize {
		cacheSize = cfg.Uptime.WindowSize
	}
	source, registry := newChainClients(cfg.Chain, cfg.Uptime.RequestRetryAttempts, cfg.Uptime.RetryMaxWait(), repository.NewMemoryBlocksCache(cacheSize))

	driver, err := core.NewDriver(core.DriverConfig{
		WindowSize:    cfg.Uptime.WindowSize,
		MaxWindowSize: cfg.Uptime.MaxWindowSize,
		AccountPrefix: cfg.Chain.AccountPrefix,
		WarmupBlocks:  int64(cfg.Uptime.WindowSize),
		FetchWorkers:  cfg.Uptime.FetchWorkers,
	}, source, registry)
	if err != nil {
		return model.UptimeSnapshot{}, err
	}
	defer driver.Stop()

	if err := driver.Backfill(ctx); err != nil {
		return model.UptimeSnapshot{}, err
	}
	return driver.Snapshot(), nil
}

func filterValidators(validators []model.ValidatorUptimeRecord, filter string) []model.ValidatorUptimeRecord {
	if filter == "" {
		return validators
	}
	filter = strings.ToLower(filter)

	out := make([]model.ValidatorUptimeRecord, 0, len(validators))
	for _, v := range validators {
		if strings.Contains(strings.ToLower(v.Moniker), filter) || strings.Contains(strings.ToLower(v.OperatorAddress), filter) {
			out = append(out, v)
		}
	}
	return out
}

func writeSnapshotJSON(w io.Writer, snapshot model.UptimeSnapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

func writeSnapshotTable(w io.Writer, snapshot model.UptimeSnapshot) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Height %d, window %d blocks\n\n", snapshot.LastProcessedHeight, snapshot.WindowSize)
	fmt.Fprintln(tw, "MONIKER\tOPERATOR\tSTATUS\tSIGNED\tMISSED\tUPTIME")
	for _, v := range snapshot.Validators {
		status := string(v.BondStatus)
		if v.Jailed {
			status += " (jailed)"
		}
		uptime := fmt.Sprintf("%.2f%%", v.UptimePercent)
		if v.IdentityError != "" {
			uptime = "n/a"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", v.Moniker, v.OperatorAddress, status, v.SignedCount, v.MissedCount, uptime)
	}
	return tw.Flush()
}
