package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/features"
	"github.com/quinn/rolo/internal/output"
	rsync "github.com/quinn/rolo/internal/sync"
	"github.com/quinn/rolo/internal/syncclient"
	"github.com/quinn/rolo/internal/syncconfig"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Sync local data with the remote server",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusOnly, _ := cmd.Flags().GetBool("status")

		dir := getBaseDir()
		if !features.IsEnabled(dir, features.Sync.Name) {
			output.Warning("sync is disabled (enable with: rolo config feature sync on)")
			return nil
		}

		database, err := db.Open(dir)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		if statusOnly {
			return runSyncStatus(database)
		}

		if !syncconfig.IsAuthenticated() {
			output.Error("not logged in (run: rolo auth login)")
			return fmt.Errorf("not authenticated")
		}

		engine, err := buildEngine(database, 0)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		round, err := engine.RunRound(ctx)
		if err != nil {
			_ = database.RecordSyncOutcome(false)
			if errors.Is(err, rsync.ErrUnauthorized) {
				output.Error("authentication rejected (run: rolo auth login)")
			} else {
				output.Error("sync: %v", err)
			}
			return err
		}
		_ = database.RecordSyncOutcome(true)

		if !round.PullOK {
			output.Warning("pull failed, pushed local changes only")
		}
		output.Success("Synced (pulled %d, pushed %d)", round.Pulled, round.Pushed)
		return nil
	},
}

func runSyncStatus(database *db.DB) error {
	state, err := database.GetSyncState()
	if err != nil {
		output.Error("get sync state: %v", err)
		return err
	}
	pending, err := database.CountPendingChanges()
	if err != nil {
		output.Error("count pending: %v", err)
		return err
	}

	if !syncconfig.IsAuthenticated() {
		fmt.Println("Auth:      not logged in")
	} else {
		fmt.Printf("Server:    %s\n", syncconfig.GetServerURL())
	}

	if state.LastSyncAt == nil {
		fmt.Println("Last sync: never")
	} else {
		status := "ok"
		if !state.LastSyncOK {
			status = "failed"
		}
		fmt.Printf("Last sync: %s (%s)\n", output.FormatTimeAgo(*state.LastSyncAt), status)
	}

	if state.LastPulledAt == nil {
		fmt.Println("Cursor:    none (first sync pending)")
	} else {
		fmt.Printf("Cursor:    %s\n", time.UnixMilli(*state.LastPulledAt).Format(time.RFC3339))
	}
	fmt.Printf("Pending:   %d local change(s)\n", pending)

	// Quick reachability probe, best effort.
	if syncconfig.IsAuthenticated() {
		deviceID, err := syncconfig.GetDeviceID()
		if err == nil {
			client := syncclient.New(syncconfig.GetServerURL(), syncconfig.GetAPIKey(), deviceID)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := client.HealthCheck(ctx); err != nil {
				fmt.Println("Health:    unreachable")
			} else {
				fmt.Println("Health:    reachable")
			}
		}
	}
	return nil
}

func init() {
	syncCmd.Flags().Bool("status", false, "show sync status without syncing")
	rootCmd.AddCommand(syncCmd)
}
