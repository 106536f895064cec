package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/quinn/rolo/internal/changelog"
	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/features"
	rsync "github.com/quinn/rolo/internal/sync"
	"github.com/quinn/rolo/internal/syncclient"
	"github.com/quinn/rolo/internal/syncconfig"
)

// autoSyncAfterMutation runs a quick sync round after a mutating command
// completes. Runs synchronously but with a short timeout. Errors are
// logged, not returned.
func autoSyncAfterMutation() {
	if !syncconfig.GetAutoSyncEnabled() {
		return
	}
	if !syncconfig.IsAuthenticated() {
		return
	}
	dir := getBaseDir()
	if dir == "" || !features.IsEnabled(dir, features.Sync.Name) {
		return
	}

	database, err := db.Open(dir)
	if err != nil {
		slog.Debug("autosync: open db", "err", err)
		return
	}
	defer database.Close()

	// Short HTTP timeout so a slow server cannot stall the CLI.
	engine, err := buildEngine(database, 5*time.Second)
	if err != nil {
		slog.Debug("autosync: build engine", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	round, err := engine.RunRound(ctx)
	if err != nil {
		_ = database.RecordSyncOutcome(false)
		slog.Debug("autosync: round", "err", err)
		return
	}
	_ = database.RecordSyncOutcome(true)
	slog.Debug("autosync: round done", "pulled", round.Pulled, "pushed", round.Pushed)
}

// buildEngine wires the sync engine from stored credentials and config.
// A zero httpTimeout keeps the client default.
func buildEngine(database *db.DB, httpTimeout time.Duration) (*rsync.Engine, error) {
	deviceID, err := syncconfig.GetDeviceID()
	if err != nil {
		return nil, err
	}
	client := syncclient.New(syncconfig.GetServerURL(), syncconfig.GetAPIKey(), deviceID)
	if httpTimeout > 0 {
		client.HTTP.Timeout = httpTimeout
	}

	log := changelog.New(database, slog.Default())
	return rsync.NewEngine(client, log, slog.Default()), nil
}
