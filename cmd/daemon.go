package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/features"
	"github.com/quinn/rolo/internal/output"
	"github.com/quinn/rolo/internal/queue"
	"github.com/quinn/rolo/internal/scheduler"
	"github.com/quinn/rolo/internal/syncclient"
	"github.com/quinn/rolo/internal/syncconfig"
	"github.com/quinn/rolo/internal/watcher"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

const probeInterval = 30 * time.Second

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Runs until interrupted. Syncs periodically, after local changes
(debounced), and when the server becomes reachable. Queued offline
actions are drained whenever connectivity returns.

SIGUSR1 triggers a foreground sync check.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getBaseDir()
		if !features.IsEnabled(dir, features.Sync.Name) {
			output.Warning("sync is disabled (enable with: rolo config feature sync on)")
			return nil
		}
		if !syncconfig.IsAuthenticated() {
			output.Error("not logged in (run: rolo auth login)")
			return fmt.Errorf("not authenticated")
		}

		logger := daemonLogger(cmd, dir)
		slog.SetDefault(logger)

		database, err := db.Open(dir)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		engine, err := buildEngine(database, 0)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		q := queue.New(database, logger)
		registerHandlers(q, database)

		cfg := scheduler.Config{
			Enabled:       true,
			AutoSync:      syncconfig.GetAutoSyncEnabled(),
			ForegroundMin: syncconfig.GetForegroundMinInterval(),
			Interval:      syncconfig.GetAutoSyncInterval(),
			Debounce:      syncconfig.GetAutoSyncDebounce(),
			MaxRetries:    scheduler.DefaultConfig().MaxRetries,
		}

		sched := scheduler.New(engine, q, database, cfg, logger)
		sched.Start()
		defer sched.Stop()

		// Reachability probe drives the queue drain and catch-up sync.
		deviceID, err := syncconfig.GetDeviceID()
		if err != nil {
			return err
		}
		client := syncclient.New(syncconfig.GetServerURL(), syncconfig.GetAPIKey(), deviceID)
		prober := scheduler.NewProber(func(ctx context.Context) error {
			_, err := client.HealthCheck(ctx)
			return err
		}, probeInterval, sched.OnReachable, logger)
		prober.Start()
		defer prober.Stop()

		// Watch the database file so writes from other rolo processes
		// schedule a debounced sync.
		if features.IsEnabled(dir, features.SyncChangeWatch.Name) {
			w := watcher.New(dbPath(), sched.TriggerChangeSync, logger)
			if err := w.Start(); err != nil {
				logger.Warn("change watch unavailable", "err", err)
			} else {
				defer w.Stop()
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fg := make(chan os.Signal, 1)
		if sig := foregroundSignal(); sig != nil {
			signal.Notify(fg, sig)
			defer signal.Stop(fg)
		}

		logger.Info("daemon started", "dir", dir, "interval", cfg.Interval, "auto", cfg.AutoSync)

		if syncconfig.GetAutoSyncOnStart() {
			if _, err := sched.TriggerManualSync(ctx); err != nil {
				logger.Warn("startup sync", "err", err)
			}
		}

		for {
			select {
			case <-ctx.Done():
				logger.Info("daemon stopping")
				return nil
			case <-fg:
				sched.OnForeground()
			}
		}
	},
}

// daemonLogger builds the daemon's logger. Logs rotate in
// .rolo/daemon.log unless --log-stderr is given.
func daemonLogger(cmd *cobra.Command, dir string) *slog.Logger {
	var level slog.Level
	lvl, _ := cmd.Flags().GetString("log-level")
	switch strings.ToLower(lvl) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if stderr, _ := cmd.Flags().GetBool("log-stderr"); stderr {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, ".rolo", "daemon.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func init() {
	daemonCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	daemonCmd.Flags().Bool("log-stderr", false, "log to stderr instead of .rolo/daemon.log")
	rootCmd.AddCommand(daemonCmd)
}
