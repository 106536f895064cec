package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/features"
	"github.com/quinn/rolo/internal/importer"
	"github.com/quinn/rolo/internal/output"
	"github.com/quinn/rolo/internal/queue"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:     "import <url>",
	Short:   "Import contacts from a JSON endpoint",
	Long:    `Fetches a JSON array of contacts from the given URL and adds the ones not already present. If the fetch fails and the offline queue is enabled, the import is queued and retried later.`,
	GroupID: "core",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]
		queued, _ := cmd.Flags().GetBool("queue")

		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		p := importer.Payload{Source: url, URL: url}

		if queued {
			return enqueueImport(database, p)
		}

		imp := importer.New(database, slog.Default())
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		n, err := imp.Run(ctx, p)
		if err != nil {
			if features.IsEnabledForProcess(features.OfflineQueue.Name) {
				output.Warning("import failed (%v), queueing for retry", err)
				return enqueueImport(database, p)
			}
			output.Error("import: %v", err)
			return err
		}

		output.Success("Imported %d contact(s)", n)
		autoSyncAfterMutation()
		return nil
	},
}

func enqueueImport(database *db.DB, p importer.Payload) error {
	q := queue.New(database, slog.Default())
	id, err := q.Enqueue(importer.JobType, p)
	if err != nil {
		output.Error("enqueue import: %v", err)
		return err
	}
	fmt.Printf("Queued import %s (run: rolo queue process)\n", output.Subtle(id))
	return nil
}

func init() {
	importCmd.Flags().Bool("queue", false, "queue the import instead of running it now")
	rootCmd.AddCommand(importCmd)
}
