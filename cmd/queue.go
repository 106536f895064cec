package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/importer"
	"github.com/quinn/rolo/internal/output"
	"github.com/quinn/rolo/internal/queue"
	"github.com/quinn/rolo/internal/webhook"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	Aliases: []string{"q"},
	Short:   "Manage the offline action queue",
	GroupID: "sync",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, database, err := openQueue()
		if err != nil {
			return err
		}
		defer database.Close()

		st, err := q.GetStatus()
		if err != nil {
			output.Error("queue status: %v", err)
			return err
		}
		fmt.Printf("Pending:    %d\n", st.Pending)
		fmt.Printf("Processing: %d\n", st.Processing)
		fmt.Printf("Failed:     %d\n", st.Failed)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List queued jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, database, err := openQueue()
		if err != nil {
			return err
		}
		defer database.Close()

		jobs, err := q.ListJobs()
		if err != nil {
			output.Error("list jobs: %v", err)
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return output.JSON(jobs)
		}

		if len(jobs) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		for _, j := range jobs {
			line := fmt.Sprintf("%s  %-18s %s  %s",
				output.Subtle(j.ID[:8]), j.Type, output.FormatJobStatus(j.Status),
				output.Subtle(output.FormatTimeAgo(j.CreatedAt)))
			if j.Attempts > 0 {
				line += fmt.Sprintf("  attempts=%d/%d", j.Attempts, j.MaxAttempts)
			}
			fmt.Println(line)
			if j.LastError != "" {
				fmt.Printf("          %s\n", output.Subtle(j.LastError))
			}
		}
		return nil
	},
}

var queueProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Drain pending jobs now",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, database, err := openQueue()
		if err != nil {
			return err
		}
		defer database.Close()

		registerHandlers(q, database)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()
		if err := q.Process(ctx); err != nil {
			output.Error("process queue: %v", err)
			return err
		}

		st, err := q.GetStatus()
		if err != nil {
			return err
		}
		output.Success("Queue drained (%d pending, %d failed)", st.Pending, st.Failed)
		return nil
	},
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reset failed jobs for another attempt",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, database, err := openQueue()
		if err != nil {
			return err
		}
		defer database.Close()

		n, err := q.RetryFailed()
		if err != nil {
			output.Error("retry failed jobs: %v", err)
			return err
		}
		output.Success("Requeued %d job(s)", n)
		return nil
	},
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, database, err := openQueue()
		if err != nil {
			return err
		}
		defer database.Close()

		ok, err := q.Cancel(args[0])
		if err != nil {
			output.Error("cancel job: %v", err)
			return err
		}
		if !ok {
			output.Warning("job %s is not cancellable", args[0])
			return nil
		}
		output.Success("Cancelled %s", args[0])
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove completed and cancelled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, database, err := openQueue()
		if err != nil {
			return err
		}
		defer database.Close()

		all, _ := cmd.Flags().GetBool("all")
		var n int64
		if all {
			n, err = q.ClearQueue()
		} else {
			n, err = q.ClearFinished()
		}
		if err != nil {
			output.Error("clear queue: %v", err)
			return err
		}
		output.Success("Removed %d job(s)", n)
		return nil
	},
}

func openQueue() (*queue.Queue, *db.DB, error) {
	database, err := db.Open(getBaseDir())
	if err != nil {
		output.Error("%v", err)
		return nil, nil, err
	}
	return queue.New(database, slog.Default()), database, nil
}

// registerHandlers wires the built-in job types.
func registerHandlers(q *queue.Queue, database *db.DB) {
	dir := getBaseDir()

	imp := importer.New(database, slog.Default())
	q.RegisterHandler(importer.JobType, imp.Handler())

	q.RegisterHandler(webhook.JobType, webhook.Handler(dir))
}

func init() {
	queueListCmd.Flags().Bool("json", false, "output as JSON")
	queueClearCmd.Flags().Bool("all", false, "remove every job regardless of status")
	queueCmd.AddCommand(queueStatusCmd, queueListCmd, queueProcessCmd, queueRetryCmd, queueCancelCmd, queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}
