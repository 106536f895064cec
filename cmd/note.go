package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/models"
	"github.com/quinn/rolo/internal/output"
	"github.com/spf13/cobra"
)

var noteCmd = &cobra.Command{
	Use:     "note",
	Aliases: []string{"n"},
	Short:   "Manage contact notes",
	GroupID: "core",
}

var noteAddCmd = &cobra.Command{
	Use:   "add <contact-id> <body...>",
	Short: "Add a note to a contact",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		n := &models.Note{
			ID:        uuid.New().String(),
			ContactID: args[0],
			Body:      strings.Join(args[1:], " "),
		}
		if err := database.CreateNote(n); err != nil {
			output.Error("create note: %v", err)
			return err
		}

		output.Success("Noted")
		fmt.Println(output.Subtle(n.ID))

		enqueueWebhook(database, "note.created", models.CollectionNotes, n.ID)
		autoSyncAfterMutation()
		return nil
	},
}

var noteEditCmd = &cobra.Command{
	Use:   "edit <note-id> <body...>",
	Short: "Replace a note's body",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		if err := database.UpdateNote(args[0], strings.Join(args[1:], " ")); err != nil {
			output.Error("update note: %v", err)
			return err
		}

		output.Success("Updated")

		enqueueWebhook(database, "note.updated", models.CollectionNotes, args[0])
		autoSyncAfterMutation()
		return nil
	},
}

var noteDeleteCmd = &cobra.Command{
	Use:     "delete <note-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a note",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		if err := database.DeleteNote(args[0]); err != nil {
			output.Error("delete note: %v", err)
			return err
		}

		output.Success("Deleted %s", args[0])

		enqueueWebhook(database, "note.deleted", models.CollectionNotes, args[0])
		autoSyncAfterMutation()
		return nil
	},
}

func init() {
	noteCmd.AddCommand(noteAddCmd, noteEditCmd, noteDeleteCmd)
	rootCmd.AddCommand(noteCmd)
}
