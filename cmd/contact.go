package cmd

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/models"
	"github.com/quinn/rolo/internal/output"
	"github.com/quinn/rolo/internal/queue"
	"github.com/quinn/rolo/internal/webhook"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// applyContactFlags copies the contact field flags that were set on the
// command line into the contact.
func applyContactFlags(flags *pflag.FlagSet, c *models.Contact) {
	set := func(flag string, dst *string) {
		if flags.Changed(flag) {
			*dst, _ = flags.GetString(flag)
		}
	}
	set("first", &c.FirstName)
	set("last", &c.LastName)
	set("email", &c.Email)
	set("phone", &c.Phone)
	set("company", &c.Company)
	set("labels", &c.Labels)
}

var contactCmd = &cobra.Command{
	Use:     "contact",
	Aliases: []string{"c"},
	Short:   "Manage contacts",
	GroupID: "core",
}

var contactAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a contact",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		c := &models.Contact{ID: uuid.New().String()}
		applyContactFlags(cmd.Flags(), c)

		if c.FirstName == "" && c.LastName == "" && c.Email == "" {
			return fmt.Errorf("at least one of --first, --last or --email is required")
		}

		if err := database.CreateContact(c); err != nil {
			output.Error("create contact: %v", err)
			return err
		}

		output.Success("Added %s", c.DisplayName())
		fmt.Println(output.Subtle(c.ID))

		enqueueWebhook(database, "contact.created", models.CollectionContacts, c.ID)
		autoSyncAfterMutation()
		return nil
	},
}

var contactUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		c, err := database.GetContact(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if c.DeletedAt != nil {
			return fmt.Errorf("contact %s is deleted", args[0])
		}

		applyContactFlags(cmd.Flags(), c)

		if err := database.UpdateContact(c); err != nil {
			output.Error("update contact: %v", err)
			return err
		}

		output.Success("Updated %s", c.DisplayName())

		enqueueWebhook(database, "contact.updated", models.CollectionContacts, c.ID)
		autoSyncAfterMutation()
		return nil
	},
}

var contactDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a contact",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		if err := database.DeleteContact(args[0]); err != nil {
			output.Error("delete contact: %v", err)
			return err
		}

		output.Success("Deleted %s", args[0])

		enqueueWebhook(database, "contact.deleted", models.CollectionContacts, args[0])
		autoSyncAfterMutation()
		return nil
	},
}

var contactListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		contacts, err := database.ListContacts()
		if err != nil {
			output.Error("list contacts: %v", err)
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return output.JSON(contacts)
		}

		if len(contacts) == 0 {
			fmt.Println("No contacts. Add one with: rolo contact add")
			return nil
		}
		for i := range contacts {
			fmt.Println(output.FormatContactShort(&contacts[i]))
		}
		return nil
	},
}

var contactShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a contact with its notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		c, err := database.GetContact(args[0])
		if err != nil {
			output.Error("%v", err)
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return output.JSON(c)
		}

		fmt.Println(output.FormatContactShort(c))
		if c.Phone != "" {
			fmt.Printf("  phone:   %s\n", c.Phone)
		}
		if c.Company != "" {
			fmt.Printf("  company: %s\n", c.Company)
		}
		if c.Labels != "" {
			fmt.Printf("  labels:  %s\n", c.Labels)
		}
		if c.DeletedAt != nil {
			fmt.Println(output.Subtle("  (deleted)"))
		}

		notes, err := database.ListNotes(c.ID)
		if err != nil {
			output.Error("list notes: %v", err)
			return err
		}
		for i := range notes {
			n := &notes[i]
			fmt.Printf("  note %s %s\n    %s\n",
				output.Subtle(n.ID), output.Subtle(output.FormatTimeAgo(n.CreatedAt)), n.Body)
		}
		return nil
	},
}

// enqueueWebhook records a webhook delivery job if webhooks are configured.
// Failures only affect delivery, never the mutation itself.
func enqueueWebhook(database *db.DB, event, collection, recordID string) {
	dir := getBaseDir()
	if !webhook.IsEnabled(dir) {
		return
	}
	q := queue.New(database, slog.Default())
	if _, err := q.Enqueue(webhook.JobType, webhook.NewPayload(event, collection, recordID)); err != nil {
		slog.Debug("enqueue webhook", "event", event, "err", err)
	}
}

func init() {
	for _, c := range []*cobra.Command{contactAddCmd, contactUpdateCmd} {
		c.Flags().String("first", "", "first name")
		c.Flags().String("last", "", "last name")
		c.Flags().String("email", "", "email address")
		c.Flags().String("phone", "", "phone number")
		c.Flags().String("company", "", "company")
		c.Flags().String("labels", "", "comma-separated labels")
	}
	contactListCmd.Flags().Bool("json", false, "output as JSON")
	contactShowCmd.Flags().Bool("json", false, "output as JSON")

	contactCmd.AddCommand(contactAddCmd, contactUpdateCmd, contactDeleteCmd, contactListCmd, contactShowCmd)
	rootCmd.AddCommand(contactCmd)
}
