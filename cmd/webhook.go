package cmd

import (
	"fmt"

	"github.com/quinn/rolo/internal/config"
	"github.com/quinn/rolo/internal/output"
	"github.com/quinn/rolo/internal/webhook"
	"github.com/spf13/cobra"
)

var webhookCmd = &cobra.Command{
	Use:     "webhook",
	Short:   "Manage webhook settings",
	GroupID: "system",
}

var webhookSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Set the webhook URL (and optional --secret)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getBaseDir()
		secret, _ := cmd.Flags().GetString("secret")

		if err := config.SetWebhook(dir, args[0], secret); err != nil {
			output.Error("save config: %v", err)
			return err
		}
		fmt.Printf("Webhook URL set: %s\n", args[0])
		if secret != "" {
			fmt.Println("HMAC secret: configured")
		}
		return nil
	},
}

var webhookRemoveCmd = &cobra.Command{
	Use:     "remove",
	Aliases: []string{"rm"},
	Short:   "Remove webhook configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetWebhook(getBaseDir(), "", ""); err != nil {
			output.Error("save config: %v", err)
			return err
		}
		fmt.Println("Webhook configuration removed.")
		return nil
	},
}

var webhookStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current webhook configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getBaseDir()
		url := webhook.GetURL(dir)
		if url == "" {
			fmt.Println("Webhook: not configured")
			return nil
		}
		fmt.Printf("Webhook URL: %s\n", url)
		if webhook.GetSecret(dir) != "" {
			fmt.Println("HMAC secret: configured")
		}
		return nil
	},
}

func init() {
	webhookSetCmd.Flags().String("secret", "", "HMAC signing secret")
	webhookCmd.AddCommand(webhookSetCmd, webhookRemoveCmd, webhookStatusCmd)
	rootCmd.AddCommand(webhookCmd)
}
