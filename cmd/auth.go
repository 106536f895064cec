package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quinn/rolo/internal/output"
	"github.com/quinn/rolo/internal/syncclient"
	"github.com/quinn/rolo/internal/syncconfig"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage sync authentication",
	GroupID: "sync",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an API key for the sync server",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL := syncconfig.GetServerURL()

		apiKey, _ := cmd.Flags().GetString("key")
		if apiKey == "" {
			fmt.Print("API key: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read api key: %w", err)
			}
			apiKey = strings.TrimSpace(line)
		}
		if apiKey == "" {
			return fmt.Errorf("api key required")
		}

		deviceID, err := syncconfig.GetDeviceID()
		if err != nil {
			return fmt.Errorf("get device id: %w", err)
		}

		// Verify the server answers before persisting anything.
		client := syncclient.New(serverURL, apiKey, deviceID)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := client.HealthCheck(ctx); err != nil {
			output.Warning("server check failed: %v (credentials saved anyway)", err)
		}

		creds := &syncconfig.AuthCredentials{
			APIKey:    apiKey,
			ServerURL: serverURL,
			DeviceID:  deviceID,
		}
		if err := syncconfig.SaveAuth(creds); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}

		output.Success("Logged in to %s", serverURL)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := syncconfig.ClearAuth(); err != nil {
			output.Error("logout: %v", err)
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := syncconfig.LoadAuth()
		if err != nil {
			output.Error("load credentials: %v", err)
			return err
		}
		if creds == nil || creds.APIKey == "" {
			fmt.Println("Not logged in.")
			return nil
		}
		fmt.Printf("Server:  %s\n", creds.ServerURL)
		if creds.Email != "" {
			fmt.Printf("Email:   %s\n", creds.Email)
		}
		fmt.Printf("Device:  %s\n", creds.DeviceID)
		if creds.ExpiresAt != "" {
			fmt.Printf("Expires: %s\n", creds.ExpiresAt)
		}
		return nil
	},
}

func init() {
	authLoginCmd.Flags().String("key", "", "API key (prompted if omitted)")
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
