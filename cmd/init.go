package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quinn/rolo/internal/db"
	"github.com/quinn/rolo/internal/output"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize the local contact database",
	Long:    `Creates the .rolo directory and SQLite database.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := getBaseDir()

		// Check if already initialized
		if _, err := os.Stat(filepath.Join(dir, ".rolo")); err == nil {
			output.Warning(".rolo/ already exists")
			return nil
		}

		database, err := db.Initialize(dir)
		if err != nil {
			output.Error("failed to initialize database: %v", err)
			return err
		}
		defer database.Close()

		fmt.Printf("INITIALIZED %s\n", filepath.Join(dir, ".rolo"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
