package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	// openApp migrates as part of startup; this command exists so operators
	// can apply schema changes without starting the pipeline.
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
	return nil
}
