package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete audio files for fully processed episodes",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().Bool("dry-run", false, "report deletable files without removing them")
	cleanupCmd.Flags().Int("limit", 50, "maximum episodes to clean up")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	limit, _ := cmd.Flags().GetInt("limit")

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := app.downloadService(cmd.Context())
	if err != nil {
		return err
	}

	result, err := svc.CleanupProcessed(cmd.Context(), limit, dryRun)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	fmt.Fprintf(out, "%s: %d\n", verb, result.Processed)
	fmt.Fprintf(out, "Failed:  %d\n", result.Failed)
	fmt.Fprintf(out, "Skipped: %d\n", result.Skipped)
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "  - %s\n", msg)
	}
	return nil
}
