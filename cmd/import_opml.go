package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var importOPMLCmd = &cobra.Command{
	Use:   "import-opml <path>",
	Short: "Import podcast subscriptions from an OPML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportOPML,
}

func init() {
	rootCmd.AddCommand(importOPMLCmd)
	importOPMLCmd.Flags().Bool("dry-run", false, "parse and report without writing to the database")
	importOPMLCmd.Flags().Bool("update-existing", false, "refresh title/description of feeds already present")
}

func runImportOPML(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	updateExisting, _ := cmd.Flags().GetBool("update-existing")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading OPML file: %w", err)
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := app.podcastService(cmd.Context())
	if err != nil {
		return err
	}

	result, err := svc.ImportOPML(cmd.Context(), data, dryRun, updateExisting)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintln(out, "Dry run: no changes written")
	}
	fmt.Fprintf(out, "Outlines:  %d\n", result.TotalOutlines)
	fmt.Fprintf(out, "Added:     %d\n", result.Added)
	fmt.Fprintf(out, "Updated:   %d\n", result.Updated)
	fmt.Fprintf(out, "Skipped:   %d\n", result.Skipped)
	fmt.Fprintf(out, "Failed:    %d\n", result.Failed)
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "  - %s\n", msg)
	}
	return nil
}
