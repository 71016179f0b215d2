package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download pending episode audio",
	Long: `Download pending episode audio.

Episodes are claimed newest-first. Without --async the batch runs one
episode at a time; with --async the configured worker count fans out
over the batch. Either way the command waits for the batch to finish
and prints the aggregate result.`,
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().Int("limit", 10, "maximum episodes to download")
	downloadCmd.Flags().Int("concurrent", 0, "workers used with --async (default from config)")
	downloadCmd.Flags().Bool("async", false, "download the batch concurrently")
}

func runDownload(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	concurrent, _ := cmd.Flags().GetInt("concurrent")
	async, _ := cmd.Flags().GetBool("async")

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := app.downloadService(cmd.Context())
	if err != nil {
		return err
	}

	workers := 1
	if async {
		workers = concurrent
		if workers <= 0 {
			workers = app.cfg.Pipeline.DownloadWorkers
		}
	}

	result, err := svc.DownloadPending(cmd.Context(), limit, workers)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Downloaded: %d\n", result.Processed)
	fmt.Fprintf(out, "Failed:     %d\n", result.Failed)
	fmt.Fprintf(out, "Skipped:    %d\n", result.Skipped)
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "  - %s\n", msg)
	}
	return nil
}
