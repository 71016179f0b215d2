package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/podscribe/podscribe/internal/services/podcasts"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync feeds and discover new episodes",
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().String("podcast-id", "", "sync a single podcast instead of all")
}

func runSync(cmd *cobra.Command, args []string) error {
	podcastID, _ := cmd.Flags().GetString("podcast-id")

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := app.podcastService(cmd.Context())
	if err != nil {
		return err
	}

	var result *podcasts.SyncResult
	if podcastID != "" {
		result, err = svc.SyncByID(cmd.Context(), podcastID)
	} else {
		result, err = svc.SyncAll(cmd.Context())
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Synced:        %d\n", result.PodcastsSynced)
	fmt.Fprintf(out, "Failed:        %d\n", result.PodcastsFailed)
	fmt.Fprintf(out, "New episodes:  %d\n", result.NewEpisodes)
	fmt.Fprintf(out, "Already known: %d\n", result.ExistingSkipped)
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "  - %s\n", msg)
	}
	if result.PodcastsFailed > 0 && result.PodcastsSynced == 0 {
		return fmt.Errorf("all %d feed(s) failed to sync", result.PodcastsFailed)
	}
	return nil
}
