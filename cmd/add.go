package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <feed_url>",
	Short: "Add a podcast by feed or channel URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := app.podcastService(cmd.Context())
	if err != nil {
		return err
	}

	podcast, created, err := svc.AddByURL(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "Added %q (%s)\n", podcast.Title, podcast.ID)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Already subscribed to %q (%s)\n", podcast.Title, podcast.ID)
	}
	return nil
}
