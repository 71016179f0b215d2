package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const defaultListLimit = 20

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List podcasts, or one podcast's episodes",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Bool("all", false, "ignore --limit and list everything")
	listCmd.Flags().Int("limit", defaultListLimit, "maximum rows to list")
	listCmd.Flags().String("podcast-id", "", "list this podcast's episodes instead")
}

func runList(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	limit, _ := cmd.Flags().GetInt("limit")
	podcastID, _ := cmd.Flags().GetString("podcast-id")
	if all {
		limit = 0
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if podcastID != "" {
		return listEpisodes(cmd, app, podcastID, limit)
	}
	return listPodcasts(cmd, app, limit)
}

func listPodcasts(cmd *cobra.Command, app *app, limit int) error {
	list, err := app.podcasts.ListPodcasts(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No podcasts. Use \"podscribe add <feed_url>\" or \"podscribe import-opml\".")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tTITLE\tLAST CHECKED")
	for i := range list {
		podcast := &list[i]
		lastChecked := "never"
		if podcast.LastChecked != nil {
			lastChecked = podcast.LastChecked.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", podcast.ID, podcast.SourceType, podcast.Title, lastChecked)
	}
	return w.Flush()
}

func listEpisodes(cmd *cobra.Command, app *app, podcastID string, limit int) error {
	list, err := app.episodes.ListEpisodesByPodcast(cmd.Context(), podcastID, limit)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No episodes for this podcast.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPUBLISHED\tDOWNLOAD\tTRANSCRIPT\tMETADATA\tINDEX\tTITLE")
	for i := range list {
		episode := &list[i]
		published := "unknown"
		if episode.PublishedDate != nil {
			published = episode.PublishedDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			episode.ID, published,
			episode.DownloadStatus, episode.TranscriptStatus,
			episode.MetadataStatus, episode.FileSearchStatus,
			episode.Title)
	}
	return w.Flush()
}
