package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/podscribe/podscribe/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-stage episode counts",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("podcast-id", "", "restrict counts to one podcast")
}

func runStatus(cmd *cobra.Command, args []string) error {
	podcastID, _ := cmd.Flags().GetString("podcast-id")

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	counts, err := app.episodes.CountByStage(cmd.Context(), podcastID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tPENDING\tPROCESSING\tCOMPLETED\tFAILED\tPERMANENT")
	for _, stage := range []models.Stage{models.StageDownload, models.StageTranscript, models.StageMetadata, models.StageFileSearch} {
		c := counts[stage]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
			stage, c.Pending, c.Processing, c.Completed, c.Failed, c.PermanentlyFailed)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if podcastID == "" {
		buffered, err := app.episodes.GetDownloadBufferCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nDownload buffer: %d awaiting transcription\n", buffered)
	}
	return nil
}
