package cmd

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/podscribe/podscribe/internal/services/digest"
	"github.com/podscribe/podscribe/internal/services/genai"
	"github.com/podscribe/podscribe/internal/services/indexer"
	"github.com/podscribe/podscribe/internal/services/metadata"
	"github.com/podscribe/podscribe/internal/services/pipeline"
	"github.com/podscribe/podscribe/internal/services/postprocess"
	"github.com/podscribe/podscribe/internal/services/transcription"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the continuous ingestion pipeline",
	Long: `Run the continuous ingestion pipeline.

One loop syncs feeds on an interval, keeps the download buffer full,
transcribes episodes one at a time, and hands completed transcripts to
the post-processing workers (metadata extraction, semantic indexing,
audio cleanup). Email digests go out at each user's local delivery
hour. SIGINT or SIGTERM triggers a graceful shutdown.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if app.cfg.GenAI.APIKey == "" {
		return fmt.Errorf("genai.api_key is required for the pipeline (set PODSCRIBE_GENAI_API_KEY)")
	}

	podcastSvc, err := app.podcastService(ctx)
	if err != nil {
		return err
	}
	downloadSvc, err := app.downloadService(ctx)
	if err != nil {
		return err
	}

	whisper := transcription.NewWhisperClient(app.cfg.Whisper)

	aiClient := genai.NewClient(app.cfg.GenAI)
	extractor := metadata.NewExtractor(app.episodes, aiClient, app.cfg.GenAI)
	index := indexer.New(aiClient, app.cfg.GenAI)
	if err := index.Start(ctx); err != nil {
		return fmt.Errorf("preparing semantic index: %w", err)
	}
	pool := postprocess.NewPool(app.episodes, app.podcasts, extractor, index, app.cfg.Pipeline.MaxRetries)

	var digestWorker pipeline.DigestRunner
	if app.cfg.Digest.Enabled {
		var mailer digest.Mailer
		if m := digest.NewSMTPMailer(app.cfg.Digest); m != nil {
			mailer = m
		} else {
			log.Printf("[WARN] Digest enabled but no SMTP host configured; digests will be skipped")
		}
		digestWorker = digest.NewWorker(app.users, app.episodes, app.podcasts, mailer, app.cfg.Storage.WebBaseURL, app.cfg.Digest.MaxEpisodes)
	}

	orchestrator := pipeline.New(
		app.cfg.Pipeline,
		app.episodes,
		podcastSvc,
		downloadSvc,
		whisper,
		pool,
		digestWorker,
	)

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] Shutdown signal received")
		orchestrator.Stop()
	}()

	log.Printf("[INFO] Pipeline starting (sync every %ds, %d post-processing workers)",
		app.cfg.Pipeline.SyncIntervalSeconds, app.cfg.Pipeline.PostProcessingWorkers)
	return orchestrator.Run(ctx)
}
