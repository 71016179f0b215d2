// Package pipeline is the single-threaded orchestrator: it keeps the
// transcriber fed from the download buffer, hands finished transcripts to the
// post-processing pool, and schedules sync and digest jobs in the background.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/internal/services/episodes"
	"github.com/podscribe/podscribe/internal/services/podcasts"
	"github.com/podscribe/podscribe/internal/services/transcription"
	"github.com/podscribe/podscribe/pkg/config"
)

// digestShutdownWait bounds how long shutdown waits for an in-flight digest.
const digestShutdownWait = 30 * time.Second

// descriptionBatchSize caps how many podcast descriptions one sync run
// indexes.
const descriptionBatchSize = 20

// Syncer refreshes all podcast feeds.
type Syncer interface {
	SyncAll(ctx context.Context) (*podcasts.SyncResult, error)
}

// Downloader refills the download buffer.
type Downloader interface {
	DownloadPending(ctx context.Context, limit, workers int) (*models.WorkerResult, error)
}

// DigestRunner sends due email digests.
type DigestRunner interface {
	RunDigests(ctx context.Context, now time.Time) (*models.WorkerResult, error)
}

// PostProcessor runs the metadata -> indexing -> cleanup chain off the main
// loop.
type PostProcessor interface {
	Start(ctx context.Context, workers int)
	Submit(episodeID string)
	HelpProcess(ctx context.Context) bool
	ProcessDescriptions(ctx context.Context, limit int) int
	Shutdown(wait bool)
}

// Stats tracks one orchestrator run. Guarded by the orchestrator mutex.
type Stats struct {
	StartedAt                      time.Time
	StoppedAt                      *time.Time
	EpisodesTranscribed            int
	TranscriptionPermanentFailures int
	SyncRuns                       int
	DigestRuns                     int
	DownloadBatches                int
}

// Orchestrator drives the pipeline main loop.
type Orchestrator struct {
	cfg         config.Pipeline
	episodes    episodes.Repository
	syncer      Syncer
	downloader  Downloader
	transcriber transcription.Transcriber
	pool        PostProcessor
	digest      DigestRunner // nil disables digest scheduling

	clock func() time.Time

	mu              sync.Mutex
	running         bool
	lastSync        time.Time
	lastDigestCheck time.Time
	stats           Stats

	syncInFlight   bool
	digestInFlight bool
	jobs           sync.WaitGroup
	digestDone     chan struct{}
}

// New creates an orchestrator. digest may be nil when digests are disabled.
func New(cfg config.Pipeline, episodeRepo episodes.Repository, syncer Syncer, downloader Downloader, transcriber transcription.Transcriber, pool PostProcessor, digest DigestRunner) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		episodes:    episodeRepo,
		syncer:      syncer,
		downloader:  downloader,
		transcriber: transcriber,
		pool:        pool,
		digest:      digest,
		clock:       time.Now,
	}
}

// Run executes the main loop until Stop is called or the context is
// cancelled, then performs the ordered shutdown sequence.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.running = true
	o.stats = Stats{StartedAt: o.clock().UTC()}
	o.mu.Unlock()

	log.Printf("[INFO] Pipeline started (sync every %ds, buffer %d/%d, %d post-processing worker(s))",
		o.cfg.SyncIntervalSeconds, o.cfg.DownloadBufferThreshold, o.cfg.DownloadBufferSize, o.cfg.PostProcessingWorkers)

	// Nothing else moves stages through processing, so anything still there
	// was orphaned by a previous run.
	if n, err := o.episodes.RecoverInterrupted(ctx); err != nil {
		log.Printf("[ERROR] Could not recover interrupted episodes: %v", err)
	} else if n > 0 {
		log.Printf("[INFO] Reset %d interrupted stage marker(s) to pending", n)
	}

	o.pool.Start(ctx, o.cfg.PostProcessingWorkers)

	for o.isRunning() && ctx.Err() == nil {
		o.Iterate(ctx)
	}

	o.shutdown(ctx)
	return nil
}

// Iterate executes one main-loop pass: scheduled jobs, buffer refill, then
// at most one transcription or one borrowed post-processing chain.
func (o *Orchestrator) Iterate(ctx context.Context) {
	o.maybeRunSync(ctx)
	o.maybeRunDigests(ctx)
	o.maintainDownloadBuffer(ctx)

	episode, err := o.episodes.GetNextForTranscription(ctx)
	switch {
	case err == nil:
		o.transcribeOne(ctx, episode)
	case errors.Is(err, episodes.ErrNoEpisodesAvailable):
		if !o.pool.HelpProcess(ctx) {
			o.idleWait(ctx)
		}
	default:
		log.Printf("[ERROR] Could not select transcription work: %v", err)
		o.idleWait(ctx)
	}
}

// Stop requests a graceful exit; Run returns after its current iteration.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// Snapshot returns a copy of the run statistics.
func (o *Orchestrator) Snapshot() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *Orchestrator) isRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// maybeRunSync launches a background sync when the interval elapsed and no
// sync is in flight. Sync failures are logged, never fatal.
func (o *Orchestrator) maybeRunSync(ctx context.Context) {
	now := o.clock()
	interval := time.Duration(o.cfg.SyncIntervalSeconds) * time.Second

	o.mu.Lock()
	due := !o.syncInFlight && (o.lastSync.IsZero() || now.Sub(o.lastSync) >= interval)
	if due {
		o.syncInFlight = true
		o.lastSync = now
		o.stats.SyncRuns++
	}
	o.mu.Unlock()
	if !due {
		return
	}

	o.jobs.Add(1)
	go func() {
		defer o.jobs.Done()
		defer func() {
			o.mu.Lock()
			o.syncInFlight = false
			o.mu.Unlock()
		}()

		result, err := o.syncer.SyncAll(ctx)
		if err != nil {
			log.Printf("[WARN] Background sync failed: %v", err)
		} else {
			log.Printf("[INFO] Background sync: %d synced, %d failed, %d new episode(s)",
				result.PodcastsSynced, result.PodcastsFailed, result.NewEpisodes)
		}

		// New or updated podcasts enter the description queue during sync;
		// drain it while we are off the main loop.
		if n := o.pool.ProcessDescriptions(ctx, descriptionBatchSize); n > 0 {
			log.Printf("[INFO] Indexed %d podcast description(s)", n)
		}
	}()
}

// maybeRunDigests launches a digest check when a new wall-clock hour started
// and no digest job is in flight.
func (o *Orchestrator) maybeRunDigests(ctx context.Context) {
	if o.digest == nil {
		return
	}
	now := o.clock()

	o.mu.Lock()
	due := !o.digestInFlight &&
		(o.lastDigestCheck.IsZero() || !now.Truncate(time.Hour).Equal(o.lastDigestCheck.Truncate(time.Hour)))
	if due {
		o.digestInFlight = true
		o.lastDigestCheck = now
		o.stats.DigestRuns++
		o.digestDone = make(chan struct{})
	}
	done := o.digestDone
	o.mu.Unlock()
	if !due {
		return
	}

	o.jobs.Add(1)
	go func() {
		defer o.jobs.Done()
		defer close(done)
		defer func() {
			o.mu.Lock()
			o.digestInFlight = false
			o.mu.Unlock()
		}()

		if _, err := o.digest.RunDigests(ctx, now); err != nil {
			log.Printf("[WARN] Digest run failed: %v", err)
		}
	}()
}

// maintainDownloadBuffer refills the buffer of transcription-ready episodes
// when it drops below the threshold. The batch is dispatched to the download
// pool and awaited as a whole.
func (o *Orchestrator) maintainDownloadBuffer(ctx context.Context) {
	count, err := o.episodes.GetDownloadBufferCount(ctx)
	if err != nil {
		log.Printf("[ERROR] Could not read download buffer: %v", err)
		return
	}
	if count >= int64(o.cfg.DownloadBufferThreshold) {
		return
	}

	o.mu.Lock()
	o.stats.DownloadBatches++
	o.mu.Unlock()

	log.Printf("[DEBUG] Download buffer at %d (threshold %d), fetching batch of %d",
		count, o.cfg.DownloadBufferThreshold, o.cfg.DownloadBatchSize)
	result, err := o.downloader.DownloadPending(ctx, o.cfg.DownloadBatchSize, o.cfg.DownloadWorkers)
	if err != nil {
		log.Printf("[WARN] Download batch failed: %v", err)
		return
	}
	if result.Failed > 0 {
		log.Printf("[WARN] Download batch: %d ok, %d failed", result.Processed, result.Failed)
	}
}

// transcribeOne runs one blocking transcription on the main loop and submits
// the finished episode to the post-processing pool.
func (o *Orchestrator) transcribeOne(ctx context.Context, episode *models.Episode) {
	if !o.transcriber.IsLoaded() {
		if err := o.transcriber.LoadModel(ctx); err != nil {
			log.Printf("[ERROR] Could not load transcription model: %v", err)
			o.idleWait(ctx)
			return
		}
	}

	if err := o.episodes.MarkTranscriptStarted(ctx, episode.ID); err != nil {
		log.Printf("[ERROR] Could not mark transcription started for %s: %v", episode.ID, err)
		return
	}

	text, source, err := o.transcriber.TranscribeSingle(ctx, episode)
	if err != nil || text == "" {
		if err == nil {
			err = fmt.Errorf("transcriber returned empty text")
		}
		o.handleTranscriptionFailure(ctx, episode.ID, err)
		return
	}

	if err := o.episodes.MarkTranscriptComplete(ctx, episode.ID, text, source); err != nil {
		log.Printf("[ERROR] Could not store transcript for %s: %v", episode.ID, err)
		return
	}

	o.mu.Lock()
	o.stats.EpisodesTranscribed++
	o.mu.Unlock()

	log.Printf("[INFO] Transcribed %q (%d chars, source %s)", episode.Title, len(text), source)
	o.pool.Submit(episode.ID)
}

// handleTranscriptionFailure applies the retry budget to a failed
// transcription.
func (o *Orchestrator) handleTranscriptionFailure(ctx context.Context, episodeID string, cause error) {
	if err := o.episodes.MarkTranscriptFailed(ctx, episodeID, cause.Error()); err != nil {
		log.Printf("[ERROR] Could not record transcription failure for %s: %v", episodeID, err)
		return
	}

	count, err := o.episodes.IncrementRetryCount(ctx, episodeID, models.StageTranscript)
	if err != nil {
		log.Printf("[ERROR] Could not increment transcript retry count for %s: %v", episodeID, err)
		return
	}

	if count >= o.cfg.MaxRetries {
		message := fmt.Sprintf("retries exhausted after %d attempt(s): %v", count, cause)
		if err := o.episodes.MarkPermanentlyFailed(ctx, episodeID, models.StageTranscript, message); err != nil {
			log.Printf("[ERROR] Could not mark transcription permanently failed for %s: %v", episodeID, err)
		}
		o.mu.Lock()
		o.stats.TranscriptionPermanentFailures++
		o.mu.Unlock()
		log.Printf("[WARN] Episode %s transcription permanently failed: %v", episodeID, cause)
		return
	}

	if err := o.episodes.ResetEpisodeForRetry(ctx, episodeID, models.StageTranscript); err != nil {
		log.Printf("[ERROR] Could not reset transcription for retry on %s: %v", episodeID, err)
	}
	log.Printf("[INFO] Transcription failed for %s (attempt %d/%d), will retry: %v",
		episodeID, count, o.cfg.MaxRetries, cause)
}

func (o *Orchestrator) idleWait(ctx context.Context) {
	wait := time.Duration(o.cfg.IdleWaitSeconds) * time.Second
	if wait <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

// shutdown runs the ordered stop sequence: await the in-flight digest,
// drain the post-processing pool, unload the model, finalize stats.
func (o *Orchestrator) shutdown(ctx context.Context) {
	o.Stop()
	log.Printf("[INFO] Pipeline stopping")

	o.mu.Lock()
	digestDone := o.digestDone
	inFlight := o.digestInFlight
	o.mu.Unlock()
	if inFlight && digestDone != nil {
		select {
		case <-digestDone:
		case <-time.After(digestShutdownWait):
			log.Printf("[WARN] Digest job still running after %s, abandoning wait", digestShutdownWait)
		}
	}

	// Remaining background jobs (sync) get the same bounded wait.
	jobsDone := make(chan struct{})
	go func() {
		o.jobs.Wait()
		close(jobsDone)
	}()
	select {
	case <-jobsDone:
	case <-time.After(digestShutdownWait):
		log.Printf("[WARN] Background jobs still running after %s, abandoning wait", digestShutdownWait)
	}

	o.pool.Shutdown(true)

	if err := o.transcriber.UnloadModel(context.WithoutCancel(ctx)); err != nil {
		log.Printf("[WARN] Could not unload transcription model: %v", err)
	}

	o.mu.Lock()
	now := o.clock().UTC()
	o.stats.StoppedAt = &now
	stats := o.stats
	o.mu.Unlock()

	log.Printf("[INFO] Pipeline stopped: %d transcribed, %d permanent transcription failure(s), %d sync run(s), %d digest run(s)",
		stats.EpisodesTranscribed, stats.TranscriptionPermanentFailures, stats.SyncRuns, stats.DigestRuns)
}
