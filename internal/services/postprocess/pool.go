// Package postprocess runs the metadata -> indexing -> cleanup chain for
// transcribed episodes on a bounded worker pool.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/internal/services/episodes"
	"github.com/podscribe/podscribe/internal/services/podcasts"
)

// MetadataStage extracts and persists merged metadata for one episode.
type MetadataStage interface {
	ExtractOne(ctx context.Context, episode *models.Episode) error
}

// IndexStage uploads one document, returning (resourceName, displayName).
type IndexStage interface {
	IndexTranscript(ctx context.Context, episode *models.Episode, podcast *models.Podcast, skipExisting bool) (string, string, error)
	IndexDescription(ctx context.Context, podcast *models.Podcast, skipExisting bool) (string, string, error)
}

// Stats counts chain outcomes per stage. Guarded by the pool mutex; every
// increment is atomic with respect to concurrent workers.
type Stats struct {
	MetadataProcessed    int
	MetadataFailed       int
	IndexProcessed       int
	IndexFailed          int
	CleanupProcessed     int
	CleanupFailed        int
	DescriptionProcessed int
	DescriptionFailed    int
	PermanentFailures    int
}

// Pool is the post-processing worker pool. Start with zero workers disables
// async processing; callers then use ProcessOneSync.
type Pool struct {
	episodes   episodes.Repository
	podcasts   podcasts.Repository
	metadata   MetadataStage
	indexer    IndexStage
	maxRetries int

	mu      sync.Mutex
	stats   Stats
	queue   chan string
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewPool creates a post-processing pool.
func NewPool(episodeRepo episodes.Repository, podcastRepo podcasts.Repository, metadata MetadataStage, indexer IndexStage, maxRetries int) *Pool {
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &Pool{
		episodes:   episodeRepo,
		podcasts:   podcastRepo,
		metadata:   metadata,
		indexer:    indexer,
		maxRetries: maxRetries,
	}
}

// Start launches workers goroutines. workers=0 leaves the pool in synchronous
// mode: Submit falls through to ProcessOneSync on the caller's goroutine.
func (p *Pool) Start(ctx context.Context, workers int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	if workers <= 0 {
		log.Printf("[INFO] Post-processing pool in synchronous mode")
		return
	}

	p.queue = make(chan string, 100)
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	log.Printf("[INFO] Post-processing pool started with %d worker(s)", workers)
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for episodeID := range p.queue {
		if p.ctx.Err() != nil {
			return
		}
		p.ProcessOneSync(p.ctx, episodeID)
	}
}

// Submit enqueues the chain for an episode. In synchronous mode the chain
// runs inline before Submit returns.
func (p *Pool) Submit(episodeID string) {
	p.mu.Lock()
	queue := p.queue
	ctx := p.ctx
	p.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if queue == nil {
		p.ProcessOneSync(ctx, episodeID)
		return
	}

	select {
	case queue <- episodeID:
	default:
		// Queue full: the episode stays pending and the next orchestrator
		// pass picks it up again.
		log.Printf("[WARN] Post-processing queue full, deferring episode %s", episodeID)
	}
}

// Shutdown stops the pool. With wait, in-flight and queued chains drain
// first; otherwise pending work is abandoned with a logged count.
func (p *Pool) Shutdown(wait bool) {
	p.mu.Lock()
	queue := p.queue
	cancel := p.cancel
	p.queue = nil
	p.started = false
	p.mu.Unlock()

	if queue == nil {
		if cancel != nil {
			cancel()
		}
		return
	}

	pending := len(queue)
	close(queue)
	if wait {
		p.wg.Wait()
	} else {
		if cancel != nil {
			cancel()
		}
		log.Printf("[WARN] Post-processing pool abandoned %d queued episode(s)", pending)
		p.wg.Wait()
	}
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns a copy of the counters.
func (p *Pool) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// ProcessOneSync runs the chain for one episode on the calling goroutine.
// Each stage re-reads the episode so it sees transitions made by earlier
// stages or by other processes; the chain stops at the first failure.
func (p *Pool) ProcessOneSync(ctx context.Context, episodeID string) models.EpisodeOutcome {
	if outcome := p.runMetadata(ctx, episodeID); outcome != models.OutcomeSuccess {
		return outcome
	}
	if outcome := p.runIndexing(ctx, episodeID); outcome != models.OutcomeSuccess {
		return outcome
	}
	return p.runCleanup(ctx, episodeID)
}

func (p *Pool) runMetadata(ctx context.Context, episodeID string) models.EpisodeOutcome {
	episode, err := p.episodes.GetEpisodeByID(ctx, episodeID)
	if err != nil {
		log.Printf("[ERROR] Post-processing could not load episode %s: %v", episodeID, err)
		return models.OutcomeTransientFailure
	}

	if episode.TranscriptStatus != models.StageStatusCompleted {
		return models.OutcomeTransientFailure
	}
	if episode.MetadataStatus != models.StageStatusPending {
		// Completed earlier, or another worker owns it.
		if episode.MetadataStatus == models.StageStatusCompleted {
			return models.OutcomeSuccess
		}
		return models.OutcomeTransientFailure
	}

	if err := p.metadata.ExtractOne(ctx, episode); err != nil {
		return p.recordFailure(ctx, episodeID, models.StageMetadata, err, func(s *Stats) { s.MetadataFailed++ })
	}

	p.mu.Lock()
	p.stats.MetadataProcessed++
	p.mu.Unlock()
	return models.OutcomeSuccess
}

func (p *Pool) runIndexing(ctx context.Context, episodeID string) models.EpisodeOutcome {
	episode, err := p.episodes.GetEpisodeByID(ctx, episodeID)
	if err != nil {
		return models.OutcomeTransientFailure
	}

	if episode.MetadataStatus != models.StageStatusCompleted {
		return models.OutcomeTransientFailure
	}
	if episode.FileSearchStatus != models.FileSearchStatusPending {
		if episode.FileSearchStatus == models.FileSearchStatusIndexed {
			return models.OutcomeSuccess
		}
		return models.OutcomeTransientFailure
	}

	podcast, err := p.podcasts.GetPodcastByID(ctx, episode.PodcastID)
	if err != nil {
		return p.recordFailure(ctx, episodeID, models.StageFileSearch, err, func(s *Stats) { s.IndexFailed++ })
	}

	if err := p.episodes.MarkIndexingStarted(ctx, episodeID); err != nil {
		return models.OutcomeTransientFailure
	}

	resourceName, displayName, err := p.indexer.IndexTranscript(ctx, episode, podcast, true)
	if err != nil {
		if markErr := p.episodes.MarkIndexingFailed(ctx, episodeID, err.Error()); markErr != nil {
			log.Printf("[ERROR] Could not record indexing failure for %s: %v", episodeID, markErr)
		}
		return p.recordFailure(ctx, episodeID, models.StageFileSearch, err, func(s *Stats) { s.IndexFailed++ })
	}

	if err := p.episodes.MarkIndexingComplete(ctx, episodeID, resourceName, displayName); err != nil {
		return models.OutcomeTransientFailure
	}

	p.mu.Lock()
	p.stats.IndexProcessed++
	p.mu.Unlock()
	return models.OutcomeSuccess
}

func (p *Pool) runCleanup(ctx context.Context, episodeID string) models.EpisodeOutcome {
	episode, err := p.episodes.GetEpisodeByID(ctx, episodeID)
	if err != nil {
		return models.OutcomeTransientFailure
	}

	if episode.FileSearchStatus != models.FileSearchStatusIndexed || episode.LocalFilePath == "" {
		return models.OutcomeSuccess
	}

	if err := os.Remove(episode.LocalFilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.mu.Lock()
		p.stats.CleanupFailed++
		p.mu.Unlock()
		log.Printf("[WARN] Could not delete processed audio %s: %v", episode.LocalFilePath, err)
		return models.OutcomeTransientFailure
	}
	if err := p.episodes.MarkAudioCleanedUp(ctx, episodeID); err != nil {
		return models.OutcomeTransientFailure
	}

	p.mu.Lock()
	p.stats.CleanupProcessed++
	p.mu.Unlock()
	return models.OutcomeSuccess
}

// recordFailure applies the retry budget for a failed stage: below the
// budget the stage is reset to pending; at the budget it becomes permanent.
func (p *Pool) recordFailure(ctx context.Context, episodeID string, stage models.Stage, cause error, bump func(*Stats)) models.EpisodeOutcome {
	p.mu.Lock()
	bump(&p.stats)
	p.mu.Unlock()

	count, err := p.episodes.IncrementRetryCount(ctx, episodeID, stage)
	if err != nil {
		log.Printf("[ERROR] Could not increment %s retry count for %s: %v", stage, episodeID, err)
		return models.OutcomeTransientFailure
	}

	if count >= p.maxRetries {
		message := fmt.Sprintf("retries exhausted after %d attempt(s): %v", count, cause)
		if err := p.episodes.MarkPermanentlyFailed(ctx, episodeID, stage, message); err != nil {
			log.Printf("[ERROR] Could not mark %s permanently failed for %s: %v", stage, episodeID, err)
		}
		p.mu.Lock()
		p.stats.PermanentFailures++
		p.mu.Unlock()
		log.Printf("[WARN] Episode %s %s stage permanently failed: %v", episodeID, stage, cause)
		return models.OutcomePermanentFailure
	}

	if err := p.episodes.ResetEpisodeForRetry(ctx, episodeID, stage); err != nil {
		log.Printf("[ERROR] Could not reset %s for retry on %s: %v", stage, episodeID, err)
	}
	log.Printf("[INFO] Episode %s %s stage failed (attempt %d/%d), will retry: %v",
		episodeID, stage, count, p.maxRetries, cause)
	return models.OutcomeTransientFailure
}

// ProcessDescriptions drains the pending podcast-description queue, indexing
// up to limit descriptions. Failures are recorded on the podcast and do not
// stop the batch. Returns the number indexed.
func (p *Pool) ProcessDescriptions(ctx context.Context, limit int) int {
	pending, err := p.podcasts.GetPodcastsPendingDescriptionIndex(ctx, limit)
	if err != nil {
		log.Printf("[ERROR] Could not select pending descriptions: %v", err)
		return 0
	}

	indexed := 0
	for i := range pending {
		podcast := &pending[i]

		resourceName, displayName, err := p.indexer.IndexDescription(ctx, podcast, true)
		if err != nil {
			if markErr := p.podcasts.MarkDescriptionIndexFailed(ctx, podcast.ID, err.Error()); markErr != nil {
				log.Printf("[ERROR] Could not record description failure for %s: %v", podcast.ID, markErr)
			}
			p.mu.Lock()
			p.stats.DescriptionFailed++
			p.mu.Unlock()
			log.Printf("[WARN] Description indexing failed for %q: %v", podcast.Title, err)
			continue
		}

		if err := p.podcasts.MarkDescriptionIndexed(ctx, podcast.ID, resourceName, displayName); err != nil {
			log.Printf("[ERROR] Could not mark description indexed for %s: %v", podcast.ID, err)
			continue
		}

		p.mu.Lock()
		p.stats.DescriptionProcessed++
		p.mu.Unlock()
		indexed++
	}
	return indexed
}

// HelpProcess runs at most one pending chain synchronously. The orchestrator
// calls this when the transcription queue is idle. Returns false when no
// work was found.
func (p *Pool) HelpProcess(ctx context.Context) bool {
	episode, err := p.episodes.GetNextPendingPostProcessing(ctx)
	if err != nil {
		if !errors.Is(err, episodes.ErrNoEpisodesAvailable) {
			log.Printf("[ERROR] Could not select post-processing work: %v", err)
		}
		return false
	}
	p.ProcessOneSync(ctx, episode.ID)
	return true
}

// Drain blocks until the queue is empty or the timeout elapses. Used by
// tests and the shutdown path.
func (p *Pool) Drain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		queue := p.queue
		p.mu.Unlock()
		if queue == nil || len(queue) == 0 {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
