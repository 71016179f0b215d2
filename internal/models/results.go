package models

// EpisodeOutcome tags how one stage attempt ended; the orchestrator's retry
// decisions read this instead of inspecting error strings.
type EpisodeOutcome string

const (
	OutcomeSuccess          EpisodeOutcome = "success"
	OutcomeTransientFailure EpisodeOutcome = "transient_failure"
	OutcomePermanentFailure EpisodeOutcome = "permanent_failure"
)

// WorkerResult aggregates one batch run of a worker.
type WorkerResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Merge folds another result into this one.
func (r *WorkerResult) Merge(other WorkerResult) {
	r.Processed += other.Processed
	r.Failed += other.Failed
	r.Skipped += other.Skipped
	r.Errors = append(r.Errors, other.Errors...)
}
