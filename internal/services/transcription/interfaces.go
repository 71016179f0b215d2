package transcription

import (
	"context"
	"errors"

	"github.com/podscribe/podscribe/internal/models"
)

// ErrAudioMissing is returned when an episode's local audio file cannot be
// read. The caller maps this to a transcript-stage failure.
var ErrAudioMissing = errors.New("audio file missing")

// Transcriber converts episode audio to text through a long-lived model
// handle. Load and unload are under the orchestrator's control so the model
// stays warm across many episodes.
type Transcriber interface {
	LoadModel(ctx context.Context) error
	UnloadModel(ctx context.Context) error
	IsLoaded() bool

	// TranscribeSingle is idempotent: an episode that already carries a
	// transcript (inline or as a legacy file) returns it without touching
	// the model.
	TranscribeSingle(ctx context.Context, episode *models.Episode) (string, models.TranscriptSource, error)
}
