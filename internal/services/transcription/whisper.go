package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/podscribe/podscribe/internal/models"
	"github.com/podscribe/podscribe/pkg/config"
)

// WhisperClient talks to a whisper-server instance over HTTP. The server owns
// the GPU; load and unload map to its model management endpoints.
type WhisperClient struct {
	baseURL  string
	model    string
	language string
	client   *http.Client

	mu     sync.Mutex
	loaded bool
}

// NewWhisperClient creates a transcriber backed by a whisper server.
func NewWhisperClient(cfg config.Whisper) *WhisperClient {
	language := cfg.Language
	if language == "" {
		language = "en"
	}
	return &WhisperClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		model:    cfg.Model,
		language: language,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// LoadModel asks the server to load the configured model into memory.
func (w *WhisperClient) LoadModel(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loaded {
		return nil
	}

	body, err := json.Marshal(map[string]string{"model": w.model})
	if err != nil {
		return fmt.Errorf("encoding load request: %w", err)
	}
	if err := w.post(ctx, "/models/load", "application/json", bytes.NewReader(body), nil); err != nil {
		return fmt.Errorf("loading model %s: %w", w.model, err)
	}

	w.loaded = true
	log.Printf("[INFO] Transcription model %s loaded", w.model)
	return nil
}

// UnloadModel releases the model. Safe to call when nothing is loaded.
func (w *WhisperClient) UnloadModel(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.loaded {
		return nil
	}

	if err := w.post(ctx, "/models/unload", "application/json", strings.NewReader("{}"), nil); err != nil {
		return fmt.Errorf("unloading model: %w", err)
	}

	w.loaded = false
	log.Printf("[INFO] Transcription model unloaded")
	return nil
}

// IsLoaded reports whether the model handle is live.
func (w *WhisperClient) IsLoaded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded
}

// transcribeResponse is the server's inference payload. Some builds return a
// flat text field, others segments; both are accepted.
type transcribeResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text string `json:"text"`
	} `json:"segments"`
}

// TranscribeSingle returns the episode's transcript, producing one from audio
// only when no stored transcript exists.
func (w *WhisperClient) TranscribeSingle(ctx context.Context, episode *models.Episode) (string, models.TranscriptSource, error) {
	if episode.TranscriptText != "" {
		source := episode.TranscriptSource
		if source == "" {
			source = models.TranscriptSourceModel
		}
		return episode.TranscriptText, source, nil
	}

	if text, ok := readLegacyTranscript(episode); ok {
		log.Printf("[INFO] Using legacy transcript file for episode %s", episode.ID)
		return text, models.TranscriptSourceModel, nil
	}

	if episode.LocalFilePath == "" {
		return "", "", fmt.Errorf("episode %s: %w", episode.ID, ErrAudioMissing)
	}
	audio, err := os.Open(episode.LocalFilePath)
	if err != nil {
		return "", "", fmt.Errorf("episode %s: %w", episode.ID, ErrAudioMissing)
	}
	defer audio.Close()

	if err := w.LoadModel(ctx); err != nil {
		return "", "", err
	}

	text, err := w.inference(ctx, audio, filepath.Base(episode.LocalFilePath))
	if err != nil {
		return "", "", fmt.Errorf("transcribing episode %s: %w", episode.ID, err)
	}
	return text, models.TranscriptSourceModel, nil
}

func (w *WhisperClient) inference(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("building multipart request: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("reading audio: %w", err)
	}
	if err := writer.WriteField("language", w.language); err != nil {
		return "", fmt.Errorf("building multipart request: %w", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("building multipart request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("building multipart request: %w", err)
	}

	var parsed transcribeResponse
	if err := w.post(ctx, "/inference", writer.FormDataContentType(), &buf, &parsed); err != nil {
		return "", err
	}

	if parsed.Text != "" {
		return strings.TrimSpace(parsed.Text), nil
	}

	// Segment texts are concatenated with single spaces.
	parts := make([]string, 0, len(parsed.Segments))
	for _, segment := range parsed.Segments {
		if trimmed := strings.TrimSpace(segment.Text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " "), nil
}

func (w *WhisperClient) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling whisper server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whisper server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding whisper response: %w", err)
	}
	return nil
}

// readLegacyTranscript looks for a transcript stored on disk by earlier
// versions of the pipeline: the episode's transcript_path, or the audio
// basename with a _transcription.txt suffix.
func readLegacyTranscript(episode *models.Episode) (string, bool) {
	candidates := make([]string, 0, 2)
	if episode.TranscriptPath != "" {
		candidates = append(candidates, episode.TranscriptPath)
	}
	if episode.LocalFilePath != "" {
		base := strings.TrimSuffix(episode.LocalFilePath, filepath.Ext(episode.LocalFilePath))
		candidates = append(candidates, base+"_transcription.txt")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			return text, true
		}
	}
	return "", false
}
