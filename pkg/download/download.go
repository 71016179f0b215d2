// Package download fetches audio files over HTTP with bounded retries and
// content hashing.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options configures the download behavior
type Options struct {
	Timeout       time.Duration // Per-request timeout
	MaxSize       int64         // Maximum file size in bytes (0 = no limit)
	UserAgent     string        // User agent string
	RetryAttempts int           // Attempts per URL, including the first
	RetryBackoff  time.Duration // Base backoff, doubled per attempt
}

// DefaultOptions returns default download options
func DefaultOptions() Options {
	return Options{
		Timeout:       5 * time.Minute,
		MaxSize:       500 * 1024 * 1024, // 500MB default max
		UserAgent:     "podscribe/1.0",
		RetryAttempts: 3,
		RetryBackoff:  2 * time.Second,
	}
}

// Result contains information about a successful download
type Result struct {
	Path        string // Path the file was written to
	Size        int64  // Bytes written
	SHA256      string // Hex digest over the exact bytes written
	ContentType string // Content-Type from the response
}

// Fetcher downloads audio files to their final on-disk location.
type Fetcher struct {
	client  *http.Client
	options Options
}

// NewFetcher creates a fetcher with the given options.
func NewFetcher(options Options) *Fetcher {
	if options.RetryAttempts < 1 {
		options.RetryAttempts = 1
	}
	if options.RetryBackoff <= 0 {
		options.RetryBackoff = 2 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: options.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  true, // Don't compress audio
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		options: options,
	}
}

// retryableStatus reports whether the status warrants another attempt.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Fetch downloads url to destPath, creating parent directories as needed.
// Transient server errors are retried with exponential backoff; on any
// failure the partial file is removed.
func (f *Fetcher) Fetch(ctx context.Context, url, destPath string) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= f.options.RetryAttempts; attempt++ {
		result, retryable, err := f.fetchOnce(ctx, url, destPath)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable || attempt == f.options.RetryAttempts {
			break
		}

		backoff := f.options.RetryBackoff * time.Duration(1<<(attempt-1))
		log.Printf("[WARN] Download attempt %d/%d for %s failed: %v (retrying in %s)",
			attempt, f.options.RetryAttempts, url, err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, destPath string) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.options.UserAgent)
	req.Header.Set("Accept", "audio/*,*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		// Network-level failures (DNS, timeout) are worth retrying.
		return nil, true, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, retryableStatus(resp.StatusCode),
			fmt.Errorf("fetching %s: server returned status %d", url, resp.StatusCode)
	}

	if f.options.MaxSize > 0 && resp.ContentLength > f.options.MaxSize {
		return nil, false, fmt.Errorf("file too large: %d bytes (max %d)", resp.ContentLength, f.options.MaxSize)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return nil, false, fmt.Errorf("creating file: %w", err)
	}

	hasher := sha256.New()
	var reader io.Reader = io.TeeReader(resp.Body, hasher)
	if f.options.MaxSize > 0 {
		reader = &io.LimitedReader{R: reader, N: f.options.MaxSize}
	}

	written, err := io.Copy(file, reader)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		return nil, true, fmt.Errorf("writing %s: %w", destPath, err)
	}

	log.Printf("[DEBUG] Downloaded %d bytes to %s", written, destPath)
	return &Result{
		Path:        destPath,
		Size:        written,
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
		ContentType: resp.Header.Get("Content-Type"),
	}, false, nil
}

// mimeExtensions maps enclosure MIME types to filename extensions.
var mimeExtensions = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/ogg":   ".ogg",
	"audio/opus":  ".opus",
	"audio/wav":   ".wav",
}

var audioExtensions = map[string]bool{
	"mp3": true, "m4a": true, "mp4": true, "aac": true,
	"ogg": true, "opus": true, "wav": true, "flac": true,
}

// Extension picks a filename extension from the enclosure URL first, then the
// MIME type, defaulting to .mp3.
func Extension(url, mimeType string) string {
	if ext := urlExtension(url); audioExtensions[ext] {
		return "." + ext
	}
	if ext, ok := mimeExtensions[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return ext
	}
	return ".mp3"
}

func urlExtension(url string) string {
	if idx := strings.IndexAny(url, "?#"); idx >= 0 {
		url = url[:idx]
	}
	dot := strings.LastIndex(url, ".")
	slash := strings.LastIndex(url, "/")
	if dot < 0 || dot < slash {
		return ""
	}
	return strings.ToLower(url[dot+1:])
}
