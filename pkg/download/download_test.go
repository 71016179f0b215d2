package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFetcher() *Fetcher {
	return NewFetcher(Options{
		Timeout:       5 * time.Second,
		UserAgent:     "podscribe-test/1.0",
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	})
}

func TestFetchWritesFileAndHash(t *testing.T) {
	body := []byte("fake mp3 bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(body)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "show", "ep.mp3")
	result, err := testFetcher().Fetch(context.Background(), server.URL, dest)
	require.NoError(t, err)

	assert.Equal(t, dest, result.Path)
	assert.Equal(t, int64(len(body)), result.Size)

	sum := sha256.Sum256(body)
	assert.Equal(t, hex.EncodeToString(sum[:]), result.SHA256)

	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, written)
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "ep.mp3")
	result, err := testFetcher().Fetch(context.Background(), server.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Size)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "ep.mp3")
	_, err := testFetcher().Fetch(context.Background(), server.URL, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no partial file is left behind")
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, retryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 403, 404, 410} {
		assert.False(t, retryableStatus(code), "status %d", code)
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		url      string
		mimeType string
		want     string
	}{
		{"https://cdn.example.com/ep.m4a", "", ".m4a"},
		{"https://cdn.example.com/ep.m4a?token=x", "audio/mpeg", ".m4a"},
		{"https://cdn.example.com/stream", "audio/mp4", ".m4a"},
		{"https://cdn.example.com/stream", "audio/x-m4a", ".m4a"},
		{"https://cdn.example.com/stream", "audio/ogg", ".ogg"},
		{"https://cdn.example.com/stream", "audio/opus", ".opus"},
		{"https://cdn.example.com/stream", "audio/wav", ".wav"},
		{"https://cdn.example.com/stream", "application/octet-stream", ".mp3"},
		{"https://cdn.example.com/stream", "", ".mp3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Extension(tt.url, tt.mimeType), "url=%s mime=%s", tt.url, tt.mimeType)
	}
}
