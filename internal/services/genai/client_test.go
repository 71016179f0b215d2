package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podscribe/podscribe/pkg/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.GenAI{
		APIKey:     "test-key",
		Model:      "gemini-2.5-flash",
		MaxRetries: 3,
		MaxBackoff: 10 * time.Millisecond,
	}).WithBaseURL(baseURL)
}

func TestGenerateText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "be terse", req.SystemInstruction.Parts[0].Text)

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"answer\":42}"}]}}]}`))
	}))
	defer server.Close()

	text, err := newTestClient(server.URL).GenerateText(context.Background(), "be terse", "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, `{"answer":42}`, text)
}

func TestGenerateTextRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer server.Close()

	text, err := newTestClient(server.URL).GenerateText(context.Background(), "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateTextDoesNotRetryOn400(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad prompt"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GenerateText(context.Background(), "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateGrounded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		require.NotNil(t, req.Tools[0].FileSearch)
		assert.Equal(t, []string{"fileSearchStores/abc"}, req.Tools[0].FileSearch.FileSearchStoreNames)
		assert.Equal(t, `type="transcript" AND podcast="Show"`, req.Tools[0].FileSearch.MetadataFilter)

		w.Write([]byte(`{"candidates":[{
			"content":{"parts":[{"text":"grounded answer"}]},
			"groundingMetadata":{"groundingChunks":[
				{"retrievedContext":{"title":"ep_x_transcription.txt","text":"snippet one"}},
				{"retrievedContext":{"title":"ep_y_transcription.txt","text":"snippet two"}}
			]}
		}]}`))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).GenerateGrounded(
		context.Background(), "who?", "fileSearchStores/abc", `type="transcript" AND podcast="Show"`)
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", result.Text)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "ep_x_transcription.txt", result.Chunks[0].Title)
	assert.Equal(t, "snippet one", result.Chunks[0].Text)
}

func TestEnsureStoreFindsExisting(t *testing.T) {
	var creates atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/fileSearchStores":
			w.Write([]byte(`{"fileSearchStores":[
				{"name":"fileSearchStores/other","displayName":"other"},
				{"name":"fileSearchStores/abc","displayName":"podscribe-index"}
			]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/fileSearchStores":
			creates.Add(1)
			w.Write([]byte(`{"name":"fileSearchStores/new","displayName":"podscribe-index"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	name, err := newTestClient(server.URL).EnsureStore(context.Background(), "podscribe-index")
	require.NoError(t, err)
	assert.Equal(t, "fileSearchStores/abc", name)
	assert.Zero(t, creates.Load())
}

func TestEnsureStoreCreates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{}`))
		case http.MethodPost:
			var store fileSearchStore
			require.NoError(t, json.NewDecoder(r.Body).Decode(&store))
			assert.Equal(t, "podscribe-index", store.DisplayName)
			w.Write([]byte(`{"name":"fileSearchStores/new","displayName":"podscribe-index"}`))
		}
	}))
	defer server.Close()

	name, err := newTestClient(server.URL).EnsureStore(context.Background(), "podscribe-index")
	require.NoError(t, err)
	assert.Equal(t, "fileSearchStores/new", name)
}

func TestUploadAndPollOperation(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/fileSearchStores/abc:uploadToFileSearchStore":
			var req uploadRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ep_x_transcription.txt", req.DisplayName)
			assert.Equal(t, "transcript text", req.TextContent)
			require.NotEmpty(t, req.CustomMetadata)
			assert.Equal(t, "episode", req.CustomMetadata[0].Key)
			w.Write([]byte(`{"name":"operations/op-1","done":false}`))
		case r.URL.Path == "/operations/op-1":
			if polls.Add(1) < 2 {
				w.Write([]byte(`{"name":"operations/op-1","done":false}`))
				return
			}
			w.Write([]byte(`{"name":"operations/op-1","done":true,"response":{"document":{"name":"fileSearchStores/abc/documents/1","displayName":"ep_x_transcription.txt"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	opName, err := client.UploadText(ctx, "fileSearchStores/abc", "ep_x_transcription.txt", "transcript text", map[string]string{
		"type":    "transcript",
		"episode": "Episode X",
	})
	require.NoError(t, err)
	assert.Equal(t, "operations/op-1", opName)

	docName, err := client.PollOperation(ctx, opName, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "fileSearchStores/abc/documents/1", docName)
}

func TestPollOperationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"operations/op-2","done":true,"error":{"code":13,"message":"index build failed"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).PollOperation(context.Background(), "operations/op-2", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index build failed")
}

func TestListDocumentsPaginates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageToken") == "" {
			w.Write([]byte(`{"documents":[{"name":"d/1","displayName":"one.txt"}],"nextPageToken":"t2"}`))
			return
		}
		w.Write([]byte(`{"documents":[{"name":"d/2","displayName":"two.txt"}]}`))
	}))
	defer server.Close()

	docs, err := newTestClient(server.URL).ListDocuments(context.Background(), "fileSearchStores/abc")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "two.txt", docs[1].DisplayName)
}
