package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// Document is one indexed document in the file-search store.
type Document struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type fileSearchStore struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type listStoresResponse struct {
	FileSearchStores []fileSearchStore `json:"fileSearchStores"`
	NextPageToken    string            `json:"nextPageToken"`
}

type listDocumentsResponse struct {
	Documents     []Document `json:"documents"`
	NextPageToken string     `json:"nextPageToken"`
}

// EnsureStore finds the store with the given display name, creating it on
// first use. Returns the store resource name.
func (c *Client) EnsureStore(ctx context.Context, displayName string) (string, error) {
	pageToken := ""
	for {
		listURL := c.baseURL + "/fileSearchStores"
		if pageToken != "" {
			listURL += "?pageToken=" + url.QueryEscape(pageToken)
		}
		var page listStoresResponse
		if err := c.doJSON(ctx, http.MethodGet, listURL, "", nil, &page); err != nil {
			return "", fmt.Errorf("listing file-search stores: %w", err)
		}
		for _, store := range page.FileSearchStores {
			if store.DisplayName == displayName {
				return store.Name, nil
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	payload, err := json.Marshal(fileSearchStore{DisplayName: displayName})
	if err != nil {
		return "", fmt.Errorf("encoding store request: %w", err)
	}
	var created fileSearchStore
	err = c.doJSON(ctx, http.MethodPost, c.baseURL+"/fileSearchStores", "application/json", bytes.NewReader(payload), &created)
	if err != nil {
		return "", fmt.Errorf("creating file-search store %q: %w", displayName, err)
	}
	log.Printf("[INFO] Created file-search store %q (%s)", displayName, created.Name)
	return created.Name, nil
}

// ListDocuments returns every document in the store.
func (c *Client) ListDocuments(ctx context.Context, storeName string) ([]Document, error) {
	var documents []Document
	pageToken := ""
	for {
		listURL := fmt.Sprintf("%s/%s/documents?pageSize=100", c.baseURL, storeName)
		if pageToken != "" {
			listURL += "&pageToken=" + url.QueryEscape(pageToken)
		}
		var page listDocumentsResponse
		if err := c.doJSON(ctx, http.MethodGet, listURL, "", nil, &page); err != nil {
			return nil, fmt.Errorf("listing documents in %s: %w", storeName, err)
		}
		documents = append(documents, page.Documents...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return documents, nil
}

type customMetadata struct {
	Key         string `json:"key"`
	StringValue string `json:"stringValue"`
}

type uploadRequest struct {
	DisplayName    string           `json:"displayName"`
	MimeType       string           `json:"mimeType"`
	TextContent    string           `json:"textContent"`
	CustomMetadata []customMetadata `json:"customMetadata,omitempty"`
}

type operation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response *struct {
		Document Document `json:"document"`
	} `json:"response"`
}

// UploadText attaches a text document with metadata tags to the store. The
// upload is asynchronous server-side; the returned operation name must be
// polled with PollOperation.
func (c *Client) UploadText(ctx context.Context, storeName, displayName, text string, metadata map[string]string) (string, error) {
	req := uploadRequest{
		DisplayName: displayName,
		MimeType:    "text/plain",
		TextContent: text,
	}
	// deterministic order keeps request bodies reproducible in tests
	for _, key := range sortedKeys(metadata) {
		req.CustomMetadata = append(req.CustomMetadata, customMetadata{Key: key, StringValue: metadata[key]})
	}

	uploadURL := fmt.Sprintf("%s/%s:uploadToFileSearchStore", c.baseURL, storeName)
	var op operation
	if err := c.doJSONWithRetry(ctx, http.MethodPost, uploadURL, req, &op); err != nil {
		return "", fmt.Errorf("uploading %q: %w", displayName, err)
	}
	return op.Name, nil
}

// PollOperation waits for an async upload to finish, returning the resulting
// document resource name. The deadline bounds total wait time.
func (c *Client) PollOperation(ctx context.Context, operationName string, deadline time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	interval := time.Second
	for {
		var op operation
		err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/"+operationName, "", nil, &op)
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("polling operation %s: %w", operationName, ctx.Err())
			}
			return "", fmt.Errorf("polling operation %s: %w", operationName, err)
		}

		if op.Done {
			if op.Error != nil {
				return "", fmt.Errorf("operation %s failed: %s (code %d)", operationName, op.Error.Message, op.Error.Code)
			}
			if op.Response == nil {
				return "", fmt.Errorf("operation %s finished without a document", operationName)
			}
			return op.Response.Document.Name, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("polling operation %s: %w", operationName, ctx.Err())
		case <-time.After(interval):
		}
		if interval < 10*time.Second {
			interval *= 2
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
