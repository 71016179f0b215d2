// Package genai is a thin HTTP client for the generative-language API: text
// generation, grounded generation over a file-search store, and document
// uploads into that store.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/podscribe/podscribe/pkg/config"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client calls the generative-language API with bounded retries.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	maxRetries int
	maxBackoff time.Duration
}

// NewClient creates an API client from configuration.
func NewClient(cfg config.GenAI) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 5
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 32 * time.Second
	}
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		maxRetries: maxRetries,
		maxBackoff: maxBackoff,
	}
}

// WithBaseURL points the client at a different API host. Used in tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type generateRequest struct {
	SystemInstruction *content        `json:"systemInstruction,omitempty"`
	Contents          []content       `json:"contents"`
	Tools             []tool          `json:"tools,omitempty"`
	GenerationConfig  *generateConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type tool struct {
	FileSearch *fileSearchTool `json:"fileSearch,omitempty"`
}

type fileSearchTool struct {
	FileSearchStoreNames []string `json:"fileSearchStoreNames"`
	MetadataFilter       string   `json:"metadataFilter,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content           content            `json:"content"`
		GroundingMetadata *groundingMetadata `json:"groundingMetadata"`
	} `json:"candidates"`
}

type groundingMetadata struct {
	GroundingChunks []struct {
		RetrievedContext struct {
			Title string `json:"title"`
			Text  string `json:"text"`
		} `json:"retrievedContext"`
	} `json:"groundingChunks"`
}

// GroundingChunk is one retrieved document fragment backing a grounded
// answer.
type GroundingChunk struct {
	Title string
	Text  string
}

// GroundedResult is the text of a grounded answer plus the store fragments it
// was grounded on.
type GroundedResult struct {
	Text   string
	Chunks []GroundingChunk
}

// GenerateText runs a plain generateContent call and returns the first
// candidate's text.
func (c *Client) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: userPrompt}}}},
		GenerationConfig: &generateConfig{
			Temperature:      0.2,
			ResponseMimeType: "application/json",
		},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}

	resp, err := c.generate(ctx, req)
	if err != nil {
		return "", err
	}
	return firstText(resp)
}

// GenerateGrounded answers a prompt grounded on the file-search store,
// restricted by the given metadata filter.
func (c *Client) GenerateGrounded(ctx context.Context, prompt, storeName, metadataFilter string) (*GroundedResult, error) {
	req := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		Tools: []tool{{FileSearch: &fileSearchTool{
			FileSearchStoreNames: []string{storeName},
			MetadataFilter:       metadataFilter,
		}}},
	}

	resp, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	text, err := firstText(resp)
	if err != nil {
		return nil, err
	}

	result := &GroundedResult{Text: text}
	if meta := resp.Candidates[0].GroundingMetadata; meta != nil {
		for _, chunk := range meta.GroundingChunks {
			result.Chunks = append(result.Chunks, GroundingChunk{
				Title: chunk.RetrievedContext.Title,
				Text:  chunk.RetrievedContext.Text,
			})
		}
	}
	return result, nil
}

func (c *Client) generate(ctx context.Context, req generateRequest) (*generateResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)

	var resp generateResponse
	err := c.doJSONWithRetry(ctx, http.MethodPost, url, req, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func firstText(resp *generateResponse) (string, error) {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("response contained no text")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// retryableError marks a failure worth another attempt: 429 and 5xx.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// doJSONWithRetry POSTs a JSON body and decodes a JSON response, retrying
// transient failures with exponential backoff capped at maxBackoff.
func (c *Client) doJSONWithRetry(ctx context.Context, method, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	var lastErr error
	backoff := time.Second
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.doJSON(ctx, method, url, "application/json", bytes.NewReader(payload), out)
		if err == nil {
			return nil
		}
		lastErr = err

		var transient *retryableError
		if !errors.As(err, &transient) || attempt == c.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
	return lastErr
}

func (c *Client) doJSON(ctx context.Context, method, url, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{fmt.Errorf("sending request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &retryableError{fmt.Errorf("api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))}
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
