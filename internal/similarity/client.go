// Package similarity links shot groups by deep visual similarity using
// an external image-embedding service.
package similarity

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
)

const (
	defaultBaseURL = "http://localhost:8765"

	// requestTimeout bounds one embedding batch.
	requestTimeout = 60 * time.Second

	// maxBatch is the number of image paths sent per /embeddings call.
	maxBatch = 20
)

// transportRetryDelays are applied between retries on transport
// errors. HTTP 4xx responses are never retried.
var transportRetryDelays = []time.Duration{250 * time.Millisecond, time.Second}

// ErrUnavailable marks the embedding service as unreachable; linking
// degrades to zero edges rather than failing the pipeline.
var ErrUnavailable = errors.New("embedding service unavailable")

// Client talks to the embedding HTTP service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client for the service at baseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

type embeddingsRequest struct {
	Paths []string `json:"paths"`
}

type embeddingsResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type similarityRequest struct {
	Emb1 []float32 `json:"emb1"`
	Emb2 []float32 `json:"emb2"`
}

type similarityResponse struct {
	Similarity float64 `json:"similarity"`
}

// Health probes the service's /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// Embeddings returns one unit vector per path, batching requests. A
// path the service could not process yields a nil vector in place.
func (c *Client) Embeddings(ctx context.Context, paths []string) ([][]float32, error) {
	out := make([][]float32, 0, len(paths))
	for start := 0; start < len(paths); start += maxBatch {
		end := min(start+maxBatch, len(paths))
		batch, err := c.embeddingsBatch(ctx, paths[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) embeddingsBatch(ctx context.Context, paths []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Paths: paths})
	if err != nil {
		return nil, err
	}

	respBody, err := c.post(ctx, "/embeddings", body)
	if err != nil {
		return nil, err
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parsing embeddings response: %w", err)
	}
	if len(parsed.Embeddings) != len(paths) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d paths, got %d vectors", len(paths), len(parsed.Embeddings))
	}
	return parsed.Embeddings, nil
}

// Similarity asks the service for the cosine similarity of two vectors.
func (c *Client) Similarity(ctx context.Context, emb1, emb2 []float32) (float64, error) {
	body, err := json.Marshal(similarityRequest{Emb1: emb1, Emb2: emb2})
	if err != nil {
		return 0, err
	}
	respBody, err := c.post(ctx, "/similarity", body)
	if err != nil {
		return 0, err
	}
	var parsed similarityResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return 0, fmt.Errorf("parsing similarity response: %w", err)
	}
	return parsed.Similarity, nil
}

// post sends a JSON body, retrying transport errors with backoff.
// Client errors (4xx) are returned immediately.
func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= len(transportRetryDelays); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(transportRetryDelays[attempt-1]):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
			continue
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("embedding service error (status %d): %s", resp.StatusCode, string(respBody))
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
			continue
		}
		return respBody, nil
	}
	return nil, lastErr
}
