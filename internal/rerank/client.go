package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/event-recon/backend/pkg/logger"
)

// ErrMisaligned means the reranker did not score every submitted document.
var ErrMisaligned = errors.New("rerank results do not match documents")

type Config struct {
	URL     string
	Model   string
	Timeout time.Duration
}

type Client struct {
	url        string
	model      string
	httpClient *http.Client
}

// Result is the relevance of the document at Index, in [0,1].
type Result struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          *int    `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	logger.Info("Rerank client initialized",
		zap.String("url", cfg.URL),
		zap.String("model", cfg.Model),
	)

	return &Client{url: cfg.URL, model: cfg.Model, httpClient: httpClient}
}

// Rerank scores documents against query. Results are ordered like documents.
// Every call reaches the reranker; a failure only affects the documents of
// that call.
func (c *Client) Rerank(ctx context.Context, query string, documents []string) ([]Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	return c.post(ctx, query, documents)
}

// Relevance scores a single document.
func (c *Client) Relevance(ctx context.Context, query, document string) (float64, error) {
	results, err := c.Rerank(ctx, query, []string{document})
	if err != nil {
		return 0, err
	}
	return results[0].RelevanceScore, nil
}

func (c *Client) post(ctx context.Context, query string, documents []string) ([]Result, error) {
	payload, err := json.Marshal(rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: documents,
		TopN:      len(documents),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank returned status %d: %s", resp.StatusCode, string(body))
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	if len(decoded.Results) != len(documents) {
		return nil, fmt.Errorf("%w: %d documents, %d results", ErrMisaligned, len(documents), len(decoded.Results))
	}

	out := make([]Result, len(documents))
	filled := make([]bool, len(documents))
	for pos, r := range decoded.Results {
		idx := pos
		if r.Index != nil {
			idx = *r.Index
		}
		if idx < 0 || idx >= len(documents) || filled[idx] {
			return nil, fmt.Errorf("%w: bad index %d", ErrMisaligned, idx)
		}
		out[idx] = Result{Index: idx, RelevanceScore: r.RelevanceScore}
		filled[idx] = true
	}

	logger.Debug("Rerank completed", zap.Int("documents", len(documents)))
	return out, nil
}
