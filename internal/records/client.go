package records

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/event-recon/backend/internal/metrics"
	"github.com/event-recon/backend/internal/model"
	"github.com/event-recon/backend/pkg/logger"
)

const (
	successMessage = "success"
	maxErrorBody   = 512
)

type envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type recordPage struct {
	Records []model.Record `json:"records"`
}

type Config struct {
	BaseURL         string
	Endpoints       map[model.Channel]string
	ContentEndpoint string
	Timeout         time.Duration
}

// Query selects records of one channel for a set of participants.
type Query struct {
	// ParticipantIDs is comma-joined; every id is queried separately.
	ParticipantIDs    string
	StartTime         string
	EndTime           string
	Page              int
	Size              int
	Extension         string
	CommunicationType string
	Content           bool
}

// FromToQuery selects records by sending or receiving participant.
type FromToQuery struct {
	FromParticipantID string
	ToParticipantID   string
	StartTime         string
	EndTime           string
	Page              int
	Size              int
	Extension         string
	CommunicationType string
	Content           bool
}

// Client talks to the upstream communication record API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     oauth2.TokenSource
}

func NewClient(cfg Config, tokens oauth2.TokenSource, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ContentEndpoint == "" {
		cfg.ContentEndpoint = "/media/unify-text"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	logger.Info("Record API client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.Int("channels", len(cfg.Endpoints)),
	)

	return &Client{cfg: cfg, httpClient: httpClient, tokens: tokens}
}

// Fetch returns the channel's records for every participant in q, merged in
// participant order with duplicate ids dropped.
func (c *Client) Fetch(ctx context.Context, channel model.Channel, q Query) ([]model.Record, error) {
	endpoint, err := c.endpoint(channel)
	if err != nil {
		return nil, err
	}

	participants := splitParticipants(q.ParticipantIDs)
	pages := make([][]model.Record, len(participants))

	g, gctx := errgroup.WithContext(ctx)
	for i, participant := range participants {
		g.Go(func() error {
			params := baseParams(q.StartTime, q.EndTime, q.Page, q.Size, q.Extension, q.CommunicationType)
			params.Set("participantId", participant)

			var page recordPage
			if err := c.get(gctx, "get "+strings.ToLower(string(channel))+" records", endpoint, params, &page); err != nil {
				return err
			}
			pages[i] = page.Records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	merged := make([]model.Record, 0)
	for _, page := range pages {
		for _, r := range page {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			r.Channel = channel
			merged = append(merged, r)
		}
	}

	if q.Content {
		if merged, err = c.hydrate(ctx, channel, merged); err != nil {
			return nil, err
		}
	}

	metrics.RecordsFetched.WithLabelValues(string(channel)).Add(float64(len(merged)))
	logger.Debug("Records fetched",
		zap.String("channel", string(channel)),
		zap.Int("participants", len(participants)),
		zap.Int("records", len(merged)),
	)

	return merged, nil
}

// FetchByFromOrTo returns the channel's records sent by or to a participant.
func (c *Client) FetchByFromOrTo(ctx context.Context, channel model.Channel, q FromToQuery) ([]model.Record, error) {
	if q.FromParticipantID == "" && q.ToParticipantID == "" {
		return nil, ErrMissingEndpoint
	}

	endpoint, err := c.endpoint(channel)
	if err != nil {
		return nil, err
	}

	params := baseParams(q.StartTime, q.EndTime, q.Page, q.Size, q.Extension, q.CommunicationType)
	if q.FromParticipantID != "" {
		params.Set("fromParticipantId", q.FromParticipantID)
	}
	if q.ToParticipantID != "" {
		params.Set("toParticipantId", q.ToParticipantID)
	}

	var page recordPage
	if err := c.get(ctx, "get "+strings.ToLower(string(channel))+" records", endpoint, params, &page); err != nil {
		return nil, err
	}

	out := make([]model.Record, len(page.Records))
	for i, r := range page.Records {
		r.Channel = channel
		out[i] = r
	}

	if q.Content {
		if out, err = c.hydrate(ctx, channel, out); err != nil {
			return nil, err
		}
	}

	metrics.RecordsFetched.WithLabelValues(string(channel)).Add(float64(len(out)))
	return out, nil
}

func (c *Client) endpoint(channel model.Channel) (string, error) {
	if _, err := model.LookupChannel(channel); err != nil {
		return "", err
	}
	ep, ok := c.cfg.Endpoints[channel]
	if !ok || ep == "" {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoint, channel)
	}
	return ep, nil
}

type tokenResult struct {
	token *oauth2.Token
	err   error
}

// token waits for an access token no longer than ctx allows. oauth2 token
// sources take no context, so an abandoned refresh finishes in the background,
// bounded by the token timeout.
func (c *Client) token(ctx context.Context) (*oauth2.Token, error) {
	ch := make(chan tokenResult, 1)
	go func() {
		tok, err := c.tokens.Token()
		ch <- tokenResult{token: tok, err: err}
	}()

	select {
	case r := <-ch:
		return r.token, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) get(ctx context.Context, op, path string, params url.Values, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", token.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("Record API returned error status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("body", snippet(body)),
		)
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Message: snippet(body)}
	}

	env := envelope[json.RawMessage]{}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s: failed to decode envelope: %w", op, err)
	}
	if env.Message != successMessage {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Message: env.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: failed to decode data: %w", op, err)
	}
	return nil
}

func baseParams(start, end string, page, size int, extension, communicationType string) url.Values {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 10
	}
	params := url.Values{}
	params.Set("startTime", start)
	params.Set("endTime", end)
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	if extension != "" {
		params.Set("extension", extension)
	}
	if communicationType != "" {
		params.Set("communicationType", communicationType)
	}
	return params
}

func splitParticipants(joined string) []string {
	var out []string
	for _, p := range strings.Split(joined, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
