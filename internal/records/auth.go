package records

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/event-recon/backend/internal/metrics"
	"github.com/event-recon/backend/pkg/logger"
	"github.com/event-recon/backend/pkg/utils"
)

// TokenCache shares access tokens between processes.
type TokenCache interface {
	GetToken(ctx context.Context, key string) (string, time.Duration, bool, error)
	SetToken(ctx context.Context, key, token string, ttl time.Duration) error
}

type TokenConfig struct {
	BaseURL   string
	AppKey    string
	AppSecret string
	TTL       time.Duration
	Timeout   time.Duration
}

type accessTokenSource struct {
	cfg        TokenConfig
	httpClient *http.Client
	cache      TokenCache
	cacheKey   string
	now        func() time.Time
}

// NewTokenSource returns a token source for the record API that reuses a
// token until its TTL runs out. cache may be nil.
func NewTokenSource(cfg TokenConfig, httpClient *http.Client, cache TokenCache) oauth2.TokenSource {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	src := &accessTokenSource{
		cfg:        cfg,
		httpClient: httpClient,
		cache:      cache,
		cacheKey:   utils.HashString(cfg.BaseURL + "\x00" + cfg.AppKey),
		now:        time.Now,
	}
	return oauth2.ReuseTokenSource(nil, src)
}

func (s *accessTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	if s.cache != nil {
		token, remaining, ok, err := s.cache.GetToken(ctx, s.cacheKey)
		switch {
		case err != nil:
			logger.Warn("Token cache lookup failed", zap.Error(err))
		case ok && remaining > 0:
			metrics.CacheHits.WithLabelValues("ccs_token").Inc()
			return &oauth2.Token{AccessToken: token, Expiry: s.now().Add(remaining)}, nil
		}
		metrics.CacheMisses.WithLabelValues("ccs_token").Inc()
	}

	token, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetToken(ctx, s.cacheKey, token, s.cfg.TTL); err != nil {
			logger.Warn("Token cache store failed", zap.Error(err))
		}
	}

	logger.Debug("Access token refreshed", zap.Duration("ttl", s.cfg.TTL))
	return &oauth2.Token{AccessToken: token, Expiry: s.now().Add(s.cfg.TTL)}, nil
}

func (s *accessTokenSource) fetch(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Set("appKey", s.cfg.AppKey)
	params.Set("appSecret", s.cfg.AppSecret)

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/oauth2/access-token?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request access token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{Op: "get token", StatusCode: resp.StatusCode, Message: snippet(body)}
	}

	var env envelope[string]
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if env.Message != successMessage {
		return "", &UpstreamError{Op: "get token", StatusCode: resp.StatusCode, Message: env.Message}
	}
	if env.Data == "" {
		return "", &UpstreamError{Op: "get token", StatusCode: resp.StatusCode, Message: "empty token"}
	}

	return env.Data, nil
}
