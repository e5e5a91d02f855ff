package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/event-recon/backend/internal/aggregator"
	"github.com/event-recon/backend/internal/archive"
	"github.com/event-recon/backend/internal/cache/redis"
	"github.com/event-recon/backend/internal/llm"
	"github.com/event-recon/backend/internal/model"
	"github.com/event-recon/backend/internal/reconstruct"
	"github.com/event-recon/backend/internal/records"
	"github.com/event-recon/backend/internal/rerank"
	"github.com/event-recon/backend/internal/risk"
	"github.com/event-recon/backend/internal/scoring"
	"github.com/event-recon/backend/pkg/config"
	"github.com/event-recon/backend/pkg/logger"
)

// Components holds everything a process needs to serve reconstructions.
type Components struct {
	Engine *reconstruct.Engine
	Redis  *redis.Client
}

// Build wires the reconstruction pipeline from configuration.
func Build(cfg *config.Config) (*Components, error) {
	channels, err := model.ParseChannels(cfg.Aggregation.Channels)
	if err != nil {
		return nil, fmt.Errorf("aggregation channels: %w", err)
	}

	weights := make(map[model.Channel]int, len(cfg.Scoring.ChannelWeights))
	for name, w := range cfg.Scoring.ChannelWeights {
		ch := model.Channel(name)
		if _, err := model.LookupChannel(ch); err != nil {
			return nil, fmt.Errorf("channel weights: %w", err)
		}
		weights[ch] = w
	}

	endpoints := make(map[model.Channel]string, len(cfg.CCS.Endpoints))
	for name, ep := range cfg.CCS.Endpoints {
		endpoints[model.Channel(name)] = ep
	}

	comps := &Components{}

	var tokenCache records.TokenCache
	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		comps.Redis = rc
		tokenCache = rc
	}

	timeout := time.Duration(cfg.CCS.TimeoutSec) * time.Second
	httpClient := &http.Client{Timeout: timeout}

	tokens := records.NewTokenSource(records.TokenConfig{
		BaseURL:   cfg.CCS.BaseURL,
		AppKey:    cfg.CCS.AppKey,
		AppSecret: cfg.CCS.AppSecret,
		TTL:       time.Duration(cfg.CCS.TokenTTLSec) * time.Second,
		Timeout:   timeout,
	}, httpClient, tokenCache)

	recordClient := records.NewClient(records.Config{
		BaseURL:         cfg.CCS.BaseURL,
		Endpoints:       endpoints,
		ContentEndpoint: cfg.CCS.ContentEndpoint,
		Timeout:         timeout,
	}, tokens, httpClient)

	reranker := rerank.NewClient(rerank.Config{
		URL:     cfg.Reranker.URL,
		Model:   cfg.Reranker.Model,
		Timeout: time.Duration(cfg.Reranker.TimeoutSec) * time.Second,
	}, nil)

	scorer := scoring.New(scoring.Config{
		DeductPerHour:  cfg.Scoring.DeductPerHour,
		BeforeRate:     cfg.Scoring.BeforeRate,
		AfterRate:      cfg.Scoring.AfterRate,
		ChannelWeights: weights,
		Concurrency:    cfg.Scoring.Concurrency,
	}, reranker)

	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		MaxAttempts: cfg.LLM.MaxAttempts,
	})

	assessor, err := risk.NewAssessor(llmClient, risk.Config{
		Concurrency: cfg.Risk.Concurrency,
		CallTimeout: time.Duration(cfg.Risk.CallTimeoutSec) * time.Second,
		PromptFile:  cfg.Risk.PromptFile,
	})
	if err != nil {
		comps.Close()
		return nil, err
	}

	var archiver reconstruct.Archiver
	if cfg.Archive.Enabled {
		archiver = archive.NewWriter(cfg.Archive.OutputDir)
	}

	comps.Engine = reconstruct.NewEngine(reconstruct.Config{
		Aggregation: aggregator.Config{
			ParticipantIDs: cfg.Aggregation.ParticipantIDs,
			StartTime:      cfg.Aggregation.StartTime,
			EndTime:        cfg.Aggregation.EndTime,
			Page:           cfg.Aggregation.Page,
			Size:           cfg.Aggregation.Size,
			Content:        cfg.Aggregation.Content,
			Channels:       channels,
		},
		StrictWeights: cfg.Scoring.StrictWeights,
		Timeout:       time.Duration(cfg.Pipeline.TimeoutSec) * time.Second,
		Users:         cfg.UserDirectory(),
	}, aggregator.New(recordClient, channels), scorer, assessor, archiver)

	logger.Info("Reconstruction pipeline ready",
		zap.Int("channels", len(channels)),
		zap.Bool("redis", comps.Redis != nil),
		zap.Bool("archive", cfg.Archive.Enabled),
	)

	return comps, nil
}

// ReadinessChecks lists the dependencies a replica needs before taking traffic.
func (c *Components) ReadinessChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{}
	if c.Redis != nil {
		checks["redis"] = c.Redis.Ping
	}
	return checks
}

func (c *Components) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
}
