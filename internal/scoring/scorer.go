package scoring

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/event-recon/backend/internal/metrics"
	"github.com/event-recon/backend/internal/model"
	"github.com/event-recon/backend/pkg/logger"
)

const (
	DefaultDeductPerHour = 20
	// DefaultBeforeRate applies when the event happened after the record ended.
	DefaultBeforeRate = 1
	// DefaultAfterRate applies when the event happened before the record started.
	DefaultAfterRate     = 2
	DefaultChannelWeight = 95
)

// ContentOracle rates how relevant document is to query, in [0,1].
type ContentOracle interface {
	Relevance(ctx context.Context, query, document string) (float64, error)
}

type Config struct {
	DeductPerHour  float64
	BeforeRate     float64
	AfterRate      float64
	ChannelWeights map[model.Channel]int
	Concurrency    int
}

func DefaultConfig() Config {
	return Config{
		DeductPerHour: DefaultDeductPerHour,
		BeforeRate:    DefaultBeforeRate,
		AfterRate:     DefaultAfterRate,
		ChannelWeights: map[model.Channel]int{
			model.ChannelCall:    DefaultChannelWeight,
			model.ChannelEmail:   DefaultChannelWeight,
			model.ChannelQTrade:  DefaultChannelWeight,
			model.ChannelIdeal:   DefaultChannelWeight,
			model.ChannelTrading: DefaultChannelWeight,
		},
		Concurrency: 8,
	}
}

type Scorer struct {
	cfg    Config
	oracle ContentOracle
}

func New(cfg Config, oracle ContentOracle) *Scorer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Scorer{cfg: cfg, oracle: oracle}
}

// TimeScore is 100 inside the record's interval and decays linearly by the
// hours to the nearest boundary outside it, floored at 0.
func (s *Scorer) TimeScore(event model.Event, r model.Record) (float64, error) {
	eventTime, err := model.ParseTimestamp(event.EventTime)
	if err != nil {
		return 0, fmt.Errorf("event time: %w", err)
	}
	start, end, err := r.Interval()
	if err != nil {
		return 0, err
	}

	score := 100.0
	switch {
	case !eventTime.Before(start) && !eventTime.After(end):
		return score, nil
	case eventTime.After(end):
		hours := eventTime.Sub(end).Hours()
		score -= hours * s.cfg.DeductPerHour * s.cfg.BeforeRate
	default:
		hours := start.Sub(eventTime).Hours()
		score -= hours * s.cfg.DeductPerHour * s.cfg.AfterRate
	}
	return math.Max(score, 0), nil
}

// UserScore averages the internal and external participant matches.
func (s *Scorer) UserScore(event model.Event, r model.Record) (float64, error) {
	kind, err := model.LookupChannel(r.Channel)
	if err != nil {
		return 0, err
	}

	internal := 0.0
	if event.HasInternalUser(r.UserID) {
		internal = 100
	}

	external := 0.0
	if name, ok := kind.ExternalIdentity(r); ok && event.HasExternalUser(name) {
		external = 100
	}

	return (internal + external) / 2, nil
}

// ContentScore asks the oracle how well the record's content matches the event
// name. Missing content and oracle failures both score 0.
func (s *Scorer) ContentScore(ctx context.Context, event model.Event, r model.Record) float64 {
	if r.Content == "" || s.oracle == nil {
		return 0
	}

	rel, err := s.oracle.Relevance(ctx, event.EventName, r.Content)
	if err != nil {
		metrics.ContentOracleFailures.Inc()
		logger.Error("Rerank failed, content score set to 0",
			zap.String("record_id", r.ID),
			zap.String("channel", string(r.Channel)),
			zap.Error(err),
		)
		return 0
	}
	return math.Max(rel*100, 0)
}

func (s *Scorer) ChannelWeight(c model.Channel) (int, error) {
	if _, err := model.LookupChannel(c); err != nil {
		return 0, err
	}
	w, ok := s.cfg.ChannelWeights[c]
	if !ok {
		return 0, fmt.Errorf("%w: no weight for %s", model.ErrUnknownChannel, c)
	}
	return w, nil
}

// Combine weighs the three sub-scores and applies the channel weight. The
// result is not clamped.
func Combine(timeScore, userScore, contentScore float64, w model.Weights, channelWeight int) float64 {
	weighted := timeScore*float64(w.Time)/100 +
		userScore*float64(w.User)/100 +
		contentScore*float64(w.Content)/100
	return weighted * float64(channelWeight) / 100
}

func (s *Scorer) Score(ctx context.Context, event model.Event, r model.Record) (model.ScoreResult, error) {
	timeScore, err := s.TimeScore(event, r)
	if err != nil {
		return model.ScoreResult{}, err
	}
	userScore, err := s.UserScore(event, r)
	if err != nil {
		return model.ScoreResult{}, err
	}
	channelWeight, err := s.ChannelWeight(r.Channel)
	if err != nil {
		return model.ScoreResult{}, err
	}
	contentScore := s.ContentScore(ctx, event, r)

	total := Combine(timeScore, userScore, contentScore, event.Weights, channelWeight)
	metrics.TotalScore.WithLabelValues(string(r.Channel)).Observe(total)

	return model.ScoreResult{
		TimeScore:    timeScore,
		UserScore:    userScore,
		ContentScore: contentScore,
		TotalScore:   total,
	}, nil
}

// ScoreAll scores every record concurrently. Results keep the input order.
func (s *Scorer) ScoreAll(ctx context.Context, event model.Event, recs []model.Record) ([]model.ScoredRecord, error) {
	out := make([]model.ScoredRecord, len(recs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, r := range recs {
		g.Go(func() error {
			score, err := s.Score(gctx, event, r)
			if err != nil {
				return fmt.Errorf("score record %s/%s: %w", r.Channel, r.ID, err)
			}
			out[i] = model.ScoredRecord{Record: r, Score: score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
