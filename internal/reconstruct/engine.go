package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/event-recon/backend/internal/aggregator"
	"github.com/event-recon/backend/internal/metrics"
	"github.com/event-recon/backend/internal/model"
	"github.com/event-recon/backend/pkg/logger"
)

type Collector interface {
	Collect(ctx context.Context, w aggregator.Window) ([]model.Record, error)
}

type Scorer interface {
	ScoreAll(ctx context.Context, event model.Event, recs []model.Record) ([]model.ScoredRecord, error)
}

type RiskAssessor interface {
	AssessAll(ctx context.Context, recs []model.Record) []model.RiskAssessment
}

type Archiver interface {
	Write(result *model.Result) (string, error)
}

type Config struct {
	Aggregation   aggregator.Config
	StrictWeights bool
	Timeout       time.Duration
	// Users maps internal participant ids to display names.
	Users map[string]string
}

// Engine runs one reconstruction: collect, score, filter, sort, annotate,
// project and archive.
type Engine struct {
	cfg       Config
	collector Collector
	scorer    Scorer
	assessor  RiskAssessor
	archiver  Archiver
}

// NewEngine wires the pipeline. assessor and archiver may be nil, in which
// case risk checks always yield null fields and nothing is archived.
func NewEngine(cfg Config, collector Collector, scorer Scorer, assessor RiskAssessor, archiver Archiver) *Engine {
	return &Engine{
		cfg:       cfg,
		collector: collector,
		scorer:    scorer,
		assessor:  assessor,
		archiver:  archiver,
	}
}

func (e *Engine) Reconstruct(ctx context.Context, event model.Event) (*model.Result, error) {
	runID := uuid.NewString()
	log := logger.With(zap.String("run_id", runID), zap.String("event_name", event.EventName))
	start := time.Now()

	result, err := e.run(ctx, log, event)

	metrics.ReconstructionDuration.WithLabelValues(strconv.FormatBool(event.AICheckRecord)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReconstructionTotal.WithLabelValues(outcome(err)).Inc()
		log.Error("Reconstruction failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}

	metrics.ReconstructionTotal.WithLabelValues("success").Inc()
	metrics.RecordsKept.Observe(float64(len(result.Records)))
	log.Info("Reconstruction finished",
		zap.Int("records", len(result.Records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (e *Engine) run(ctx context.Context, log *zap.Logger, event model.Event) (*model.Result, error) {
	if err := event.Validate(e.cfg.StrictWeights); err != nil {
		return nil, err
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	window, err := aggregator.WindowFor(event, e.cfg.Aggregation)
	if err != nil {
		return nil, err
	}
	log.Info("Reconstruction started",
		zap.Strings("participants", window.ParticipantIDs),
		zap.String("start", window.Start),
		zap.String("end", window.End),
		zap.Bool("ai_check_record", event.AICheckRecord),
	)

	recs, err := e.collector.Collect(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("collect records: %w", err)
	}

	scored, err := e.scorer.ScoreAll(ctx, event, recs)
	if err != nil {
		return nil, fmt.Errorf("score records: %w", err)
	}

	kept, err := filterAndSort(scored, event.Relevance)
	if err != nil {
		return nil, err
	}
	log.Info("Records scored", zap.Int("fetched", len(scored)), zap.Int("kept", len(kept)))

	risks := make([]model.RiskAssessment, len(kept))
	if event.AICheckRecord && e.assessor != nil && len(kept) > 0 {
		plain := make([]model.Record, len(kept))
		for i, sr := range kept {
			plain[i] = sr.Record
		}
		risks = e.assessor.AssessAll(ctx, plain)
	}

	out := make([]model.AnnotatedRecord, len(kept))
	for i, sr := range kept {
		rec, err := e.project(sr, risks[i])
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}

	result := &model.Result{Event: event, Records: out}

	if e.archiver != nil {
		if path, err := e.archiver.Write(result); err != nil {
			metrics.ArchiveFailures.Inc()
			log.Warn("Result archive failed", zap.Error(err))
		} else {
			log.Info("Result archived", zap.String("path", path))
		}
	}

	return result, nil
}

// filterAndSort keeps records at or above the relevance threshold, ordered by
// start time. Ties keep aggregation order.
func filterAndSort(scored []model.ScoredRecord, relevance int) ([]model.ScoredRecord, error) {
	type keyed struct {
		model.ScoredRecord
		start time.Time
	}

	kept := make([]keyed, 0, len(scored))
	for _, sr := range scored {
		if sr.Score.TotalScore < float64(relevance) {
			continue
		}
		start, err := model.ParseTimestamp(sr.Record.StartTime)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", sr.Record.ID, err)
		}
		kept = append(kept, keyed{ScoredRecord: sr, start: start})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].start.Before(kept[j].start)
	})

	out := make([]model.ScoredRecord, len(kept))
	for i, k := range kept {
		out[i] = k.ScoredRecord
	}
	return out, nil
}

func (e *Engine) project(sr model.ScoredRecord, risk model.RiskAssessment) (model.AnnotatedRecord, error) {
	r := sr.Record
	kind, err := model.LookupChannel(r.Channel)
	if err != nil {
		return model.AnnotatedRecord{}, err
	}

	internal := r.UserID
	if display, ok := e.cfg.Users[r.UserID]; ok && display != "" {
		internal = display
	}

	var external *string
	if name, ok := kind.ExternalIdentity(r); ok {
		external = &name
	}

	return model.AnnotatedRecord{
		InternalUser: &internal,
		ExternalUser: external,
		StartTime:    r.StartTime,
		EndTime:      r.EffectiveEndTime(),
		Channel:      r.Channel,
		Content:      r.Content,
		Score:        sr.Score,
		Risk:         risk,
	}, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidEvent):
		return "invalid"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
