package risk

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/event-recon/backend/internal/llm"
	"github.com/event-recon/backend/internal/metrics"
	"github.com/event-recon/backend/internal/model"
	"github.com/event-recon/backend/pkg/logger"
)

//go:embed prompts/evaluate_record_risk.md
var defaultPrompt string

const (
	userInstruction = "执行'记录风险评估任务'"
	recordSeparator = "\n\n---\n\n"

	outputFormat = "```json\n" +
		"{\n" +
		"    \"risk_level\": \"高/中/低\",\n" +
		"    \"risk_description\": \"详细描述记录中存在的风险，包括风险类型、影响范围、可能的后果等。\"\n" +
		"}\n" +
		"```"
)

// Completer is the chat completion the assessor depends on.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type Config struct {
	Concurrency int
	CallTimeout time.Duration
	// PromptFile replaces the embedded prompt template when set.
	PromptFile string
}

type Assessor struct {
	llm         Completer
	template    string
	concurrency int
	callTimeout time.Duration
}

func NewAssessor(completer Completer, cfg Config) (*Assessor, error) {
	template := defaultPrompt
	if cfg.PromptFile != "" {
		raw, err := os.ReadFile(cfg.PromptFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read risk prompt: %w", err)
		}
		template = string(raw)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	return &Assessor{
		llm:         completer,
		template:    template,
		concurrency: cfg.Concurrency,
		callTimeout: cfg.CallTimeout,
	}, nil
}

var validLevels = map[string]bool{"高": true, "中": true, "低": true}

type assessment struct {
	RiskLevel       string `json:"risk_level"`
	RiskDescription string `json:"risk_description"`
}

// BuildPrompt fills the template with the context of every kept record and the
// target record.
func (a *Assessor) BuildPrompt(target model.Record, all []model.Record) string {
	contents := make([]string, len(all))
	for i, r := range all {
		contents[i] = r.Content
	}

	return strings.NewReplacer(
		"{records_content}", strings.Join(contents, recordSeparator),
		"{record_content}", target.Content,
		"{output_format}", outputFormat,
	).Replace(a.template)
}

// Assess rates one record. Oracle and parse failures yield the sentinel.
func (a *Assessor) Assess(ctx context.Context, target model.Record, all []model.Record) model.RiskAssessment {
	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}

	resp, err := a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: a.BuildPrompt(target, all),
		UserPrompt:   userInstruction,
	})
	if err != nil {
		metrics.RiskSentinels.Inc()
		logger.Error("Risk assessment failed",
			zap.String("record_id", target.ID),
			zap.String("channel", string(target.Channel)),
			zap.Error(err),
		)
		return model.SentinelRisk()
	}

	risk, err := ParseAssessment(resp.Content)
	if err != nil {
		metrics.RiskSentinels.Inc()
		logger.Warn("Risk assessment unparseable",
			zap.String("record_id", target.ID),
			zap.String("response", resp.Content),
			zap.Error(err),
		)
		return model.SentinelRisk()
	}
	return risk
}

// AssessAll rates every record against the full set. Output order matches recs.
func (a *Assessor) AssessAll(ctx context.Context, recs []model.Record) []model.RiskAssessment {
	out := make([]model.RiskAssessment, len(recs))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, r := range recs {
		g.Go(func() error {
			out[i] = a.Assess(ctx, r, recs)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// ParseAssessment decodes a model reply, tolerating a fenced json block.
func ParseAssessment(raw string) (model.RiskAssessment, error) {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var parsed assessment
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return model.RiskAssessment{}, fmt.Errorf("decode risk assessment: %w", err)
	}
	level := strings.TrimSpace(parsed.RiskLevel)
	if !validLevels[level] {
		return model.RiskAssessment{}, fmt.Errorf("risk assessment has invalid risk_level %q", parsed.RiskLevel)
	}
	return model.NewRisk(level, parsed.RiskDescription), nil
}
