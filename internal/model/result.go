package model

type ScoreResult struct {
	TimeScore    float64 `json:"time_score"`
	UserScore    float64 `json:"user_score"`
	ContentScore float64 `json:"content_score"`
	TotalScore   float64 `json:"total_score"`
}

// RiskAssessment is null on both fields when no assessment ran.
type RiskAssessment struct {
	RiskLevel       *string `json:"risk_level"`
	RiskDescription *string `json:"risk_description"`
}

const (
	sentinelLevel       = "高"
	sentinelDescription = "解析失败"
)

// SentinelRisk is recorded when the oracle fails or answers with something unparseable.
func SentinelRisk() RiskAssessment {
	return NewRisk(sentinelLevel, sentinelDescription)
}

func NewRisk(level, description string) RiskAssessment {
	return RiskAssessment{RiskLevel: &level, RiskDescription: &description}
}

func (r RiskAssessment) IsSentinel() bool {
	return r.RiskLevel != nil && r.RiskDescription != nil &&
		*r.RiskLevel == sentinelLevel && *r.RiskDescription == sentinelDescription
}

type AnnotatedRecord struct {
	InternalUser *string        `json:"internal_user"`
	ExternalUser *string        `json:"external_user"`
	StartTime    string         `json:"start_time"`
	EndTime      string         `json:"end_time"`
	Channel      Channel        `json:"channel"`
	Content      string         `json:"content"`
	Score        ScoreResult    `json:"score"`
	Risk         RiskAssessment `json:"risk"`
}

type Result struct {
	Event   Event             `json:"event"`
	Records []AnnotatedRecord `json:"records"`
}

// ScoredRecord pairs a record with its score while it moves through the pipeline.
type ScoredRecord struct {
	Record Record
	Score  ScoreResult
}
