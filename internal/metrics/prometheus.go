package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReconstructionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_recon_reconstruction_duration_seconds",
			Help:    "End-to-end reconstruction duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"ai_check"},
	)

	ReconstructionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_recon_reconstruction_total",
			Help: "Total number of reconstructions by outcome",
		},
		[]string{"status"},
	)

	RecordsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_recon_records_fetched_total",
			Help: "Records returned by the upstream record API",
		},
		[]string{"channel"},
	)

	RecordsKept = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "event_recon_records_kept",
			Help:    "Records surviving the relevance filter per reconstruction",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 200},
		},
	)

	TotalScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_recon_total_score",
			Help:    "Distribution of combined relevance scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"channel"},
	)

	ContentOracleFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "event_recon_content_oracle_failures_total",
			Help: "Rerank calls that failed and scored content as zero",
		},
	)

	RiskSentinels = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "event_recon_risk_sentinels_total",
			Help: "Risk assessments replaced by the parse-failure sentinel",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_recon_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_recon_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_recon_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ArchiveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "event_recon_archive_failures_total",
			Help: "Result dumps that could not be written",
		},
	)
)

func Init() {
	prometheus.MustRegister(ReconstructionDuration)
	prometheus.MustRegister(ReconstructionTotal)
	prometheus.MustRegister(RecordsFetched)
	prometheus.MustRegister(RecordsKept)
	prometheus.MustRegister(TotalScore)
	prometheus.MustRegister(ContentOracleFailures)
	prometheus.MustRegister(RiskSentinels)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ArchiveFailures)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
