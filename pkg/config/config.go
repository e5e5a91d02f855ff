package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	CCS         CCSConfig
	Redis       RedisConfig
	Reranker    RerankerConfig
	LLM         LLMConfig
	Scoring     ScoringConfig
	Aggregation AggregationConfig
	Risk        RiskConfig
	Pipeline    PipelineConfig
	Archive     ArchiveConfig
	Users       []UserEntry
	Logging     LoggingConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          int
	WriteTimeout         int
	BodyLimit            int
	MaxRequestsPerMinute int
	Development          bool
}

// CCSConfig points at the upstream communication record API.
type CCSConfig struct {
	BaseURL         string
	AppKey          string
	AppSecret       string
	TokenTTLSec     int
	TimeoutSec      int
	ContentEndpoint string
	Endpoints       map[string]string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type RerankerConfig struct {
	URL        string
	Model      string
	TimeoutSec int
}

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
	MaxAttempts int
}

type ScoringConfig struct {
	DeductPerHour  float64
	BeforeRate     float64
	AfterRate      float64
	ChannelWeights map[string]int
	Concurrency    int
	StrictWeights  bool
}

type AggregationConfig struct {
	ParticipantIDs []string
	StartTime      string
	EndTime        string
	Page           int
	Size           int
	Content        bool
	Channels       []string
}

type RiskConfig struct {
	Concurrency    int
	CallTimeoutSec int
	PromptFile     string
}

type PipelineConfig struct {
	TimeoutSec int
}

type ArchiveConfig struct {
	Enabled   bool
	OutputDir string
}

// UserEntry maps an internal participant id to its display name.
type UserEntry struct {
	ID   string
	Name string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads configuration from path, or from config.yaml in the usual
// locations when path is empty. A .env file in the working directory is
// applied to the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/event-recon")
	}

	v.SetEnvPrefix("EVENT_RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.normalize()

	return &config, nil
}

// normalize restores the upper-case channel keys viper folds to lower case.
func (c *Config) normalize() {
	weights := make(map[string]int, len(c.Scoring.ChannelWeights))
	for k, w := range c.Scoring.ChannelWeights {
		weights[strings.ToUpper(k)] = w
	}
	c.Scoring.ChannelWeights = weights

	endpoints := make(map[string]string, len(c.CCS.Endpoints))
	for k, ep := range c.CCS.Endpoints {
		endpoints[strings.ToUpper(k)] = ep
	}
	c.CCS.Endpoints = endpoints

	for i, ch := range c.Aggregation.Channels {
		c.Aggregation.Channels[i] = strings.ToUpper(strings.TrimSpace(ch))
	}
}

// UserDirectory returns the id to display-name mapping.
func (c *Config) UserDirectory() map[string]string {
	dir := make(map[string]string, len(c.Users))
	for _, u := range c.Users {
		if u.ID == "" {
			continue
		}
		dir[u.ID] = u.Name
	}
	return dir
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 300)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.maxRequestsPerMinute", 30)
	v.SetDefault("server.development", false)

	v.SetDefault("ccs.baseURL", "http://localhost:9000")
	v.SetDefault("ccs.tokenTTLSec", 3600)
	v.SetDefault("ccs.timeoutSec", 30)
	v.SetDefault("ccs.contentEndpoint", "/media/unify-text")
	v.SetDefault("ccs.endpoints", map[string]string{
		"CALL":    "/call/cdr/records",
		"EMAIL":   "/email/records",
		"QTRADE":  "/qtrade/records",
		"IDEAL":   "/ideal/records",
		"TRADING": "/trading/recording/records",
	})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("reranker.url", "http://localhost:9997/v1/rerank")
	v.SetDefault("reranker.model", "bge-reranker-v2-m3")
	v.SetDefault("reranker.timeoutSec", 10)

	v.SetDefault("llm.baseURL", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("llm.model", "qwen-plus")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.maxAttempts", 1)

	v.SetDefault("scoring.deductPerHour", 20)
	v.SetDefault("scoring.beforeRate", 1)
	v.SetDefault("scoring.afterRate", 2)
	v.SetDefault("scoring.channelWeights", map[string]int{
		"CALL":    95,
		"EMAIL":   95,
		"QTRADE":  95,
		"IDEAL":   95,
		"TRADING": 95,
	})
	v.SetDefault("scoring.concurrency", 8)
	v.SetDefault("scoring.strictWeights", false)

	v.SetDefault("aggregation.page", 1)
	v.SetDefault("aggregation.size", 100)
	v.SetDefault("aggregation.content", true)
	v.SetDefault("aggregation.channels", []string{"CALL", "EMAIL", "QTRADE", "IDEAL"})

	v.SetDefault("risk.concurrency", 4)
	v.SetDefault("risk.callTimeoutSec", 120)

	v.SetDefault("pipeline.timeoutSec", 600)

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.outputDir", "./output")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
