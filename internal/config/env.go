package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type EnvVars struct {
	AppEnv       string        `envconfig:"APP_ENV" default:"dev"`
	Port         int           `envconfig:"PORT" default:"7001"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"0s"`
	MaxBodyBytes int64         `envconfig:"MAX_BODY_BYTES" default:"4194304"`

	DefinitionsDir string `envconfig:"DEFINITIONS_DIR" default:"definitions"`

	BusWorkers int `envconfig:"BUS_WORKERS" default:"4"`

	// openrouter or ollama
	LLMProvider  string        `envconfig:"LLM_PROVIDER" default:"openrouter"`
	LLMTimeout   time.Duration `envconfig:"LLM_TIMEOUT" default:"90s"`
	LLMRateLimit float64       `envconfig:"LLM_RATE_LIMIT" default:"5"`

	OpenRouterAPIKey  string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	BossModel         string `envconfig:"VERITAS_BOSS_MODEL" default:"anthropic/claude-sonnet-4-20250514"`
	GruntModel        string `envconfig:"VERITAS_GRUNT_MODEL" default:"perplexity/sonar-pro"`

	BraveAPIKey  string  `envconfig:"BRAVE_API_KEY"`
	BraveBaseURL string  `envconfig:"BRAVE_BASE_URL" default:"https://api.search.brave.com"`
	SearchRate   float64 `envconfig:"SEARCH_RATE_LIMIT" default:"1"`

	// Ollama (local LLM) configuration
	OllamaBaseURL string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	OllamaModel   string `envconfig:"OLLAMA_MODEL" default:"qwen3:0.6b"`

	APIKey         string  `envconfig:"API_KEY"`
	RateLimit      float64 `envconfig:"HTTP_RATE_LIMIT" default:"1"`
	RateLimitBurst int     `envconfig:"HTTP_RATE_BURST" default:"60"`

	// empty keeps reports in memory
	DBPath string `envconfig:"DB_PATH"`

	PipelineTimeout time.Duration `envconfig:"PIPELINE_TIMEOUT" default:"10m"`
	JobRetention    time.Duration `envconfig:"JOB_RETENTION" default:"1h"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

func LoadEnv() (*EnvVars, error) {
	var v EnvVars
	if err := envconfig.Process("", &v); err != nil {
		return nil, err
	}
	return &v, nil
}
