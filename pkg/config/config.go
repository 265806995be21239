// Package config loads service configuration from a YAML file with
// environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Policy    PolicyConfig    `yaml:"policy"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Generator GeneratorConfig `yaml:"generator"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port      string `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
	RateRPS   int    `yaml:"rate_rps"`
	RateBurst int    `yaml:"rate_burst"`
	LogLevel  string `yaml:"log_level"`
}

// PolicyConfig locates the rules document.
type PolicyConfig struct {
	Path string `yaml:"path"`
}

// AnalysisConfig holds pipeline tuning.
type AnalysisConfig struct {
	Authority         string        `yaml:"authority"`
	RAGEnabled        bool          `yaml:"rag_enabled"`
	TopK              int           `yaml:"top_k"`
	ArbiterTopN       int           `yaml:"arbiter_top_n"`
	StageTimeout      time.Duration `yaml:"stage_timeout"`
	RetrievalEndpoint string        `yaml:"retrieval_endpoint"`
}

// GeneratorConfig holds text generation backend settings.
type GeneratorConfig struct {
	APIKey     string  `yaml:"api_key"`
	Model      string  `yaml:"model"`
	BaseURL    string  `yaml:"base_url"`
	MaxRetries int     `yaml:"max_retries"`
	RateRPS    float64 `yaml:"rate_rps"`
	RateBurst  int     `yaml:"rate_burst"`
	RedisAddr  string  `yaml:"redis_addr"`
}

// LedgerConfig holds evidence ledger settings.
type LedgerConfig struct {
	Path        string `yaml:"path"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	GCSBucket   string `yaml:"gcs_bucket"`
	GCSPrefix   string `yaml:"gcs_prefix"`
}

// TelemetryConfig holds OTLP export settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
	Environment  string  `yaml:"environment"`
}

// Default returns the standalone development configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:      "8080",
			RateRPS:   10,
			RateBurst: 20,
			LogLevel:  "INFO",
		},
		Policy: PolicyConfig{Path: "rules.yaml"},
		Analysis: AnalysisConfig{
			Authority:    "rules",
			RAGEnabled:   true,
			TopK:         5,
			ArbiterTopN:  8,
			StageTimeout: 10 * time.Second,
		},
		Generator: GeneratorConfig{
			Model:      "gpt-4o-mini",
			MaxRetries: 3,
			RateRPS:    2,
			RateBurst:  5,
		},
		Ledger:    LedgerConfig{Path: "receipts.jsonl"},
		Telemetry: TelemetryConfig{SampleRate: 1.0, Environment: "development"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Generator.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Generator.BaseURL = v
	}
	if v := os.Getenv("POLICY_PATH"); v != "" {
		cfg.Policy.Path = v
	}
	if v := os.Getenv("LEDGER_PATH"); v != "" {
		cfg.Ledger.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Ledger.PostgresDSN = v
	}
	if v := os.Getenv("RETRIEVAL_ENDPOINT"); v != "" {
		cfg.Analysis.RetrievalEndpoint = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Generator.RedisAddr = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		cfg.Telemetry.Enabled = true
	}
}
