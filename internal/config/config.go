package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Server     ServerConfig
	OpenAI     OpenAIConfig
	Kakao      KakaoConfig
	Naver      NaverConfig
	Aggregator AggregatorConfig
	LocalData  LocalDataConfig
	Storage    StorageConfig
	Queue      QueueConfig
	Relay      RelayConfig
	Agent      AgentConfig
	Retrieval  RetrievalConfig
	Rerank     RerankConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	EmbedModel string
}

type KakaoConfig struct {
	APIKey  string
	BaseURL string
}

type NaverConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

type AggregatorConfig struct {
	BaseURL string
}

// LocalDataConfig points to government data files loaded at startup.
type LocalDataConfig struct {
	RentCSVPath string
}

type StorageConfig struct {
	DataDir string
}

type QueueConfig struct {
	Concurrency int
	RateMax     int
	RateWindow  time.Duration
	MaxAttempts int
	JobTTL      time.Duration
}

type RelayConfig struct {
	SnapshotTTL time.Duration
	Heartbeat   time.Duration
}

type AgentConfig struct {
	MaxRounds     int
	FlushInterval time.Duration
	ToolCap       int
}

type RetrievalConfig struct {
	RecallSize int
	TopK       int
}

// RerankConfig holds the hybrid reranking knobs. The values are empirically
// tuned; they are exposed as configuration rather than hard-coded so they can
// be adjusted without a rebuild.
type RerankConfig struct {
	VectorWeight   float64
	LexicalWeight  float64
	FreshnessBonus float64
	FreshDays      int
	StaleDays      int
	AreaBonus      float64
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		OpenAI: OpenAIConfig{
			Model:      "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Kakao: KakaoConfig{
			BaseURL: "https://dapi.kakao.com/v2/local",
		},
		Naver: NaverConfig{
			BaseURL: "https://openapi.naver.com/v1/search",
		},
		Aggregator: AggregatorConfig{
			BaseURL: "http://127.0.0.1:4200",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Queue: QueueConfig{
			Concurrency: 2,
			RateMax:     10,
			RateWindow:  time.Minute,
			MaxAttempts: 3,
			JobTTL:      24 * time.Hour,
		},
		Relay: RelayConfig{
			SnapshotTTL: 600 * time.Second,
			Heartbeat:   15 * time.Second,
		},
		Agent: AgentConfig{
			MaxRounds:     3,
			FlushInterval: 80 * time.Millisecond,
			ToolCap:       2,
		},
		Retrieval: RetrievalConfig{
			RecallSize: 20,
			TopK:       5,
		},
		Rerank: RerankConfig{
			VectorWeight:   0.7,
			LexicalWeight:  0.3,
			FreshnessBonus: 0.01,
			FreshDays:      90,
			StaleDays:      365,
			AreaBonus:      0.03,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend and applies SULBI_*
// environment overrides on top. Secrets (API keys) are environment-only.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key. Set it via environment variable SULBI_OPENAI_API_KEY")
	}
	if cfg.Server.Token == "" {
		// Management endpoints refuse all requests without a token; generate
		// nothing silently so the operator notices.
		return Config{}, fmt.Errorf("missing required config: API bearer token. Set it via environment variable SULBI_SERVER_TOKEN")
	}

	return cfg, nil
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading config key %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading config key %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			// Durations are stored as strings ("90s", "1m") in the backend.
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading config key %s: %w", s.key, err)
			}
			if ok {
				d, err := time.ParseDuration(v)
				if err != nil {
					return fmt.Errorf("parsing config key %s: %w", s.key, err)
				}
				s.apply(cfg, d)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw, ok := os.LookupEnv(s.env)
		if !ok || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			continue
		}
		s.apply(cfg, v)
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "sulbi-data"
		}
	}
	return filepath.Join(dir, "sulbi")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "sulbi", "config.json")
}
