package config

import (
	"fmt"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SULBI_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "SULBI_SERVER_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "openai.api_key", typ: kString, env: "SULBI_OPENAI_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "openai.base_url", typ: kString, env: "SULBI_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.model", typ: kString, env: "SULBI_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Model },
	},
	{
		key: "openai.embed_model", typ: kString, env: "SULBI_OPENAI_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.EmbedModel },
	},
	{
		key: "kakao.api_key", typ: kString, env: "SULBI_KAKAO_API_KEY", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Kakao.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Kakao.APIKey },
	},
	{
		key: "kakao.base_url", typ: kString, env: "SULBI_KAKAO_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Kakao.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Kakao.BaseURL },
	},
	{
		key: "naver.client_id", typ: kString, env: "SULBI_NAVER_CLIENT_ID", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Naver.ClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.Naver.ClientID },
	},
	{
		key: "naver.client_secret", typ: kString, env: "SULBI_NAVER_CLIENT_SECRET", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Naver.ClientSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Naver.ClientSecret },
	},
	{
		key: "naver.base_url", typ: kString, env: "SULBI_NAVER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Naver.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Naver.BaseURL },
	},
	{
		key: "aggregator.base_url", typ: kString, env: "SULBI_AGGREGATOR_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Aggregator.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Aggregator.BaseURL },
	},
	{
		key: "localdata.rent_csv", typ: kString, env: "SULBI_RENT_CSV",
		apply:   func(cfg *Config, v any) { cfg.LocalData.RentCSVPath = v.(string) },
		extract: func(cfg Config) any { return cfg.LocalData.RentCSVPath },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SULBI_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "queue.concurrency", typ: kInt, env: "SULBI_QUEUE_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Queue.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Queue.Concurrency },
	},
	{
		key: "queue.rate_max", typ: kInt, env: "SULBI_QUEUE_RATE_MAX",
		apply:   func(cfg *Config, v any) { cfg.Queue.RateMax = v.(int) },
		extract: func(cfg Config) any { return cfg.Queue.RateMax },
	},
	{
		key: "queue.rate_window", typ: kDuration, env: "SULBI_QUEUE_RATE_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Queue.RateWindow = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Queue.RateWindow },
	},
	{
		key: "queue.max_attempts", typ: kInt, env: "SULBI_QUEUE_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Queue.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Queue.MaxAttempts },
	},
	{
		key: "queue.job_ttl", typ: kDuration, env: "SULBI_QUEUE_JOB_TTL",
		apply:   func(cfg *Config, v any) { cfg.Queue.JobTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Queue.JobTTL },
	},
	{
		key: "relay.snapshot_ttl", typ: kDuration, env: "SULBI_RELAY_SNAPSHOT_TTL",
		apply:   func(cfg *Config, v any) { cfg.Relay.SnapshotTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Relay.SnapshotTTL },
	},
	{
		key: "relay.heartbeat", typ: kDuration, env: "SULBI_RELAY_HEARTBEAT",
		apply:   func(cfg *Config, v any) { cfg.Relay.Heartbeat = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Relay.Heartbeat },
	},
	{
		key: "agent.max_rounds", typ: kInt, env: "SULBI_AGENT_MAX_ROUNDS",
		apply:   func(cfg *Config, v any) { cfg.Agent.MaxRounds = v.(int) },
		extract: func(cfg Config) any { return cfg.Agent.MaxRounds },
	},
	{
		key: "agent.flush_interval", typ: kDuration, env: "SULBI_AGENT_FLUSH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Agent.FlushInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Agent.FlushInterval },
	},
	{
		key: "agent.tool_cap", typ: kInt, env: "SULBI_AGENT_TOOL_CAP",
		apply:   func(cfg *Config, v any) { cfg.Agent.ToolCap = v.(int) },
		extract: func(cfg Config) any { return cfg.Agent.ToolCap },
	},
	{
		key: "retrieval.recall_size", typ: kInt, env: "SULBI_RETRIEVAL_RECALL_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RecallSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.RecallSize },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "SULBI_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "log.level", typ: kString, env: "SULBI_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
}

// ShowAll returns all non-secret config key/value pairs from the current config.
func ShowAll(cfg Config) []KeyInfo {
	var result []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		result = append(result, KeyInfo{
			Key:    s.key,
			EnvVar: s.env,
			Value:  fmt.Sprintf("%v", s.extract(cfg)),
		})
	}
	return result
}

// SetKey writes a config key to the file backend.
func SetKey(key, value string) error {
	b := newFileBackend(configFilePath())

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		switch s.typ {
		case kString, kDuration:
			return b.SetString(key, value)
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %w", key, err)
			}
			return b.SetInt(key, i)
		}
	}

	return fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of valid non-secret config key names.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
