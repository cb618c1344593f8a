package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
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

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "DRAFTR_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DRAFTR_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.kv_backend", typ: kString, env: "DRAFTR_STORAGE_KV_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.KVBackend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.KVBackend },
	},
	{
		key: "storage.redis_url", typ: kString, env: "DRAFTR_STORAGE_REDIS_URL",
		apply:   func(cfg *Config, v any) { cfg.Storage.RedisURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.RedisURL },
	},
	{
		key: "llm.provider", typ: kString, env: "DRAFTR_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.base_url", typ: kString, env: "DRAFTR_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "DRAFTR_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.temperature", typ: kFloat, env: "DRAFTR_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "llm.api_key", typ: kString, env: "DRAFTR_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "ollama.base_url", typ: kString, env: "DRAFTR_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "drafting.reply_count", typ: kInt, env: "DRAFTR_DRAFTING_REPLY_COUNT",
		apply:   func(cfg *Config, v any) { cfg.Drafting.ReplyCount = v.(int) },
		extract: func(cfg Config) any { return cfg.Drafting.ReplyCount },
	},
	{
		key: "drafting.variation_count", typ: kInt, env: "DRAFTR_DRAFTING_VARIATION_COUNT",
		apply:   func(cfg *Config, v any) { cfg.Drafting.VariationCount = v.(int) },
		extract: func(cfg Config) any { return cfg.Drafting.VariationCount },
	},
	{
		key: "drafting.max_items", typ: kInt, env: "DRAFTR_DRAFTING_MAX_ITEMS",
		apply:   func(cfg *Config, v any) { cfg.Drafting.MaxItems = v.(int) },
		extract: func(cfg Config) any { return cfg.Drafting.MaxItems },
	},
	{
		key: "drafting.timeout", typ: kDuration, env: "DRAFTR_DRAFTING_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Drafting.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Drafting.Timeout },
	},
	{
		key: "drafting.max_sample_tokens", typ: kInt, env: "DRAFTR_DRAFTING_MAX_SAMPLE_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Drafting.MaxSampleTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Drafting.MaxSampleTokens },
	},
	{
		key: "schedule.publish_timeout", typ: kDuration, env: "DRAFTR_SCHEDULE_PUBLISH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Schedule.PublishTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Schedule.PublishTimeout },
	},
	{
		key: "publish.mode", typ: kString, env: "DRAFTR_PUBLISH_MODE",
		apply:   func(cfg *Config, v any) { cfg.Publish.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.Mode },
	},
	{
		key: "publish.webhook_url", typ: kString, env: "DRAFTR_PUBLISH_WEBHOOK_URL",
		apply:   func(cfg *Config, v any) { cfg.Publish.WebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.WebhookURL },
	},
	{
		key: "log.level", typ: kString, env: "DRAFTR_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parseValue converts a raw string to the Go type a key expects.
func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kString:
		return raw, nil
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return nil, fmt.Errorf("unsupported key type %d", typ)
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
