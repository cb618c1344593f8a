package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Ollama   OllamaConfig
	Drafting DraftingConfig
	Schedule ScheduleConfig
	Publish  PublishConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir   string
	KVBackend string // "sqlite" or "redis"
	RedisURL  string
}

type LLMConfig struct {
	Provider    string // "openrouter", "anthropic" or "ollama"
	BaseURL     string
	Model       string
	Temperature float64
	APIKey      string
}

type OllamaConfig struct {
	BaseURL string
}

type DraftingConfig struct {
	ReplyCount      int
	VariationCount  int
	MaxItems        int
	Timeout         time.Duration
	MaxSampleTokens int
}

type ScheduleConfig struct {
	PublishTimeout time.Duration
}

type PublishConfig struct {
	Mode       string // "extension" or "webhook"
	WebhookURL string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Storage: StorageConfig{
			DataDir:   defaultDataDir(),
			KVBackend: "sqlite",
			RedisURL:  "redis://localhost:6379/0",
		},
		LLM: LLMConfig{
			Provider:    "openrouter",
			Temperature: 0.8,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		Drafting: DraftingConfig{
			ReplyCount:      3,
			VariationCount:  3,
			MaxItems:        5,
			Timeout:         60 * time.Second,
			MaxSampleTokens: 1500,
		},
		Schedule: ScheduleConfig{
			PublishTimeout: 30 * time.Second,
		},
		Publish: PublishConfig{
			Mode: "extension",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in increasing order of precedence: defaults, the
// JSON config file at $XDG_CONFIG_HOME/draftr/config.json, DRAFTR_*
// environment variables. The LLM API key falls back to the secrets file.
//
// A .env file in the working directory is loaded into the environment
// first; variables that are already set win over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env: %v\n", err)
	}
	return loadWith(newFileBackend(configFilePath()), NewSecrets())
}

func loadWith(b ConfigBackend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.LLM.APIKey == "" {
		if key, err := secrets.Get(accountLLMKey); err == nil && key != "" {
			cfg.LLM.APIKey = key
		}
	}

	return cfg, nil
}

// Validate reports settings the server cannot start with. CLI commands that
// only talk to a running server do not need a valid config.
func (c Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "openrouter", "anthropic":
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("missing LLM API key for provider %s: set DRAFTR_LLM_API_KEY or run `draftr config set llm.api_key <key>`", c.LLM.Provider))
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be openrouter, anthropic or ollama, got %q", c.LLM.Provider))
	}

	switch c.Storage.KVBackend {
	case "sqlite":
	case "redis":
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("storage.redis_url is required when storage.kv_backend is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.kv_backend must be sqlite or redis, got %q", c.Storage.KVBackend))
	}

	switch c.Publish.Mode {
	case "extension":
	case "webhook":
		if !strings.HasPrefix(c.Publish.WebhookURL, "http://") && !strings.HasPrefix(c.Publish.WebhookURL, "https://") {
			errs = append(errs, fmt.Errorf("publish.webhook_url must be an http(s) URL, got %q", c.Publish.WebhookURL))
		}
	default:
		errs = append(errs, fmt.Errorf("publish.mode must be extension or webhook, got %q", c.Publish.Mode))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Drafting.Timeout <= 0 {
		errs = append(errs, errors.New("drafting.timeout must be positive"))
	}
	if c.Schedule.PublishTimeout <= 0 {
		errs = append(errs, errors.New("schedule.publish_timeout must be positive"))
	}

	return errors.Join(errs...)
}
