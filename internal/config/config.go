package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	App      AppConfig      `toml:"app"`
	LLM      LLMConfig      `toml:"llm"`
	Store    StoreConfig    `toml:"store"`
	Redis    RedisConfig    `toml:"redis"`
	Session  SessionConfig  `toml:"session"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
	Upload   UploadConfig   `toml:"upload"`
}

type AppConfig struct {
	Name    string `toml:"name" env:"APP_NAME"`
	Env     string `toml:"env" env:"APP_ENV"`
	Host    string `toml:"host" env:"APP_HOST"`
	Port    int    `toml:"port" env:"APP_PORT"`
	GinMode string `toml:"gin_mode" env:"GIN_MODE"`
}

type LLMConfig struct {
	Provider    string  `toml:"provider" env:"LLM_PROVIDER"`
	BaseURL     string  `toml:"base_url" env:"LLM_BASE_URL"`
	APIKey      string  `toml:"api_key" env:"LLM_API_KEY"`
	Model       string  `toml:"model" env:"LLM_MODEL"`
	Temperature float32 `toml:"temperature" env:"LLM_TEMPERATURE"`
	// SystemPrompt overrides the built-in document assistant instructions.
	SystemPrompt string `toml:"system_prompt" env:"LLM_SYSTEM_PROMPT"`
}

type StoreConfig struct {
	Backend   string `toml:"backend" env:"STORE_BACKEND"`
	KeyPrefix string `toml:"key_prefix" env:"STORE_KEY_PREFIX"`
}

type RedisConfig struct {
	Addr     string `toml:"addr" env:"REDIS_ADDR"`
	Password string `toml:"password" env:"REDIS_PASSWORD"`
	DB       int    `toml:"db" env:"REDIS_DB"`
}

type SessionConfig struct {
	Secret string `toml:"secret" env:"SESSION_SECRET"`
	// TTL bounds token lifetime and, for redis, key lifetime. Zero disables expiry.
	TTL time.Duration `toml:"ttl" env:"SESSION_TTL"`
}

// RabbitMQConfig enables the turn publisher when URL is set.
type RabbitMQConfig struct {
	URL   string `toml:"url" env:"RABBITMQ_URL"`
	Queue string `toml:"queue" env:"RABBITMQ_TURN_QUEUE"`
}

type UploadConfig struct {
	MaxBytes int64 `toml:"max_bytes" env:"UPLOAD_MAX_BYTES"`
}

// Load builds the config from defaults, the TOML file at path (skipped when
// missing) and the process environment. An empty path falls back to
// CONFIG_FILE, then configs/config.toml.
func Load(path string) (*Config, error) {
	return load(path, env.ToMap(os.Environ()))
}

func load(path string, environ map[string]string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = environ["CONFIG_FILE"]
	}
	if path == "" {
		path = "configs/config.toml"
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse env failed: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = environ["GEMINI_API_KEY"]
	}
	cfg.applyProviderDefaults()
	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) IsDev() bool {
	return c.App.Env == "" || c.App.Env == "dev"
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		errs = append(errs, errors.New("llm api key is required (set LLM_API_KEY or GEMINI_API_KEY)"))
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis store backend needs redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.App.Port))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if c.Session.TTL < 0 {
		errs = append(errs, errors.New("session.ttl must not be negative"))
	}
	if c.RabbitMQ.URL != "" && c.RabbitMQ.Queue == "" {
		errs = append(errs, errors.New("rabbitmq.queue is required when rabbitmq.url is set"))
	}
	return errors.Join(errs...)
}

func (c *Config) applyProviderDefaults() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.LLM.Model != "" {
		return
	}
	switch c.LLM.Provider {
	case ProviderGemini:
		c.LLM.Model = "gemini-2.5-flash"
	case ProviderOpenAI:
		c.LLM.Model = "gpt-4o-mini"
	}
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "gopherai-docchat",
			Env:     "dev",
			Host:    "0.0.0.0",
			Port:    5000,
			GinMode: "debug",
		},
		LLM: LLMConfig{
			Provider:    ProviderGemini,
			Temperature: 0.2,
		},
		Store: StoreConfig{
			Backend:   BackendMemory,
			KeyPrefix: "docchat",
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		RabbitMQ: RabbitMQConfig{
			Queue: "docchat.turns",
		},
		Upload: UploadConfig{
			MaxBytes: 10 << 20,
		},
	}
}
