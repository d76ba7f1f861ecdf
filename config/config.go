package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Telegram TelegramConfig `toml:"telegram"`
	Agent    AgentConfig    `toml:"agent"`
	Storage  StorageConfig  `toml:"storage"`
	Image    ImageConfig    `toml:"image"`
	Log      LogConfig      `toml:"log"`
}

type TelegramConfig struct {
	Token string `toml:"token"`
}

type AgentConfig struct {
	Type         string            `toml:"type"`
	Options      map[string]any    `toml:"options"`
	DefaultModel string            `toml:"default_model"`
	Models       map[string]string `toml:"models"`
}

type StorageConfig struct {
	DataDir     string `toml:"data_dir"`
	StagingDir  string `toml:"staging_dir"`
	PicturesDir string `toml:"pictures_dir"`
}

type ImageConfig struct {
	MaxDimension int `toml:"max_dimension"`
	Quality      int `toml:"quality"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// secrets are credentials that may be supplied via environment variables
// instead of the config file. Environment values win over file values.
type secrets struct {
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN"`
	AgentAPIKey   string `env:"OPENAI_API_KEY"`
	AgentBaseURL  string `env:"OPENAI_BASE_URL"`
}

// DefaultModels is the fixed alias table of supported backing models.
var DefaultModels = map[string]string{
	"claude-sonnet-3.7": "anthropic.claude-3-7-sonnet-20250219",
	"claude-sonnet-4":   "anthropic.claude-sonnet-4-20250514",
	"claude-opus-4.1":   "anthropic.claude-opus-4-1-20250805",
	"openai-mini":       "openai.gpt-4o-mini",
	"gpt-5":             "openai.gpt-5",
	"gpt-5-mini":        "openai.gpt-5-mini",
	"gpt-5-nano":        "openai.gpt-5-nano",
	"gemini-pro":        "google.gemini-2.5-pro",
	"gemini-flash":      "google.gemini-2.5-flash",
}

const DefaultModelAlias = "claude-opus-4.1"

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{
		Agent: AgentConfig{
			Type:         "openaichat",
			DefaultModel: DefaultModelAlias,
		},
		Storage: StorageConfig{
			DataDir:     "data",
			StagingDir:  "attachment",
			PicturesDir: "pictures",
		},
		Image: ImageConfig{
			MaxDimension: 512,
			Quality:      60,
		},
		Log: LogConfig{Level: "info"},
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Agent.Models) == 0 {
		cfg.Agent.Models = DefaultModels
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var s secrets
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if s.TelegramToken != "" {
		c.Telegram.Token = s.TelegramToken
	}
	if c.Agent.Options == nil {
		c.Agent.Options = make(map[string]any)
	}
	if s.AgentAPIKey != "" {
		c.Agent.Options["api_key"] = s.AgentAPIKey
	}
	if s.AgentBaseURL != "" {
		c.Agent.Options["base_url"] = s.AgentBaseURL
	}
	return nil
}

func (c *Config) validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("config: telegram.token is required (or set TELEGRAM_BOT_TOKEN)")
	}
	if c.Agent.Type == "" {
		return fmt.Errorf("config: agent.type is required")
	}
	if _, ok := c.Agent.Models[c.Agent.DefaultModel]; !ok {
		return fmt.Errorf("config: agent.default_model %q is not in the model table", c.Agent.DefaultModel)
	}
	if c.Image.MaxDimension <= 0 {
		return fmt.Errorf("config: image.max_dimension must be positive")
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("config: image.quality must be in 1..100")
	}
	return nil
}
