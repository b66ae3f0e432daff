package config

import (
	"os"
	"path/filepath"
	"time"

	"makoto/internal/trace"

	"github.com/BurntSushi/toml"
)

type Config struct {
	API        APIConfig             `toml:"api"`
	Chat       ChatConfig            `toml:"chat"`
	Server     ServerConfig          `toml:"server"`
	DefaultLLM string                `toml:"default_llm"`
	LLMs       map[string]*LLMConfig `toml:"llm"`
	Services   ServicesConfig        `toml:"services"`
	DB         DBConfig              `toml:"db"`
	Templates  TemplatesConfig       `toml:"templates"`
	Trace      trace.Config          `toml:"trace"`
}

type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	Retries        int    `toml:"retries"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout is zero (no limit) unless configured; chat streams can run long.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

type ChatConfig struct {
	Temperature *float64 `toml:"temperature"`
	MaxTokens   *int     `toml:"max_tokens"`
	Modes       []string `toml:"modes"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type LLMConfig struct {
	Model      string `toml:"model"`
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	ImageModel string `toml:"image_model"`
}

type ServicesConfig struct {
	Brave BraveConfig `toml:"brave"`
}

type BraveConfig struct {
	APIKey string `toml:"api_key"`
}

type DBConfig struct {
	Path string `toml:"path"`
}

type TemplatesConfig struct {
	Path string `toml:"path"`
}

// LLM returns the default LLM entry, or nil if none is configured.
func (c *Config) LLM() *LLMConfig {
	return c.LLMs[c.DefaultLLM]
}

func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Retries: 2,
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		DefaultLLM: "openai",
		LLMs: map[string]*LLMConfig{
			"openai": {
				Model:      "gpt-4.1",
				BaseURL:    "https://api.openai.com/v1",
				ImageModel: "dall-e-3",
			},
		},
		DB: DBConfig{
			Path: defaultDBPath(),
		},
		Trace: trace.Config{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
	}
}

// Load reads the config file if present and applies environment overrides.
func Load() (*Config, error) {
	return LoadFile(Path())
}

func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MAKOTO_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if llm := cfg.LLM(); llm != nil && llm.APIKey == "" {
			llm.APIKey = v
		}
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" && cfg.Services.Brave.APIKey == "" {
		cfg.Services.Brave.APIKey = v
	}
}

func Path() string {
	dir, _ := os.UserConfigDir()
	return filepath.Join(dir, "makoto", "config.toml")
}

func defaultDBPath() string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, ".local", "share", "makoto", "makoto.db")
}
