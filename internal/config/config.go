package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Render    RenderConfig    `yaml:"render"`
	Providers ProvidersConfig `yaml:"providers"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr          string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	APIKey        string        `yaml:"apiKey"`        // optional static API key header (X-API-Key)
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // time to wait on shutdown before forced stop
	LogLevel      string        `yaml:"logLevel"`      // debug|info|warn|error
}

// StorageConfig locates the on-disk artifacts.
type StorageConfig struct {
	Dir          string `yaml:"dir"`          // root for videos/ and music/
	DatabasePath string `yaml:"databasePath"` // optional, overrides default dir/codexia.db
}

// SchedulerConfig tunes the polling loops.
type SchedulerConfig struct {
	QueueInterval        time.Duration `yaml:"queueInterval"`        // queue processor tick
	PublishInterval      time.Duration `yaml:"publishInterval"`      // publish checker tick
	PublishLateThreshold time.Duration `yaml:"publishLateThreshold"` // lateness warning threshold
	PublishAttemptCap    int           `yaml:"publishAttemptCap"`    // stop retrying uploads after this many failures
}

// RenderConfig bounds the assembly engine's resource use.
type RenderConfig struct {
	FPS                 int     `yaml:"fps"`
	EncodeThreads       int     `yaml:"encodeThreads"` // kept low for memory-constrained hosts
	MusicVolume         float64 `yaml:"musicVolume"`   // background music level under narration
	FontFile            string  `yaml:"fontFile"`      // optional path for caption drawtext
	CaptionCharsPerLine int     `yaml:"captionCharsPerLine"`
}

// ProvidersConfig selects and configures the external generation services.
type ProvidersConfig struct {
	OpenAI       OpenAISettings       `yaml:"openai"`
	Pollinations PollinationsSettings `yaml:"pollinations"`
	MusicGen     MusicGenSettings     `yaml:"musicgen"`
	EdgeTTS      EdgeTTSSettings      `yaml:"edgetts"`
}

// OpenAISettings config for script, image and narration generation.
type OpenAISettings struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"baseUrl"`
	APIKey     string `yaml:"apiKey"` // supports env expansion
	ChatModel  string `yaml:"chatModel"`
	ImageModel string `yaml:"imageModel"`
	TTSModel   string `yaml:"ttsModel"`
}

// PollinationsSettings config for the free image fallback.
type PollinationsSettings struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"baseUrl"`
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
}

// MusicGenSettings config for HuggingFace MusicGen.
type MusicGenSettings struct {
	Enabled bool   `yaml:"enabled"`
	APIURL  string `yaml:"apiUrl"`
	Token   string `yaml:"token"` // supports env expansion
}

// EdgeTTSSettings config for the narration fallback tool.
type EdgeTTSSettings struct {
	Enabled     bool   `yaml:"enabled"`
	MaleVoice   string `yaml:"maleVoice"`
	FemaleVoice string `yaml:"femaleVoice"`
}

// YouTubeConfig holds the OAuth2 refresh-token credentials for uploads.
type YouTubeConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	RefreshToken string `yaml:"refreshToken"`
	CategoryID   string `yaml:"categoryId"`
	Privacy      string `yaml:"privacy"`
}

// Load reads YAML config from path, expands environment variables, and
// validates it. If path is empty, it will attempt to read from env var
// CODEXIA_CONFIG, then default to "config.yaml".
func Load(path string) (*Config, error) {
	if path == "" {
		if env := os.Getenv("CODEXIA_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// Expand environment variables in file content.
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	// Ensure storage dir exists
	if err := os.MkdirAll(cfg.Storage.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure storage dir: %w", err)
	}
	// Default DB path under storage dir if not set.
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = filepath.Join(cfg.Storage.Dir, "codexia.db")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}

	// Storage defaults
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data"
	}

	// Scheduler defaults
	if cfg.Scheduler.QueueInterval == 0 {
		cfg.Scheduler.QueueInterval = time.Minute
	}
	if cfg.Scheduler.PublishInterval == 0 {
		cfg.Scheduler.PublishInterval = 5 * time.Minute
	}
	if cfg.Scheduler.PublishLateThreshold == 0 {
		cfg.Scheduler.PublishLateThreshold = 10 * time.Minute
	}
	if cfg.Scheduler.PublishAttemptCap <= 0 {
		cfg.Scheduler.PublishAttemptCap = 10
	}

	// Render defaults, deliberately conservative for small hosts.
	if cfg.Render.FPS <= 0 {
		cfg.Render.FPS = 24
	}
	if cfg.Render.EncodeThreads <= 0 {
		cfg.Render.EncodeThreads = 1
	}
	if cfg.Render.MusicVolume <= 0 {
		cfg.Render.MusicVolume = 0.1
	}
	if cfg.Render.CaptionCharsPerLine <= 0 {
		cfg.Render.CaptionCharsPerLine = 40
	}

	// Provider defaults
	if cfg.Providers.OpenAI.Enabled {
		if strings.TrimSpace(cfg.Providers.OpenAI.BaseURL) == "" {
			cfg.Providers.OpenAI.BaseURL = "https://api.openai.com"
		}
		if strings.TrimSpace(cfg.Providers.OpenAI.ChatModel) == "" {
			cfg.Providers.OpenAI.ChatModel = "gpt-4o-mini"
		}
		if strings.TrimSpace(cfg.Providers.OpenAI.ImageModel) == "" {
			cfg.Providers.OpenAI.ImageModel = "dall-e-3"
		}
		if strings.TrimSpace(cfg.Providers.OpenAI.TTSModel) == "" {
			cfg.Providers.OpenAI.TTSModel = "tts-1"
		}
	}

	// YouTube defaults
	if strings.TrimSpace(cfg.YouTube.CategoryID) == "" {
		cfg.YouTube.CategoryID = "27" // Education
	}
	if strings.TrimSpace(cfg.YouTube.Privacy) == "" {
		cfg.YouTube.Privacy = "public"
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Server.LogLevel)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logLevel %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.OpenAI.Enabled && strings.TrimSpace(cfg.Providers.OpenAI.APIKey) == "" {
		return fmt.Errorf("providers.openai.apiKey is required when openai is enabled")
	}
	if cfg.Scheduler.QueueInterval < time.Second {
		return fmt.Errorf("scheduler.queueInterval too small: %s", cfg.Scheduler.QueueInterval)
	}
	if cfg.Scheduler.PublishInterval < time.Second {
		return fmt.Errorf("scheduler.publishInterval too small: %s", cfg.Scheduler.PublishInterval)
	}
	if cfg.Render.MusicVolume > 1 {
		return fmt.Errorf("render.musicVolume must be in (0,1], got %v", cfg.Render.MusicVolume)
	}
	return nil
}

// SlogLevel maps the configured level onto slog's scale.
func (c ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
