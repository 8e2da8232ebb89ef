// Package config provides the typed configuration schema and loader for the
// voxdesk server. Values come from the documented environment variables, with
// an optional YAML overlay file (VOXDESK_CONFIG) applied on top.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the voxdesk server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML overlays can use "500ms" notation.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration for the voxdesk server.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	STT     STTConfig     `yaml:"stt"`
	TTS     TTSConfig     `yaml:"tts"`
	LLM     LLMConfig     `yaml:"llm"`
	Tenant  TenantConfig  `yaml:"tenant"`
	Tools   ToolsConfig   `yaml:"tools"`
	Session SessionConfig `yaml:"session"`

	// OverlayPath is the YAML overlay file, from VOXDESK_CONFIG. Not itself
	// settable from the overlay.
	OverlayPath string `yaml:"-"`
}

// ServerConfig holds network, logging, and shutdown settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// DrainWindow bounds the graceful-shutdown wait for live calls.
	DrainWindow Duration `yaml:"drain_window"`
}

// STTConfig configures the streaming recognition provider.
type STTConfig struct {
	// APIKey authenticates against Deepgram, from DEEPGRAM_API_KEY.
	APIKey string `yaml:"api_key"`

	// URL overrides the provider WebSocket endpoint.
	URL string `yaml:"url"`

	Model    string `yaml:"model"`
	Language string `yaml:"language"`

	// EndpointingMS is the endpoint-silence threshold in milliseconds.
	EndpointingMS int `yaml:"endpointing_ms"`

	// UtteranceEndMS is the utterance-end delay in milliseconds.
	UtteranceEndMS int `yaml:"utterance_end_ms"`
}

// TTSConfig configures the streaming synthesis provider.
type TTSConfig struct {
	// APIKey authenticates against Deepgram. Defaults to the STT key.
	APIKey string `yaml:"api_key"`

	// URL overrides the provider WebSocket endpoint.
	URL string `yaml:"url"`

	// Voice is the default voice name or alias for tenants without one.
	Voice string `yaml:"voice"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	// Provider selects the backend: "openai" uses the native client, any
	// other recognised name goes through the any-llm bridge.
	Provider string `yaml:"provider"`

	// APIKey authenticates against the provider, from OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`

	Model string `yaml:"model"`

	// BaseURL overrides the provider's default endpoint, e.g. for proxies.
	BaseURL string `yaml:"base_url"`
}

// TenantConfig configures the tenant store and resolver cache.
type TenantConfig struct {
	// PostgresDSN is the tenant database connection string. Empty runs the
	// server on an in-memory store, for development.
	PostgresDSN string `yaml:"postgres_dsn"`

	// CacheTTL is how long resolved snapshots stay fresh.
	CacheTTL Duration `yaml:"cache_ttl"`
}

// ToolsConfig bounds tool execution for tenants without explicit limits.
type ToolsConfig struct {
	// Timeout is the per-call soft limit.
	Timeout Duration `yaml:"timeout"`

	// Budget is the per-turn tool call cap.
	Budget int `yaml:"budget"`
}

// SessionConfig tunes the per-call timers.
type SessionConfig struct {
	// DebounceWindow coalesces rapid utterance-end signals.
	DebounceWindow Duration `yaml:"debounce_window"`

	// IdleGuard ends a call after this long without audio either way.
	IdleGuard Duration `yaml:"idle_guard"`

	// EndFlushTimeout bounds the wait for the final synthesis flush.
	EndFlushTimeout Duration `yaml:"end_flush_timeout"`
}

// validLLMProviders lists the backends the completion layer can construct.
var validLLMProviders = []string{"openai", "anthropic", "gemini", "ollama", "mistral", "groq"}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:  ":8080",
			LogLevel:    LogInfo,
			DrainWindow: Duration(10 * time.Second),
		},
		STT: STTConfig{
			Model:          "nova-2",
			Language:       "en",
			EndpointingMS:  2500,
			UtteranceEndMS: 2000,
		},
		TTS: TTSConfig{
			Voice: "asteria",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Tenant: TenantConfig{
			CacheTTL: Duration(5 * time.Minute),
		},
		Tools: ToolsConfig{
			Timeout: Duration(400 * time.Millisecond),
			Budget:  2,
		},
		Session: SessionConfig{
			DebounceWindow:  Duration(500 * time.Millisecond),
			IdleGuard:       Duration(30 * time.Second),
			EndFlushTimeout: Duration(8 * time.Second),
		},
	}
}
