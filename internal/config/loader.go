package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix marks environment variables this package owns. Anything with the
// prefix that is not in envSetters gets a warning so typos surface early.
const envPrefix = "VOXDESK_"

// envSetters maps each documented environment variable to the field it sets.
var envSetters = map[string]func(*Config, string) error{
	"VOXDESK_CONFIG":      func(c *Config, v string) error { c.OverlayPath = v; return nil },
	"VOXDESK_LISTEN_ADDR": func(c *Config, v string) error { c.Server.ListenAddr = v; return nil },
	"VOXDESK_LOG_LEVEL":   func(c *Config, v string) error { c.Server.LogLevel = LogLevel(v); return nil },
	"VOXDESK_DRAIN_WINDOW": func(c *Config, v string) error {
		return setDuration(&c.Server.DrainWindow, v)
	},

	"DEEPGRAM_API_KEY": func(c *Config, v string) error {
		c.STT.APIKey = v
		if c.TTS.APIKey == "" {
			c.TTS.APIKey = v
		}
		return nil
	},
	"VOXDESK_STT_URL":      func(c *Config, v string) error { c.STT.URL = v; return nil },
	"VOXDESK_STT_MODEL":    func(c *Config, v string) error { c.STT.Model = v; return nil },
	"VOXDESK_STT_LANGUAGE": func(c *Config, v string) error { c.STT.Language = v; return nil },
	"VOXDESK_STT_ENDPOINTING_MS": func(c *Config, v string) error {
		return setInt(&c.STT.EndpointingMS, v)
	},
	"VOXDESK_STT_UTTERANCE_END_MS": func(c *Config, v string) error {
		return setInt(&c.STT.UtteranceEndMS, v)
	},

	"VOXDESK_TTS_URL":   func(c *Config, v string) error { c.TTS.URL = v; return nil },
	"VOXDESK_TTS_VOICE": func(c *Config, v string) error { c.TTS.Voice = v; return nil },

	"OPENAI_API_KEY":       func(c *Config, v string) error { c.LLM.APIKey = v; return nil },
	"VOXDESK_LLM_PROVIDER": func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	"VOXDESK_LLM_MODEL":    func(c *Config, v string) error { c.LLM.Model = v; return nil },
	"VOXDESK_LLM_BASE_URL": func(c *Config, v string) error { c.LLM.BaseURL = v; return nil },

	"VOXDESK_POSTGRES_DSN": func(c *Config, v string) error { c.Tenant.PostgresDSN = v; return nil },
	"VOXDESK_TENANT_CACHE_TTL": func(c *Config, v string) error {
		return setDuration(&c.Tenant.CacheTTL, v)
	},

	"VOXDESK_TOOL_TIMEOUT": func(c *Config, v string) error {
		return setDuration(&c.Tools.Timeout, v)
	},
	"VOXDESK_TOOL_BUDGET": func(c *Config, v string) error { return setInt(&c.Tools.Budget, v) },

	"VOXDESK_DEBOUNCE_WINDOW": func(c *Config, v string) error {
		return setDuration(&c.Session.DebounceWindow, v)
	},
	"VOXDESK_IDLE_GUARD": func(c *Config, v string) error {
		return setDuration(&c.Session.IdleGuard, v)
	},
	"VOXDESK_END_FLUSH_TIMEOUT": func(c *Config, v string) error {
		return setDuration(&c.Session.EndFlushTimeout, v)
	},
}

func setDuration(dst *Duration, v string) error {
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", v, err)
	}
	*dst = Duration(parsed)
	return nil
}

func setInt(dst *int, v string) error {
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", v, err)
	}
	*dst = parsed
	return nil
}

// Load builds the configuration from the process environment, applies the
// YAML overlay named by VOXDESK_CONFIG if any, and validates the result.
func Load() (*Config, error) {
	cfg := Default()
	if err := applyEnviron(cfg, os.Environ()); err != nil {
		return nil, err
	}
	if cfg.OverlayPath != "" {
		f, err := os.Open(cfg.OverlayPath)
		if err != nil {
			return nil, fmt.Errorf("config: open overlay: %w", err)
		}
		defer f.Close()
		if err := applyOverlay(cfg, f); err != nil {
			return nil, fmt.Errorf("config: overlay %s: %w", cfg.OverlayPath, err)
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnviron applies recognised variables from environ, in order, onto cfg.
// Unknown VOXDESK_* variables are warned about and ignored.
func applyEnviron(cfg *Config, environ []string) error {
	var errs []error
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		set, known := envSetters[name]
		if !known {
			if strings.HasPrefix(name, envPrefix) {
				slog.Warn("ignoring unrecognized environment variable", "name", name)
			}
			continue
		}
		if err := set(cfg, value); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// applyOverlay decodes a YAML document over cfg. Fields absent from the
// document keep their current values; unknown fields are an error.
func applyOverlay(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// Validate checks cfg for errors that make the server unable to start and
// warns about settings that will degrade service.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("config: server listen address must not be empty"))
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("config: unknown log level %q", cfg.Server.LogLevel))
	}
	if cfg.Server.DrainWindow <= 0 {
		errs = append(errs, errors.New("config: drain window must be positive"))
	}

	if cfg.STT.EndpointingMS <= 0 {
		errs = append(errs, errors.New("config: endpointing threshold must be positive"))
	}
	if cfg.STT.UtteranceEndMS <= 0 {
		errs = append(errs, errors.New("config: utterance end delay must be positive"))
	}

	valid := false
	for _, name := range validLLMProviders {
		if cfg.LLM.Provider == name {
			valid = true
			break
		}
	}
	if !valid {
		errs = append(errs, fmt.Errorf("config: unknown completion provider %q, valid: %s",
			cfg.LLM.Provider, strings.Join(validLLMProviders, ", ")))
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("config: completion model must not be empty"))
	}

	if cfg.Tools.Budget < 1 {
		errs = append(errs, errors.New("config: tool budget must be at least 1"))
	}
	if cfg.Tools.Timeout <= 0 {
		errs = append(errs, errors.New("config: tool timeout must be positive"))
	}
	if cfg.Tenant.CacheTTL <= 0 {
		errs = append(errs, errors.New("config: tenant cache TTL must be positive"))
	}
	if cfg.Session.DebounceWindow <= 0 {
		errs = append(errs, errors.New("config: debounce window must be positive"))
	}
	if cfg.Session.EndFlushTimeout <= 0 {
		errs = append(errs, errors.New("config: end flush timeout must be positive"))
	}

	if cfg.STT.APIKey == "" {
		slog.Warn("no speech API key configured, recognition and synthesis will fail to connect")
	}
	if cfg.LLM.APIKey == "" && cfg.LLM.BaseURL == "" {
		slog.Warn("no completion API key configured, calls will fall back to the canned reply")
	}
	if cfg.Tenant.PostgresDSN == "" {
		slog.Warn("no tenant database configured, running on the in-memory store")
	}
	if cfg.Session.IdleGuard <= 0 {
		slog.Warn("idle guard disabled, silent calls will not be ended automatically")
	}

	return errors.Join(errs...)
}
