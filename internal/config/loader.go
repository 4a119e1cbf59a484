package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// KnownTransports lists the transport names registered by the server.
// [Validate] warns about names outside this list.
var KnownTransports = []string{"gemini-live", "genai-live"}

// KnownAudioBackends lists the valid audio.backend values.
var KnownAudioBackends = []string{"portaudio", "null"}

// LoadDotEnv loads KEY=VALUE pairs from each existing file into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %q: %w", p, err)
		}
		slog.Debug("config: loaded env file", "path", p)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references from the environment, decodes
// the YAML in r, applies defaults and validates the result. Unknown keys are
// rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), os.Getenv)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Assistant
	a := cfg.Assistant
	if a.Transport != "" && !slices.Contains(KnownTransports, a.Transport) {
		slog.Warn("unknown assistant transport; it must be registered before sessions start",
			"transport", a.Transport,
			"known", KnownTransports,
		)
	}
	if a.Transport != "" && a.APIKey == "" {
		slog.Warn("assistant.api_key is empty; sessions will fail to connect", "transport", a.Transport)
	}
	if a.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("assistant.frame_size %d must be positive", a.FrameSize))
	}
	if a.QuietDelay < 0 {
		errs = append(errs, fmt.Errorf("assistant.quiet_delay %s must not be negative", a.QuietDelay))
	}
	if a.OpenTimeout < 0 || a.ToolTimeout < 0 || a.HistoryTimeout < 0 {
		errs = append(errs, errors.New("assistant.open_timeout, assistant.tool_timeout and assistant.history_timeout must not be negative"))
	}
	for i, f := range a.Fallbacks {
		switch {
		case f == "":
			errs = append(errs, fmt.Errorf("assistant.fallbacks[%d] is empty", i))
		case f == a.Transport:
			errs = append(errs, fmt.Errorf("assistant.fallbacks[%d] repeats the primary transport %q", i, f))
		case !slices.Contains(KnownTransports, f):
			slog.Warn("unknown fallback transport; it must be registered before sessions start", "transport", f)
		}
	}
	if a.Breaker.MaxFailures < 0 || a.Breaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("assistant.breaker values must not be negative"))
	}
	seen := make(map[string]int, len(a.Surfaces))
	for i, s := range a.Surfaces {
		if s == "" {
			errs = append(errs, fmt.Errorf("assistant.surfaces[%d] is empty", i))
			continue
		}
		if prev, ok := seen[s]; ok {
			errs = append(errs, fmt.Errorf("assistant.surfaces[%d] %q is a duplicate of assistant.surfaces[%d]", i, s, prev))
		}
		seen[s] = i
	}

	// Audio
	if cfg.Audio.Backend != "" && !slices.Contains(KnownAudioBackends, cfg.Audio.Backend) {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: portaudio, null", cfg.Audio.Backend))
	}

	// History
	if cfg.History.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("history.redis_db %d must not be negative", cfg.History.RedisDB))
	}
	if cfg.History.MaxLen < 0 {
		errs = append(errs, fmt.Errorf("history.max_len %d must not be negative", cfg.History.MaxLen))
	}

	return errors.Join(errs...)
}
