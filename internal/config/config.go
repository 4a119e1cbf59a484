// Package config provides the configuration schema, loader and transport
// registry for the voxdesk server.
package config

import "time"

// LogLevel controls log verbosity.
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

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr  = ":8080"
	DefaultTransport   = "gemini-live"
	DefaultModel       = "gemini-2.0-flash-live-001"
	DefaultVoice       = "Puck"
	DefaultFrameSize   = 4096
	DefaultQuietDelay  = 2 * time.Second
	DefaultAudioDriver = "portaudio"
	DefaultStream      = "voxdesk:messages"
	DefaultStreamLen   = 10000
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Assistant AssistantConfig `yaml:"assistant"`
	Audio     AudioConfig     `yaml:"audio"`
	Store     StoreConfig     `yaml:"store"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists host patterns allowed to open the UI websocket
	// from another origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AssistantConfig configures the voice sessions. Changes apply to the next
// session that starts.
type AssistantConfig struct {
	// Transport names a factory in the [Registry] ("gemini-live" or
	// "genai-live").
	Transport string `yaml:"transport"`

	// APIKey authenticates with the remote model. Usually written as
	// ${GEMINI_API_KEY}.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the service endpoint. Empty uses the transport's
	// default.
	BaseURL string `yaml:"base_url"`

	Model        string `yaml:"model"`
	Voice        string `yaml:"voice"`
	Instructions string `yaml:"instructions"`

	// FrameSize is the number of captured samples per outbound frame.
	FrameSize int `yaml:"frame_size"`

	// QuietDelay is how long "speaking" persists after a turn completes.
	QuietDelay time.Duration `yaml:"quiet_delay"`

	// OpenTimeout bounds the transport handshake. Zero uses the session
	// default.
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// ToolTimeout bounds a single tool execution. Zero uses the session
	// default.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// HistoryTimeout bounds a single transcript history write. Zero uses the
	// session default.
	HistoryTimeout time.Duration `yaml:"history_timeout"`

	// Surfaces lists the UI surfaces allowed to start a session. Empty
	// allows any.
	Surfaces []string `yaml:"surfaces"`

	// Fallbacks names transports tried in order when the primary fails to
	// open. They share the primary's credentials and model.
	Fallbacks []string `yaml:"fallbacks"`

	// Breaker tunes the per-transport circuit breaker.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker guarding each transport. Zero
// fields use the breaker defaults.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failed opens that trip the
	// breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long a tripped breaker rejects opens before it
	// lets a probe through.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// AudioConfig selects the capture and playback backend.
type AudioConfig struct {
	// Backend is "portaudio" or "null".
	Backend string `yaml:"backend"`

	// InputDevice and OutputDevice select devices by name. Empty uses the
	// system default.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`
}

// StoreConfig configures record and history persistence.
type StoreConfig struct {
	// PostgresDSN enables the PostgreSQL store. Empty keeps records in
	// memory.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// HistoryConfig configures the Redis message stream.
type HistoryConfig struct {
	// RedisAddr enables the stream sink. Empty disables it.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Stream        string `yaml:"stream"`
	MaxLen        int64  `yaml:"max_len"`
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Assistant
	if a.Transport == "" {
		a.Transport = DefaultTransport
	}
	if a.Model == "" {
		a.Model = DefaultModel
	}
	if a.Voice == "" {
		a.Voice = DefaultVoice
	}
	if a.FrameSize == 0 {
		a.FrameSize = DefaultFrameSize
	}
	if a.QuietDelay == 0 {
		a.QuietDelay = DefaultQuietDelay
	}

	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = DefaultAudioDriver
	}

	if cfg.History.Stream == "" {
		cfg.History.Stream = DefaultStream
	}
	if cfg.History.MaxLen == 0 {
		cfg.History.MaxLen = DefaultStreamLen
	}
}
