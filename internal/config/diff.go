package config

import "slices"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Assistant lists assistant settings that changed. They apply to the
	// next session.
	Assistant AssistantDiff

	// RestartRequired names changed settings that only take effect after a
	// restart.
	RestartRequired []string
}

// AssistantDiff flags changed assistant settings.
type AssistantDiff struct {
	TransportChanged    bool // transport, api_key, base_url, fallbacks or breaker
	ModelChanged        bool
	VoiceChanged        bool
	InstructionsChanged bool
	TimingChanged       bool // frame_size, quiet_delay or one of the timeouts
	SurfacesChanged     bool
}

// Any reports whether any assistant setting changed.
func (d AssistantDiff) Any() bool {
	return d.TransportChanged || d.ModelChanged || d.VoiceChanged ||
		d.InstructionsChanged || d.TimingChanged || d.SurfacesChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oa, na := old.Assistant, new.Assistant
	d.Assistant = AssistantDiff{
		TransportChanged: oa.Transport != na.Transport || oa.APIKey != na.APIKey || oa.BaseURL != na.BaseURL ||
			!slices.Equal(oa.Fallbacks, na.Fallbacks) || oa.Breaker != na.Breaker,
		ModelChanged:        oa.Model != na.Model,
		VoiceChanged:        oa.Voice != na.Voice,
		InstructionsChanged: oa.Instructions != na.Instructions,
		TimingChanged: oa.FrameSize != na.FrameSize || oa.QuietDelay != na.QuietDelay ||
			oa.OpenTimeout != na.OpenTimeout || oa.ToolTimeout != na.ToolTimeout ||
			oa.HistoryTimeout != na.HistoryTimeout,
		SurfacesChanged: !slices.Equal(oa.Surfaces, na.Surfaces),
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if (old.Server.TLS == nil) != (new.Server.TLS == nil) ||
		(old.Server.TLS != nil && *old.Server.TLS != *new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	return d
}
