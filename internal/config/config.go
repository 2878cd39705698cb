// Package config provides the configuration schema and loader for the
// captioning agent.
package config

// LogLevel controls log verbosity for the agent.
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

// Config is the root configuration structure for the captioning agent.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// selected fields can then be overridden from the environment with [ApplyEnv].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Room      RoomConfig      `yaml:"room"`
	Providers ProvidersConfig `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings for the control API server.
type ServerConfig struct {
	// ListenAddr is the TCP address the control API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// RoomConfig holds the conferencing transport connection settings.
type RoomConfig struct {
	// ServerURL is the websocket endpoint of the conferencing server
	// (e.g., "wss://conf.example.com/rooms").
	ServerURL string `yaml:"server_url"`

	// Token authenticates the agent against the conferencing server.
	// May be empty for servers without authentication.
	Token string `yaml:"token"`
}

// ProvidersConfig declares which implementation to use for speech recognition
// and translation.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by both provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. For the
	// "whisper" STT provider this is the whisper server address and is
	// required. Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-transcribe", "gpt-4o-mini").
	Model string `yaml:"model"`
}

// AgentConfig holds room-session behaviour settings.
type AgentConfig struct {
	// SendChat mirrors final captions and translations into the room chat.
	SendChat bool `yaml:"send_chat"`

	// TargetLanguage is the default translation target for participants that
	// have not sent their own preference. Empty disables translation.
	TargetLanguage string `yaml:"target_language"`

	// STTLanguage is the default recognition hint (BCP-47 or ISO 639-1).
	// Empty lets the recognizer auto-detect.
	STTLanguage string `yaml:"stt_language"`

	// CleanupIntervalSeconds is the period of the empty-room sweep.
	// Zero selects the built-in default.
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
}

// PipelineConfig tunes the per-speaker audio and caption pipeline.
// Zero values select the built-in defaults.
type PipelineConfig struct {
	// BufferTargetMs is the accumulated audio duration at which a
	// transcription window is formed.
	BufferTargetMs int `yaml:"buffer_target_ms"`

	// OverlapMs is the length of the previous window's tail prepended to the
	// next window.
	OverlapMs int `yaml:"overlap_ms"`

	// VADThreshold is the minimum RMS for a window to be transcribed.
	VADThreshold float64 `yaml:"vad_threshold"`

	// ShortHighRMS is the minimum window RMS for a short repeated transcript
	// to be accepted by the noise gate.
	ShortHighRMS float64 `yaml:"short_high_rms"`

	// RepeatWindowMs is how long a transcript is remembered for the
	// short-repeat rejection.
	RepeatWindowMs int `yaml:"repeat_window_ms"`

	// NearRepeatDistance is the maximum edit distance at which two short
	// transcripts count as repeats. Zero means exact matches only.
	NearRepeatDistance int `yaml:"near_repeat_distance"`

	// Blocklist lists transcript phrases discarded outright (hallucination
	// boilerplate like "thanks for watching"). Matched case-insensitively.
	Blocklist []string `yaml:"blocklist"`

	// MinCharsForFinal is the minimum sentence length for
	// punctuation-triggered finalization.
	MinCharsForFinal int `yaml:"min_chars_for_final"`

	// PunctGraceMs is the delay between a strong sentence ending and
	// finalization.
	PunctGraceMs int `yaml:"punct_grace_ms"`

	// PauseFinalMs is the inactivity delay after which the sentence buffer is
	// flushed.
	PauseFinalMs int `yaml:"pause_final_ms"`

	// WeakEndWords overrides the built-in list of sentence-final words that
	// suppress punctuation-triggered finalization.
	WeakEndWords []string `yaml:"weak_end_words"`
}
