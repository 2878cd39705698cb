package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"openai", "whisper"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with environment overrides applied. It is a convenience wrapper
// around [LoadFromReader], [ApplyEnv], and [Validate].
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

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides selected fields of cfg from the environment. Only set
// variables take effect; unparseable numeric values are logged and ignored.
//
// Pipeline tuning: BUFFER_TARGET_MS, OVERLAP_MS, VAD_THRESHOLD,
// SHORT_HIGH_RMS, REPEAT_WINDOW_MS, MIN_CHARS_FOR_FINAL, PUNCT_GRACE_MS,
// PAUSE_FINAL_MS, BLOCKLIST_PHRASES and WEAK_END_WORDS (comma-separated).
// Agent behaviour: AGENT_SEND_CHAT, TARGET_LANGUAGE, STT_LANGUAGE.
// Providers: OPENAI_API_KEY, OPENAI_STT_MODEL.
func ApplyEnv(cfg *Config) {
	envInt("BUFFER_TARGET_MS", &cfg.Pipeline.BufferTargetMs)
	envInt("OVERLAP_MS", &cfg.Pipeline.OverlapMs)
	envFloat("VAD_THRESHOLD", &cfg.Pipeline.VADThreshold)
	envFloat("SHORT_HIGH_RMS", &cfg.Pipeline.ShortHighRMS)
	envInt("REPEAT_WINDOW_MS", &cfg.Pipeline.RepeatWindowMs)
	envInt("MIN_CHARS_FOR_FINAL", &cfg.Pipeline.MinCharsForFinal)
	envInt("PUNCT_GRACE_MS", &cfg.Pipeline.PunctGraceMs)
	envInt("PAUSE_FINAL_MS", &cfg.Pipeline.PauseFinalMs)
	envList("BLOCKLIST_PHRASES", &cfg.Pipeline.Blocklist)
	envList("WEAK_END_WORDS", &cfg.Pipeline.WeakEndWords)

	envBool("AGENT_SEND_CHAT", &cfg.Agent.SendChat)
	envString("TARGET_LANGUAGE", &cfg.Agent.TargetLanguage)
	envString("STT_LANGUAGE", &cfg.Agent.STTLanguage)

	envString("OPENAI_API_KEY", &cfg.Providers.STT.APIKey)
	envString("OPENAI_STT_MODEL", &cfg.Providers.STT.Model)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)

	if cfg.Providers.STT.Name == "whisper" && cfg.Providers.STT.BaseURL == "" {
		errs = append(errs, errors.New("providers.stt.base_url is required when providers.stt.name is whisper"))
	}
	if cfg.Providers.LLM.Name == "" && cfg.Agent.TargetLanguage != "" {
		slog.Warn("agent.target_language is set but providers.llm is not configured; translation will be disabled")
	}

	if cfg.Room.ServerURL == "" {
		errs = append(errs, errors.New("room.server_url is required"))
	}

	p := cfg.Pipeline
	if p.BufferTargetMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.buffer_target_ms %d must not be negative", p.BufferTargetMs))
	}
	if p.OverlapMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.overlap_ms %d must not be negative", p.OverlapMs))
	}
	if p.OverlapMs > 0 && p.BufferTargetMs > 0 && p.OverlapMs >= p.BufferTargetMs {
		errs = append(errs, fmt.Errorf("pipeline.overlap_ms %d must be smaller than pipeline.buffer_target_ms %d", p.OverlapMs, p.BufferTargetMs))
	}
	if p.VADThreshold < 0 {
		errs = append(errs, fmt.Errorf("pipeline.vad_threshold %.0f must not be negative", p.VADThreshold))
	}
	if p.NearRepeatDistance < 0 {
		errs = append(errs, fmt.Errorf("pipeline.near_repeat_distance %d must not be negative", p.NearRepeatDistance))
	}
	if p.PunctGraceMs < 0 || p.PauseFinalMs < 0 {
		errs = append(errs, errors.New("pipeline.punct_grace_ms and pipeline.pause_final_ms must not be negative"))
	}
	if p.PunctGraceMs > 0 && p.PauseFinalMs > 0 && p.PunctGraceMs >= p.PauseFinalMs {
		slog.Warn("pipeline.punct_grace_ms is not smaller than pipeline.pause_final_ms; the pause timeout will usually win",
			"punct_grace_ms", p.PunctGraceMs,
			"pause_final_ms", p.PauseFinalMs,
		)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring unparseable environment override", "key", key, "value", v)
		return
	}
	*dst = n
}

func envFloat(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring unparseable environment override", "key", key, "value", v)
		return
	}
	*dst = f
}

func envBool(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring unparseable environment override", "key", key, "value", v)
		return
	}
	*dst = b
}

// envList splits a comma-separated environment value into trimmed, non-empty
// entries.
func envList(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
