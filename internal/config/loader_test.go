package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
room:
  server_url: "wss://conf.example.com/rooms"
  token: "secret"
providers:
  stt:
    name: openai
    api_key: "sk-test"
    model: gpt-4o-transcribe
  llm:
    name: openai
    api_key: "sk-test"
    model: gpt-4o-mini
agent:
  send_chat: true
  target_language: es
pipeline:
  buffer_target_ms: 1800
  overlap_ms: 300
  vad_threshold: 800
  blocklist:
    - thanks for watching
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want :8080", cfg.Server.ListenAddr)
	}
	if cfg.Room.ServerURL != "wss://conf.example.com/rooms" {
		t.Errorf("server_url = %q", cfg.Room.ServerURL)
	}
	if cfg.Providers.STT.Model != "gpt-4o-transcribe" {
		t.Errorf("stt model = %q", cfg.Providers.STT.Model)
	}
	if !cfg.Agent.SendChat {
		t.Error("agent.send_chat should be true")
	}
	if cfg.Agent.TargetLanguage != "es" {
		t.Errorf("target_language = %q, want es", cfg.Agent.TargetLanguage)
	}
	if cfg.Pipeline.BufferTargetMs != 1800 || cfg.Pipeline.OverlapMs != 300 {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if len(cfg.Pipeline.Blocklist) != 1 || cfg.Pipeline.Blocklist[0] != "thanks for watching" {
		t.Errorf("blocklist = %v", cfg.Pipeline.Blocklist)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
room:
  server_url: "wss://x"
  bogus_key: true
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("unknown yaml field should be rejected")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{LogLevel: "verbose"},
		Pipeline: PipelineConfig{BufferTargetMs: 1000, OverlapMs: 1000},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate should fail")
	}
	for _, want := range []string{"server.log_level", "room.server_url", "overlap_ms"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestValidate_WhisperRequiresBaseURL(t *testing.T) {
	cfg := &Config{
		Room:      RoomConfig{ServerURL: "wss://x"},
		Providers: ProvidersConfig{STT: ProviderEntry{Name: "whisper"}},
	}
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "base_url") {
		t.Fatalf("Validate = %v, want base_url error", err)
	}

	cfg.Providers.STT.BaseURL = "http://localhost:9000"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate with base_url: %v", err)
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("BUFFER_TARGET_MS", "2400")
	t.Setenv("VAD_THRESHOLD", "650.5")
	t.Setenv("AGENT_SEND_CHAT", "true")
	t.Setenv("BLOCKLIST_PHRASES", "thank you., thanks for watching ,")
	t.Setenv("OPENAI_STT_MODEL", "whisper-1")

	cfg := &Config{}
	ApplyEnv(cfg)

	if cfg.Pipeline.BufferTargetMs != 2400 {
		t.Errorf("BufferTargetMs = %d, want 2400", cfg.Pipeline.BufferTargetMs)
	}
	if cfg.Pipeline.VADThreshold != 650.5 {
		t.Errorf("VADThreshold = %v, want 650.5", cfg.Pipeline.VADThreshold)
	}
	if !cfg.Agent.SendChat {
		t.Error("SendChat should be true")
	}
	want := []string{"thank you.", "thanks for watching"}
	if len(cfg.Pipeline.Blocklist) != len(want) {
		t.Fatalf("Blocklist = %v, want %v", cfg.Pipeline.Blocklist, want)
	}
	for i := range want {
		if cfg.Pipeline.Blocklist[i] != want[i] {
			t.Errorf("Blocklist[%d] = %q, want %q", i, cfg.Pipeline.Blocklist[i], want[i])
		}
	}
	if cfg.Providers.STT.Model != "whisper-1" {
		t.Errorf("STT model = %q, want whisper-1", cfg.Providers.STT.Model)
	}
}

func TestApplyEnv_UnparseableIgnored(t *testing.T) {
	t.Setenv("OVERLAP_MS", "not-a-number")

	cfg := &Config{Pipeline: PipelineConfig{OverlapMs: 300}}
	ApplyEnv(cfg)

	if cfg.Pipeline.OverlapMs != 300 {
		t.Errorf("OverlapMs = %d, want 300 (unparseable value ignored)", cfg.Pipeline.OverlapMs)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []LogLevel{LogDebug, LogInfo, LogWarn, LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if LogLevel("trace").IsValid() {
		t.Error("trace should not be valid")
	}
}
