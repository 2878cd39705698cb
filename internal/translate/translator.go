// Package translate sends finalized captions to an LLM backend for
// translation into each speaker's target language.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scribantia/scribantia/internal/observe"
	"github.com/scribantia/scribantia/pkg/provider/llm"
)

// Translation requests are deterministic lookups, not creative writing: a
// low temperature keeps repeated captions translating consistently, and a
// caption never needs more than a sentence worth of output tokens.
const (
	translationTemperature = 0.1
	translationMaxTokens   = 100
)

const systemPromptFormat = "Translate the following text to %s. Return only the translation, no additional text."

// Translator wraps an LLM provider with the caption translation policy:
// same-language sentences are skipped, failures are logged and dropped, and
// the result is the model output verbatim (trimmed).
type Translator struct {
	provider llm.Provider
	metrics  *observe.Metrics
	log      *slog.Logger
}

// New creates a Translator backed by provider. A nil provider disables
// translation entirely.
func New(provider llm.Provider, m *observe.Metrics, log *slog.Logger) *Translator {
	return &Translator{provider: provider, metrics: m, log: log}
}

// Translate converts text from recognitionLang into targetLang. ok is false
// when translation is skipped (no target, or the target matches the
// recognition language) or when the LLM call fails; failures never propagate,
// the caption simply goes out untranslated.
//
// recognitionLang may be empty: recognition without a hint defaults to
// English, so an unset value is treated as "en".
func (t *Translator) Translate(ctx context.Context, text, recognitionLang, targetLang string) (translated string, ok bool) {
	if t.provider == nil {
		return "", false
	}
	if strings.TrimSpace(text) == "" || targetLang == "" {
		return "", false
	}
	if baseLang(recognitionLang) == baseLang(targetLang) {
		return "", false
	}

	start := time.Now()
	resp, err := t.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(systemPromptFormat, targetLang),
		Messages: []llm.Message{
			{Role: "user", Content: text},
		},
		Temperature: translationTemperature,
		MaxTokens:   translationMaxTokens,
	})
	t.metrics.TranslationDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		t.metrics.RecordProviderError(ctx, "llm", "translate")
		t.log.Error("translation failed, dropping",
			slog.String("target_language", targetLang),
			slog.Any("error", err),
		)
		return "", false
	}

	translated = strings.TrimSpace(resp.Content)
	if translated == "" {
		return "", false
	}
	return translated, true
}

// baseLang normalizes a BCP-47-ish tag to its lowercase primary subtag, so
// "en-US" and "en" compare equal. An empty tag normalizes to "en".
func baseLang(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return "en"
	}
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}
