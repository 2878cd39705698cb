// Package openai provides an stt.Provider backed by the OpenAI audio
// transcription API.
//
// Each audio window is wrapped in a WAV container and submitted as a
// one-shot transcription request. The provider does not retry; a failed
// window is dropped by the caller and the overlap of the next window
// carries any missed content forward.
//
// Usage:
//
//	p, err := openai.New(apiKey, openai.WithModel("gpt-4o-transcribe"))
//	text, err := p.Transcribe(ctx, window, "en")
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/scribantia/scribantia/pkg/audio"
	"github.com/scribantia/scribantia/pkg/provider/stt"
	"github.com/scribantia/scribantia/pkg/types"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = "gpt-4o-transcribe"

// defaultTimeout bounds one transcription round-trip. Windows arrive every
// couple of seconds, so a stuck request must not stall the pipeline for long.
const defaultTimeout = 30 * time.Second

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI audio API.
// A single Provider is shared by all speaker pipelines; the underlying
// client supports concurrent calls.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel sets the transcription model id. Defaults to [DefaultModel].
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// OpenAI-compatible gateways.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI transcription Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}

	cfg := &config{model: DefaultModel, timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.model == "" {
		cfg.model = DefaultModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: cfg.model}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, window types.AudioWindow, language string) (string, error) {
	wav := audio.EncodeWAV(window.PCM, window.SampleRate, window.Channels)

	params := oai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
	}
	if language != "" {
		params.Language = param.NewOpt(language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
