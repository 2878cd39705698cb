// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription endpoint (e.g., the OpenAI
// audio API or a self-hosted whisper-server) and exposes a uniform one-shot
// interface: the caption pipeline performs its own windowing and voice
// activity gating, so each call submits one complete audio window and
// returns the recognised text.
//
// Implementations must be safe for concurrent use — windows from all
// subscribed speakers are transcribed through one shared provider.
package stt

import (
	"context"

	"github.com/scribantia/scribantia/pkg/types"
)

// Provider is the abstraction over any batch STT backend.
//
// Transcribe submits one audio window and returns the trimmed transcript
// text. language is a BCP-47 hint (e.g., "en", "de"); an empty string lets
// the backend auto-detect. Providers do not retry — on error the caller
// drops the window and the next window carries any missed content forward.
type Provider interface {
	Transcribe(ctx context.Context, window types.AudioWindow, language string) (string, error)
}
