// Package types defines the shared types used across all Scribantia packages.
//
// These types form the lingua franca between the room layer, the per-speaker
// caption pipelines, the providers, and the publisher. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// AudioFrame is a single fixed-duration frame of audio received from one
// remote participant's track. Frames are immutable once received.
type AudioFrame struct {
	// PCM holds signed 16-bit little-endian linear samples.
	PCM []byte

	// SampleRate in Hz (e.g., 48000 for conference Opus, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Muted reports whether the publishing participant had their track muted
	// when this frame was produced. Muted frames carry silence.
	Muted bool
}

// Duration returns the play time of the frame, 0 for malformed frames.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.PCM) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// AudioWindow is a target-sized concatenation of consecutive frames plus a
// prepended tail from the previous window. It lives only long enough to be
// encoded as WAV and posted to the STT endpoint.
type AudioWindow struct {
	// PCM holds signed 16-bit little-endian linear samples, tail included.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count of the PCM data.
	Channels int

	// RMS is the root-mean-square amplitude of PCM, computed at emit time.
	RMS float64

	// At is the wall clock at window emission.
	At time.Time
}

// Record type tags used on the captions data topic.
const (
	RecordTranscription = "transcription"
	RecordTranslation   = "translation"
	RecordLanguagePrefs = "language_prefs"
)

// CaptionRecord is the wire-level transcription record published on the
// captions topic. Interim records carry Final=false and may be superseded;
// exactly one Final=true record closes each sentence id.
type CaptionRecord struct {
	Type       string `json:"type"` // always "transcription"
	Speaker    string `json:"speaker"`
	Text       string `json:"text"`
	SentenceID int64  `json:"sentenceId"`
	Final      bool   `json:"final"`
	Timestamp  int64  `json:"timestamp"` // unix milliseconds
}

// TranslationRecord is the wire-level translation record published on the
// captions topic after the final transcription of the same sentence id.
type TranslationRecord struct {
	Type           string `json:"type"` // always "translation"
	Speaker        string `json:"speaker"`
	OriginalText   string `json:"originalText"`
	TranslatedText string `json:"translatedText"`
	TargetLanguage string `json:"targetLanguage"`
	SentenceID     int64  `json:"sentenceId"`
	Timestamp      int64  `json:"timestamp"` // unix milliseconds
}

// LanguagePrefs is the inbound data-channel message a participant sends on
// the captions topic to override the session language defaults for their own
// captions. Empty fields leave the corresponding default in place.
type LanguagePrefs struct {
	Type           string `json:"type"` // always "language_prefs"
	ParticipantID  string `json:"participantId"`
	STTLanguage    string `json:"sttLanguage,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
}

// ParticipantPrefs holds the resolved per-speaker language preferences.
// Zero values mean "fall back to the session defaults".
type ParticipantPrefs struct {
	STTLanguage    string
	TargetLanguage string
}
