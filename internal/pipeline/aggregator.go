// Package pipeline runs one streaming transcription pipeline per subscribed
// speaker track: frame aggregation with VAD gating, STT invocation, noise
// filtering, and hand-off to the sentence assembler.
package pipeline

import (
	"time"

	"github.com/scribantia/scribantia/pkg/audio"
	"github.com/scribantia/scribantia/pkg/types"
)

// Default aggregation parameters.
const (
	DefaultTargetMs     = 1800
	DefaultOverlapMs    = 300
	DefaultVADThreshold = 800
)

// Drop reasons reported by [Aggregator.Push].
const (
	DropMuted   = "muted"
	DropSilence = "silence"
)

// AggregatorConfig configures an Aggregator. Zero values select the package
// defaults.
type AggregatorConfig struct {
	// TargetMs is the accumulated duration at which a window is formed.
	TargetMs int

	// OverlapMs is the length of the previous window's tail prepended to the
	// next window, so words straddling a window boundary are recognized
	// whole. The downstream merge removes the duplicated text.
	OverlapMs int

	// VADThreshold is the minimum RMS (tail included) for a window to be
	// submitted to STT.
	VADThreshold float64
}

// Aggregator collects the audio frames of one track into overlap-prepended
// windows sized for recognition. It belongs to exactly one pipeline and is
// not safe for concurrent use.
type Aggregator struct {
	targetMs     int
	overlapMs    int
	vadThreshold float64

	frames      [][]byte
	accumulated time.Duration
	prevTail    []byte
	sampleRate  int
	channels    int
}

// NewAggregator creates an Aggregator from cfg.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	a := &Aggregator{
		targetMs:     cfg.TargetMs,
		overlapMs:    cfg.OverlapMs,
		vadThreshold: cfg.VADThreshold,
	}
	if a.targetMs <= 0 {
		a.targetMs = DefaultTargetMs
	}
	if a.overlapMs <= 0 {
		a.overlapMs = DefaultOverlapMs
	}
	if a.vadThreshold <= 0 {
		a.vadThreshold = DefaultVADThreshold
	}
	return a
}

// Push ingests one frame. When enough audio has accumulated it forms a
// window: the previous tail is prepended, the new tail is saved, and the
// window is returned unless its energy is below the VAD threshold.
//
// The returned window is nil when no window was emitted; dropReason is
// non-empty when audio was discarded (DropMuted or DropSilence). A muted
// frame clears both the accumulation and the saved tail so stale audio never
// leaks into the next window.
func (a *Aggregator) Push(frame types.AudioFrame) (win *types.AudioWindow, dropReason string) {
	if frame.Muted {
		discarded := len(a.frames) > 0 || a.prevTail != nil
		a.frames = nil
		a.accumulated = 0
		a.prevTail = nil
		if discarded {
			return nil, DropMuted
		}
		return nil, ""
	}
	if len(frame.PCM) == 0 {
		return nil, ""
	}

	a.sampleRate = frame.SampleRate
	a.channels = frame.Channels
	a.frames = append(a.frames, frame.PCM)
	a.accumulated += frame.Duration()

	if a.accumulated < time.Duration(a.targetMs)*time.Millisecond {
		return nil, ""
	}

	combined := a.combine()
	a.frames = nil
	a.accumulated = 0

	// Save the new tail before any VAD decision: a dropped window still
	// contributes its trailing audio to the next one.
	a.prevTail = tail(combined, a.overlapMs, a.sampleRate, a.channels)

	rms := audio.RMS(combined)
	if rms < a.vadThreshold {
		return nil, DropSilence
	}

	return &types.AudioWindow{
		PCM:        combined,
		SampleRate: a.sampleRate,
		Channels:   a.channels,
		RMS:        rms,
		At:         time.Now(),
	}, ""
}

// combine concatenates the saved tail and all accumulated frames into one
// buffer.
func (a *Aggregator) combine() []byte {
	size := len(a.prevTail)
	for _, f := range a.frames {
		size += len(f)
	}
	combined := make([]byte, 0, size)
	combined = append(combined, a.prevTail...)
	for _, f := range a.frames {
		combined = append(combined, f...)
	}
	return combined
}

// tail returns a copy of the last overlapMs milliseconds of pcm, or all of it
// when shorter.
func tail(pcm []byte, overlapMs, sampleRate, channels int) []byte {
	n := overlapMs * audio.BytesPerMS(sampleRate, channels)
	if n <= 0 || n > len(pcm) {
		n = len(pcm)
	}
	out := make([]byte, n)
	copy(out, pcm[len(pcm)-n:])
	return out
}
