package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/scribantia/scribantia/internal/caption"
	"github.com/scribantia/scribantia/internal/observe"
	"github.com/scribantia/scribantia/pkg/provider/stt"
	"github.com/scribantia/scribantia/pkg/types"
)

// Config bundles the per-stage parameters for one speaker pipeline.
type Config struct {
	Aggregator AggregatorConfig
	Filter     caption.FilterConfig
	Assembler  caption.AssemblerConfig

	// STTLanguage resolves the recognition language hint at call time, so a
	// language_prefs update from the participant takes effect on the next
	// window. Nil means no hint.
	STTLanguage func() string
}

// Pipeline processes the audio frames of one subscribed speaker track:
// aggregation and VAD gating, transcription, noise filtering, and sentence
// assembly. Emissions are delivered through the caption.Assembler callback
// supplied at construction.
type Pipeline struct {
	speaker   string
	frames    <-chan types.AudioFrame
	provider  stt.Provider
	agg       *Aggregator
	filter    *caption.Filter
	assembler *caption.Assembler
	sttLang   func() string
	metrics   *observe.Metrics
	log       *slog.Logger
}

// New creates a Pipeline for one speaker. frames is the track's audio stream;
// emit receives every interim and final caption emission, in order.
func New(speaker string, frames <-chan types.AudioFrame, provider stt.Provider,
	cfg Config, emit func(caption.Emission), m *observe.Metrics, log *slog.Logger) *Pipeline {
	sttLang := cfg.STTLanguage
	if sttLang == nil {
		sttLang = func() string { return "" }
	}
	return &Pipeline{
		speaker:   speaker,
		frames:    frames,
		provider:  provider,
		agg:       NewAggregator(cfg.Aggregator),
		filter:    caption.NewFilter(cfg.Filter),
		assembler: caption.NewAssembler(speaker, cfg.Assembler, emit),
		sttLang:   sttLang,
		metrics:   m,
		log:       log.With(slog.String("speaker", speaker)),
	}
}

// Run consumes frames until the stream closes or ctx is cancelled, then
// flushes the assembler so a mid-sentence buffer still produces its final
// caption. STT failures drop the affected window and continue; the overlap of
// the next window carries the missed content forward.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.assembler.Close()

	p.metrics.ActivePipelines.Add(ctx, 1)
	defer p.metrics.ActivePipelines.Add(context.WithoutCancel(ctx), -1)

	p.log.Info("pipeline started")
	defer p.log.Info("pipeline stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-p.frames:
			if !ok {
				return nil
			}
			p.process(ctx, frame)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, frame types.AudioFrame) {
	win, dropReason := p.agg.Push(frame)
	if dropReason != "" {
		p.metrics.RecordWindowDropped(ctx, dropReason)
		return
	}
	if win == nil {
		return
	}

	p.metrics.WindowsEmitted.Add(ctx, 1)

	start := time.Now()
	text, err := p.provider.Transcribe(ctx, *win, p.sttLang())
	p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "stt", "transcribe")
		p.log.Error("transcription failed, dropping window", slog.Any("error", err))
		return
	}
	if text == "" {
		return
	}

	if !p.filter.Accept(text, win.RMS, time.Now()) {
		p.metrics.RecordTranscriptFiltered(ctx, "noise")
		p.log.Debug("transcript rejected by noise gate", slog.String("text", text))
		return
	}

	p.assembler.Append(text)
}
