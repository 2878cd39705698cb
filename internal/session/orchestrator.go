// Package session orchestrates the captioning of one conference room: one
// transcription pipeline per subscribed audio track, per-participant language
// preferences received over the data channel, and flush-on-shutdown.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scribantia/scribantia/internal/caption"
	"github.com/scribantia/scribantia/internal/observe"
	"github.com/scribantia/scribantia/internal/pipeline"
	"github.com/scribantia/scribantia/internal/publish"
	"github.com/scribantia/scribantia/internal/translate"
	"github.com/scribantia/scribantia/pkg/provider/stt"
	"github.com/scribantia/scribantia/pkg/room"
	"github.com/scribantia/scribantia/pkg/types"
)

// AgentMetadata is attached to the agent's local participant at join time so
// clients (and the empty-room sweep) can tell the caption agent apart from
// human participants.
const AgentMetadata = `{"role":"agent","subtype":"captions"}`

// AgentIdentity returns the identity the caption agent joins rooms with.
func AgentIdentity() room.Identity {
	return room.Identity{Identity: "captions-agent", Metadata: AgentMetadata}
}

// Config holds the per-session settings shared by all speaker pipelines.
type Config struct {
	// Pipeline is the base configuration applied to every speaker pipeline.
	// STTLanguage is overridden per speaker from the Prefs store.
	Pipeline pipeline.Config

	// DefaultSTTLanguage is the recognition hint used when a participant has
	// not sent their own preference. Empty means no hint.
	DefaultSTTLanguage string

	// DefaultTargetLanguage is the translation target used when a participant
	// has not sent their own preference. Empty disables translation.
	DefaultTargetLanguage string
}

// Orchestrator captions one room. It owns the room connection, spawns a
// pipeline per subscribed audio track, and routes every assembler emission to
// the publisher (and, on finals, to the translator).
type Orchestrator struct {
	roomName   string
	conn       room.Connection
	provider   stt.Provider
	translator *translate.Translator
	publisher  *publish.Publisher
	prefs      *Prefs
	cfg        Config
	metrics    *observe.Metrics
	log        *slog.Logger

	mu      sync.Mutex
	running map[string]struct{} // participants with a live pipeline
}

// New creates an Orchestrator for an already-connected room.
func New(roomName string, conn room.Connection, provider stt.Provider,
	translator *translate.Translator, publisher *publish.Publisher,
	cfg Config, m *observe.Metrics, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		roomName:   roomName,
		conn:       conn,
		provider:   provider,
		translator: translator,
		publisher:  publisher,
		prefs:      NewPrefs(cfg.DefaultSTTLanguage, cfg.DefaultTargetLanguage),
		cfg:        cfg,
		metrics:    m,
		log:        log.With(slog.String("room", roomName)),
		running:    make(map[string]struct{}),
	}
}

// Run captions the room until ctx is cancelled, then flushes every pipeline
// (a mid-sentence buffer still produces its final caption) and disconnects.
// Errors during shutdown are logged, not returned: the session always comes
// down.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	o.metrics.ActiveSessions.Add(ctx, 1)
	defer o.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	o.log.Info("session started")

	o.conn.OnData(o.handleData)
	o.conn.OnTrackChange(func(ev room.TrackEvent) {
		if ev.Type != room.TrackSubscribed {
			return
		}
		o.startPipeline(ctx, g, ev.ParticipantID, ev.Frames)
	})
	for participantID, frames := range o.conn.Tracks() {
		o.startPipeline(ctx, g, participantID, frames)
	}

	<-ctx.Done()

	// Stop reacting to room events, then wait for every pipeline to drain
	// and flush before leaving the room.
	o.conn.OnTrackChange(func(room.TrackEvent) {})
	o.conn.OnData(func(room.DataMessage) {})
	_ = g.Wait()

	if err := o.conn.Disconnect(); err != nil {
		o.log.Error("disconnect failed", slog.Any("error", err))
	}
	o.log.Info("session stopped")
	return nil
}

// startPipeline spawns the speaker pipeline for one subscribed track. A
// duplicate subscribe event for a participant with a live pipeline is
// ignored.
func (o *Orchestrator) startPipeline(ctx context.Context, g *errgroup.Group, participantID string, frames <-chan types.AudioFrame) {
	o.mu.Lock()
	if _, exists := o.running[participantID]; exists {
		o.mu.Unlock()
		return
	}
	o.running[participantID] = struct{}{}
	o.mu.Unlock()

	cfg := o.cfg.Pipeline
	cfg.STTLanguage = func() string { return o.prefs.STTLanguage(participantID) }

	p := pipeline.New(participantID, frames, o.provider, cfg, o.emit(ctx), o.metrics, o.log)

	g.Go(func() error {
		defer func() {
			o.mu.Lock()
			delete(o.running, participantID)
			o.mu.Unlock()
		}()
		return p.Run(ctx)
	})
}

// emit returns the per-session emission hook. It runs on the assembler's
// loop goroutine, so for one speaker the final transcription is always
// published before its translation.
//
// The hook outlives ctx cancellation on purpose: the shutdown flush must
// still reach the room before disconnect.
func (o *Orchestrator) emit(ctx context.Context) func(caption.Emission) {
	publishCtx := context.WithoutCancel(ctx)
	return func(e caption.Emission) {
		o.publisher.PublishTranscription(publishCtx, e)
		if !e.Final {
			return
		}
		target := o.prefs.TargetLanguage(e.Speaker)
		recognition := o.prefs.STTLanguage(e.Speaker)
		translated, ok := o.translator.Translate(publishCtx, e.Text, recognition, target)
		if !ok {
			return
		}
		o.publisher.PublishTranslation(publishCtx, e.Speaker, e.Text, translated, target, e.SentenceID, time.Now())
	}
}

// handleData processes inbound data-channel messages. Only language_prefs
// messages on the captions topic are acted on; everything else is ignored.
func (o *Orchestrator) handleData(msg room.DataMessage) {
	if msg.Topic != room.TopicCaptions {
		return
	}
	var prefs types.LanguagePrefs
	if err := json.Unmarshal(msg.Payload, &prefs); err != nil {
		o.log.Debug("ignoring malformed data message", slog.Any("error", err))
		return
	}
	if prefs.Type != types.RecordLanguagePrefs {
		return
	}
	if prefs.ParticipantID == "" {
		prefs.ParticipantID = msg.SenderID
	}
	o.prefs.Upsert(prefs)
	o.log.Info("language preferences updated",
		slog.String("participant", prefs.ParticipantID),
		slog.String("stt_language", prefs.STTLanguage),
		slog.String("target_language", prefs.TargetLanguage),
	)
}
