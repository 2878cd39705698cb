// Package publish serializes caption emissions as JSON data messages on the
// captions topic and optionally mirrors them into the room chat.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/scribantia/scribantia/internal/caption"
	"github.com/scribantia/scribantia/internal/observe"
	"github.com/scribantia/scribantia/pkg/room"
	"github.com/scribantia/scribantia/pkg/types"
)

// Publisher sends caption and translation records into one room. All
// publications are fire-and-forget: failures are logged and counted, never
// propagated, so a flaky data channel cannot stall the pipelines.
type Publisher struct {
	conn     room.Connection
	sendChat bool
	metrics  *observe.Metrics
	log      *slog.Logger
}

// New creates a Publisher for conn. When sendChat is true, final
// transcriptions and translations are additionally mirrored as chat lines.
func New(conn room.Connection, sendChat bool, m *observe.Metrics, log *slog.Logger) *Publisher {
	return &Publisher{conn: conn, sendChat: sendChat, metrics: m, log: log}
}

// PublishTranscription publishes one assembler emission as a transcription
// record.
func (p *Publisher) PublishTranscription(ctx context.Context, e caption.Emission) {
	record := types.CaptionRecord{
		Type:       types.RecordTranscription,
		Speaker:    e.Speaker,
		Text:       e.Text,
		SentenceID: int64(e.SentenceID),
		Final:      e.Final,
		Timestamp:  e.At.UnixMilli(),
	}
	p.publish(ctx, record, types.RecordTranscription, e.Final)

	if p.sendChat && e.Final {
		p.chat(ctx, fmt.Sprintf("[Transcript] %s: %s", e.Speaker, e.Text))
	}
}

// PublishTranslation publishes the translation of a finalized sentence. It
// must be called after the final transcription record of the same sentence id
// has been published.
func (p *Publisher) PublishTranslation(ctx context.Context, speaker, originalText, translatedText, targetLanguage string, sentenceID int, at time.Time) {
	record := types.TranslationRecord{
		Type:           types.RecordTranslation,
		Speaker:        speaker,
		OriginalText:   originalText,
		TranslatedText: translatedText,
		TargetLanguage: targetLanguage,
		SentenceID:     int64(sentenceID),
		Timestamp:      at.UnixMilli(),
	}
	p.publish(ctx, record, types.RecordTranslation, true)

	if p.sendChat {
		p.chat(ctx, fmt.Sprintf("[Translation] %s: %s", speaker, translatedText))
	}
}

func (p *Publisher) publish(ctx context.Context, record any, kind string, final bool) {
	payload, err := json.Marshal(record)
	if err != nil {
		p.log.Error("marshal caption record", slog.Any("error", err))
		return
	}
	if err := p.conn.PublishData(ctx, room.TopicCaptions, payload, true); err != nil {
		p.metrics.RecordProviderError(ctx, "room", "publish")
		p.log.Error("publish caption record",
			slog.String("kind", kind),
			slog.Any("error", err),
		)
		return
	}
	p.metrics.RecordCaptionPublished(ctx, kind, final)
}

func (p *Publisher) chat(ctx context.Context, line string) {
	if err := p.conn.PublishChat(ctx, line); err != nil {
		p.metrics.RecordProviderError(ctx, "room", "chat")
		p.log.Error("publish chat mirror", slog.Any("error", err))
	}
}
