package publish

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/scribantia/scribantia/internal/caption"
	"github.com/scribantia/scribantia/internal/observe"
	roommock "github.com/scribantia/scribantia/pkg/room/mock"
	"github.com/scribantia/scribantia/pkg/types"
)

func newPublisher(t *testing.T, conn *roommock.Connection, sendChat bool) *Publisher {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return New(conn, sendChat, m, slog.Default())
}

func TestPublishTranscription_WireFormat(t *testing.T) {
	t.Parallel()

	conn := roommock.NewConnection()
	p := newPublisher(t, conn, false)

	at := time.UnixMilli(1700000000123)
	p.PublishTranscription(context.Background(), caption.Emission{
		Speaker:    "alice",
		Text:       "Hello world.",
		SentenceID: 3,
		Final:      true,
		At:         at,
	})

	pubs := conn.Publications()
	if len(pubs) != 1 {
		t.Fatalf("publications = %d, want 1", len(pubs))
	}
	if pubs[0].Topic != "captions" {
		t.Errorf("topic = %q, want captions", pubs[0].Topic)
	}
	if !pubs[0].Reliable {
		t.Error("caption records must be published reliably")
	}

	var rec types.CaptionRecord
	if err := json.Unmarshal(pubs[0].Payload, &rec); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	want := types.CaptionRecord{
		Type:       "transcription",
		Speaker:    "alice",
		Text:       "Hello world.",
		SentenceID: 3,
		Final:      true,
		Timestamp:  1700000000123,
	}
	if rec != want {
		t.Errorf("record = %+v, want %+v", rec, want)
	}
}

func TestPublishTranslation_WireFormat(t *testing.T) {
	t.Parallel()

	conn := roommock.NewConnection()
	p := newPublisher(t, conn, false)

	at := time.UnixMilli(1700000000456)
	p.PublishTranslation(context.Background(), "alice", "Hello world.", "Hola mundo.", "es", 3, at)

	pubs := conn.Publications()
	if len(pubs) != 1 {
		t.Fatalf("publications = %d, want 1", len(pubs))
	}
	var rec types.TranslationRecord
	if err := json.Unmarshal(pubs[0].Payload, &rec); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	want := types.TranslationRecord{
		Type:           "translation",
		Speaker:        "alice",
		OriginalText:   "Hello world.",
		TranslatedText: "Hola mundo.",
		TargetLanguage: "es",
		SentenceID:     3,
		Timestamp:      1700000000456,
	}
	if rec != want {
		t.Errorf("record = %+v, want %+v", rec, want)
	}
}

func TestChatMirror(t *testing.T) {
	t.Parallel()

	conn := roommock.NewConnection()
	p := newPublisher(t, conn, true)
	ctx := context.Background()

	p.PublishTranscription(ctx, caption.Emission{
		Speaker: "bob", Text: "still talking", SentenceID: 1, Final: false, At: time.Now(),
	})
	p.PublishTranscription(ctx, caption.Emission{
		Speaker: "bob", Text: "All done now.", SentenceID: 1, Final: true, At: time.Now(),
	})
	p.PublishTranslation(ctx, "bob", "All done now.", "Tout est fini.", "fr", 1, time.Now())

	chat := conn.Chat()
	if len(chat) != 2 {
		t.Fatalf("chat lines = %d, want 2 (interims are not mirrored)", len(chat))
	}
	if chat[0] != "[Transcript] bob: All done now." {
		t.Errorf("chat[0] = %q", chat[0])
	}
	if chat[1] != "[Translation] bob: Tout est fini." {
		t.Errorf("chat[1] = %q", chat[1])
	}
}

func TestChatMirrorDisabledByDefault(t *testing.T) {
	t.Parallel()

	conn := roommock.NewConnection()
	p := newPublisher(t, conn, false)

	p.PublishTranscription(context.Background(), caption.Emission{
		Speaker: "bob", Text: "All done now.", SentenceID: 1, Final: true, At: time.Now(),
	})

	if n := len(conn.Chat()); n != 0 {
		t.Errorf("chat lines = %d, want 0", n)
	}
}

func TestPublishFailureDoesNotPanic(t *testing.T) {
	t.Parallel()

	conn := roommock.NewConnection()
	conn.PublishDataErr = errors.New("data channel closed")
	conn.PublishChatErr = errors.New("chat closed")
	p := newPublisher(t, conn, true)

	// Fire-and-forget: failures are swallowed.
	p.PublishTranscription(context.Background(), caption.Emission{
		Speaker: "carol", Text: "Hello.", SentenceID: 1, Final: true, At: time.Now(),
	})
	p.PublishTranslation(context.Background(), "carol", "Hello.", "Hola.", "es", 1, time.Now())
}
