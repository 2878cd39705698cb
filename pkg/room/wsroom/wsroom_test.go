package wsroom_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/scribantia/scribantia/pkg/room"
	"github.com/scribantia/scribantia/pkg/room/wsroom"
	"github.com/scribantia/scribantia/pkg/types"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startRoomServer launches a test WebSocket room server. The handler receives
// the accepted conn and the upgrade request.
func startRoomServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readEnvelope reads one text frame into a generic map.
func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readEnvelope: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("readEnvelope unmarshal: %v", err)
	}
	return env
}

func writeText(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeText: %v (may be expected on close)", err)
	}
}

// pcmFrame builds a binary audio frame in the wire layout for the given
// sender: raw PCM16, 16 kHz mono.
func pcmFrame(sender string, payload []byte, muted bool) []byte {
	buf := make([]byte, 0, 8+len(sender)+len(payload))
	var flags byte
	if muted {
		flags = 1
	}
	buf = append(buf, 0, flags)
	buf = binary.BigEndian.AppendUint32(buf, 16000)
	buf = append(buf, 1, byte(len(sender)))
	buf = append(buf, sender...)
	buf = append(buf, payload...)
	return buf
}

func writeBinary(t *testing.T, conn *websocket.Conn, data []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		t.Logf("writeBinary: %v (may be expected on close)", err)
	}
}

func connect(t *testing.T, srv *httptest.Server, opts ...wsroom.Option) room.Connection {
	t.Helper()
	p, err := wsroom.New(wsURL(srv), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	conn, err := p.Connect(context.Background(), "standup", room.Identity{
		Identity: "captions-agent",
		Metadata: `{"role":"agent"}`,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Disconnect() })
	return conn
}

func TestNew_RequiresServerURL(t *testing.T) {
	t.Parallel()
	if _, err := wsroom.New(""); err == nil {
		t.Fatal("New should reject an empty server URL")
	}
}

func TestConnect_SendsJoinAndAuth(t *testing.T) {
	t.Parallel()

	type joinInfo struct {
		room, identity, auth string
		env                  map[string]any
	}
	joined := make(chan joinInfo, 1)

	srv := startRoomServer(t, func(conn *websocket.Conn, r *http.Request) {
		env := readEnvelope(t, conn)
		joined <- joinInfo{
			room:     r.URL.Query().Get("room"),
			identity: r.URL.Query().Get("identity"),
			auth:     r.Header.Get("Authorization"),
			env:      env,
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	connect(t, srv, wsroom.WithToken("tok-123"))

	select {
	case j := <-joined:
		if j.room != "standup" || j.identity != "captions-agent" {
			t.Errorf("query = room %q identity %q", j.room, j.identity)
		}
		if j.auth != "Bearer tok-123" {
			t.Errorf("Authorization = %q, want Bearer tok-123", j.auth)
		}
		if j.env["type"] != "join" || j.env["identity"] != "captions-agent" {
			t.Errorf("join envelope = %v", j.env)
		}
		if meta, _ := j.env["metadata"].(string); !strings.Contains(meta, "agent") {
			t.Errorf("join metadata = %v", j.env["metadata"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for join")
	}
}

func TestPublishData_SendsEnvelope(t *testing.T) {
	t.Parallel()

	envelopes := make(chan map[string]any, 2)
	srv := startRoomServer(t, func(conn *websocket.Conn, r *http.Request) {
		for range 2 {
			envelopes <- readEnvelope(t, conn)
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	conn := connect(t, srv)
	if err := conn.PublishData(context.Background(), "captions", []byte(`{"text":"hi"}`), true); err != nil {
		t.Fatalf("PublishData: %v", err)
	}

	<-envelopes // join
	select {
	case env := <-envelopes:
		if env["type"] != "data" || env["topic"] != "captions" {
			t.Errorf("envelope = %v", env)
		}
		if env["reliable"] != true {
			t.Error("reliable flag lost")
		}
		payload, _ := env["payload"].(map[string]any)
		if payload["text"] != "hi" {
			t.Errorf("payload = %v", env["payload"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for data envelope")
	}
}

func TestPublishChat_SendsEnvelope(t *testing.T) {
	t.Parallel()

	envelopes := make(chan map[string]any, 2)
	srv := startRoomServer(t, func(conn *websocket.Conn, r *http.Request) {
		for range 2 {
			envelopes <- readEnvelope(t, conn)
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	conn := connect(t, srv)
	if err := conn.PublishChat(context.Background(), "[Transcript] alice: Hello."); err != nil {
		t.Fatalf("PublishChat: %v", err)
	}

	<-envelopes // join
	select {
	case env := <-envelopes:
		if env["type"] != "chat" || env["text"] != "[Transcript] alice: Hello." {
			t.Errorf("envelope = %v", env)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for chat envelope")
	}
}

func TestOnData_DeliversInboundMessages(t *testing.T) {
	t.Parallel()

	srv := startRoomServer(t, func(conn *websocket.Conn, r *http.Request) {
		readEnvelope(t, conn) // join
		writeText(t, conn, map[string]any{
			"type":    "data",
			"topic":   "captions",
			"sender":  "alice",
			"payload": map[string]any{"type": "language_prefs", "targetLanguage": "fr"},
		})
		// A message from the agent itself must be ignored.
		writeText(t, conn, map[string]any{
			"type":    "data",
			"topic":   "captions",
			"sender":  "captions-agent",
			"payload": map[string]any{"type": "language_prefs"},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	conn := connect(t, srv)
	received := make(chan room.DataMessage, 4)
	conn.OnData(func(msg room.DataMessage) { received <- msg })

	select {
	case msg := <-received:
		if msg.Topic != "captions" || msg.SenderID != "alice" {
			t.Errorf("msg = %+v", msg)
		}
		var prefs types.LanguagePrefs
		if err := json.Unmarshal(msg.Payload, &prefs); err != nil {
			t.Fatalf("payload unmarshal: %v", err)
		}
		if prefs.TargetLanguage != "fr" {
			t.Errorf("targetLanguage = %q, want fr", prefs.TargetLanguage)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for data message")
	}

	select {
	case msg := <-received:
		t.Errorf("own message should be ignored, got %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBinaryFrames_CreateTrackAndDeliver(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x10, 0x00, 0x20, 0x00}
	srv := startRoomServer(t, func(conn *websocket.Conn, r *http.Request) {
		readEnvelope(t, conn) // join
		writeBinary(t, conn, pcmFrame("alice", pcm, false))
		writeBinary(t, conn, pcmFrame("alice", pcm, false))
		<-conn.CloseRead(context.Background()).Done()
	})

	conn := connect(t, srv)
	events := make(chan room.TrackEvent, 4)
	conn.OnTrackChange(func(ev room.TrackEvent) { events <- ev })

	select {
	case ev := <-events:
		if ev.Type != room.TrackSubscribed || ev.ParticipantID != "alice" {
			t.Fatalf("event = %+v", ev)
		}
		frame := <-ev.Frames
		if frame.SampleRate != 16000 || frame.Channels != 1 || frame.Muted {
			t.Errorf("frame = %+v", frame)
		}
		if len(frame.PCM) != len(pcm) {
			t.Errorf("pcm length = %d, want %d", len(frame.PCM), len(pcm))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for track subscribe")
	}

	// Second frame reuses the track; no extra subscribe event.
	select {
	case ev := <-events:
		if ev.Type == room.TrackSubscribed {
			t.Errorf("duplicate subscribe event: %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTrackClosed_ClosesChannel(t *testing.T) {
	t.Parallel()

	proceed := make(chan struct{})
	srv := startRoomServer(t, func(conn *websocket.Conn, r *http.Request) {
		readEnvelope(t, conn) // join
		writeBinary(t, conn, pcmFrame("alice", []byte{1, 0}, false))
		<-proceed
		writeText(t, conn, map[string]any{"type": "track_closed", "participant": "alice"})
		<-conn.CloseRead(context.Background()).Done()
	})

	conn := connect(t, srv)
	events := make(chan room.TrackEvent, 4)
	conn.OnTrackChange(func(ev room.TrackEvent) { events <- ev })

	var frames <-chan types.AudioFrame
	select {
	case ev := <-events:
		frames = ev.Frames
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for subscribe")
	}
	close(proceed)

	select {
	case ev := <-events:
		if ev.Type != room.TrackUnsubscribed || ev.ParticipantID != "alice" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for unsubscribe")
	}

	// Channel drains the buffered frame, then reports closed.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("frame channel never closed")
		}
	}
}

func TestParticipants_SnapshotExcludesSelf(t *testing.T) {
	t.Parallel()

	srv := startRoomServer(t, func(conn *websocket.Conn, r *http.Request) {
		readEnvelope(t, conn) // join
		writeText(t, conn, map[string]any{
			"type": "participants",
			"participants": []map[string]any{
				{"identity": "captions-agent", "metadata": `{"role":"agent"}`},
				{"identity": "alice"},
				{"identity": "bob", "metadata": `{"role":"speaker"}`},
			},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	conn := connect(t, srv)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(conn.Participants()) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	members := conn.Participants()
	if len(members) != 2 {
		t.Fatalf("participants = %+v, want alice and bob", members)
	}
	for _, m := range members {
		if m.Identity == "captions-agent" {
			t.Error("local agent must be excluded from the snapshot")
		}
	}
}

func TestDisconnect_SendsLeaveAndClosesTracks(t *testing.T) {
	t.Parallel()

	leave := make(chan map[string]any, 1)
	srv := startRoomServer(t, func(conn *websocket.Conn, r *http.Request) {
		readEnvelope(t, conn) // join
		writeBinary(t, conn, pcmFrame("alice", []byte{1, 0}, false))
		for {
			env := readEnvelope(t, conn)
			if env["type"] == "leave" {
				leave <- env
				return
			}
		}
	})

	conn := connect(t, srv)
	events := make(chan room.TrackEvent, 4)
	conn.OnTrackChange(func(ev room.TrackEvent) { events <- ev })

	var frames <-chan types.AudioFrame
	select {
	case ev := <-events:
		frames = ev.Frames
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for subscribe")
	}

	if err := conn.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	// Second call is a no-op.
	if err := conn.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}

	select {
	case env := <-leave:
		if env["identity"] != "captions-agent" {
			t.Errorf("leave envelope = %v", env)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for leave envelope")
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("frame channel never closed after Disconnect")
		}
	}
}
