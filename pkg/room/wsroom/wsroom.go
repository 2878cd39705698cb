// Package wsroom implements the room.Platform and room.Connection interfaces
// over a websocket conferencing transport.
//
// The wire protocol has two message kinds: JSON text envelopes for control
// traffic (join/leave, data channel, chat, participant snapshots) and binary
// frames carrying per-participant audio, either raw little-endian PCM16 or
// Opus packets that are decoded locally with one decoder per publisher.
package wsroom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/scribantia/scribantia/pkg/audio"
	"github.com/scribantia/scribantia/pkg/room"
	"github.com/scribantia/scribantia/pkg/types"
)

const (
	// trackBuffer is the per-track frame channel capacity. At 20 ms frames
	// this holds about five seconds of audio before frames are dropped.
	trackBuffer = 256

	// opusFrameMs is the packet duration the transport uses for Opus audio.
	opusFrameMs = 20

	writeTimeout = 10 * time.Second
)

// Option is a functional option for configuring the Platform.
type Option func(*Platform)

// WithToken sets the bearer token sent when dialing the room server.
func WithToken(token string) Option {
	return func(p *Platform) { p.token = token }
}

// Platform implements room.Platform over a websocket room server.
type Platform struct {
	serverURL string
	token     string
}

// New creates a Platform dialing the given websocket endpoint
// (e.g., "wss://conf.example.com/rooms").
func New(serverURL string, opts ...Option) (*Platform, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("wsroom: serverURL must not be empty")
	}
	if _, err := url.Parse(serverURL); err != nil {
		return nil, fmt.Errorf("wsroom: parse server URL: %w", err)
	}
	p := &Platform{serverURL: serverURL}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Connect joins roomName as id and starts the read loop. The returned
// Connection stays alive until Disconnect regardless of ctx.
func (p *Platform) Connect(ctx context.Context, roomName string, id room.Identity) (room.Connection, error) {
	u, err := url.Parse(p.serverURL)
	if err != nil {
		return nil, fmt.Errorf("wsroom: parse server URL: %w", err)
	}
	q := u.Query()
	q.Set("room", roomName)
	q.Set("identity", id.Identity)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	if p.token != "" {
		headers.Set("Authorization", "Bearer "+p.token)
	}

	ws, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("wsroom: dial %q: %w", roomName, err)
	}

	c := newConn(ws, id.Identity)

	join := envelope{Type: envJoin, Identity: id.Identity, Metadata: id.Metadata}
	if err := c.writeEnvelope(ctx, join); err != nil {
		_ = ws.Close(websocket.StatusInternalError, "join failed")
		return nil, fmt.Errorf("wsroom: send join: %w", err)
	}

	go c.readLoop()
	return c, nil
}

var _ room.Platform = (*Platform)(nil)

// conn implements room.Connection on one websocket.
type conn struct {
	ws      *websocket.Conn
	localID string

	readCtx    context.Context
	cancelRead context.CancelFunc

	mu       sync.Mutex
	tracks   map[string]chan types.AudioFrame
	decoders map[string]*gopus.Decoder
	members  []room.Participant
	trackCb  func(room.TrackEvent)
	dataCb   func(room.DataMessage)
	closed   bool

	closeOnce sync.Once
	readDone  chan struct{}
}

func newConn(ws *websocket.Conn, localID string) *conn {
	readCtx, cancel := context.WithCancel(context.Background())
	return &conn{
		ws:         ws,
		localID:    localID,
		readCtx:    readCtx,
		cancelRead: cancel,
		tracks:     make(map[string]chan types.AudioFrame),
		decoders:   make(map[string]*gopus.Decoder),
		readDone:   make(chan struct{}),
	}
}

// readLoop pumps websocket messages until the socket dies or Disconnect
// cancels it. All frame channels are closed on exit so consumers drain and
// flush.
func (c *conn) readLoop() {
	defer close(c.readDone)
	defer c.closeAllTracks()

	for {
		kind, data, err := c.ws.Read(c.readCtx)
		if err != nil {
			return
		}
		switch kind {
		case websocket.MessageText:
			c.handleEnvelope(data)
		case websocket.MessageBinary:
			c.handleFrame(data)
		}
	}
}

func (c *conn) handleEnvelope(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Type {
	case envData:
		c.mu.Lock()
		cb := c.dataCb
		c.mu.Unlock()
		if cb != nil && env.Sender != c.localID {
			cb(room.DataMessage{Topic: env.Topic, SenderID: env.Sender, Payload: env.Payload})
		}

	case envParticipants:
		members := make([]room.Participant, 0, len(env.Participants))
		for _, pi := range env.Participants {
			if pi.Identity == c.localID {
				continue
			}
			members = append(members, room.Participant{Identity: pi.Identity, Metadata: pi.Metadata})
		}
		c.mu.Lock()
		c.members = members
		c.mu.Unlock()

	case envTrackClosed:
		c.closeTrack(env.Participant)
	}
}

// handleFrame routes one binary audio message to its publisher's track
// channel, creating the track (and firing the subscribe callback) on first
// sight. A full channel drops the frame; the overlap of the next window
// absorbs small gaps.
func (c *conn) handleFrame(data []byte) {
	f, err := decodeFrame(data)
	if err != nil || f.Sender == "" || f.Sender == c.localID {
		return
	}

	var pcm []byte
	switch f.Codec {
	case codecPCM16:
		pcm = make([]byte, len(f.Payload))
		copy(pcm, f.Payload)
	case codecOpus:
		if !f.Muted {
			pcm, err = c.decodeOpus(f)
			if err != nil {
				return
			}
		}
	default:
		return
	}

	frame := types.AudioFrame{
		PCM:        pcm,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		Muted:      f.Muted,
	}

	ch, cb, subscribed := c.trackFor(f.Sender)
	if ch == nil {
		return
	}
	if subscribed && cb != nil {
		cb(room.TrackEvent{Type: room.TrackSubscribed, ParticipantID: f.Sender, Frames: ch})
	}
	select {
	case ch <- frame:
	default:
	}
}

// decodeOpus decodes one Opus packet with the publisher's stateful decoder.
func (c *conn) decodeOpus(f audioFrame) ([]byte, error) {
	c.mu.Lock()
	dec, ok := c.decoders[f.Sender]
	if !ok {
		var err error
		dec, err = gopus.NewDecoder(f.SampleRate, f.Channels)
		if err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("wsroom: create opus decoder: %w", err)
		}
		c.decoders[f.Sender] = dec
	}
	c.mu.Unlock()

	frameSize := f.SampleRate * opusFrameMs / 1000
	samples, err := dec.Decode(f.Payload, frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("wsroom: opus decode: %w", err)
	}
	return audio.Int16sToBytes(samples), nil
}

// trackFor returns the frame channel for participantID, creating it when
// first seen. subscribed is true exactly once per track so the subscribe
// callback fires a single time.
func (c *conn) trackFor(participantID string) (chan types.AudioFrame, func(room.TrackEvent), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, false
	}
	if ch, ok := c.tracks[participantID]; ok {
		return ch, nil, false
	}
	ch := make(chan types.AudioFrame, trackBuffer)
	c.tracks[participantID] = ch
	return ch, c.trackCb, true
}

func (c *conn) closeTrack(participantID string) {
	c.mu.Lock()
	ch, ok := c.tracks[participantID]
	if ok {
		delete(c.tracks, participantID)
		delete(c.decoders, participantID)
	}
	cb := c.trackCb
	c.mu.Unlock()

	if !ok {
		return
	}
	close(ch)
	if cb != nil {
		cb(room.TrackEvent{Type: room.TrackUnsubscribed, ParticipantID: participantID})
	}
}

func (c *conn) closeAllTracks() {
	c.mu.Lock()
	tracks := c.tracks
	c.tracks = make(map[string]chan types.AudioFrame)
	c.decoders = make(map[string]*gopus.Decoder)
	cb := c.trackCb
	c.mu.Unlock()

	for id, ch := range tracks {
		close(ch)
		if cb != nil {
			cb(room.TrackEvent{Type: room.TrackUnsubscribed, ParticipantID: id})
		}
	}
}

// Tracks implements room.Connection.
func (c *conn) Tracks() map[string]<-chan types.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]<-chan types.AudioFrame, len(c.tracks))
	for id, ch := range c.tracks {
		out[id] = ch
	}
	return out
}

// OnTrackChange implements room.Connection.
func (c *conn) OnTrackChange(cb func(room.TrackEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackCb = cb
}

// OnData implements room.Connection.
func (c *conn) OnData(cb func(room.DataMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataCb = cb
}

// PublishData implements room.Connection.
func (c *conn) PublishData(ctx context.Context, topic string, payload []byte, reliable bool) error {
	env := envelope{
		Type:     envData,
		Topic:    topic,
		Sender:   c.localID,
		Payload:  json.RawMessage(payload),
		Reliable: reliable,
	}
	if err := c.writeEnvelope(ctx, env); err != nil {
		return fmt.Errorf("wsroom: publish data on %q: %w", topic, err)
	}
	return nil
}

// PublishChat implements room.Connection.
func (c *conn) PublishChat(ctx context.Context, text string) error {
	env := envelope{Type: envChat, Sender: c.localID, Text: text}
	if err := c.writeEnvelope(ctx, env); err != nil {
		return fmt.Errorf("wsroom: publish chat: %w", err)
	}
	return nil
}

// Participants implements room.Connection. It returns the members from the
// most recent participants envelope, the local agent excluded.
func (c *conn) Participants() []room.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]room.Participant, len(c.members))
	copy(out, c.members)
	return out
}

// Disconnect implements room.Connection. It sends a best-effort leave
// envelope, closes the socket, and waits for the read loop (which closes all
// frame channels) to exit.
func (c *conn) Disconnect() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		leaveCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		_ = c.writeEnvelope(leaveCtx, envelope{Type: envLeave, Identity: c.localID})
		cancel()

		c.cancelRead()
		_ = c.ws.Close(websocket.StatusNormalClosure, "leaving room")
		<-c.readDone
	})
	return nil
}

func (c *conn) writeEnvelope(ctx context.Context, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(writeCtx, websocket.MessageText, data)
}

var _ room.Connection = (*conn)(nil)
