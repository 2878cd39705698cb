// Package mock provides test doubles for the room package interfaces.
//
// Use Connection to drive track and data events into the orchestrator under
// test and to inspect every publication the agent makes. Frame channels are
// created with AddTrack and closed with RemoveTrack, mirroring the lifecycle
// a real transport provides.
package mock

import (
	"context"
	"sync"

	"github.com/scribantia/scribantia/pkg/room"
	"github.com/scribantia/scribantia/pkg/types"
)

// ConnectCall records a single invocation of Platform.Connect.
type ConnectCall struct {
	// RoomName is the room name passed to Connect.
	RoomName string
	// ID is the local identity passed to Connect.
	ID room.Identity
}

// Platform is a mock implementation of room.Platform.
type Platform struct {
	mu sync.Mutex

	// Conn is the Connection returned by Connect. If nil, Connect returns a
	// new default Connection.
	Conn room.Connection

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Conn, ConnectErr.
func (p *Platform) Connect(_ context.Context, roomName string, id room.Identity) (room.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{RoomName: roomName, ID: id})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Conn != nil {
		return p.Conn, nil
	}
	return NewConnection(), nil
}

// Ensure Platform implements room.Platform at compile time.
var _ room.Platform = (*Platform)(nil)

// DataPublication records a single invocation of Connection.PublishData.
type DataPublication struct {
	// Topic is the topic passed to PublishData.
	Topic string
	// Payload is a copy of the published bytes.
	Payload []byte
	// Reliable is the reliability flag passed to PublishData.
	Reliable bool
}

// Connection is a mock implementation of room.Connection.
type Connection struct {
	mu sync.Mutex

	tracks  map[string]chan types.AudioFrame
	trackCb func(room.TrackEvent)
	dataCb  func(room.DataMessage)

	// Members is the participant snapshot returned by Participants.
	Members []room.Participant

	// PublishDataErr, if non-nil, is returned by every PublishData call.
	PublishDataErr error

	// PublishChatErr, if non-nil, is returned by every PublishChat call.
	PublishChatErr error

	// DataPublications records every call to PublishData in order.
	DataPublications []DataPublication

	// ChatLines records every text passed to PublishChat in order.
	ChatLines []string

	// DisconnectCallCount is the number of times Disconnect was called.
	DisconnectCallCount int
}

// NewConnection creates an empty mock Connection.
func NewConnection() *Connection {
	return &Connection{tracks: make(map[string]chan types.AudioFrame)}
}

// AddTrack registers a new audio track for participantID, fires the
// subscribe callback, and returns the writable frame channel for the test to
// feed. buffer sets the channel capacity.
func (c *Connection) AddTrack(participantID string, buffer int) chan types.AudioFrame {
	c.mu.Lock()
	ch := make(chan types.AudioFrame, buffer)
	c.tracks[participantID] = ch
	cb := c.trackCb
	c.mu.Unlock()

	if cb != nil {
		cb(room.TrackEvent{Type: room.TrackSubscribed, ParticipantID: participantID, Frames: ch})
	}
	return ch
}

// RemoveTrack closes participantID's frame channel and fires the
// unsubscribe callback.
func (c *Connection) RemoveTrack(participantID string) {
	c.mu.Lock()
	ch, ok := c.tracks[participantID]
	if ok {
		delete(c.tracks, participantID)
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

// ReceiveData delivers msg to the registered data callback, if any.
func (c *Connection) ReceiveData(msg room.DataMessage) {
	c.mu.Lock()
	cb := c.dataCb
	c.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

// Tracks implements room.Connection.
func (c *Connection) Tracks() map[string]<-chan types.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]<-chan types.AudioFrame, len(c.tracks))
	for id, ch := range c.tracks {
		out[id] = ch
	}
	return out
}

// OnTrackChange implements room.Connection.
func (c *Connection) OnTrackChange(cb func(room.TrackEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackCb = cb
}

// OnData implements room.Connection.
func (c *Connection) OnData(cb func(room.DataMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataCb = cb
}

// PublishData records the publication and returns PublishDataErr.
func (c *Connection) PublishData(_ context.Context, topic string, payload []byte, reliable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.DataPublications = append(c.DataPublications, DataPublication{Topic: topic, Payload: cp, Reliable: reliable})
	return c.PublishDataErr
}

// PublishChat records the chat line and returns PublishChatErr.
func (c *Connection) PublishChat(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ChatLines = append(c.ChatLines, text)
	return c.PublishChatErr
}

// Participants implements room.Connection.
func (c *Connection) Participants() []room.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]room.Participant, len(c.Members))
	copy(out, c.Members)
	return out
}

// Disconnect closes all open track channels and counts the call.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DisconnectCallCount++
	for id, ch := range c.tracks {
		close(ch)
		delete(c.tracks, id)
	}
	return nil
}

// Publications returns a copy of all recorded data publications. Thread-safe.
func (c *Connection) Publications() []DataPublication {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DataPublication, len(c.DataPublications))
	copy(out, c.DataPublications)
	return out
}

// Chat returns a copy of all recorded chat lines. Thread-safe.
func (c *Connection) Chat() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.ChatLines))
	copy(out, c.ChatLines)
	return out
}

// Ensure Connection implements room.Connection at compile time.
var _ room.Connection = (*Connection)(nil)
