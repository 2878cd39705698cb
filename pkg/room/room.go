// Package room defines the interfaces and types for conference-room
// connectivity consumed by the captioning agent.
//
// The two primary abstractions are:
//
//   - [Platform] — joins a named room as a participant and returns a [Connection].
//   - [Connection] — represents an active presence in that room, giving callers
//     per-track audio streams, the data channel, and participant lifecycle events.
//
// Implementations of these interfaces are provided by transport-specific
// adapter packages (e.g., room/wsroom). The interfaces are intentionally
// narrow to keep the caption pipeline decoupled from conferencing SDK details.
//
// This package lives under pkg/ because external code (third-party room
// adapters) is expected to implement [Platform] and [Connection].
package room

import (
	"context"

	"github.com/scribantia/scribantia/pkg/types"
)

// TopicCaptions is the data-channel topic on which caption records are
// published and language preference messages are received.
const TopicCaptions = "captions"

// TrackEventType classifies audio-track lifecycle events emitted by a
// [Connection].
type TrackEventType int

const (
	// TrackSubscribed is emitted when a remote participant's audio track
	// becomes available for consumption.
	TrackSubscribed TrackEventType = iota

	// TrackUnsubscribed is emitted when a remote audio track goes away
	// (participant left or unpublished the track).
	TrackUnsubscribed
)

// String returns the human-readable name of the event type.
func (e TrackEventType) String() string {
	switch e {
	case TrackSubscribed:
		return "SUBSCRIBED"
	case TrackUnsubscribed:
		return "UNSUBSCRIBED"
	default:
		return "UNKNOWN"
	}
}

// TrackEvent describes an audio-track lifecycle change in the room.
// Callbacks registered via [Connection.OnTrackChange] receive values of this type.
type TrackEvent struct {
	// Type indicates whether the track was subscribed or unsubscribed.
	Type TrackEventType

	// ParticipantID is the stable identity of the remote participant that
	// publishes the track. This is the SpeakerId attached to every caption.
	ParticipantID string

	// Frames delivers the track's audio. Non-nil only for [TrackSubscribed];
	// the channel is closed when the track is unsubscribed or the connection
	// terminates.
	Frames <-chan types.AudioFrame
}

// DataMessage is an application payload received on the room's data channel.
type DataMessage struct {
	// Topic is the logical channel the sender addressed.
	Topic string

	// SenderID is the identity of the publishing participant.
	SenderID string

	// Payload is the raw message body, conventionally UTF-8 JSON.
	Payload []byte
}

// Participant describes one connected room member.
type Participant struct {
	// Identity is the participant's stable identifier.
	Identity string

	// Metadata is the opaque metadata string attached at join time.
	// Agents attach a JSON role descriptor here.
	Metadata string
}

// Identity describes the local participant the agent joins the room as.
type Identity struct {
	// Identity is the agent's participant identifier within the room.
	Identity string

	// Metadata is attached to the local participant so that clients can
	// distinguish the caption agent from human participants.
	Metadata string
}

// Connection represents an active presence in one conference room.
//
// A Connection is obtained by calling [Platform.Connect] and remains valid
// until [Connection.Disconnect] is called. Frame channels delivered through
// [TrackEvent] are closed automatically when their track ends or the
// connection terminates.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// Tracks returns a snapshot of the currently subscribed remote audio
	// tracks keyed by participant identity. Callers that need to react to
	// later arrivals should register [Connection.OnTrackChange] instead.
	Tracks() map[string]<-chan types.AudioFrame

	// OnTrackChange registers cb as the callback invoked for every track
	// subscribe/unsubscribe. Only one callback may be registered at a time;
	// subsequent calls replace the previous registration. The callback is
	// invoked on an internal goroutine — callers must not block.
	OnTrackChange(cb func(TrackEvent))

	// OnData registers cb as the callback invoked for every inbound data
	// message. Same single-registration and non-blocking rules as
	// OnTrackChange.
	OnData(cb func(DataMessage))

	// PublishData sends payload on the given topic to the other participants.
	// When reliable is true the transport retransmits until delivery.
	PublishData(ctx context.Context, topic string, payload []byte, reliable bool) error

	// PublishChat sends a plain chat line visible in the room's chat surface.
	PublishChat(ctx context.Context, text string) error

	// Participants returns a snapshot of the currently connected remote
	// participants (the local agent excluded).
	Participants() []Participant

	// Disconnect cleanly leaves the room and closes all frame channels.
	// It is safe to call Disconnect more than once; subsequent calls are
	// no-ops and return nil.
	Disconnect() error
}

// Platform is the entry point for a conferencing provider.
// Implementations wrap transport-specific SDKs and expose a uniform
// [Connection] abstraction.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the named room as the given identity and returns an
	// active [Connection]. The supplied ctx governs the lifetime of the
	// connection attempt only; once joined, the Connection remains alive
	// until [Connection.Disconnect] is called explicitly.
	Connect(ctx context.Context, roomName string, id Identity) (Connection, error)
}
