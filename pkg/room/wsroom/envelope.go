package wsroom

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope message types exchanged as websocket text frames.
const (
	envJoin         = "join"
	envLeave        = "leave"
	envData         = "data"
	envChat         = "chat"
	envParticipants = "participants"
	envTrackClosed  = "track_closed"
)

// envelope is the JSON wrapper for all text messages on the room socket.
// Fields are populated depending on Type.
type envelope struct {
	Type string `json:"type"`

	// join / participants
	Identity string `json:"identity,omitempty"`
	Metadata string `json:"metadata,omitempty"`

	// data
	Topic    string          `json:"topic,omitempty"`
	Sender   string          `json:"sender,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Reliable bool            `json:"reliable,omitempty"`

	// chat
	Text string `json:"text,omitempty"`

	// participants / track_closed
	Participants []participantInfo `json:"participants,omitempty"`
	Participant  string            `json:"participant,omitempty"`
}

// participantInfo mirrors one room member in a participants envelope.
type participantInfo struct {
	Identity string `json:"identity"`
	Metadata string `json:"metadata,omitempty"`
}

// Audio codecs carried in binary frames.
const (
	codecPCM16 byte = 0
	codecOpus  byte = 1
)

// frameFlagMuted marks a frame sent while the publisher is muted.
const frameFlagMuted byte = 1 << 0

// frameHeaderSize is the fixed part of the binary frame header:
// codec (1) + flags (1) + sample rate (4) + channels (1) + sender length (1).
const frameHeaderSize = 8

// audioFrame is the decoded form of one binary websocket message.
type audioFrame struct {
	Codec      byte
	Muted      bool
	SampleRate int
	Channels   int
	Sender     string
	Payload    []byte
}

var errShortFrame = errors.New("wsroom: binary frame too short")

// encodeFrame serializes f into the binary wire layout:
//
//	[codec][flags][sampleRate uint32 BE][channels][len(sender)][sender][payload]
func encodeFrame(f audioFrame) ([]byte, error) {
	if len(f.Sender) > 255 {
		return nil, fmt.Errorf("wsroom: sender %q longer than 255 bytes", f.Sender)
	}
	buf := make([]byte, 0, frameHeaderSize+len(f.Sender)+len(f.Payload))
	var flags byte
	if f.Muted {
		flags |= frameFlagMuted
	}
	buf = append(buf, f.Codec, flags)
	buf = binary.BigEndian.AppendUint32(buf, uint32(f.SampleRate))
	buf = append(buf, byte(f.Channels), byte(len(f.Sender)))
	buf = append(buf, f.Sender...)
	buf = append(buf, f.Payload...)
	return buf, nil
}

// decodeFrame parses one binary websocket message. The payload slice aliases
// data; callers that retain it must copy.
func decodeFrame(data []byte) (audioFrame, error) {
	if len(data) < frameHeaderSize {
		return audioFrame{}, errShortFrame
	}
	senderLen := int(data[7])
	if len(data) < frameHeaderSize+senderLen {
		return audioFrame{}, errShortFrame
	}
	return audioFrame{
		Codec:      data[0],
		Muted:      data[1]&frameFlagMuted != 0,
		SampleRate: int(binary.BigEndian.Uint32(data[2:6])),
		Channels:   int(data[6]),
		Sender:     string(data[frameHeaderSize : frameHeaderSize+senderLen]),
		Payload:    data[frameHeaderSize+senderLen:],
	}, nil
}
