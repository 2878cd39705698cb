package wsroom

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	in := audioFrame{
		Codec:      codecPCM16,
		Muted:      false,
		SampleRate: 16000,
		Channels:   1,
		Sender:     "alice",
		Payload:    []byte{1, 2, 3, 4},
	}
	data, err := encodeFrame(in)
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}

	out, err := decodeFrame(data)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if out.Codec != in.Codec || out.Muted != in.Muted {
		t.Errorf("codec/muted = %d/%v, want %d/%v", out.Codec, out.Muted, in.Codec, in.Muted)
	}
	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Errorf("format = %d/%d, want 16000/1", out.SampleRate, out.Channels)
	}
	if out.Sender != "alice" {
		t.Errorf("sender = %q, want alice", out.Sender)
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Errorf("payload = %v, want %v", out.Payload, in.Payload)
	}
}

func TestFrameMutedFlag(t *testing.T) {
	t.Parallel()

	data, err := encodeFrame(audioFrame{Codec: codecOpus, Muted: true, SampleRate: 48000, Channels: 2, Sender: "bob"})
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	out, err := decodeFrame(data)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if !out.Muted {
		t.Error("muted flag lost in round trip")
	}
	if len(out.Payload) != 0 {
		t.Errorf("payload length = %d, want 0", len(out.Payload))
	}
}

func TestDecodeFrame_TooShort(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{nil, {1}, {0, 0, 0, 0, 0, 0, 0}} {
		if _, err := decodeFrame(data); !errors.Is(err, errShortFrame) {
			t.Errorf("decodeFrame(%v) = %v, want errShortFrame", data, err)
		}
	}

	// Header promises a longer sender than the message carries.
	truncated := []byte{0, 0, 0, 0, 0x3e, 0x80, 1, 10, 'a', 'b'}
	if _, err := decodeFrame(truncated); !errors.Is(err, errShortFrame) {
		t.Errorf("decodeFrame(truncated sender) = %v, want errShortFrame", err)
	}
}

func TestEncodeFrame_SenderTooLong(t *testing.T) {
	t.Parallel()

	_, err := encodeFrame(audioFrame{Sender: strings.Repeat("x", 256)})
	if err == nil {
		t.Fatal("encodeFrame should reject senders longer than 255 bytes")
	}
}
