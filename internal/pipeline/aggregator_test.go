package pipeline

import (
	"testing"

	"github.com/scribantia/scribantia/pkg/audio"
	"github.com/scribantia/scribantia/pkg/types"
)

const (
	testRate     = 16000
	testChannels = 1
)

// frame builds a mono 16 kHz frame of the given duration filled with a
// constant sample amplitude, so the frame's RMS equals the amplitude.
func frame(ms int, amplitude int16) types.AudioFrame {
	samples := make([]int16, testRate*ms/1000)
	for i := range samples {
		samples[i] = amplitude
	}
	return types.AudioFrame{
		PCM:        audio.Int16sToBytes(samples),
		SampleRate: testRate,
		Channels:   testChannels,
	}
}

func testAggregator() *Aggregator {
	return NewAggregator(AggregatorConfig{TargetMs: 100, OverlapMs: 20, VADThreshold: 800})
}

func TestAggregator_EmitsWindowAtTarget(t *testing.T) {
	t.Parallel()

	a := testAggregator()
	for i := 0; i < 4; i++ {
		win, drop := a.Push(frame(20, 2000))
		if win != nil || drop != "" {
			t.Fatalf("premature emission after %d frames: win=%v drop=%q", i+1, win, drop)
		}
	}

	win, drop := a.Push(frame(20, 2000))
	if drop != "" {
		t.Fatalf("unexpected drop: %q", drop)
	}
	if win == nil {
		t.Fatal("no window after reaching target duration")
	}
	wantBytes := 100 * audio.BytesPerMS(testRate, testChannels)
	if len(win.PCM) != wantBytes {
		t.Errorf("window size = %d bytes, want %d", len(win.PCM), wantBytes)
	}
	if win.SampleRate != testRate || win.Channels != testChannels {
		t.Errorf("window format = %d/%d, want %d/%d", win.SampleRate, win.Channels, testRate, testChannels)
	}
	if win.RMS < 1999 || win.RMS > 2001 {
		t.Errorf("window RMS = %f, want ~2000", win.RMS)
	}
}

func TestAggregator_PrependsPreviousTail(t *testing.T) {
	t.Parallel()

	a := testAggregator()
	pushWindow(t, a, 2000)

	win := pushWindow(t, a, 2000)
	wantBytes := 120 * audio.BytesPerMS(testRate, testChannels) // 100 ms + 20 ms tail
	if len(win.PCM) != wantBytes {
		t.Errorf("second window size = %d bytes, want %d (tail prepended)", len(win.PCM), wantBytes)
	}
}

func TestAggregator_SilentWindowDroppedButTailKept(t *testing.T) {
	t.Parallel()

	a := testAggregator()

	// Push a full window of silence: dropped by VAD.
	var win *types.AudioWindow
	var drop string
	for i := 0; i < 5; i++ {
		win, drop = a.Push(frame(20, 0))
	}
	if win != nil {
		t.Fatal("silent window emitted")
	}
	if drop != DropSilence {
		t.Fatalf("drop reason = %q, want %q", drop, DropSilence)
	}

	// The next window must still carry the silent window's tail.
	loud := pushWindow(t, a, 2000)
	wantBytes := 120 * audio.BytesPerMS(testRate, testChannels)
	if len(loud.PCM) != wantBytes {
		t.Errorf("window size = %d bytes, want %d (tail from dropped window)", len(loud.PCM), wantBytes)
	}
	tailBytes := 20 * audio.BytesPerMS(testRate, testChannels)
	for _, b := range loud.PCM[:tailBytes] {
		if b != 0 {
			t.Fatal("prepended tail is not the silent window's audio")
		}
	}
}

func TestAggregator_MutedFrameDiscardsAccumulationAndTail(t *testing.T) {
	t.Parallel()

	a := testAggregator()
	pushWindow(t, a, 2000) // leaves a saved tail

	a.Push(frame(20, 2000))
	_, drop := a.Push(types.AudioFrame{Muted: true, SampleRate: testRate, Channels: testChannels})
	if drop != DropMuted {
		t.Fatalf("drop reason = %q, want %q", drop, DropMuted)
	}

	// After the mute, a fresh window has no tail and none of the pre-mute audio.
	win := pushWindow(t, a, 1000)
	wantBytes := 100 * audio.BytesPerMS(testRate, testChannels)
	if len(win.PCM) != wantBytes {
		t.Errorf("post-mute window size = %d bytes, want %d (no tail)", len(win.PCM), wantBytes)
	}
}

func TestAggregator_MutedFrameOnEmptyStateIsSilent(t *testing.T) {
	t.Parallel()

	a := testAggregator()
	win, drop := a.Push(types.AudioFrame{Muted: true, SampleRate: testRate, Channels: testChannels})
	if win != nil || drop != "" {
		t.Errorf("muted frame with nothing accumulated: win=%v drop=%q", win, drop)
	}
}

// pushWindow pushes 20 ms frames of the given amplitude until a window is
// emitted and returns it.
func pushWindow(t *testing.T, a *Aggregator, amplitude int16) *types.AudioWindow {
	t.Helper()
	for i := 0; i < 10; i++ {
		win, drop := a.Push(frame(20, amplitude))
		if drop != "" {
			t.Fatalf("unexpected drop: %q", drop)
		}
		if win != nil {
			return win
		}
	}
	t.Fatal("no window emitted after 10 frames")
	return nil
}
