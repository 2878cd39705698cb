// Package caption implements the per-speaker text pipeline that turns raw
// transcript slices into interim and final caption emissions: overlap-aware
// merging, noise filtering, and sentence assembly with punctuation-and-pause
// finalization heuristics.
package caption

import (
	"strings"
	"sync"
	"time"
)

// Default assembly parameters.
const (
	DefaultMinCharsForFinal = 24
	DefaultPunctGrace       = 900 * time.Millisecond
	DefaultPauseFinal       = 2500 * time.Millisecond
)

// DefaultWeakEndWords are sentence-final words that usually signal the
// recognizer punctuated mid-thought; a sentence ending on one of these is not
// finalized by punctuation alone.
var DefaultWeakEndWords = []string{
	"doing", "going", "is", "are", "was", "were",
	"about", "with", "to", "for", "like",
}

// strongEndings are the runes that mark a sentence as plausibly complete.
const strongEndings = `.!?…)]"。！？`

// Emission is a single caption produced by an Assembler. Interim emissions
// (Final=false) may be superseded by later emissions carrying the same
// SentenceID; a final emission closes its id.
type Emission struct {
	Speaker    string
	Text       string
	SentenceID int
	Final      bool
	At         time.Time
}

// AssemblerConfig configures an Assembler. Zero values select the package
// defaults.
type AssemblerConfig struct {
	// WeakEndWords overrides DefaultWeakEndWords when non-nil.
	WeakEndWords []string

	// MinCharsForFinal is the minimum buffer length for punctuation-triggered
	// finalization. Shorter buffers finalize only via the pause timeout.
	MinCharsForFinal int

	// PunctGrace is the delay between seeing a strong sentence ending and
	// declaring the sentence final, allowing a continuation to arrive first.
	PunctGrace time.Duration

	// PauseFinal is the inactivity delay after which the buffer is flushed:
	// as a final when a punctuation grace is already pending, otherwise as an
	// interim.
	PauseFinal time.Duration
}

// Assembler accumulates transcript slices for a single speaker into
// sentences. It runs its own event loop goroutine; Append and Close may be
// called from any goroutine, and the emit callback always runs on the loop,
// so emissions for one speaker are strictly ordered.
type Assembler struct {
	speaker string
	emit    func(Emission)

	weakEnds   map[string]struct{}
	minChars   int
	punctGrace time.Duration
	pauseFinal time.Duration

	in      chan string
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// Loop-owned state. Only the run goroutine touches these.
	buffer      string
	sentenceID  int
	nextID      int
	lastInterim string
	pauseTimer  *time.Timer
	pauseC      <-chan time.Time
	graceTimer  *time.Timer
	graceC      <-chan time.Time
}

// NewAssembler creates an Assembler for the given speaker and starts its
// event loop. emit is invoked synchronously from the loop for every interim
// and final emission; it must not call back into the Assembler.
func NewAssembler(speaker string, cfg AssemblerConfig, emit func(Emission)) *Assembler {
	weak := cfg.WeakEndWords
	if weak == nil {
		weak = DefaultWeakEndWords
	}
	a := &Assembler{
		speaker:    speaker,
		emit:       emit,
		weakEnds:   make(map[string]struct{}, len(weak)),
		minChars:   cfg.MinCharsForFinal,
		punctGrace: cfg.PunctGrace,
		pauseFinal: cfg.PauseFinal,
		in:         make(chan string, 16),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		nextID:     1,
	}
	for _, w := range weak {
		a.weakEnds[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	if a.minChars <= 0 {
		a.minChars = DefaultMinCharsForFinal
	}
	if a.punctGrace <= 0 {
		a.punctGrace = DefaultPunctGrace
	}
	if a.pauseFinal <= 0 {
		a.pauseFinal = DefaultPauseFinal
	}
	go a.run()
	return a
}

// Append hands a filtered transcript slice to the assembler. It never blocks
// after Close; slices arriving then are dropped.
func (a *Assembler) Append(slice string) {
	select {
	case a.in <- slice:
	case <-a.stopped:
	}
}

// Close finalizes any non-empty buffer and stops the event loop. It blocks
// until the final emission (if any) has been delivered. Safe to call more
// than once.
func (a *Assembler) Close() {
	a.once.Do(func() { close(a.stop) })
	<-a.stopped
}

// run is the per-speaker event loop. Timer fires are ordinary messages in the
// same select as incoming slices, so "new slice arrives" and "timer fires"
// never race: whichever case wins observes a consistent state.
func (a *Assembler) run() {
	defer close(a.stopped)
	for {
		select {
		case slice := <-a.in:
			a.append(slice)
		case <-a.pauseC:
			a.pauseC = nil
			a.onPause()
		case <-a.graceC:
			a.graceC = nil
			a.flush(true)
		case <-a.stop:
			a.drain()
			a.cancelPause()
			a.cancelGrace()
			a.flush(true)
			return
		}
	}
}

// drain merges any slices still queued at shutdown so they are included in
// the final flush.
func (a *Assembler) drain() {
	for {
		select {
		case slice := <-a.in:
			a.append(slice)
		default:
			return
		}
	}
}

func (a *Assembler) append(slice string) {
	merged := strings.TrimSpace(Merge(a.buffer, slice))
	if merged == "" {
		return
	}
	if a.buffer == "" && a.sentenceID == 0 {
		a.sentenceID = a.nextID
		a.nextID++
	}
	a.buffer = merged

	a.cancelPause()

	if a.endsStrong() {
		if a.graceC == nil {
			a.graceTimer = time.NewTimer(a.punctGrace)
			a.graceC = a.graceTimer.C
		}
	} else {
		a.cancelGrace()
	}

	a.pauseTimer = time.NewTimer(a.pauseFinal)
	a.pauseC = a.pauseTimer.C
}

// onPause handles the inactivity timeout. A pending punctuation grace means
// the sentence already looked complete, so the pause promotes it to final
// immediately. Otherwise the buffer is published as an interim so listeners
// see text during a long utterance.
func (a *Assembler) onPause() {
	if a.graceC != nil {
		a.cancelGrace()
		a.flush(true)
		return
	}
	if a.buffer == "" || a.buffer == a.lastInterim {
		return
	}
	a.lastInterim = a.buffer
	a.emit(Emission{
		Speaker:    a.speaker,
		Text:       a.buffer,
		SentenceID: a.sentenceID,
		Final:      false,
		At:         time.Now(),
	})
}

// flush publishes the current buffer. When final is true the sentence id is
// closed and the buffer cleared; the next accepted slice starts a new
// sentence with a fresh id.
func (a *Assembler) flush(final bool) {
	a.cancelPause()
	if a.buffer == "" {
		return
	}
	if a.sentenceID == 0 {
		a.sentenceID = a.nextID
		a.nextID++
	}
	a.emit(Emission{
		Speaker:    a.speaker,
		Text:       a.buffer,
		SentenceID: a.sentenceID,
		Final:      final,
		At:         time.Now(),
	})
	if final {
		a.buffer = ""
		a.sentenceID = 0
		a.lastInterim = ""
	}
}

// endsStrong reports whether the buffer qualifies for punctuation-triggered
// finalization: long enough, strong trailing punctuation, and a last word
// that does not suggest the sentence continues.
func (a *Assembler) endsStrong() bool {
	if len(a.buffer) < a.minChars {
		return false
	}
	runes := []rune(a.buffer)
	if !strings.ContainsRune(strongEndings, runes[len(runes)-1]) {
		return false
	}
	words := normalizeWords(a.buffer)
	if len(words) == 0 {
		return false
	}
	_, weak := a.weakEnds[words[len(words)-1]]
	return !weak
}

func (a *Assembler) cancelPause() {
	if a.pauseTimer != nil {
		a.pauseTimer.Stop()
	}
	a.pauseC = nil
	a.pauseTimer = nil
}

func (a *Assembler) cancelGrace() {
	if a.graceTimer != nil {
		a.graceTimer.Stop()
	}
	a.graceC = nil
	a.graceTimer = nil
}
