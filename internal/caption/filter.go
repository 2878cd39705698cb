package caption

import (
	"strings"
	"time"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Filter rejects transcripts that would only add noise to the caption stream:
// known recognizer hallucinations (blocklist), punctuation-only output, and
// low-energy short utterances that repeat the previous accepted text.
//
// A Filter belongs to exactly one speaker pipeline and is not safe for
// concurrent use.
type Filter struct {
	blocklist    map[string]struct{}
	shortHighRMS float64
	repeatWindow time.Duration
	nearRepeat   int

	lastText string
	lastAt   time.Time
}

// FilterConfig configures a Filter. Zero values select the defaults noted on
// each field.
type FilterConfig struct {
	// Blocklist is the set of exact phrases to reject, matched
	// case-insensitively against the full trimmed transcript.
	Blocklist []string

	// ShortHighRMS is the window energy above which a short utterance is
	// trusted even when it repeats recent text. Default 1200.
	ShortHighRMS float64

	// RepeatWindow is how long a previously accepted text keeps suppressing
	// low-energy short repeats. Default 7 s.
	RepeatWindow time.Duration

	// NearRepeatDistance, when positive, also treats short utterances within
	// this Damerau-Levenshtein distance of the previous accepted text as
	// repeats ("uh" vs "uhh"). Zero means exact matches only.
	NearRepeatDistance int
}

const (
	defaultShortHighRMS = 1200
	defaultRepeatWindow = 7 * time.Second

	// shortUtteranceWords is the word count at or below which the repeat gate
	// applies.
	shortUtteranceWords = 2
)

// NewFilter creates a Filter from cfg.
func NewFilter(cfg FilterConfig) *Filter {
	f := &Filter{
		blocklist:    make(map[string]struct{}, len(cfg.Blocklist)),
		shortHighRMS: cfg.ShortHighRMS,
		repeatWindow: cfg.RepeatWindow,
		nearRepeat:   cfg.NearRepeatDistance,
	}
	for _, phrase := range cfg.Blocklist {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" {
			f.blocklist[phrase] = struct{}{}
		}
	}
	if f.shortHighRMS <= 0 {
		f.shortHighRMS = defaultShortHighRMS
	}
	if f.repeatWindow <= 0 {
		f.repeatWindow = defaultRepeatWindow
	}
	return f
}

// Accept reports whether text should be forwarded to the sentence assembler.
// rms is the energy of the audio window the text was recognized from and now
// is the arrival time. Accepted texts update the repeat-gate memory; rejected
// ones do not.
func (f *Filter) Accept(text string, rms float64, now time.Time) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	if _, blocked := f.blocklist[strings.ToLower(text)]; blocked {
		return false
	}

	if !containsAlnum(text) {
		return false
	}

	if len(normalizeWords(text)) <= shortUtteranceWords &&
		rms < f.shortHighRMS &&
		f.isRepeat(text) &&
		now.Sub(f.lastAt) < f.repeatWindow {
		return false
	}

	f.lastText = text
	f.lastAt = now
	return true
}

func (f *Filter) isRepeat(text string) bool {
	if f.lastText == "" {
		return false
	}
	if text == f.lastText {
		return true
	}
	if f.nearRepeat > 0 {
		return matchr.DamerauLevenshtein(strings.ToLower(text), strings.ToLower(f.lastText)) <= f.nearRepeat
	}
	return false
}

func containsAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
