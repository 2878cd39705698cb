package session

import (
	"sync"

	"github.com/scribantia/scribantia/pkg/types"
)

// Prefs resolves per-participant language preferences against the session
// defaults. Participants override their own languages by sending a
// language_prefs message on the captions topic; everyone else gets the
// defaults.
//
// Safe for concurrent use: the data-channel handler writes, the speaker
// pipelines read.
type Prefs struct {
	mu            sync.RWMutex
	byParticipant map[string]types.ParticipantPrefs

	defaultSTT    string
	defaultTarget string
}

// NewPrefs creates a Prefs store with the given session defaults.
func NewPrefs(defaultSTTLanguage, defaultTargetLanguage string) *Prefs {
	return &Prefs{
		byParticipant: make(map[string]types.ParticipantPrefs),
		defaultSTT:    defaultSTTLanguage,
		defaultTarget: defaultTargetLanguage,
	}
}

// Upsert applies a language_prefs message. Empty fields in the message leave
// the participant's previous override (or the default) in place.
func (p *Prefs) Upsert(msg types.LanguagePrefs) {
	if msg.ParticipantID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	prefs := p.byParticipant[msg.ParticipantID]
	if msg.STTLanguage != "" {
		prefs.STTLanguage = msg.STTLanguage
	}
	if msg.TargetLanguage != "" {
		prefs.TargetLanguage = msg.TargetLanguage
	}
	p.byParticipant[msg.ParticipantID] = prefs
}

// STTLanguage returns the recognition language hint for participantID.
func (p *Prefs) STTLanguage(participantID string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if prefs, ok := p.byParticipant[participantID]; ok && prefs.STTLanguage != "" {
		return prefs.STTLanguage
	}
	return p.defaultSTT
}

// TargetLanguage returns the translation target for participantID. Empty
// means translation is disabled for that speaker.
func (p *Prefs) TargetLanguage(participantID string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if prefs, ok := p.byParticipant[participantID]; ok && prefs.TargetLanguage != "" {
		return prefs.TargetLanguage
	}
	return p.defaultTarget
}
