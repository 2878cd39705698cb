// Package app wires the captioning agent together: the session manager that
// owns one orchestrator per room and the empty-room cleanup sweep.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/scribantia/scribantia/internal/observe"
	"github.com/scribantia/scribantia/internal/publish"
	"github.com/scribantia/scribantia/internal/session"
	"github.com/scribantia/scribantia/internal/translate"
	"github.com/scribantia/scribantia/pkg/provider/llm"
	"github.com/scribantia/scribantia/pkg/provider/stt"
	"github.com/scribantia/scribantia/pkg/room"
)

// activeSession tracks one running room orchestrator.
type activeSession struct {
	roomName  string
	startedAt time.Time
	conn      room.Connection
	cancel    context.CancelFunc
	done      chan struct{}
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Platform room.Platform
	STT      stt.Provider
	LLM      llm.Provider

	// Session is the base per-room configuration. StartSession may override
	// the language defaults per request.
	Session session.Config

	// SendChat mirrors final captions into the room chat.
	SendChat bool

	// CleanupInterval is the period of the empty-room sweep started by
	// [SessionManager.RunCleanup]. Zero selects the default (1 minute).
	CleanupInterval time.Duration

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// SessionManager manages the lifecycle of captioning sessions, one per room.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*activeSession

	platform        room.Platform
	sttProvider     stt.Provider
	llmProvider     llm.Provider
	baseCfg         session.Config
	sendChat        bool
	cleanupInterval time.Duration
	metrics         *observe.Metrics
	log             *slog.Logger
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		sessions:        make(map[string]*activeSession),
		platform:        cfg.Platform,
		sttProvider:     cfg.STT,
		llmProvider:     cfg.LLM,
		baseCfg:         cfg.Session,
		sendChat:        cfg.SendChat,
		cleanupInterval: interval,
		metrics:         cfg.Metrics,
		log:             log,
	}
}

// StartSession joins roomName and begins captioning it. Starting a room that
// is already being captioned is a no-op. targetLanguage and sttLanguage,
// when non-empty, override the configured session defaults for this room.
//
// A connect failure leaves no trace in the active map.
func (sm *SessionManager) StartSession(ctx context.Context, roomName, targetLanguage, sttLanguage string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[roomName]; exists {
		sm.log.Info("session already running", slog.String("room", roomName))
		return nil
	}

	conn, err := sm.platform.Connect(ctx, roomName, session.AgentIdentity())
	if err != nil {
		return fmt.Errorf("app: connect to room %q: %w", roomName, err)
	}

	cfg := sm.baseCfg
	if targetLanguage != "" {
		cfg.DefaultTargetLanguage = targetLanguage
	}
	if sttLanguage != "" {
		cfg.DefaultSTTLanguage = sttLanguage
	}

	translator := translate.New(sm.llmProvider, sm.metrics, sm.log)
	publisher := publish.New(conn, sm.sendChat, sm.metrics, sm.log)
	orch := session.New(roomName, conn, sm.sttProvider, translator, publisher, cfg, sm.metrics, sm.log)

	// The session outlives the /start request: it gets its own context.
	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &activeSession{
		roomName:  roomName,
		startedAt: time.Now(),
		conn:      conn,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		_ = orch.Run(sessionCtx)
	}()

	sm.sessions[roomName] = s
	sm.log.Info("session started",
		slog.String("room", roomName),
		slog.String("target_language", cfg.DefaultTargetLanguage),
		slog.String("stt_language", cfg.DefaultSTTLanguage),
	)
	return nil
}

// StopSession stops captioning roomName and waits for the session's flush and
// disconnect to complete. Stopping a room with no session is a no-op.
func (sm *SessionManager) StopSession(ctx context.Context, roomName string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[roomName]
	if ok {
		delete(sm.sessions, roomName)
	}
	sm.mu.Unlock()

	if !ok {
		sm.log.Info("no session to stop", slog.String("room", roomName))
		return nil
	}

	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return fmt.Errorf("app: stop room %q: %w", roomName, ctx.Err())
	}
	sm.log.Info("session stopped", slog.String("room", roomName))
	return nil
}

// StopAll stops every active session. Used during process shutdown.
func (sm *SessionManager) StopAll(ctx context.Context) error {
	for _, roomName := range sm.ActiveRooms() {
		if err := sm.StopSession(ctx, roomName); err != nil {
			return err
		}
	}
	return nil
}

// ActiveRooms returns the sorted names of all rooms with a running session.
func (sm *SessionManager) ActiveRooms() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	rooms := make([]string, 0, len(sm.sessions))
	for name := range sm.sessions {
		rooms = append(rooms, name)
	}
	sort.Strings(rooms)
	return rooms
}

// IsActive reports whether roomName has a running session.
func (sm *SessionManager) IsActive(roomName string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	_, ok := sm.sessions[roomName]
	return ok
}

// RunCleanup periodically stops sessions for rooms in which no human
// participant remains. It blocks until ctx is cancelled; run it on its own
// goroutine.
func (sm *SessionManager) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(sm.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.sweep(ctx)
		}
	}
}

// sweep stops every session whose room holds no non-agent participants.
// Sessions younger than one cleanup interval are spared so a room being set
// up is not torn down before anyone joins.
func (sm *SessionManager) sweep(ctx context.Context) {
	sm.mu.Lock()
	var idle []string
	for name, s := range sm.sessions {
		if time.Since(s.startedAt) < sm.cleanupInterval {
			continue
		}
		if countHumans(s.conn.Participants()) == 0 {
			idle = append(idle, name)
		}
	}
	sm.mu.Unlock()

	for _, name := range idle {
		sm.log.Info("room is empty, stopping session", slog.String("room", name))
		if err := sm.StopSession(ctx, name); err != nil {
			sm.log.Error("cleanup stop failed", slog.String("room", name), slog.Any("error", err))
		}
	}
}

// countHumans counts participants whose metadata does not mark them as an
// agent. Unparseable metadata counts as human.
func countHumans(participants []room.Participant) int {
	humans := 0
	for _, p := range participants {
		var meta struct {
			Role string `json:"role"`
		}
		if err := json.Unmarshal([]byte(p.Metadata), &meta); err == nil && meta.Role == "agent" {
			continue
		}
		humans++
	}
	return humans
}
