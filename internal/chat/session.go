// internal/chat/session.go
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sbgadvisor/WellNavigator2/internal/models"
	trackbudget "github.com/sbgadvisor/WellNavigator2/internal/pipeline/session/track-budget"

	"github.com/google/uuid"
)

var (
	ErrSessionBusy     = errors.New("SESSION_BUSY")
	ErrSessionNotFound = errors.New("SESSION_NOT_FOUND")
	ErrInvalidSettings = errors.New("INVALID_SETTINGS")
)

// Session owns one conversation: its transcript, budget and settings.
// Turns are serialized; at most one runs at a time.
type Session struct {
	id        string
	createdAt time.Time
	tracker   *trackbudget.Tracker
	slot      chan struct{}

	mu           sync.RWMutex
	turns        []models.Turn
	settings     models.Settings
	epoch        uint64
	lastActivity time.Time
	inflight     context.CancelFunc
}

func NewSession(settings models.Settings, tracker *trackbudget.Tracker) *Session {
	now := time.Now()
	return &Session{
		id:           uuid.NewString(),
		createdAt:    now,
		tracker:      tracker,
		slot:         make(chan struct{}, 1),
		settings:     settings,
		lastActivity: now,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings replaces the settings used by the next turn.
func (s *Session) UpdateSettings(settings models.Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	s.mu.Lock()
	s.settings = settings
	s.lastActivity = time.Now()
	s.mu.Unlock()
	return nil
}

// Turns returns a copy of the transcript.
func (s *Session) Turns() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// History is the transcript as prompt messages, oldest first. Empty replies
// from turns cancelled before any output are skipped.
func (s *Session) History() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0, len(s.turns))
	for _, t := range s.turns {
		if t.Content == "" {
			continue
		}
		out = append(out, t.Message())
	}
	return out
}

func (s *Session) Budget() trackbudget.Status {
	return s.tracker.Check()
}

func (s *Session) Usage() trackbudget.Usage {
	return s.tracker.Usage()
}

func (s *Session) Info() models.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.SessionInfo{
		ID:           s.id,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		TurnCount:    len(s.turns),
		Settings:     s.settings,
	}
}

// Clear drops the transcript, zeroes the budget and cancels a running turn.
// Output of the cancelled turn is discarded rather than committed.
func (s *Session) Clear() {
	s.mu.Lock()
	s.epoch++
	s.turns = nil
	cancel := s.inflight
	s.inflight = nil
	s.lastActivity = time.Now()
	s.tracker.Reset()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrSessionBusy, ctx.Err())
	}
}

func (s *Session) release() {
	s.mu.Lock()
	s.inflight = nil
	s.mu.Unlock()
	<-s.slot
}

// begin marks a turn as running and returns the epoch it must commit under.
func (s *Session) begin(cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = cancel
	s.lastActivity = time.Now()
	return s.epoch
}

// commit appends the exchange and records its usage in one step. It reports
// false when the session was cleared after the turn began.
func (s *Session) commit(epoch uint64, user, assistant models.Turn) (trackbudget.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return s.tracker.Check(), false
	}
	s.turns = append(s.turns, user, assistant)
	s.lastActivity = time.Now()
	return s.tracker.Record(*assistant.Meta), true
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) busy() bool {
	return len(s.slot) > 0
}
