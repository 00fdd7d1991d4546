// internal/chat/stream.go
package chat

import (
	"context"
	"sync"

	"github.com/sbgadvisor/WellNavigator2/internal/models"
	trackbudget "github.com/sbgadvisor/WellNavigator2/internal/pipeline/session/track-budget"
)

// Outcome classifies how a turn ended.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeRefused       Outcome = "refused"
	OutcomeBudgetBlocked Outcome = "budget_blocked"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeError         Outcome = "error"
	OutcomeDiscarded     Outcome = "discarded"
)

// TurnResult is the terminal value of a turn.
type TurnResult struct {
	SessionID string              `json:"session_id"`
	Outcome   Outcome             `json:"outcome"`
	Text      string              `json:"text"`
	UserText  string              `json:"user_text"`
	Citations []models.Citation   `json:"citations"`
	Meta      models.TurnMetadata `json:"meta"`
	Budget    trackbudget.Status  `json:"budget"`
	Err       error               `json:"-"`
}

// Stream delivers assistant fragments as they arrive and one TurnResult.
type Stream struct {
	chunks chan string
	done   chan struct{}
	cancel context.CancelFunc

	once   sync.Once
	result TurnResult
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		chunks: make(chan string, 64),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Chunks is closed when the turn ends.
func (s *Stream) Chunks() <-chan string {
	return s.chunks
}

func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Result drains unread fragments and waits for the turn to end.
func (s *Stream) Result() TurnResult {
	for range s.chunks {
	}
	<-s.done
	return s.result
}

// Cancel stops delivery. Output received so far is accounted once.
func (s *Stream) Cancel() {
	s.cancel()
}

func (s *Stream) send(ctx context.Context, fragment string) bool {
	select {
	case s.chunks <- fragment:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) finish(r TurnResult) {
	s.once.Do(func() {
		s.result = r
		close(s.chunks)
		close(s.done)
		s.cancel()
	})
}
