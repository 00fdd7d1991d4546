// internal/chat/registry.go
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/models"
)

// Registry holds live sessions in memory and expires idle ones.
type Registry struct {
	pipeline *Pipeline
	ttl      time.Duration
	logger   logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(pipeline *Pipeline, ttl time.Duration, log logger.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Registry{
		pipeline: pipeline,
		ttl:      ttl,
		logger: log.With(map[string]interface{}{
			"component": "session-registry",
		}),
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) Create(settings *models.Settings) (*Session, error) {
	sess, err := r.pipeline.NewSession(settings)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[sess.ID()] = sess
	r.mu.Unlock()

	r.logger.Info("session created", map[string]interface{}{
		"sessionId": sess.ID(),
	})
	return sess, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// Delete clears the session and forgets it.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.Clear()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions idle longer than the TTL. Sessions with a turn in
// flight are kept.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var expired []*Session
	for id, sess := range r.sessions {
		info := models.SessionInfo{LastActivity: sess.idleSince()}
		if sess.busy() || !info.IsExpired(r.ttl, now) {
			continue
		}
		expired = append(expired, sess)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, sess := range expired {
		sess.Clear()
	}
	if len(expired) > 0 {
		r.logger.Info("expired idle sessions", map[string]interface{}{
			"count":     len(expired),
			"remaining": r.Len(),
		})
	}
	return len(expired)
}

// Run sweeps on every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
