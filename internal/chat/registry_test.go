// internal/chat/registry_test.go
package chat

import (
	"testing"
	"time"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, ttl time.Duration) *Registry {
	p := NewPipeline(nil, Deps{}, logger.NewTestLogger(t))
	return NewRegistry(p, ttl, logger.NewTestLogger(t))
}

func TestRegistry_CreateGetDelete(t *testing.T) {
	r := newRegistry(t, time.Minute)

	sess, err := r.Create(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(sess.ID())
	require.NoError(t, err)
	assert.Same(t, sess, got)

	require.NoError(t, r.Delete(sess.ID()))
	assert.Zero(t, r.Len())

	_, err = r.Get(sess.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, r.Delete(sess.ID()), ErrSessionNotFound)
}

func TestRegistry_CreateRejectsInvalidSettings(t *testing.T) {
	r := newRegistry(t, time.Minute)

	_, err := r.Create(&models.Settings{Model: "", Temperature: 0.7})
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.Zero(t, r.Len())
}

func TestRegistry_SweepExpiresIdleSessions(t *testing.T) {
	r := newRegistry(t, 10*time.Minute)

	idle, err := r.Create(nil)
	require.NoError(t, err)
	active, err := r.Create(nil)
	require.NoError(t, err)
	busy, err := r.Create(nil)
	require.NoError(t, err)

	now := time.Now()
	idle.mu.Lock()
	idle.lastActivity = now.Add(-11 * time.Minute)
	idle.mu.Unlock()

	busy.mu.Lock()
	busy.lastActivity = now.Add(-time.Hour)
	busy.mu.Unlock()
	busy.slot <- struct{}{}

	assert.Equal(t, 1, r.Sweep(now))
	assert.Equal(t, 2, r.Len())

	_, err = r.Get(idle.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get(active.ID())
	assert.NoError(t, err)
	_, err = r.Get(busy.ID())
	assert.NoError(t, err)
}

func TestSession_UpdateSettingsAndInfo(t *testing.T) {
	r := newRegistry(t, time.Minute)
	sess, err := r.Create(nil)
	require.NoError(t, err)

	err = sess.UpdateSettings(models.Settings{Model: "gpt-4o", Temperature: 2.5})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	require.NoError(t, sess.UpdateSettings(models.Settings{Model: "gpt-4o", Temperature: 0.2, RAGOn: true}))
	info := sess.Info()
	assert.Equal(t, sess.ID(), info.ID)
	assert.Equal(t, "gpt-4o", info.Settings.Model)
	assert.True(t, info.Settings.RAGOn)
	assert.Zero(t, info.TurnCount)
}

func TestSession_HistorySkipsEmptyReplies(t *testing.T) {
	r := newRegistry(t, time.Minute)
	sess, err := r.Create(nil)
	require.NoError(t, err)

	meta := &models.TurnMetadata{}
	_, ok := sess.commit(0,
		models.Turn{Role: models.RoleUser, Content: "Explain insulin"},
		models.Turn{Role: models.RoleAssistant, Content: "", Meta: meta},
	)
	require.True(t, ok)

	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "Explain insulin"}}, sess.History())
	assert.Len(t, sess.Turns(), 2)

	sess.Clear()
	_, ok = sess.commit(0,
		models.Turn{Role: models.RoleUser, Content: "stale"},
		models.Turn{Role: models.RoleAssistant, Content: "stale", Meta: meta},
	)
	assert.False(t, ok)
	assert.Empty(t, sess.Turns())
}
