// internal/pipeline/session/track-budget/handler.go
package trackbudget

import (
	"sync"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/models"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	TaskType = "track-budget"
)

// Tracker accumulates token usage for one session and gates new turns once
// the ceiling is reached. It is safe for concurrent use.
type Tracker struct {
	config *Config
	logger logger.Logger

	mu      sync.RWMutex
	metrics SessionMetrics
}

func NewTracker(config *Config, log logger.Logger) *Tracker {
	if config == nil {
		config = LoadConfig()
	}
	if config.Ceiling <= 0 {
		config.Ceiling = DefaultCeiling
	}
	if config.WarningFraction <= 0 || config.WarningFraction >= 1 {
		config.WarningFraction = DefaultWarningFraction
	}
	return &Tracker{
		config: config,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

// Check reports the current budget status without changing anything.
func (t *Tracker) Check() Status {
	t.mu.RLock()
	m := t.metrics
	t.mu.RUnlock()
	return Evaluate(m, t.config.Ceiling, t.config.WarningFraction)
}

// Allowed reports whether a new turn may call retrieval, search or generation.
func (t *Tracker) Allowed() bool {
	return !t.Check().Exceeded
}

// Record adds one assistant turn's usage to the session totals.
func (t *Tracker) Record(meta models.TurnMetadata) Status {
	t.mu.Lock()
	before := Evaluate(t.metrics, t.config.Ceiling, t.config.WarningFraction)

	t.metrics.TokensIn += max(meta.TokensIn, 0)
	t.metrics.TokensOut += max(meta.TokensOut, 0)
	if meta.Cost > 0 {
		t.metrics.Cost += meta.Cost
	}
	t.metrics.Requests++
	if meta.RAGUsed {
		t.metrics.RAGRequests++
	}
	if meta.SearchUsed {
		t.metrics.SearchRequests++
	}
	if meta.Refused {
		t.metrics.RefusedRequests++
	}
	if meta.Latency > 0 {
		t.metrics.LatencyTotal += meta.Latency
		t.metrics.LatencySamples++
	}

	after := Evaluate(t.metrics, t.config.Ceiling, t.config.WarningFraction)
	t.mu.Unlock()

	if after.Level != before.Level {
		t.logger.Info("session budget level changed", map[string]interface{}{
			"from":        string(before.Level),
			"to":          string(after.Level),
			"totalTokens": after.TotalTokens,
			"ceiling":     after.Ceiling,
		})
	}
	return after
}

// Reset zeroes the totals. Only a session clear calls it.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.metrics = SessionMetrics{}
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() SessionMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

// Summary is a one-line traffic-light view of the budget.
func (t *Tracker) Summary() string {
	return summaryLine(t.Check())
}

// Usage combines the totals and the budget status.
func (t *Tracker) Usage() Usage {
	m := t.Snapshot()
	st := Evaluate(m, t.config.Ceiling, t.config.WarningFraction)
	return Usage{
		TotalRequests:   m.Requests,
		TotalTokensIn:   m.TokensIn,
		TotalTokensOut:  m.TokensOut,
		TotalTokens:     m.TotalTokens(),
		TotalCost:       m.Cost,
		AvgLatency:      m.AvgLatency(),
		RAGRequests:     m.RAGRequests,
		SearchRequests:  m.SearchRequests,
		RefusedRequests: m.RefusedRequests,
		Budget:          st,
		Summary:         summaryLine(st),
	}
}

// Evaluate derives the budget status from totals. Exceeded when the total
// reaches the ceiling; Warning from warningFraction of the ceiling up to it.
func Evaluate(m SessionMetrics, ceiling int, warningFraction float64) Status {
	total := m.TotalTokens()
	percentage := float64(total) / float64(ceiling)

	st := Status{
		Remaining:   ceiling - total,
		Percentage:  percentage,
		TotalTokens: total,
		Ceiling:     ceiling,
		Level:       LevelNormal,
	}
	st.Exceeded = total >= ceiling
	st.Warning = percentage >= warningFraction && !st.Exceeded

	p := message.NewPrinter(language.English)
	switch {
	case st.Exceeded:
		st.Level = LevelExceeded
		st.Message = p.Sprintf("⚠️ **Session token limit reached (%d tokens).**\n\n"+
			"To continue, please clear your chat history or start a new session. "+
			"This helps maintain optimal performance and cost efficiency.", ceiling)
	case st.Warning:
		st.Level = LevelWarning
		st.Message = p.Sprintf("ℹ️ You've used %.0f%% of your session token limit (%d / %d tokens). "+
			"Consider clearing chat if needed.", percentage*100, total, ceiling)
	}
	return st
}

func summaryLine(st Status) string {
	p := message.NewPrinter(language.English)
	line := p.Sprintf("%d / %d (%.0f%%)", st.TotalTokens, st.Ceiling, st.Percentage*100)
	switch st.Level {
	case LevelExceeded:
		return "🔴 " + line + " - Limit reached"
	case LevelWarning:
		return "🟡 " + line + " - Approaching limit"
	default:
		return "🟢 " + line
	}
}
