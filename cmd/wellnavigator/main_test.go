// cmd/wellnavigator/main_test.go
package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/sbgadvisor/WellNavigator2/internal/chat"
	"github.com/sbgadvisor/WellNavigator2/internal/common/config"
	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "wellnavigator-test"
	cfg.Retrieval.Backend = "bundle"
	cfg.Retrieval.IndexDir = filepath.Join(t.TempDir(), "missing-index")
	cfg.Retrieval.MaxPassages = 5
	cfg.Retrieval.TopK = 5
	cfg.APIs.GenAI.Model = "gpt-4o-mini"
	cfg.APIs.GenAI.Temperature = 0.7
	cfg.APIs.WebSearch.TopK = 3
	cfg.Session.TokenCeiling = 1000
	cfg.Session.WarningFraction = 0.8
	cfg.Session.HistoryWindow = 10
	cfg.TurnLog.Dir = t.TempDir()
	cfg.TurnLog.Table = "turn_log"
	return cfg
}

func TestNewApp_DegradesWithoutBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Session.SearchOn = true

	a, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.pg)
	assert.Nil(t, a.redis)
	assert.Nil(t, a.es)
	require.NotNil(t, a.retriever)
	require.NotNil(t, a.searcher)

	caps := a.pipeline.Capabilities(context.Background())
	assert.False(t, caps.Retrieval)
	assert.False(t, caps.Search)
	assert.False(t, caps.Generation)

	settings := a.pipeline.DefaultSettings()
	assert.Equal(t, "gpt-4o-mini", settings.Model)
	assert.True(t, settings.SearchOn)
	assert.False(t, settings.RAGOn)
}

func TestNewApp_DisabledStagesAreSkipped(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stages = map[string]config.StageConfig{
		"retrieve-knowledge": {Enabled: false},
		"enrich-web-search":  {Enabled: false},
	}

	a, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.retriever)
	assert.Nil(t, a.searcher)
	assert.NotNil(t, a.generator)
}

func TestNewApp_RejectsBadTurnLogTable(t *testing.T) {
	cfg := testConfig(t)
	cfg.TurnLog.Table = "turn log; drop"

	_, err := newApp(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func newTestREPL(t *testing.T, input string) (*repl, *bytes.Buffer) {
	log := logger.NewTestLogger(t)
	p := chat.NewPipeline(nil, chat.Deps{}, log)
	sess, err := p.NewSession(nil)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &repl{pipeline: p, session: sess, in: strings.NewReader(input), out: out}, out
}

func TestREPL_Commands(t *testing.T) {
	r, out := newTestREPL(t, "/prompts\n/usage\n\n/clear\n/quit\nnever read\n")

	require.NoError(t, r.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "WellNavigator")
	assert.Contains(t, text, "Generation is not configured")
	assert.Contains(t, text, "educational purposes only")
	assert.Contains(t, text, r.pipeline.SuggestedPrompts()[0])
	assert.Contains(t, text, "requests 0")
	assert.Contains(t, text, "Conversation cleared.")
	assert.Empty(t, r.session.Turns())
}

func TestREPL_RunsTurnsUntilEOF(t *testing.T) {
	r, out := newTestREPL(t, "I have crushing chest pain\nWhat is a healthy BMI?\n")

	require.NoError(t, r.Run(context.Background()))

	text := out.String()
	assert.Contains(t, text, "911")
	assert.Len(t, r.session.Turns(), 4)
	assert.Equal(t, 2, r.session.Usage().TotalRequests)
}

func TestLogsCommands(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("turn_log:\n  dir: "+filepath.Join(dir, "logs")+"\n"), 0o644))

	t.Run("summary of empty log dir", func(t *testing.T) {
		root := newRootCmd()
		out := &bytes.Buffer{}
		root.SetOut(out)
		root.SetArgs([]string{"--config", cfgFile, "logs", "summary"})

		require.NoError(t, root.Execute())
		assert.Contains(t, out.String(), "turns:        0")
	})

	t.Run("export with nothing logged", func(t *testing.T) {
		root := newRootCmd()
		out := &bytes.Buffer{}
		root.SetOut(out)
		root.SetArgs([]string{"--config", cfgFile, "logs", "export", "--from", "2025-01-01", "--to", "2025-01-02"})

		require.NoError(t, root.Execute())
		assert.Contains(t, out.String(), "No turns logged in that range.")
	})

	t.Run("export rejects bad dates", func(t *testing.T) {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetArgs([]string{"--config", cfgFile, "logs", "export", "--from", "01/02/2025"})

		assert.Error(t, root.Execute())
	})
}
