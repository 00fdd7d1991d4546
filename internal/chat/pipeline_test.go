// internal/chat/pipeline_test.go
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	commonerrors "github.com/sbgadvisor/WellNavigator2/internal/common/errors"
	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/common/tokens"
	"github.com/sbgadvisor/WellNavigator2/internal/models"
	streamcompletion "github.com/sbgadvisor/WellNavigator2/internal/pipeline/generation/stream-completion"
	retrieveknowledge "github.com/sbgadvisor/WellNavigator2/internal/pipeline/grounding/retrieve-knowledge"
	classifysafety "github.com/sbgadvisor/WellNavigator2/internal/pipeline/guard/classify-safety"
	logturn "github.com/sbgadvisor/WellNavigator2/internal/pipeline/session/log-turn"
	trackbudget "github.com/sbgadvisor/WellNavigator2/internal/pipeline/session/track-budget"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	available bool
	passages  []models.RetrievedPassage
	calls     atomic.Int32
}

func (f *fakeRetriever) Available(ctx context.Context) bool { return f.available }

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, k int) []models.RetrievedPassage {
	f.calls.Add(1)
	if k < len(f.passages) {
		return f.passages[:k]
	}
	return f.passages
}

type fakeSearcher struct {
	passages []models.RetrievedPassage
	calls    atomic.Int32

	mu    sync.Mutex
	query string
}

func (f *fakeSearcher) Configured() bool { return true }

func (f *fakeSearcher) Search(ctx context.Context, query string, k int) []models.RetrievedPassage {
	f.calls.Add(1)
	f.mu.Lock()
	f.query = query
	f.mu.Unlock()
	return f.passages
}

type recordingLog struct {
	mu    sync.Mutex
	metas []models.TurnMetadata
}

func (r *recordingLog) Append(ctx context.Context, meta models.TurnMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metas = append(r.metas, meta)
}

func (r *recordingLog) entries() []models.TurnMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TurnMetadata(nil), r.metas...)
}

type chatRequest struct {
	Messages []models.Message `json:"messages"`
}

// genServer is a fake chat completions endpoint. Each request is recorded
// and answered by respond.
type genServer struct {
	*httptest.Server
	hits atomic.Int32

	mu       sync.Mutex
	requests []chatRequest
}

func newGenServer(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) *genServer {
	g := &genServer{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.hits.Add(1)
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		g.mu.Lock()
		g.requests = append(g.requests, req)
		g.mu.Unlock()
		w.Header().Set("Content-Type", "text/event-stream")
		respond(w, r)
	}))
	t.Cleanup(g.Close)
	return g
}

func (g *genServer) lastRequest(t *testing.T) chatRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	require.NotEmpty(t, g.requests)
	return g.requests[len(g.requests)-1]
}

func streamReply(usageIn, usageOut int, parts ...string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, p := range parts {
			fmt.Fprintf(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n", p)
		}
		fmt.Fprintf(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":%d,"completion_tokens":%d,"total_tokens":%d}}`+"\n\n", usageIn, usageOut, usageIn+usageOut)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func stallAfter(part string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n", part)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}
}

func newGenerator(t *testing.T, url string) *streamcompletion.Handler {
	cfg := streamcompletion.LoadConfig()
	cfg.APIKey = "sk-test"
	cfg.BaseURL = url + "/v1"
	cfg.Timeout = 5 * time.Second
	return streamcompletion.NewHandler(cfg, tokens.NewCounter(), logger.NewTestLogger(t))
}

type fixture struct {
	pipeline  *Pipeline
	session   *Session
	retriever *fakeRetriever
	searcher  *fakeSearcher
	turnLog   *recordingLog
}

func newFixture(t *testing.T, gen Generator, budget *trackbudget.Config) *fixture {
	kb, err := models.NewKnowledgePassage("Blood pressure below 120/80 is normal.", "Clinic Handbook", "Blood Pressure", 0.91)
	require.NoError(t, err)
	web, err := models.NewWebPassage("High blood pressure often has no symptoms.", "Mayo Clinic", "High blood pressure", "https://www.mayoclinic.org/bp")
	require.NoError(t, err)

	f := &fixture{
		retriever: &fakeRetriever{available: true, passages: []models.RetrievedPassage{kb}},
		searcher:  &fakeSearcher{passages: []models.RetrievedPassage{web}},
		turnLog:   &recordingLog{},
	}
	f.pipeline = NewPipeline(nil, Deps{
		Retriever: f.retriever,
		Searcher:  f.searcher,
		Generator: gen,
		TurnLog:   f.turnLog,
		Budget:    budget,
	}, logger.NewTestLogger(t))

	f.session, err = f.pipeline.NewSession(&models.Settings{
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		RAGOn:       true,
		SearchOn:    true,
	})
	require.NoError(t, err)
	return f
}

func collect(t *testing.T, s *Stream) (string, TurnResult) {
	t.Helper()
	var b strings.Builder
	for c := range s.Chunks() {
		b.WriteString(c)
	}
	return b.String(), s.Result()
}

func TestPipeline_EmergencyRefusalSkipsEverything(t *testing.T) {
	gen := newGenServer(t, streamReply(10, 10, "should not run"))
	f := newFixture(t, newGenerator(t, gen.URL), nil)

	s, err := f.pipeline.ProcessTurn(context.Background(), f.session, "I'm having chest pain and crushing chest pressure")
	require.NoError(t, err)
	text, res := collect(t, s)

	template, ok := classifysafety.NewHandler(nil, logger.NewNoOpLogger()).Template(classifysafety.CategoryEmergency)
	require.True(t, ok)

	assert.Equal(t, OutcomeRefused, res.Outcome)
	assert.Equal(t, template, text)
	assert.Equal(t, template, res.Text)
	assert.True(t, res.Meta.Refused)
	assert.Equal(t, "emergency", res.Meta.RefusalCategory)
	assert.Zero(t, res.Meta.Cost)
	assert.Zero(t, res.Meta.TotalTokens())
	assert.Empty(t, res.Citations)

	assert.Zero(t, gen.hits.Load())
	assert.Zero(t, f.retriever.calls.Load())
	assert.Zero(t, f.searcher.calls.Load())

	logged := f.turnLog.entries()
	require.Len(t, logged, 1)
	assert.True(t, logged[0].Refused)

	usage := f.session.Usage()
	assert.Equal(t, 1, usage.TotalRequests)
	assert.Equal(t, 1, usage.RefusedRequests)
	assert.Zero(t, usage.TotalCost)
	assert.Len(t, f.session.Turns(), 2)
}

func TestPipeline_SlowTurnLogDoesNotHoldTurn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO turn_log (")).
		WillDelayFor(3 * time.Second).
		WillReturnResult(sqlmock.NewResult(1, 1))

	turnLog, err := logturn.NewHandler(&logturn.Config{Dir: t.TempDir(), Timeout: time.Second}, db, logger.NewTestLogger(t))
	require.NoError(t, err)

	p := NewPipeline(nil, Deps{TurnLog: turnLog}, logger.NewTestLogger(t))
	sess, err := p.NewSession(&models.Settings{Model: "gpt-4o-mini", Temperature: 0.7})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := p.Run(ctx, sess, "I'm having chest pain")
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, OutcomeRefused, res.Outcome)
	assert.Less(t, elapsed, 500*time.Millisecond)

	turnLog.Flush()
}

func TestPipeline_PrescriptionRefusal(t *testing.T) {
	f := newFixture(t, nil, nil)

	res, err := f.pipeline.Run(context.Background(), f.session, "should I stop taking my metformin?")
	require.NoError(t, err)

	assert.Equal(t, OutcomeRefused, res.Outcome)
	assert.Equal(t, string(classifysafety.CategoryPrescription), res.Meta.RefusalCategory)
	assert.Zero(t, res.Meta.Cost)
}

func TestPipeline_CompletedTurnWithContext(t *testing.T) {
	gen := newGenServer(t, streamReply(420, 12, "Normal is ", "below 120/80 [ClinicHandbook]."))
	f := newFixture(t, newGenerator(t, gen.URL), nil)

	s, err := f.pipeline.ProcessTurn(context.Background(), f.session, "What is a normal blood pressure reading?")
	require.NoError(t, err)
	text, res := collect(t, s)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "Normal is below 120/80 [ClinicHandbook].", text)
	assert.Equal(t, text, res.Text)
	assert.Equal(t, 420, res.Meta.TokensIn)
	assert.Equal(t, 12, res.Meta.TokensOut)
	assert.Greater(t, res.Meta.Cost, 0.0)
	assert.True(t, res.Meta.RAGUsed)
	assert.True(t, res.Meta.SearchUsed)
	assert.Equal(t, 1, res.Meta.RAGDocsRetrieved)
	assert.Equal(t, 1, res.Meta.SearchResults)
	require.Len(t, res.Citations, 2)
	assert.Equal(t, models.OriginKnowledgeBase, res.Citations[0].Type)
	assert.Equal(t, models.OriginWebSearch, res.Citations[1].Type)

	f.searcher.mu.Lock()
	assert.Equal(t, "What is a normal blood pressure reading? health medical information", f.searcher.query)
	f.searcher.mu.Unlock()

	req := gen.lastRequest(t)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, models.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "**CONTEXT FOR THIS QUERY:**")
	assert.Equal(t, "What is a normal blood pressure reading?", req.Messages[1].Content)

	assert.Equal(t, 432, f.session.Usage().TotalTokens)
	require.Len(t, f.turnLog.entries(), 1)
	assert.Len(t, f.turnLog.entries()[0].Citations, 2)
}

func TestPipeline_HistoryCarriesForward(t *testing.T) {
	gen := newGenServer(t, streamReply(50, 5, "An answer."))
	f := newFixture(t, newGenerator(t, gen.URL), nil)

	_, err := f.pipeline.Run(context.Background(), f.session, "What is an A1C test?")
	require.NoError(t, err)
	_, err = f.pipeline.Run(context.Background(), f.session, "How often should it be done?")
	require.NoError(t, err)

	req := gen.lastRequest(t)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "What is an A1C test?"}, req.Messages[1])
	assert.Equal(t, models.Message{Role: models.RoleAssistant, Content: "An answer."}, req.Messages[2])
	assert.Equal(t, "How often should it be done?", req.Messages[3].Content)
}

func TestPipeline_NoContextWhenRetrievalUnavailable(t *testing.T) {
	gen := newGenServer(t, streamReply(40, 4, "General info."))

	rcfg := retrieveknowledge.LoadConfig()
	rcfg.IndexDir = filepath.Join(t.TempDir(), "missing")
	retriever := retrieveknowledge.NewHandler(rcfg, nil, nil, logger.NewTestLogger(t))

	p := NewPipeline(nil, Deps{
		Retriever: retriever,
		Generator: newGenerator(t, gen.URL),
	}, logger.NewTestLogger(t))
	sess, err := p.NewSession(&models.Settings{Model: "gpt-4o-mini", Temperature: 0.7, RAGOn: true})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), sess, "What does cholesterol do?")
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.NotNil(t, res.Citations)
	assert.Empty(t, res.Citations)
	assert.Zero(t, res.Meta.RAGDocsRetrieved)

	req := gen.lastRequest(t)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, models.RoleSystem, req.Messages[0].Role)
	assert.NotContains(t, req.Messages[0].Content, "CONTEXT FOR THIS QUERY")
	assert.Equal(t, "What does cholesterol do?", req.Messages[1].Content)
	assert.False(t, p.Capabilities(context.Background()).Retrieval)
}

func TestPipeline_BudgetGate(t *testing.T) {
	gen := newGenServer(t, streamReply(80, 30, "A long answer."))
	f := newFixture(t, newGenerator(t, gen.URL), &trackbudget.Config{Ceiling: 100, WarningFraction: 0.8})

	first, err := f.pipeline.Run(context.Background(), f.session, "Tell me about sleep hygiene")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, first.Outcome)
	assert.True(t, first.Budget.Exceeded)

	second, err := f.pipeline.Run(context.Background(), f.session, "And what about naps?")
	require.NoError(t, err)

	assert.Equal(t, OutcomeBudgetBlocked, second.Outcome)
	assert.True(t, second.Meta.BudgetBlocked)
	assert.Contains(t, second.Text, "Session token limit reached (100 tokens)")
	assert.Zero(t, second.Meta.Cost)
	assert.Equal(t, int32(1), gen.hits.Load())
	assert.Equal(t, int32(1), f.retriever.calls.Load())
	assert.Equal(t, int32(1), f.searcher.calls.Load())

	f.session.Clear()
	third, err := f.pipeline.Run(context.Background(), f.session, "And what about naps?")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, third.Outcome)
	assert.Equal(t, int32(2), gen.hits.Load())
}

func TestPipeline_RedactsBeforeEverything(t *testing.T) {
	gen := newGenServer(t, streamReply(30, 3, "Sure."))
	f := newFixture(t, newGenerator(t, gen.URL), nil)

	res, err := f.pipeline.Run(context.Background(), f.session, "My SSN is 123-45-6789, what is an A1C test?")
	require.NoError(t, err)

	assert.True(t, res.Meta.Redacted)
	assert.Equal(t, "My SSN is [SSN_REDACTED], what is an A1C test?", res.UserText)

	req := gen.lastRequest(t)
	for _, m := range req.Messages {
		assert.NotContains(t, m.Content, "123-45-6789")
	}
	turns := f.session.Turns()
	require.Len(t, turns, 2)
	assert.NotContains(t, turns[0].Content, "123-45-6789")
	assert.True(t, turns[0].Meta.Redacted)
}

func TestPipeline_CancelAccountsPartialOutputOnce(t *testing.T) {
	gen := newGenServer(t, stallAfter("Partial answer"))
	f := newFixture(t, newGenerator(t, gen.URL), nil)

	s, err := f.pipeline.ProcessTurn(context.Background(), f.session, "Explain insulin resistance")
	require.NoError(t, err)

	first, ok := <-s.Chunks()
	require.True(t, ok)
	assert.Equal(t, "Partial answer", first)

	s.Cancel()
	res := s.Result()

	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.True(t, res.Meta.Cancelled)
	assert.Equal(t, "Partial answer", res.Text)
	assert.Equal(t, tokens.NewCounter().Count("Partial answer"), res.Meta.TokensOut)

	usage := f.session.Usage()
	assert.Equal(t, res.Meta.TotalTokens(), usage.TotalTokens)
	assert.Equal(t, 1, usage.TotalRequests)
	assert.Len(t, f.turnLog.entries(), 1)
}

func TestPipeline_ClearDiscardsInFlightTurn(t *testing.T) {
	gen := newGenServer(t, stallAfter("Partial answer"))
	f := newFixture(t, newGenerator(t, gen.URL), nil)

	s, err := f.pipeline.ProcessTurn(context.Background(), f.session, "Explain insulin resistance")
	require.NoError(t, err)

	_, ok := <-s.Chunks()
	require.True(t, ok)

	f.session.Clear()
	res := s.Result()

	assert.Equal(t, OutcomeDiscarded, res.Outcome)
	assert.Empty(t, f.session.Turns())
	assert.Equal(t, trackbudget.SessionMetrics{}, f.session.tracker.Snapshot())
	assert.Empty(t, f.turnLog.entries())
}

func TestPipeline_SerializesTurns(t *testing.T) {
	release := make(chan struct{})
	gen := newGenServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		streamReply(10, 1, "done")(w, r)
	})
	f := newFixture(t, newGenerator(t, gen.URL), nil)

	first, err := f.pipeline.ProcessTurn(context.Background(), f.session, "First question about sleep")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.pipeline.ProcessTurn(ctx, f.session, "Second question about sleep")
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(release)
	assert.Equal(t, OutcomeCompleted, first.Result().Outcome)

	res, err := f.pipeline.Run(context.Background(), f.session, "Second question about sleep")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Len(t, f.session.Turns(), 4)
}

func TestPipeline_GenerationUnavailable(t *testing.T) {
	f := newFixture(t, nil, nil)

	res, err := f.pipeline.Run(context.Background(), f.session, "What is a healthy resting heart rate?")
	require.NoError(t, err)

	assert.Equal(t, OutcomeError, res.Outcome)
	assert.ErrorIs(t, res.Err, streamcompletion.ErrGenerationUnavailable)
	assert.Equal(t, commonerrors.MsgGenerationUnavailable, res.Text)
	assert.True(t, res.Meta.Error)
	assert.Zero(t, res.Meta.Cost)
	assert.Zero(t, res.Meta.TotalTokens())
	assert.False(t, f.pipeline.Capabilities(context.Background()).Generation)
}

func TestPipeline_EmptyInput(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.pipeline.ProcessTurn(context.Background(), f.session, "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, f.session.Turns())
}

func TestPipeline_NewSessionValidatesSettings(t *testing.T) {
	p := NewPipeline(nil, Deps{}, logger.NewNoOpLogger())

	_, err := p.NewSession(&models.Settings{Model: "gpt-4o", Temperature: 3})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	sess, err := p.NewSession(nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", sess.Settings().Model)
	assert.InDelta(t, 0.7, sess.Settings().Temperature, 1e-9)
	assert.False(t, sess.Settings().RAGOn)
	assert.False(t, sess.Settings().SearchOn)
	assert.Len(t, p.SuggestedPrompts(), 8)
}
