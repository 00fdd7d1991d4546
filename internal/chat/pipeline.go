// internal/chat/pipeline.go
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/common/metrics"
	"github.com/sbgadvisor/WellNavigator2/internal/common/observability"
	"github.com/sbgadvisor/WellNavigator2/internal/models"
	streamcompletion "github.com/sbgadvisor/WellNavigator2/internal/pipeline/generation/stream-completion"
	enrichwebsearch "github.com/sbgadvisor/WellNavigator2/internal/pipeline/grounding/enrich-web-search"
	retrieveknowledge "github.com/sbgadvisor/WellNavigator2/internal/pipeline/grounding/retrieve-knowledge"
	classifysafety "github.com/sbgadvisor/WellNavigator2/internal/pipeline/guard/classify-safety"
	redactpi "github.com/sbgadvisor/WellNavigator2/internal/pipeline/guard/redact-pi"
	composeprompt "github.com/sbgadvisor/WellNavigator2/internal/pipeline/prompt/compose-prompt"
	trackbudget "github.com/sbgadvisor/WellNavigator2/internal/pipeline/session/track-budget"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var ErrEmptyInput = errors.New("EMPTY_INPUT")

type Retriever interface {
	Available(ctx context.Context) bool
	Retrieve(ctx context.Context, query string, k int) []models.RetrievedPassage
}

type Searcher interface {
	Configured() bool
	Search(ctx context.Context, query string, k int) []models.RetrievedPassage
}

type Generator interface {
	Available() bool
	Stream(ctx context.Context, req streamcompletion.Request) *streamcompletion.Stream
}

type TurnLogger interface {
	Append(ctx context.Context, meta models.TurnMetadata)
}

// Deps are the stage adapters, built once at start-up. Retriever, Searcher
// and TurnLog are optional.
type Deps struct {
	Redactor   *redactpi.Handler
	Classifier *classifysafety.Handler
	Retriever  Retriever
	Searcher   Searcher
	Composer   *composeprompt.Handler
	Generator  Generator
	TurnLog    TurnLogger
	Budget     *trackbudget.Config
	Obs        *observability.Observability
}

// Capabilities reports which optional collaborators are usable.
type Capabilities struct {
	Retrieval  bool `json:"retrieval"`
	Search     bool `json:"search"`
	Generation bool `json:"generation"`
}

// Pipeline runs guarded turns: redact, classify, budget gate, ground,
// compose, generate, record.
type Pipeline struct {
	config     *Config
	redactor   *redactpi.Handler
	classifier *classifysafety.Handler
	retriever  Retriever
	searcher   Searcher
	composer   *composeprompt.Handler
	generator  Generator
	turnLog    TurnLogger
	budget     *trackbudget.Config
	obs        *observability.Observability
	logger     logger.Logger
}

func NewPipeline(config *Config, deps Deps, log logger.Logger) *Pipeline {
	if config == nil {
		config = LoadConfig()
	}
	if config.RetrievalK <= 0 {
		config.RetrievalK = DefaultRetrievalK
	}
	if config.SearchK <= 0 {
		config.SearchK = DefaultSearchK
	}
	if deps.Redactor == nil {
		deps.Redactor = redactpi.NewHandler(redactpi.LoadConfig(), log)
	}
	if deps.Classifier == nil {
		deps.Classifier = classifysafety.NewHandler(classifysafety.LoadConfig(), log)
	}
	if deps.Composer == nil {
		deps.Composer = composeprompt.NewHandler(composeprompt.LoadConfig(), log)
	}
	if deps.Generator == nil {
		deps.Generator = streamcompletion.NewHandler(streamcompletion.LoadConfig(), nil, log)
	}
	if deps.Budget == nil {
		deps.Budget = trackbudget.LoadConfig()
	}

	return &Pipeline{
		config:     config,
		redactor:   deps.Redactor,
		classifier: deps.Classifier,
		retriever:  deps.Retriever,
		searcher:   deps.Searcher,
		composer:   deps.Composer,
		generator:  deps.Generator,
		turnLog:    deps.TurnLog,
		budget:     deps.Budget,
		obs:        deps.Obs,
		logger: log.With(map[string]interface{}{
			"component": "chat",
		}),
	}
}

// DefaultSettings are the settings a new session starts with.
func (p *Pipeline) DefaultSettings() models.Settings {
	return models.Settings{
		Model:       p.config.Model,
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
		RAGOn:       p.config.RAGOn,
		SearchOn:    p.config.SearchOn,
	}
}

// NewSession starts an empty session. Nil settings means the defaults.
func (p *Pipeline) NewSession(settings *models.Settings) (*Session, error) {
	s := p.DefaultSettings()
	if settings != nil {
		s = *settings
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	budget := *p.budget
	return NewSession(s, trackbudget.NewTracker(&budget, p.logger)), nil
}

func (p *Pipeline) Capabilities(ctx context.Context) Capabilities {
	c := Capabilities{Generation: p.generator.Available()}
	if p.retriever != nil {
		c.Retrieval = p.retriever.Available(ctx)
	}
	if p.searcher != nil {
		c.Search = p.searcher.Configured()
	}
	return c
}

// ProcessTurn starts a turn and returns its stream. It waits for any turn
// already running in the session; ctx bounds both the wait and the turn.
func (p *Pipeline) ProcessTurn(ctx context.Context, sess *Session, text string) (*Stream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if err := sess.acquire(ctx); err != nil {
		return nil, err
	}

	turnCtx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)
	epoch := sess.begin(cancel)
	go p.run(turnCtx, sess, s, epoch, text)
	return s, nil
}

// Run processes a turn to completion.
func (p *Pipeline) Run(ctx context.Context, sess *Session, text string) (TurnResult, error) {
	s, err := p.ProcessTurn(ctx, sess, text)
	if err != nil {
		return TurnResult{}, err
	}
	return s.Result(), nil
}

type exchange struct {
	epoch     uint64
	user      redactpi.Output
	reply     string
	meta      models.TurnMetadata
	citations []models.Citation
	outcome   Outcome
	err       error
}

func (p *Pipeline) run(ctx context.Context, sess *Session, s *Stream, epoch uint64, text string) {
	defer sess.release()
	metrics.TurnsActive.Inc()
	defer metrics.TurnsActive.Dec()

	start := time.Now()
	ctx, span := p.obs.StartSpan(ctx, "chat.turn", attribute.String("session.id", sess.ID()))
	defer span.End()

	settings := sess.Settings()
	history := sess.History()

	red := p.redactor.Redact(text)
	ex := exchange{
		epoch: epoch,
		user:  red,
		meta: models.TurnMetadata{
			Timestamp:   start,
			Model:       settings.Model,
			Temperature: settings.Temperature,
			Redacted:    red.Redacted,
		},
	}

	if d := p.classifier.Classify(red.Text); d.Refuse {
		metrics.Refusals.WithLabelValues(string(d.Category)).Inc()
		span.SetAttributes(attribute.String("refusal.category", string(d.Category)))
		s.send(ctx, d.Template)

		ex.reply = d.Template
		ex.meta.Refused = true
		ex.meta.RefusalCategory = string(d.Category)
		ex.outcome = OutcomeRefused
		p.complete(ctx, sess, s, ex, start)
		return
	}

	if st := sess.Budget(); st.Exceeded {
		s.send(ctx, st.Message)

		ex.reply = st.Message
		ex.meta.BudgetBlocked = true
		ex.outcome = OutcomeBudgetBlocked
		p.complete(ctx, sess, s, ex, start)
		return
	}

	retrieved, web := p.ground(ctx, settings, red.Text)
	ex.meta.RAGUsed = settings.RAGOn
	ex.meta.RAGDocsRetrieved = len(retrieved)
	ex.meta.SearchUsed = settings.SearchOn
	ex.meta.SearchResults = len(web)

	composed := p.composer.Compose(history, red.Text, retrieved, web, settings)
	ex.citations = composed.Citations

	gen := p.generator.Stream(ctx, streamcompletion.Request{
		Messages:    composed.Messages,
		Model:       settings.Model,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	})
	for chunk := range gen.Chunks() {
		if !s.send(ctx, chunk) {
			gen.Cancel()
			break
		}
	}
	res := gen.Result()

	ex.reply = res.Text
	ex.err = res.Err
	ex.meta.TokensIn = res.Usage.TokensIn
	ex.meta.TokensOut = res.Usage.TokensOut
	ex.meta.Cost = res.Usage.Cost
	ex.meta.Latency = res.Usage.Latency
	if res.Usage.Model != "" {
		ex.meta.Model = res.Usage.Model
	}
	ex.meta.Cancelled = res.Cancelled
	ex.meta.Error = res.Err != nil
	ex.meta.Citations = composed.Citations

	switch {
	case res.Cancelled:
		ex.outcome = OutcomeCancelled
	case res.Err != nil:
		ex.outcome = OutcomeError
	default:
		ex.outcome = OutcomeCompleted
	}
	p.complete(ctx, sess, s, ex, start)
}

// ground fetches knowledge-base and web context concurrently. Neither
// source fails the turn; a missing source contributes nothing.
func (p *Pipeline) ground(ctx context.Context, settings models.Settings, query string) (retrieved, web []models.RetrievedPassage) {
	g, gctx := errgroup.WithContext(ctx)

	if settings.RAGOn && p.retriever != nil {
		g.Go(func() error {
			sctx, span := p.obs.StartSpan(gctx, retrieveknowledge.TaskType)
			defer span.End()
			if p.retriever.Available(sctx) {
				retrieved = p.retriever.Retrieve(sctx, query, p.config.RetrievalK)
			}
			span.SetAttributes(attribute.Int("passages", len(retrieved)))
			return nil
		})
	}

	if settings.SearchOn && p.searcher != nil {
		g.Go(func() error {
			sctx, span := p.obs.StartSpan(gctx, enrichwebsearch.TaskType)
			defer span.End()
			web = p.searcher.Search(sctx, enrichwebsearch.Reformulate(query), p.config.SearchK)
			span.SetAttributes(attribute.Int("passages", len(web)))
			return nil
		})
	}

	_ = g.Wait()
	return retrieved, web
}

// complete commits the exchange, logs it and ends the stream. A session
// cleared while the turn ran keeps nothing from it.
func (p *Pipeline) complete(ctx context.Context, sess *Session, s *Stream, ex exchange, start time.Time) {
	now := time.Now()
	user := models.Turn{
		ID:      uuid.NewString(),
		Role:    models.RoleUser,
		Content: ex.user.Text,
		Meta: &models.TurnMetadata{
			Timestamp: ex.meta.Timestamp,
			Redacted:  ex.user.Redacted,
		},
		CreatedAt: ex.meta.Timestamp,
	}
	meta := ex.meta
	assistant := models.Turn{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   ex.reply,
		Meta:      &meta,
		CreatedAt: now,
	}

	status, committed := sess.commit(ex.epoch, user, assistant)
	if !committed {
		ex.outcome = OutcomeDiscarded
	} else if p.turnLog != nil {
		p.turnLog.Append(context.WithoutCancel(ctx), meta)
	}

	metrics.TurnsCompleted.WithLabelValues(string(ex.outcome)).Inc()
	p.obs.RecordTurnProcessed(ctx, string(ex.outcome))
	p.obs.RecordTurnDuration(ctx, now.Sub(start), string(ex.outcome))
	if committed && meta.TotalTokens() > 0 {
		p.obs.RecordTokens(ctx, meta.Model, meta.TokensIn, meta.TokensOut)
	}

	fields := map[string]interface{}{
		"sessionId": sess.ID(),
		"outcome":   string(ex.outcome),
		"redacted":  meta.Redacted,
		"tokensIn":  meta.TokensIn,
		"tokensOut": meta.TokensOut,
		"citations": len(ex.citations),
		"budget":    string(status.Level),
	}
	if meta.Refused {
		fields["category"] = meta.RefusalCategory
	}
	p.logger.Info("turn finished", fields)

	citations := ex.citations
	if citations == nil {
		citations = []models.Citation{}
	}
	s.finish(TurnResult{
		SessionID: sess.ID(),
		Outcome:   ex.outcome,
		Text:      ex.reply,
		UserText:  ex.user.Text,
		Citations: citations,
		Meta:      meta,
		Budget:    status,
		Err:       ex.err,
	})
}

// SuggestedPrompts are starter questions for an empty session.
func (p *Pipeline) SuggestedPrompts() []string {
	return composeprompt.SuggestedPrompts()
}
