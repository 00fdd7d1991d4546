// cmd/wellnavigator/app.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/sbgadvisor/WellNavigator2/internal/chat"
	"github.com/sbgadvisor/WellNavigator2/internal/common/config"
	"github.com/sbgadvisor/WellNavigator2/internal/common/database"
	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/common/observability"
	"github.com/sbgadvisor/WellNavigator2/internal/common/tokens"

	sc "github.com/sbgadvisor/WellNavigator2/internal/pipeline/generation/stream-completion"
	ews "github.com/sbgadvisor/WellNavigator2/internal/pipeline/grounding/enrich-web-search"
	rk "github.com/sbgadvisor/WellNavigator2/internal/pipeline/grounding/retrieve-knowledge"
	cs "github.com/sbgadvisor/WellNavigator2/internal/pipeline/guard/classify-safety"
	rp "github.com/sbgadvisor/WellNavigator2/internal/pipeline/guard/redact-pi"
	cp "github.com/sbgadvisor/WellNavigator2/internal/pipeline/prompt/compose-prompt"
	lt "github.com/sbgadvisor/WellNavigator2/internal/pipeline/session/log-turn"
	tb "github.com/sbgadvisor/WellNavigator2/internal/pipeline/session/track-budget"
)

// app holds the wired pipeline and the backends it owns.
type app struct {
	cfg *config.Config
	zap *zap.Logger
	log logger.Logger
	obs *observability.Observability

	pg    *database.PostgresClient
	redis *database.RedisClient
	es    *database.ElasticsearchClient

	retriever *rk.Handler
	searcher  *ews.Handler
	generator *sc.Handler
	turnLog   *lt.Handler
	pipeline  *chat.Pipeline
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
}

// newApp connects the optional backends and wires every stage. A backend
// that cannot be reached is logged and left out; the turn degrades instead.
func newApp(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (*app, error) {
	log := logger.NewZapAdapter(zapLog)
	a := &app{
		cfg: cfg,
		zap: zapLog,
		log: log,
		obs: observability.New(cfg.App.Name),
	}

	a.connectRedis(ctx)
	a.connectElasticsearch()
	a.connectPostgres(ctx)

	var db *sql.DB
	if a.pg != nil {
		db = a.pg.DB
	}
	ltCfg := &lt.Config{
		Dir:     cfg.TurnLog.Dir,
		Table:   cfg.TurnLog.Table,
		Timeout: config.GetDuration(cfg.TurnLog.Timeout),
	}
	turnLog, err := lt.NewHandler(ltCfg, db, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("turn log: %w", err)
	}
	if db != nil {
		if err := turnLog.EnsureSchema(ctx); err != nil {
			zapLog.Warn("turn log table unavailable, logging to files only", zap.Error(err))
			if turnLog, err = lt.NewHandler(ltCfg, nil, log); err != nil {
				a.Close()
				return nil, fmt.Errorf("turn log: %w", err)
			}
		}
	}
	a.turnLog = turnLog

	a.pipeline = chat.NewPipeline(a.chatConfig(), a.deps(), log)
	return a, nil
}

func (a *app) connectRedis(ctx context.Context) {
	if a.cfg.Database.Redis.Address == "" {
		return
	}
	redis, err := database.NewRedis(a.cfg.Database.Redis)
	if err != nil {
		a.zap.Warn("redis unavailable, web search results will not be cached", zap.Error(err))
		return
	}
	err = retryWithBackoff(func() error {
		return redis.Ping(ctx)
	}, 3, time.Second, a.zap, "Redis connection")
	if err != nil {
		a.zap.Warn("redis unavailable, web search results will not be cached", zap.Error(err))
		redis.Close()
		return
	}
	a.redis = redis
	a.zap.Info("Redis connected successfully")
}

func (a *app) connectElasticsearch() {
	if a.cfg.Retrieval.Backend != rk.BackendElasticsearch {
		return
	}
	es, err := database.NewElasticsearch(a.cfg.Database.Elasticsearch)
	if err != nil {
		a.zap.Warn("elasticsearch unavailable, retrieval disabled", zap.Error(err))
		return
	}
	err = retryWithBackoff(es.Ping, 5, 2*time.Second, a.zap, "Elasticsearch connection")
	if err != nil {
		a.zap.Warn("elasticsearch unavailable, retrieval disabled", zap.Error(err))
		return
	}
	a.es = es
	a.zap.Info("Elasticsearch connected successfully")
}

func (a *app) connectPostgres(ctx context.Context) {
	if !a.cfg.TurnLog.PostgresEnabled {
		return
	}
	pg, err := database.NewPostgres(a.cfg.Database.Postgres)
	if err != nil {
		a.zap.Warn("postgres unavailable, logging to files only", zap.Error(err))
		return
	}
	err = retryWithBackoff(func() error {
		return pg.Ping(ctx)
	}, 5, 2*time.Second, a.zap, "PostgreSQL connection")
	if err != nil {
		a.zap.Warn("postgres unavailable, logging to files only", zap.Error(err))
		pg.Close()
		return
	}
	a.pg = pg
	a.zap.Info("PostgreSQL connected successfully")
}

func (a *app) chatConfig() *chat.Config {
	return &chat.Config{
		RetrievalK:  a.cfg.Retrieval.TopK,
		SearchK:     a.cfg.APIs.WebSearch.TopK,
		Model:       a.cfg.APIs.GenAI.Model,
		Temperature: a.cfg.APIs.GenAI.Temperature,
		MaxTokens:   a.cfg.APIs.GenAI.MaxTokens,
		RAGOn:       a.cfg.Session.RAGOn,
		SearchOn:    a.cfg.Session.SearchOn,
	}
}

func (a *app) deps() chat.Deps {
	cfg := a.cfg
	deps := chat.Deps{
		Redactor:   rp.NewHandler(rp.LoadConfig(), a.log),
		Classifier: cs.NewHandler(cs.LoadConfig(), a.log),
		Composer: cp.NewHandler(&cp.Config{
			MaxPassages:   cfg.Retrieval.MaxPassages,
			HistoryWindow: cfg.Session.HistoryWindow,
		}, a.log),
		TurnLog: a.turnLog,
		Budget: &tb.Config{
			Ceiling:         cfg.Session.TokenCeiling,
			WarningFraction: cfg.Session.WarningFraction,
		},
		Obs: a.obs,
	}

	if config.IsStageEnabled(cfg, rk.TaskType) {
		a.retriever = a.newRetriever()
		deps.Retriever = a.retriever
	}

	if config.IsStageEnabled(cfg, ews.TaskType) {
		a.searcher = a.newSearcher()
		deps.Searcher = a.searcher
	}

	a.generator = a.newGenerator()
	deps.Generator = a.generator
	return deps
}

func (a *app) newRetriever() *rk.Handler {
	cfg := a.cfg
	rcfg := rk.LoadConfig()
	rcfg.Backend = cfg.Retrieval.Backend
	rcfg.IndexDir = cfg.Retrieval.IndexDir
	rcfg.ESIndex = cfg.Retrieval.Index
	rcfg.MaxPassages = cfg.Retrieval.MaxPassages
	rcfg.EmbeddingModel = cfg.APIs.Embeddings.Model
	rcfg.Timeout = config.GetDuration(config.GetStageConfig(cfg, rk.TaskType).Timeout)

	var embedder rk.Embedder
	if cfg.APIs.Embeddings.APIKey != "" {
		embedder = rk.NewOpenAIEmbedder(cfg.APIs.Embeddings.APIKey, cfg.APIs.Embeddings.BaseURL)
	}

	var esClient *elasticsearch.Client
	if a.es != nil {
		esClient = a.es.Client
	}
	return rk.NewHandler(rcfg, embedder, esClient, a.log)
}

func (a *app) newSearcher() *ews.Handler {
	ws := a.cfg.APIs.WebSearch
	scfg := &ews.Config{
		SearchAPIBaseURL: ws.BaseURL,
		SearchAPIKey:     ws.APIKey,
		SearchEngineID:   ws.EngineID,
		Timeout:          config.GetDuration(ws.Timeout),
		MaxResults:       ws.TopK,
		RateLimit:        ws.RateLimit,
		Burst:            ws.Burst,
		CacheTTL:         time.Duration(ws.CacheTTL) * time.Second,
	}

	var cache ews.Cache
	if a.redis != nil {
		cache = a.redis
	}
	return ews.NewHandler(scfg, cache, &enrichWebSearchLoggerAdapter{a.log})
}

func (a *app) newGenerator() *sc.Handler {
	genai := a.cfg.APIs.GenAI
	return sc.NewHandler(&sc.Config{
		APIKey:      genai.APIKey,
		BaseURL:     genai.BaseURL,
		Model:       genai.Model,
		Temperature: genai.Temperature,
		MaxTokens:   genai.MaxTokens,
		Timeout:     config.GetDuration(genai.Timeout),
		MaxRetries:  genai.MaxRetries,
	}, tokens.NewCounter(), a.log)
}

func (a *app) Close() {
	if a.turnLog != nil {
		a.turnLog.Flush()
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	a.obs.Shutdown()
}

// Logger adapter for the search stage, which has its own Logger interface
type enrichWebSearchLoggerAdapter struct {
	logger.Logger
}

func (a *enrichWebSearchLoggerAdapter) With(fields map[string]interface{}) ews.Logger {
	return &enrichWebSearchLoggerAdapter{a.Logger.With(fields)}
}
