// internal/pipeline/grounding/retrieve-knowledge/handler.go
package retrieveknowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sbgadvisor/WellNavigator2/internal/common/logger"
	"github.com/sbgadvisor/WellNavigator2/internal/common/metrics"
	"github.com/sbgadvisor/WellNavigator2/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

const (
	TaskType = "retrieve-knowledge"
)

var (
	ErrIndexUnavailable = errors.New("INDEX_UNAVAILABLE")
	ErrBundleInvalid    = errors.New("BUNDLE_INVALID")
	ErrRetrievalFailed  = errors.New("RETRIEVAL_FAILED")
)

type backend interface {
	name() string
	load(ctx context.Context) error
	modelInfo() ModelInfo
	search(ctx context.Context, query []float32, k int) ([]hit, error)
	stats(ctx context.Context) Stats
}

// Handler is the knowledge-base retrieval adapter. The backend is loaded
// lazily on first use; a failed load leaves the handler unavailable for the
// rest of the process and every query then returns no passages.
type Handler struct {
	config   *Config
	backend  backend
	embedder Embedder
	logger   logger.Logger

	once    sync.Once
	loadErr error
}

func NewHandler(config *Config, embedder Embedder, esClient *elasticsearch.Client, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}

	var b backend
	switch config.Backend {
	case BackendElasticsearch:
		b = newESBackend(esClient, config.ESIndex, ModelInfo{
			ModelName:    config.EmbeddingModel,
			EmbeddingDim: config.EmbeddingDim,
		})
	default:
		b = newBundleBackend(config.IndexDir)
	}

	return &Handler{
		config:   config,
		backend:  b,
		embedder: embedder,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
			"backend":  b.name(),
		}),
	}
}

// Available loads the index on first call and reports whether it is usable.
func (h *Handler) Available(ctx context.Context) bool {
	h.once.Do(func() {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout())
		defer cancel()

		if h.embedder == nil {
			h.loadErr = fmt.Errorf("%w: no query embedder configured", ErrIndexUnavailable)
		} else {
			h.loadErr = h.backend.load(loadCtx)
		}

		if h.loadErr != nil {
			metrics.StageFallbacks.WithLabelValues(TaskType, "unavailable").Inc()
			h.logger.Warn("knowledge base unavailable", map[string]interface{}{
				"error": h.loadErr.Error(),
			})
			return
		}

		st := h.backend.stats(loadCtx)
		h.logger.Info("knowledge base loaded", map[string]interface{}{
			"chunks":       st.TotalChunks,
			"embeddingDim": st.EmbeddingDim,
			"model":        st.ModelName,
		})
	})
	return h.loadErr == nil
}

// Retrieve returns at most k passages in descending score order. It never
// fails: an unavailable index or a failed query yields no passages.
func (h *Handler) Retrieve(ctx context.Context, query string, k int) []models.RetrievedPassage {
	passages, err := h.Search(ctx, query, k)
	if err != nil {
		if !errors.Is(err, ErrIndexUnavailable) {
			metrics.StageFallbacks.WithLabelValues(TaskType, "query_failed").Inc()
			h.logger.Warn("retrieval failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil
	}
	return passages
}

// Search is Retrieve with errors surfaced.
func (h *Handler) Search(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if !h.Available(ctx) {
		return nil, h.loadErr
	}

	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, h.timeout())
	defer cancel()

	k = h.config.limit(k)
	info := h.backend.modelInfo()

	vec, err := h.embedder.Embed(ctx, query, info.ModelName, info.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrRetrievalFailed, err)
	}

	hits, err := h.backend.search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}

	passages := make([]models.RetrievedPassage, 0, len(hits))
	for _, hit := range hits {
		p, err := models.NewKnowledgePassage(passageText(hit.meta), hit.meta.Source, hit.meta.Title, hit.score)
		if err != nil {
			continue
		}
		passages = append(passages, p)
	}

	h.logger.Debug("knowledge base queried", map[string]interface{}{
		"requested": k,
		"returned":  len(passages),
	})

	return passages, nil
}

// Execute is the Input/Output form of Search.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	passages, err := h.Search(ctx, input.Query, input.K)
	if err != nil {
		return nil, err
	}
	return &Output{Passages: passages}, nil
}

func (h *Handler) timeout() time.Duration {
	if h.config.Timeout <= 0 {
		return 10 * time.Second
	}
	return h.config.Timeout
}

// Stats describes the index, loading it if needed.
func (h *Handler) Stats(ctx context.Context) Stats {
	if !h.Available(ctx) {
		return Stats{Loaded: false, Backend: h.backend.name()}
	}
	return h.backend.stats(ctx)
}
