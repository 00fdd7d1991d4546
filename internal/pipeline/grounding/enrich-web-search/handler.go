// internal/pipeline/grounding/enrich-web-search/handler.go
package enrichwebsearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	commonhttp "github.com/sbgadvisor/WellNavigator2/internal/common/http"
	"github.com/sbgadvisor/WellNavigator2/internal/common/metrics"
	"github.com/sbgadvisor/WellNavigator2/internal/models"
)

const (
	TaskType = "enrich-web-search"

	cacheKeyPrefix = "wellnav:search:"
)

var (
	ErrWebSearchTimeout = errors.New("WEB_SEARCH_TIMEOUT")
	ErrWebSearchFailed  = errors.New("WEB_SEARCH_FAILED")
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Cache stores provider results between turns. *database.RedisClient satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type Handler struct {
	config *Config
	client *commonhttp.Client
	cache  Cache
	logger Logger
}

// NewHandler builds the search adapter. cache may be nil.
func NewHandler(config *Config, cache Cache, log Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Handler{
		config: config,
		client: commonhttp.NewClient(config.Timeout, commonhttp.WithRateLimit(config.RateLimit, config.Burst)),
		cache:  cache,
		logger: log.With(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

// Configured reports whether both provider credentials are present.
func (h *Handler) Configured() bool {
	return h.config.SearchAPIKey != "" && h.config.SearchEngineID != ""
}

func (h *Handler) Status() Status {
	return Status{
		Configured:   h.Configured(),
		APIKeySet:    h.config.SearchAPIKey != "",
		EngineIDSet:  h.config.SearchEngineID != "",
		CacheEnabled: h.cache != nil && h.config.CacheTTL > 0,
		RateLimit:    h.config.RateLimit,
	}
}

// Search returns at most k web passages. Provider failures and missing
// credentials fall back to the offline stub list; it never returns an error.
func (h *Handler) Search(ctx context.Context, query string, k int) []models.RetrievedPassage {
	out, err := h.Execute(ctx, &Input{Query: query, K: k})
	if err != nil {
		reason := "provider_error"
		if errors.Is(err, ErrWebSearchTimeout) {
			reason = "timeout"
		}
		metrics.StageFallbacks.WithLabelValues(TaskType, reason).Inc()
		h.logger.Warn("web search failed, using stub results", map[string]interface{}{
			"error": err.Error(),
		})
		out = &Output{Results: stubResults(query, h.limit(k)), Stub: true}
	}
	return toPassages(out.Results)
}

// Execute runs one search. Unlike Search it surfaces provider errors.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	k := h.limit(input.K)
	query := strings.TrimSpace(input.Query)

	if !h.Configured() {
		metrics.StageFallbacks.WithLabelValues(TaskType, "unconfigured").Inc()
		return &Output{Results: stubResults(query, k), Query: query, Stub: true}, nil
	}

	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	key := cacheKey(query, k)
	if results, ok := h.cached(ctx, key); ok {
		return &Output{Results: results, Query: query}, nil
	}

	results, err := h.execute(ctx, query, k)
	if err != nil {
		return nil, err
	}

	if h.cache != nil && h.config.CacheTTL > 0 {
		if err := h.cache.SetJSON(ctx, key, results, h.config.CacheTTL); err != nil {
			h.logger.Warn("search cache write failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	h.logger.Info("web search completed", map[string]interface{}{
		"queryLength": len(query),
		"resultCount": len(results),
	})

	return &Output{Results: results, Query: query}, nil
}

func (h *Handler) cached(ctx context.Context, key string) ([]Result, bool) {
	if h.cache == nil || h.config.CacheTTL <= 0 {
		return nil, false
	}
	var results []Result
	hit, err := h.cache.GetJSON(ctx, key, &results)
	if err != nil {
		h.logger.Warn("search cache read failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}
	return results, hit
}

func (h *Handler) execute(ctx context.Context, query string, k int) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	searchURL, err := h.buildSearchURL(query, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebSearchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebSearchFailed, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded ||
			strings.Contains(err.Error(), "Client.Timeout") ||
			strings.Contains(err.Error(), "deadline") {
			return nil, ErrWebSearchTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrWebSearchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: search API returned %d", ErrWebSearchFailed, resp.StatusCode)
	}

	var apiResponse struct {
		Items []struct {
			Link    string `json:"link"`
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrWebSearchFailed, err)
	}

	results := make([]Result, 0, len(apiResponse.Items))
	for _, item := range apiResponse.Items {
		if len(results) >= k {
			break
		}
		results = append(results, Result{
			Title:   item.Title,
			Snippet: item.Snippet,
			URL:     item.Link,
			Source:  SourceName(item.Link),
		})
	}
	return results, nil
}

func (h *Handler) buildSearchURL(query string, k int) (string, error) {
	baseURL, err := url.Parse(h.config.SearchAPIBaseURL)
	if err != nil {
		return "", err
	}
	params := url.Values{}
	params.Add("key", h.config.SearchAPIKey)
	params.Add("cx", h.config.SearchEngineID)
	params.Add("q", query)
	params.Add("num", strconv.Itoa(min(k, maxProviderResults)))
	params.Add("safe", "active")
	params.Add("fields", "items(title,snippet,link)")
	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

func (h *Handler) limit(k int) int {
	if k <= 0 {
		k = h.config.MaxResults
	}
	if k <= 0 {
		k = 3
	}
	return k
}

func cacheKey(query string, k int) string {
	sum := sha256.Sum256([]byte(strings.ToLower(query)))
	return cacheKeyPrefix + strconv.Itoa(k) + ":" + hex.EncodeToString(sum[:16])
}

func toPassages(results []Result) []models.RetrievedPassage {
	passages := make([]models.RetrievedPassage, 0, len(results))
	for _, r := range results {
		p, err := models.NewWebPassage(r.Snippet, r.Source, r.Title, r.URL)
		if err != nil {
			continue
		}
		passages = append(passages, p)
	}
	return passages
}

var (
	contextTerms = []string{"health", "medical", "doctor", "treatment", "symptoms", "condition"}
	healthTerms  = []string{
		"diabetes", "blood pressure", "hypertension", "cholesterol", "heart",
		"pain", "symptoms", "medication", "treatment", "diagnosis", "test",
		"appointment", "visit", "specialist", "insurance", "bill", "cost",
	}
)

// Reformulate nudges health queries toward medical results.
func Reformulate(query string) string {
	q := strings.TrimSpace(query)
	lower := strings.ToLower(q)
	if !containsAny(lower, contextTerms) && containsAny(lower, healthTerms) {
		q += " health medical information"
	}
	return q
}
