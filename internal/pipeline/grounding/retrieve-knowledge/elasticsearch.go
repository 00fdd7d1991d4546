// internal/pipeline/grounding/retrieve-knowledge/elasticsearch.go
package retrieveknowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// esBackend runs approximate kNN against an index whose documents carry
// source, title, text and an "embedding" dense_vector field.
type esBackend struct {
	client *elasticsearch.Client
	index  string
	info   ModelInfo
	count  int
}

func newESBackend(client *elasticsearch.Client, index string, info ModelInfo) *esBackend {
	return &esBackend{client: client, index: index, info: info}
}

func (b *esBackend) name() string { return BackendElasticsearch }

func (b *esBackend) load(ctx context.Context) error {
	if b.client == nil {
		return fmt.Errorf("%w: elasticsearch client not configured", ErrIndexUnavailable)
	}

	res, err := esapi.CountRequest{Index: []string{b.index}}.Do(ctx, b.client)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: count %s: %s", ErrIndexUnavailable, b.index, res.Status())
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: decode count: %v", ErrIndexUnavailable, err)
	}
	if body.Count == 0 {
		return fmt.Errorf("%w: index %s is empty", ErrIndexUnavailable, b.index)
	}
	b.count = body.Count
	return nil
}

func (b *esBackend) modelInfo() ModelInfo {
	return b.info
}

func (b *esBackend) search(ctx context.Context, query []float32, k int) ([]hit, error) {
	queryBody := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "embedding",
			"query_vector":   query,
			"k":              k,
			"num_candidates": k * 10,
		},
		"_source": []string{"source", "title", "text"},
		"size":    k,
	}

	body, err := json.Marshal(queryBody)
	if err != nil {
		return nil, err
	}

	req := esapi.SearchRequest{
		Index: []string{b.index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, b.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Score  float64   `json:"_score"`
				Source ChunkMeta `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]hit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		if h.Source.Source == "" {
			continue
		}
		hits = append(hits, hit{meta: h.Source, score: h.Score})
	}
	return hits, nil
}

func (b *esBackend) stats(ctx context.Context) Stats {
	return Stats{
		Loaded:       true,
		Backend:      BackendElasticsearch,
		TotalChunks:  b.count,
		IndexSize:    b.count,
		EmbeddingDim: b.info.EmbeddingDim,
		ModelName:    b.info.ModelName,
	}
}
