// internal/pipeline/grounding/retrieve-knowledge/models.go
package retrieveknowledge

import "github.com/sbgadvisor/WellNavigator2/internal/models"

type Input struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type Output struct {
	Passages []models.RetrievedPassage `json:"passages"`
}

// ChunkMeta is one entry of metadata.json, aligned by position with index.bin.
type ChunkMeta struct {
	Source     string `json:"source"`
	Title      string `json:"title"`
	Text       string `json:"text,omitempty"`
	TextLength int    `json:"text_length,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
}

// ModelInfo is model_info.json.
type ModelInfo struct {
	ModelName      string `json:"model_name"`
	EmbeddingDim   int    `json:"embedding_dim"`
	IndexType      string `json:"index_type,omitempty"`
	TotalDocuments int    `json:"total_documents,omitempty"`
}

// Stats describes the loaded index.
type Stats struct {
	Loaded       bool           `json:"loaded"`
	Backend      string         `json:"backend,omitempty"`
	TotalChunks  int            `json:"total_chunks,omitempty"`
	IndexSize    int            `json:"index_size,omitempty"`
	EmbeddingDim int            `json:"embedding_dim,omitempty"`
	ModelName    string         `json:"model_name,omitempty"`
	Sources      map[string]int `json:"sources,omitempty"`
}

type hit struct {
	meta  ChunkMeta
	score float64
}
