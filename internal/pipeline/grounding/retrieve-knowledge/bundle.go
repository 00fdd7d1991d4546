// internal/pipeline/grounding/retrieve-knowledge/bundle.go
package retrieveknowledge

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sbgadvisor/WellNavigator2/internal/common/validation"
)

const (
	IndexFile     = "index.bin"
	MetadataFile  = "metadata.json"
	ModelInfoFile = "model_info.json"

	indexMagic   = "WNVX"
	indexVersion = 1
)

var metadataSchema = validation.JSONSchema{
	Type: "array",
	Items: &validation.Property{
		Type: "object",
		Properties: map[string]validation.Property{
			"source": {Type: "string", MinLength: validation.Int(1)},
			"title":  {Type: "string"},
			"text":   {Type: "string"},
		},
		Required: []string{"source", "title"},
	},
}

var modelInfoSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"model_name":    {Type: "string", MinLength: validation.Int(1)},
		"embedding_dim": {Type: "integer", Minimum: validation.Float(1)},
	},
	Required: []string{"model_name", "embedding_dim"},
}

// flatIndex is an exact inner-product index over unit vectors.
type flatIndex struct {
	dim     int
	vectors [][]float32
	meta    []ChunkMeta
	info    ModelInfo
}

// bundleBackend serves the on-disk index bundle from memory.
type bundleBackend struct {
	dir   string
	index *flatIndex
}

func newBundleBackend(dir string) *bundleBackend {
	return &bundleBackend{dir: dir}
}

func (b *bundleBackend) name() string { return BackendBundle }

func (b *bundleBackend) load(ctx context.Context) error {
	idx, err := loadBundle(b.dir)
	if err != nil {
		return err
	}
	b.index = idx
	return nil
}

func (b *bundleBackend) modelInfo() ModelInfo {
	return b.index.info
}

func (b *bundleBackend) search(ctx context.Context, query []float32, k int) ([]hit, error) {
	if len(query) != b.index.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), b.index.dim)
	}
	q := normalized(query)

	hits := make([]hit, 0, len(b.index.vectors))
	for i, v := range b.index.vectors {
		hits = append(hits, hit{meta: b.index.meta[i], score: dot(q, v)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (b *bundleBackend) stats(ctx context.Context) Stats {
	sources := make(map[string]int)
	for _, m := range b.index.meta {
		sources[m.Source]++
	}
	return Stats{
		Loaded:       true,
		Backend:      BackendBundle,
		TotalChunks:  len(b.index.meta),
		IndexSize:    len(b.index.vectors),
		EmbeddingDim: b.index.dim,
		ModelName:    b.index.info.ModelName,
		Sources:      sources,
	}
}

// loadBundle reads and cross-checks the three bundle artifacts.
func loadBundle(dir string) (*flatIndex, error) {
	for _, name := range []string{IndexFile, MetadataFile, ModelInfoFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("%w: %s missing in %s", ErrIndexUnavailable, name, dir)
		}
	}

	var info ModelInfo
	if err := readValidatedJSON(filepath.Join(dir, ModelInfoFile), modelInfoSchema, &info); err != nil {
		return nil, err
	}

	var meta []ChunkMeta
	if err := readValidatedJSON(filepath.Join(dir, MetadataFile), metadataSchema, &meta); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	vectors, err := readIndex(bufio.NewReader(f), fi.Size(), len(meta), info.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBundleInvalid, IndexFile, err)
	}
	return &flatIndex{dim: info.EmbeddingDim, vectors: vectors, meta: meta, info: info}, nil
}

func readValidatedJSON(path string, schema validation.JSONSchema, dest interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	result, err := validation.Validate(schema, json.RawMessage(raw))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBundleInvalid, filepath.Base(path), err)
	}
	if !result.Valid {
		return fmt.Errorf("%w: %s: %s", ErrBundleInvalid, filepath.Base(path), strings.Join(result.GetErrorMessages(), "; "))
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBundleInvalid, filepath.Base(path), err)
	}
	return nil
}

// indexHeaderSize is the magic plus three uint32 header fields.
const indexHeaderSize = 16

// readIndex decodes index.bin: magic "WNVX", then little-endian uint32
// version, count and dimension, then count*dimension float32 values.
// The header must agree with the metadata count, the model dimension and
// the file size before any vector storage is allocated.
// Vectors are normalized on load so inner product equals cosine similarity.
func readIndex(r io.Reader, size int64, wantCount, wantDim int) ([][]float32, error) {
	magic := make([]byte, len(indexMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(magic) != indexMagic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}

	var header struct {
		Version uint32
		Count   uint32
		Dim     uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header.Version != indexVersion {
		return nil, fmt.Errorf("unsupported index version %d", header.Version)
	}
	if header.Dim == 0 {
		return nil, fmt.Errorf("zero dimension")
	}
	if int64(header.Dim) != int64(wantDim) {
		return nil, fmt.Errorf("index dimension %d, model_info says %d", header.Dim, wantDim)
	}
	if int64(header.Count) != int64(wantCount) {
		return nil, fmt.Errorf("%d vectors but %d metadata entries", header.Count, wantCount)
	}
	if want := indexHeaderSize + int64(header.Count)*int64(header.Dim)*4; size != want {
		return nil, fmt.Errorf("file is %d bytes, header implies %d", size, want)
	}

	vectors := make([][]float32, header.Count)
	for i := range vectors {
		v := make([]float32, header.Dim)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors[i] = normalized(v)
	}

	return vectors, nil
}

func normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
