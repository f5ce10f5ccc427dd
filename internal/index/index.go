// Package index implements the in-memory vector index used for dense
// retrieval. Vectors are expected L2-normalized, so cosine similarity is
// a plain dot product. The index is read-shared across sessions; only
// the offline build path mutates it, under the write lock.
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openlegis/legisrag/internal/model"
	apperrors "github.com/openlegis/legisrag/internal/pkg/errors"
)

// Hit is one search candidate. Rank assignment is left to the retrieval
// engine, which may still filter and deduplicate.
type Hit struct {
	Chunk model.Chunk
	Score float32
}

type Index struct {
	mu        sync.RWMutex
	dimension int
	chunks    []model.Chunk
	vectors   [][]float32
	byID      map[string]int
	snapshot  model.IndexSnapshot
	ready     bool
}

func New(dimension int) *Index {
	return &Index{
		dimension: dimension,
		byID:      map[string]int{},
	}
}

func (idx *Index) Dimension() int {
	return idx.dimension
}

// Ready reports whether a snapshot has been loaded or built.
func (idx *Index) Ready() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ready
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

func (idx *Index) Snapshot() model.IndexSnapshot {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.snapshot
}

// BulkLoad replaces the index contents under the exclusive build lock.
// Re-inserting an existing chunk id replaces its vector; vectors are
// never mutated in place.
func (idx *Index) BulkLoad(chunks []model.Chunk, vectors [][]float32, snapshot model.IndexSnapshot) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != idx.dimension {
			return fmt.Errorf("vector %d dimension %d, expected %d", i, len(vec), idx.dimension)
		}
	}

	newChunks := make([]model.Chunk, 0, len(chunks))
	newVectors := make([][]float32, 0, len(vectors))
	byID := make(map[string]int, len(chunks))
	for i, chunk := range chunks {
		if pos, exists := byID[chunk.ID]; exists {
			newChunks[pos] = chunk
			newVectors[pos] = vectors[i]
			continue
		}
		byID[chunk.ID] = len(newChunks)
		newChunks = append(newChunks, chunk)
		newVectors = append(newVectors, vectors[i])
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.chunks = newChunks
	idx.vectors = newVectors
	idx.byID = byID
	idx.snapshot = snapshot
	idx.snapshot.ChunkCount = len(newChunks)
	idx.ready = true
	return nil
}

// Search returns up to k hits strictly descending by score. Ties break
// on chunk id so results are deterministic for a fixed index and k.
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("query dimension %d, expected %d", len(query), idx.dimension)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if !idx.ready {
		return nil, apperrors.ErrIndexUnavailable
	}

	order := make([]int, len(idx.vectors))
	scores := make([]float32, len(idx.vectors))
	for i, vec := range idx.vectors {
		order[i] = i
		scores[i] = dot(vec, query)
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		return idx.chunks[ia].ID < idx.chunks[ib].ID
	})

	if k > len(order) {
		k = len(order)
	}
	hits := make([]Hit, 0, k)
	for _, i := range order[:k] {
		hits = append(hits, Hit{Chunk: idx.chunks[i], Score: scores[i]})
	}
	return hits, nil
}

// Get looks a chunk up by id.
func (idx *Index) Get(chunkID string) (model.Chunk, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	pos, ok := idx.byID[chunkID]
	if !ok {
		return model.Chunk{}, false
	}
	return idx.chunks[pos], true
}

// Themes returns the distinct chunk themes in sorted order.
func (idx *Index) Themes() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	seen := map[string]bool{}
	var themes []string
	for _, chunk := range idx.chunks {
		if chunk.Theme == "" || seen[chunk.Theme] {
			continue
		}
		seen[chunk.Theme] = true
		themes = append(themes, chunk.Theme)
	}
	sort.Strings(themes)
	return themes
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
