package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

type vectorEntry struct {
	vector []float32
	meta   driven.VectorMetadata
}

// VectorIndex is an in-memory brute-force cosine similarity index.
type VectorIndex struct {
	mu      sync.RWMutex
	entries map[string]vectorEntry
}

// NewVectorIndex creates an empty in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{entries: make(map[string]vectorEntry)}
}

// Upsert inserts or replaces the vector for a chunk.
func (v *VectorIndex) Upsert(_ context.Context, chunkID string, vector []float32, meta driven.VectorMetadata) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[chunkID] = vectorEntry{vector: vector, meta: meta}
	return nil
}

// Search returns the k most similar chunks by cosine similarity.
func (v *VectorIndex) Search(
	_ context.Context, query []float32, k int, filters domain.SearchFilters, threshold float64,
) ([]driven.VectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var hits []driven.VectorHit
	for id, entry := range v.entries {
		if !matchesFilters(entry.meta, filters) {
			continue
		}
		score := CosineSimilarity(query, entry.vector)
		if threshold > 0 && score < threshold {
			continue
		}
		hits = append(hits, driven.VectorHit{ChunkID: id, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteByDocument removes all vectors for a document.
func (v *VectorIndex) DeleteByDocument(_ context.Context, documentID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for id, entry := range v.entries {
		if entry.meta.DocumentID == documentID {
			delete(v.entries, id)
		}
	}
	return nil
}

// Close releases resources.
func (v *VectorIndex) Close() error { return nil }

func matchesFilters(meta driven.VectorMetadata, filters domain.SearchFilters) bool {
	if filters.Domain != "" && meta.Domain != filters.Domain {
		return false
	}
	if len(filters.DocumentIDs) > 0 {
		found := false
		for _, id := range filters.DocumentIDs {
			if id == meta.DocumentID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(filters.Tags) > 0 {
		found := false
		for _, want := range filters.Tags {
			for _, have := range meta.Tags {
				if want == have {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// CosineSimilarity computes the cosine similarity of two vectors,
// normalised into [0,1]. Mismatched lengths score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}
