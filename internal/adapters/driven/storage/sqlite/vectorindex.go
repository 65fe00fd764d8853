package sqlite

import (
	"context"
	"fmt"
	"sort"

	"github.com/kbforge-labs/kbforge-cli/internal/adapters/driven/storage/memory"
	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
)

// vectorIndex stores embeddings as float32 BLOBs and brute-force
// scores candidates in Go. Domain and document filters narrow the
// candidate set in SQL; tag filters apply after decoding because tags
// live in a JSON column.
type vectorIndex struct {
	store *Store
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Upsert inserts or replaces the vector for a chunk.
func (v *vectorIndex) Upsert(ctx context.Context, chunkID string, vector []float32, meta driven.VectorMetadata) error {
	tagsJSON, err := marshalJSON(meta.Tags, "[]")
	if err != nil {
		return fmt.Errorf("marshalling vector tags: %w", err)
	}

	_, err = v.store.db.ExecContext(ctx, `
		INSERT INTO vectors (chunk_id, document_id, domain, tags, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			domain = excluded.domain,
			tags = excluded.tags,
			embedding = excluded.embedding
	`, chunkID, meta.DocumentID, meta.Domain, tagsJSON, float32SliceToBytes(vector))
	if err != nil {
		return fmt.Errorf("upserting vector: %w", err)
	}
	return nil
}

// Search returns the k most similar chunks by cosine similarity.
func (v *vectorIndex) Search(
	ctx context.Context, query []float32, k int, filters domain.SearchFilters, threshold float64,
) ([]driven.VectorHit, error) {
	sqlQuery := "SELECT chunk_id, document_id, tags, embedding FROM vectors"
	var clauses []string
	var args []any

	if filters.Domain != "" {
		clauses = append(clauses, "domain = ?")
		args = append(args, filters.Domain)
	}
	if len(filters.DocumentIDs) > 0 {
		placeholders := ""
		for i, id := range filters.DocumentIDs {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, id)
		}
		clauses = append(clauses, "document_id IN ("+placeholders+")")
	}
	for i, clause := range clauses {
		if i == 0 {
			sqlQuery += " WHERE " + clause
		} else {
			sqlQuery += " AND " + clause
		}
	}

	rows, err := v.store.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []driven.VectorHit
	for rows.Next() {
		var chunkID, documentID, tagsJSON string
		var blob []byte
		if err := rows.Scan(&chunkID, &documentID, &tagsJSON, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}

		if len(filters.Tags) > 0 {
			tags, err := unmarshalStrings(tagsJSON)
			if err != nil {
				return nil, fmt.Errorf("unmarshaling vector tags: %w", err)
			}
			if !anyTagMatches(filters.Tags, tags) {
				continue
			}
		}

		score := memory.CosineSimilarity(query, bytesToFloat32Slice(blob))
		if threshold > 0 && score < threshold {
			continue
		}
		hits = append(hits, driven.VectorHit{ChunkID: chunkID, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
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
func (v *vectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := v.store.db.ExecContext(ctx,
		"DELETE FROM vectors WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("deleting vectors: %w", err)
	}
	return nil
}

// Close is a no-op; the shared Store owns the connection.
func (v *vectorIndex) Close() error { return nil }

func anyTagMatches(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
