package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
)

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, external_id, title, content, content_hash, status,
	source_path, relative_path, repo_name, git_commit, git_remote_url,
	domain, tags, mime_type, metadata, created_at, updated_at, indexed_at`

// SaveDocument stores or replaces a document.
func (s *documentStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	tagsJSON, err := marshalJSON(doc.Tags, "[]")
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}
	metadataJSON, err := marshalJSON(doc.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			external_id = excluded.external_id,
			title = excluded.title,
			content = excluded.content,
			content_hash = excluded.content_hash,
			status = excluded.status,
			source_path = excluded.source_path,
			relative_path = excluded.relative_path,
			repo_name = excluded.repo_name,
			git_commit = excluded.git_commit,
			git_remote_url = excluded.git_remote_url,
			domain = excluded.domain,
			tags = excluded.tags,
			mime_type = excluded.mime_type,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at,
			indexed_at = excluded.indexed_at
	`, doc.ID, nullString(doc.ExternalID), doc.Title, doc.Content, doc.ContentHash, string(doc.Status),
		doc.SourcePath, doc.RelativePath, doc.RepoName, doc.GitCommit, doc.GitRemoteURL,
		doc.Domain, tagsJSON, doc.MimeType, metadataJSON,
		doc.CreatedAt, doc.UpdatedAt, nullTime(doc.IndexedAt))

	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// UpdateDocument updates mutable document fields.
func (s *documentStore) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE documents SET
			title = ?, content = ?, content_hash = ?, status = ?,
			git_commit = ?, domain = ?, updated_at = ?, indexed_at = ?
		WHERE id = ?
	`, doc.Title, doc.Content, doc.ContentHash, string(doc.Status),
		doc.GitCommit, doc.Domain, doc.UpdatedAt, nullTime(doc.IndexedAt), doc.ID)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetByExternalID retrieves a document by its stable external key.
func (s *documentStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE external_id = ?`, externalID)
	return scanDocument(row)
}

// ListDocuments returns up to limit documents, newest first. A zero
// limit means no bound.
func (s *documentStore) ListDocuments(ctx context.Context, limit int) ([]domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// CountByStatus returns document counts keyed by status.
func (s *documentStore) CountByStatus(ctx context.Context) (map[domain.DocumentStatus]int, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.DocumentStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[domain.DocumentStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counts: %w", err)
	}
	return counts, nil
}

// DeleteDocument removes a document. Chunks go with it via the
// foreign key cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// SaveChunks stores chunks for a document in one transaction.
func (s *documentStore) SaveChunks(ctx context.Context, chunks []domain.Chunk) error {
	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, content, sequence, heading_path,
			section_anchor, chunk_type, start_offset, end_offset, embedding, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			content = excluded.content,
			sequence = excluded.sequence,
			heading_path = excluded.heading_path,
			section_anchor = excluded.section_anchor,
			chunk_type = excluded.chunk_type,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			embedding = excluded.embedding,
			metadata = excluded.metadata
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		headingJSON, err := marshalJSON(chunk.HeadingPath, "[]")
		if err != nil {
			return fmt.Errorf("marshalling heading path: %w", err)
		}
		metadataJSON, err := marshalJSON(chunk.Metadata, "{}")
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}

		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Content,
			chunk.Sequence, headingJSON, chunk.SectionAnchor, string(chunk.ChunkType),
			chunk.StartOffset, chunk.EndOffset, float32SliceToBytes(chunk.Embedding),
			metadataJSON); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *documentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, content, sequence, heading_path, section_anchor,
			chunk_type, start_offset, end_offset, embedding, metadata
		FROM chunks WHERE id = ?
	`, id)

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// GetChunks retrieves all chunks for a document, ordered by sequence.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, content, sequence, heading_path, section_anchor,
			chunk_type, start_offset, end_offset, embedding, metadata
		FROM chunks WHERE document_id = ?
		ORDER BY sequence
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// DeleteChunksByDocument removes all chunks of a document.
func (s *documentStore) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row *sql.Row) (*domain.Document, error) {
	doc, err := scanDocumentFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

func scanDocumentRows(rows *sql.Rows) (*domain.Document, error) {
	return scanDocumentFrom(rows)
}

func scanDocumentFrom(sc scanner) (*domain.Document, error) {
	var doc domain.Document
	var externalID sql.NullString
	var status, tagsJSON, metadataJSON string
	var createdAt, updatedAt, indexedAt sql.NullTime

	if err := sc.Scan(&doc.ID, &externalID, &doc.Title, &doc.Content, &doc.ContentHash,
		&status, &doc.SourcePath, &doc.RelativePath, &doc.RepoName, &doc.GitCommit,
		&doc.GitRemoteURL, &doc.Domain, &tagsJSON, &doc.MimeType, &metadataJSON,
		&createdAt, &updatedAt, &indexedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.ExternalID = externalID.String
	doc.Status = domain.DocumentStatus(status)

	var err error
	if doc.Tags, err = unmarshalStrings(tagsJSON); err != nil {
		return nil, fmt.Errorf("unmarshaling tags: %w", err)
	}
	if doc.Metadata, err = unmarshalMap(metadataJSON); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}

	if createdAt.Valid {
		doc.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		doc.UpdatedAt = updatedAt.Time
	}
	if indexedAt.Valid {
		doc.IndexedAt = indexedAt.Time
	}
	return &doc, nil
}

func scanChunk(sc scanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var chunkType, headingJSON, metadataJSON string
	var embeddingBlob []byte

	if err := sc.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.Sequence,
		&headingJSON, &chunk.SectionAnchor, &chunkType, &chunk.StartOffset,
		&chunk.EndOffset, &embeddingBlob, &metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.ChunkType = domain.ChunkType(chunkType)
	chunk.Embedding = bytesToFloat32Slice(embeddingBlob)

	var err error
	if chunk.HeadingPath, err = unmarshalStrings(headingJSON); err != nil {
		return nil, fmt.Errorf("unmarshaling heading path: %w", err)
	}
	if chunk.Metadata, err = unmarshalMap(metadataJSON); err != nil {
		return nil, fmt.Errorf("unmarshaling chunk metadata: %w", err)
	}
	return &chunk, nil
}

// nullString converts empty strings to NULL for UNIQUE columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime converts zero times to NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
