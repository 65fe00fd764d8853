package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driving"
	"github.com/kbforge-labs/kbforge-cli/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.Retriever = (*RetrievalService)(nil)

// relationshipLimit caps the relationship summaries attached to each
// graph search result.
const relationshipLimit = 5

// titleScanLimit bounds the last-resort title scan so an unresolved
// node cannot trigger a full-table walk per query.
const titleScanLimit = 100

// RetrievalService answers queries with ranked document references.
// Vector and graph search run as independent paths; hybrid mode fuses
// them with reciprocal rank fusion keyed by resolved URL.
type RetrievalService struct {
	docStore    driven.DocumentStore
	vectorIndex driven.VectorIndex
	embedder    driven.Embedder
	graphStore  driven.GraphStore
}

// NewRetrievalService creates a retrieval service. The embedder and
// graphStore parameters are optional (can be nil); modes that need a
// missing backend degrade or fail with a configuration error.
func NewRetrievalService(
	docStore driven.DocumentStore,
	vectorIndex driven.VectorIndex,
	embedder driven.Embedder,
	graphStore driven.GraphStore,
) *RetrievalService {
	return &RetrievalService{
		docStore:    docStore,
		vectorIndex: vectorIndex,
		embedder:    embedder,
		graphStore:  graphStore,
	}
}

// Retrieve runs the query in the requested mode.
func (s *RetrievalService) Retrieve(
	ctx context.Context, query string, opts driving.RetrievalOptions,
) ([]domain.DocumentReference, error) {
	logger.Section("Retrieval")
	logger.Debug("Query: %q, mode: %s", query, opts.Mode)

	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, returning no references")
		return []domain.DocumentReference{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	mode := opts.Mode
	if mode == "" {
		mode = domain.ModeHybrid
	}

	switch mode {
	case domain.ModeVector:
		refs, err := s.vectorSearch(ctx, query, limit, opts)
		if err != nil {
			return nil, err
		}
		return sortAndTruncate(refs, limit), nil

	case domain.ModeGraph:
		refs, err := s.graphSearch(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return sortAndTruncate(refs, limit), nil

	case domain.ModeHybrid:
		return s.hybridSearch(ctx, query, limit, opts)

	default:
		return nil, domain.NewValidationError("unknown retrieval mode: " + string(mode))
	}
}

// vectorSearch embeds the query and resolves vector hits to references.
// Hits whose chunk or document has since been deleted are skipped.
func (s *RetrievalService) vectorSearch(
	ctx context.Context, query string, limit int, opts driving.RetrievalOptions,
) ([]domain.DocumentReference, error) {
	if s.vectorIndex == nil {
		return nil, fmt.Errorf("vector search: %w", domain.ErrConfiguration)
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("vector search: %w", domain.ErrEmbeddingUnavailable)
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("Query embedding failed: %v", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.vectorIndex.Search(ctx, embedding, limit, opts.Filters, opts.ScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	logger.Debug("Vector search: %d hits", len(hits))

	references := make([]domain.DocumentReference, 0, len(hits))
	for _, hit := range hits {
		chunk, err := s.docStore.GetChunk(ctx, hit.ChunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get chunk %s: %w", hit.ChunkID, err)
		}

		doc, err := s.docStore.GetDocument(ctx, chunk.DocumentID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get document %s: %w", chunk.DocumentID, err)
		}

		anchor := chunk.SectionAnchor
		if anchor == "" {
			anchor = domain.HeadingAnchor(chunk.HeadingPath)
		}

		references = append(references, domain.DocumentReference{
			URL:           ReferenceURL(doc, anchor),
			DocumentPath:  documentPath(doc),
			Title:         doc.Title,
			SectionTitle:  chunk.SectionTitle(),
			SectionAnchor: anchor,
			Score:         hit.Score,
			Snippet:       domain.ExtractSnippet(chunk.Content, 200),
			Domain:        doc.Domain,
			Tags:          doc.Tags,
			ChunkType:     string(chunk.ChunkType),
			RetrievalMode: domain.ModeVector,
			Metadata:      chunk.Metadata,
		})
	}

	return references, nil
}

// graphSearch finds nodes matching the query by name and resolves
// each to a concrete document reference.
func (s *RetrievalService) graphSearch(
	ctx context.Context, query string, limit int,
) ([]domain.DocumentReference, error) {
	if s.graphStore == nil {
		return nil, fmt.Errorf("graph search: %w", domain.ErrGraphUnavailable)
	}

	// Extra candidates give headroom for nodes that fail to resolve.
	nodes, err := s.graphStore.FindNodes(ctx, query, limit*2)
	if err != nil {
		return nil, fmt.Errorf("find nodes: %w", err)
	}
	logger.Debug("Graph search: %d candidate nodes", len(nodes))

	references := make([]domain.DocumentReference, 0, limit)
	seen := make(map[string]bool)

	for _, node := range nodes {
		relationships := s.nodeRelationships(ctx, node.ID)

		chunk, doc, anchor, key := s.resolveNode(ctx, node)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if doc == nil {
			continue
		}

		metadata := map[string]any{
			"graph_node_name":     node.Name,
			"graph_node_kind":     string(node.Kind),
			"graph_relationships": relationships,
		}
		if node.Description != "" {
			metadata["graph_node_description"] = node.Description
		}
		if chunk != nil {
			for k, v := range chunk.Metadata {
				metadata[k] = v
			}
		}

		score := node.Confidence * (1 + 0.1*float64(len(relationships)))
		if score > 1.0 {
			score = 1.0
		}

		ref := domain.DocumentReference{
			URL:           ReferenceURL(doc, anchor),
			DocumentPath:  documentPath(doc),
			Title:         doc.Title,
			SectionAnchor: anchor,
			Score:         score,
			Domain:        doc.Domain,
			Tags:          doc.Tags,
			ChunkType:     string(domain.ChunkTypeGraphNode),
			RetrievalMode: domain.ModeGraph,
			Metadata:      metadata,
		}
		if chunk != nil {
			ref.SectionTitle = chunk.SectionTitle()
			ref.Snippet = domain.ExtractSnippet(chunk.Content, 200)
			ref.ChunkType = string(chunk.ChunkType)
		} else if node.Description != "" {
			ref.Snippet = node.Description
		} else {
			ref.Snippet = "Graph node: " + node.Name
		}

		references = append(references, ref)
		if len(references) >= limit {
			break
		}
	}

	return references, nil
}

// nodeRelationships summarises up to relationshipLimit edges of a
// node for display. Edge lookup failures degrade to no summaries.
func (s *RetrievalService) nodeRelationships(ctx context.Context, nodeID string) []domain.NodeRelationship {
	edges, err := s.graphStore.Edges(ctx, nodeID)
	if err != nil {
		logger.Debug("Edge lookup for %s failed: %v", nodeID, err)
		return nil
	}

	if len(edges) > relationshipLimit {
		edges = edges[:relationshipLimit]
	}

	relationships := make([]domain.NodeRelationship, 0, len(edges))
	for _, edge := range edges {
		otherID := edge.ToID
		direction := "outgoing"
		if edge.ToID == nodeID {
			otherID = edge.FromID
			direction = "incoming"
		}

		otherName := otherID
		if other, err := s.graphStore.GetNode(ctx, otherID); err == nil {
			otherName = other.Name
		}

		relationships = append(relationships, domain.NodeRelationship{
			Type:        edge.Type,
			Direction:   direction,
			RelatedNode: otherName,
			Confidence:  edge.Confidence,
		})
	}
	return relationships
}

// resolveNode maps a graph node to its source document through an
// ordered fallback: source chunk, then source document, then a title
// scan. The returned key dedupes resolution targets within a query;
// an empty key means the candidate was unresolvable.
func (s *RetrievalService) resolveNode(
	ctx context.Context, node domain.GraphNode,
) (chunk *domain.Chunk, doc *domain.Document, anchor, key string) {
	if node.SourceChunkID != "" {
		key = "chunk:" + node.SourceChunkID
		c, err := s.docStore.GetChunk(ctx, node.SourceChunkID)
		if err != nil {
			return nil, nil, "", key
		}
		d, err := s.docStore.GetDocument(ctx, c.DocumentID)
		if err != nil {
			return nil, nil, "", key
		}
		anchor = c.SectionAnchor
		if anchor == "" {
			anchor = domain.HeadingAnchor(c.HeadingPath)
		}
		return c, d, anchor, key
	}

	if node.SourceDocumentID != "" {
		key = "doc:" + node.SourceDocumentID
		d, err := s.docStore.GetDocument(ctx, node.SourceDocumentID)
		if err != nil {
			return nil, nil, "", key
		}
		return nil, d, "", key
	}

	// Last resort: bounded scan for a title containing the node name.
	key = "node:" + node.ID
	docs, err := s.docStore.ListDocuments(ctx, titleScanLimit)
	if err != nil {
		return nil, nil, "", key
	}
	name := strings.ToLower(node.Name)
	for i := range docs {
		if docs[i].Title != "" && strings.Contains(strings.ToLower(docs[i].Title), name) {
			return nil, &docs[i], "", key
		}
	}
	return nil, nil, "", key
}

// hybridSearch runs vector and graph search concurrently and fuses
// the result lists. One path failing degrades to the other; both
// failing is an error.
func (s *RetrievalService) hybridSearch(
	ctx context.Context, query string, limit int, opts driving.RetrievalOptions,
) ([]domain.DocumentReference, error) {
	var vectorRefs, graphRefs []domain.DocumentReference
	var vectorErr, graphErr error

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		vectorRefs, vectorErr = s.vectorSearch(ctx, query, limit, opts)
	}()

	go func() {
		defer wg.Done()
		graphRefs, graphErr = s.graphSearch(ctx, query, limit)
	}()

	wg.Wait()

	if vectorErr != nil && graphErr != nil {
		logger.Warn("Hybrid search: both paths failed")
		return nil, fmt.Errorf("hybrid search: vector=%w, graph=%w", vectorErr, graphErr)
	}
	if vectorErr != nil {
		logger.Warn("Hybrid search: vector path failed, using graph results only: %v", vectorErr)
		return sortAndTruncate(graphRefs, limit), nil
	}
	if graphErr != nil {
		logger.Warn("Hybrid search: graph path failed, using vector results only: %v", graphErr)
		return sortAndTruncate(vectorRefs, limit), nil
	}

	logger.Debug("Hybrid search: fusing %d vector + %d graph references",
		len(vectorRefs), len(graphRefs))
	return reciprocalRankFusion(vectorRefs, graphRefs, 60, limit), nil
}

// Fuses two ranked reference lists with Reciprocal Rank Fusion keyed
// by resolved URL. Each reference contributes 1/(k+rank+1) at its
// zero-based rank within its own list; references sharing a URL sum
// their contributions. k (typically 60) keeps top ranks from
// dominating. Fused scores replace the per-mode scores and the
// retrieval mode is relabeled hybrid.
//
//nolint:godot // Private function - no exported name to start with.
func reciprocalRankFusion(
	list1, list2 []domain.DocumentReference, k, limit int,
) []domain.DocumentReference {
	type fused struct {
		ref   domain.DocumentReference
		score float64
	}

	byURL := make(map[string]*fused)
	var order []string

	accumulate := func(list []domain.DocumentReference) {
		for rank, ref := range list {
			rrf := 1.0 / float64(k+rank+1)
			if f, ok := byURL[ref.URL]; ok {
				f.score += rrf
				continue
			}
			byURL[ref.URL] = &fused{ref: ref, score: rrf}
			order = append(order, ref.URL)
		}
	}
	accumulate(list1)
	accumulate(list2)

	merged := make([]domain.DocumentReference, 0, len(order))
	for _, url := range order {
		f := byURL[url]
		f.ref.Score = f.score
		f.ref.RetrievalMode = domain.ModeHybrid
		merged = append(merged, f.ref)
	}

	return sortAndTruncate(merged, limit)
}

// sortAndTruncate orders references by score descending and caps the
// list. The sort is stable so equal scores keep their source order.
func sortAndTruncate(refs []domain.DocumentReference, limit int) []domain.DocumentReference {
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Score > refs[j].Score })
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs
}

// ReferenceURL resolves a document plus optional anchor to a stable
// URL: a remote blob URL when the repo has one, else a file URL, else
// an opaque doc scheme.
func ReferenceURL(doc *domain.Document, anchor string) string {
	var url string
	switch {
	case doc.GitRemoteURL != "" && doc.RelativePath != "":
		branch := doc.GitCommit
		if branch == "" {
			branch = "main"
		}
		url = strings.TrimSuffix(doc.GitRemoteURL, "/") + "/blob/" + branch + "/" + doc.RelativePath
	case doc.SourcePath != "":
		url = "file://" + doc.SourcePath
	default:
		return "doc://" + doc.ID
	}
	if anchor != "" {
		url += "#" + anchor
	}
	return url
}

func documentPath(doc *domain.Document) string {
	if doc.RelativePath != "" {
		return doc.RelativePath
	}
	return doc.SourcePath
}
