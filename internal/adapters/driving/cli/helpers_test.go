package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/kbforge-labs/kbforge-cli/internal/core/domain"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driven"
	"github.com/kbforge-labs/kbforge-cli/internal/core/ports/driving"
)

// runCommand executes the root command with args and captures output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

type stubRetriever struct {
	refs     []domain.DocumentReference
	err      error
	lastOpts driving.RetrievalOptions
	lastQry  string
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, opts driving.RetrievalOptions) ([]domain.DocumentReference, error) {
	s.lastQry = query
	s.lastOpts = opts
	return s.refs, s.err
}

type stubGraphQuery struct {
	nodes   []domain.GraphNode
	detail  *driving.NodeDetail
	path    *domain.GraphPath
	impact  []domain.ImpactedNode
	prov    []domain.ProvenanceRecord
	stats   *domain.GraphStats
	rows    []map[string]any
	err     error
	deleted []string
}

func (s *stubGraphQuery) List(_ context.Context, _ domain.NodeKind, _ int) ([]domain.GraphNode, error) {
	return s.nodes, s.err
}

func (s *stubGraphQuery) Inspect(_ context.Context, _ string, _ int) (*driving.NodeDetail, error) {
	return s.detail, s.err
}

func (s *stubGraphQuery) Path(_ context.Context, _, _ string, _ int) (*domain.GraphPath, error) {
	return s.path, s.err
}

func (s *stubGraphQuery) Impact(_ context.Context, _ string) ([]domain.ImpactedNode, error) {
	return s.impact, s.err
}

func (s *stubGraphQuery) Provenance(_ context.Context, _ string) ([]domain.ProvenanceRecord, error) {
	return s.prov, s.err
}

func (s *stubGraphQuery) Stats(_ context.Context) (*domain.GraphStats, error) {
	return s.stats, s.err
}

func (s *stubGraphQuery) Delete(_ context.Context, docID string) error {
	s.deleted = append(s.deleted, docID)
	return s.err
}

func (s *stubGraphQuery) RawQuery(_ context.Context, _ string) ([]map[string]any, error) {
	return s.rows, s.err
}

type stubIndexer struct {
	docs     []domain.Document
	summary  *domain.SyncSummary
	status   *driving.IndexStatus
	err      error
	lastSync string
}

func (s *stubIndexer) IndexDocument(_ context.Context, doc *domain.Document) (*domain.Document, error) {
	return doc, s.err
}

func (s *stubIndexer) ReindexDocument(_ context.Context, doc *domain.Document) (*domain.Document, error) {
	return doc, s.err
}

func (s *stubIndexer) DeleteDocument(_ context.Context, _ string) error {
	return s.err
}

func (s *stubIndexer) IndexRepository(_ context.Context) ([]domain.Document, error) {
	return s.docs, s.err
}

func (s *stubIndexer) SyncRepository(_ context.Context, sinceRevision string) (*domain.SyncSummary, error) {
	s.lastSync = sinceRevision
	return s.summary, s.err
}

func (s *stubIndexer) Status(_ context.Context) (*driving.IndexStatus, error) {
	return s.status, s.err
}

// swapRetriever installs a stub retriever for one test.
func swapRetriever(t *testing.T, stub *stubRetriever) {
	t.Helper()
	old := retriever
	retriever = stub
	t.Cleanup(func() { retriever = old })
}

func swapGraphQuery(t *testing.T, stub *stubGraphQuery) {
	t.Helper()
	old := graphQuery
	graphQuery = stub
	t.Cleanup(func() { graphQuery = old })
}

func swapIndexerFor(t *testing.T, indexer *stubIndexer) {
	t.Helper()
	old := indexerFor
	indexerFor = func(_ string, _ RepoOptions) (driving.Indexer, driven.RepoScanner, error) {
		return indexer, nil, nil
	}
	t.Cleanup(func() { indexerFor = old })
}

func swapStatusSource(t *testing.T, indexer *stubIndexer) {
	t.Helper()
	old := statusSource
	statusSource = indexer
	t.Cleanup(func() { statusSource = old })
}
