// Package domain contains the core domain model: documents, chunks,
// knowledge graph nodes and edges, retrieval result types, and the
// error taxonomy. It has no dependencies on adapters or services.
package domain
