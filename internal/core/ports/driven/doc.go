// Package driven provides interfaces for infrastructure adapters
// (secondary/outbound ports): metadata storage, vector index, graph
// store, embedding providers, chunkers, and repository scanners.
package driven
