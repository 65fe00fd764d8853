// Package extraction converts parsed documents into knowledge graph
// deltas. An ordered registry of capability-checked strategies picks
// the richest applicable extraction; a generic fallback guarantees
// every indexed document is represented in the graph and subject to
// the same deletion and impact machinery.
package extraction
