// Package memory provides in-memory implementations of the storage
// ports. Used in tests and as a zero-setup fallback; all operations
// are mutex-guarded and safe for concurrent use.
package memory
