// Package memory contains core.MemoryStore implementations. The in-memory
// store ranks stored memories by keyword overlap with the query.
package memory
