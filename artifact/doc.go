// Package artifact contains implementations of core.ArtifactStore.
//
// Callers depend on the core interface; the in-memory store additionally
// keeps every saved version (SaveVersion, GetVersion, Versions).
package artifact
