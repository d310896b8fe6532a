// Package stores provides artifact store implementations: an in-memory store
// for tests and single-shot runs, and a SQLite-backed store for runs whose
// artifacts must survive the process.
//
// Both implement engine.ArtifactStore: a write-once key/value store of
// produced messages keyed by (runID, artifactID). Register them transient in
// the service container so each run gets a fresh instance.
package stores
