// Package relforge is an object-relational mapping runtime. It tracks
// in-memory entity instances, detects mutations against per-entity
// snapshots, cascades deletions through the relationship graph, and
// applies versioned schema migrations against a relational database.
//
// The package itself holds the shared vocabulary: entity states, cascade
// timings, and the sentinel errors surfaced by the subsystems. The
// subsystems live in subpackages:
//
//   - model: the finalized, immutable metadata the runtime consumes
//   - track: entity entries, the state manager, and change detection
//   - migrate: migration planning, execution, and script generation
//   - migrate/history: the durable ledger of applied migrations
//
// Query translation, model-building conventions, and provider SQL
// dialects are external collaborators, not part of this module.
package relforge
