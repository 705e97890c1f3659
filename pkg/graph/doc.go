// Package graph owns the canonical property graph of entities, identifiers,
// facts, and sources.
//
// The Store interface exposes idempotent create/find/delete operations; every
// implementation must honor the shared-node contract: Identifier, Fact, and
// Source nodes may be referenced by multiple owners and are physically deleted
// only when the last owning edge is removed. Reference counts are always taken
// before the triggering entity's own edges are dropped, so an entity never
// undercounts itself and mis-classifies a still-shared node as orphaned.
//
// Two implementations are provided:
//   - Neo4jStore: production store on Neo4j via the official v5 driver. Each
//     multi-step operation (in particular the cascading deletes) runs inside a
//     single managed write transaction.
//   - MemoryStore: embedded in-process store with identical semantics, used for
//     tests and driver-less deployments.
package graph
