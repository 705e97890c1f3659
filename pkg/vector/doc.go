// Package vector owns the per-tenant, per-entity semantic index that mirrors
// fact relationships as embedding vectors.
//
// The index is a derived acceleration structure, never a source of truth: it
// may lag the graph, and its hits must always be verified against the graph
// before they reach a caller. Point identifiers are a pure function of the
// logical key (tenant, entity, verb, fact id), so repeated upserts with the
// same inputs overwrite rather than duplicate. That is the idempotency
// mechanism.
//
// Two implementations are provided: MemoryIndex (flat in-process scan) and
// BadgerIndex (the same brute-force scoring over a Badger prefix scan, for
// deployments that need the index to survive restarts).
package vector
