// Package types defines the shared data model for the factgraph knowledge-fusion
// layer: entities, identifiers, facts, sources, and the relationships between them.
//
// The graph store is the source of truth for all of these; the vector index only
// mirrors fact relationships as derived points. Value types here are immutable once
// persisted except for Entity.Metadata.
//
// # Keys
//
// Entities and Sources are keyed by UUIDv4. Identifiers are globally keyed by
// (Value, Type). Facts are globally keyed by the deterministic synthetic id
// "{Type}:{Name}" computed by FactID; two facts with equal (Type, Name) are the
// same node.
package types
