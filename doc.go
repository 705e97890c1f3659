// Package factgraph fuses a canonical property graph with a per-tenant
// semantic vector index to store and retrieve facts about entities.
//
// The graph is the source of truth: entities keyed by external identifiers,
// facts keyed by their content, sources carrying provenance, all merged
// idempotently so repeated ingestion converges on one canonical record. The
// vector index is a best-effort semantic sidecar; every hit it returns is
// verified against the graph before it is trusted.
//
// The top-level Client exposes the two primary operations, Assimilate and
// Lookup, plus targeted deletion with reference-counted garbage collection of
// shared facts and sources.
package factgraph
