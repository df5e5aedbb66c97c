// Package types provides the shared model and collaborator interfaces of the seqtx library.
//
// This package contains types that are used by the root seqtx package, the coordinator,
// the store adapters and the suppliers. Keeping them in a separate package avoids import
// cycles between the engine and its pluggable backends.
//
// Key types:
//   - Transaction: A claimed, leased range of a series' position space
//   - Series: An ordered stream of work with a single logical cursor
//   - Store: Versioned compare-and-swap persistence used by the coordinator
//   - Coordinator: The claim/renew/finish/abort state machine
//   - Supplier: Source of ordered items for a position range
//   - Logger, MetricsCollector, Hooks: Ambient collaborators
package types
