// Package coordinator implements the sequential transaction protocol on top
// of a types.Store.
//
// Each series has one head record holding its committed cursor and its
// current transaction. Claims, renewals and resolutions are compare-and-swap
// writes of that head, so two processors racing for the same series never
// both win. Finished non-empty ranges are also written to a history record
// per transaction, which is what History reads.
//
// Lease expiry is authoritative: once a transaction's timeout has passed, any
// processor may take it over and the original owner's later writes fail with
// types.ErrLostOwnership.
package coordinator
