// Package store groups the coordinator store adapters.
//
// Every adapter implements types.Store: versioned get, create-if-absent,
// update-if-version, prefix listing and delete.
//
// # Available Backends
//
//   - store/memory: in-memory store for tests and single-process jobs
//   - store/natskv: NATS JetStream KeyValue, versions are KV revisions
//   - store/redis: Redis, versions are kept in a hash field and checked by a Lua script
//
// # Usage
//
//	js, _ := jetstream.New(nc)
//	s, err := natskv.New(ctx, js, natskv.Config{Bucket: "seqtx-transactions"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	coord := coordinator.New(s)
package store
