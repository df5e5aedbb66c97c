// Package seqtx provides sequential, transactional batch processing of
// partitioned, ordered streams.
//
// Work is organized in series: ordered streams with a single logical cursor
// (a Kafka partition, a JetStream subject, a table shard). A job runs any
// number of processors over its series. Each processor claims the next range
// of a series as a leased transaction, pulls the records of that range,
// hands them to a user Handler, and finishes or aborts the transaction. The
// Coordinator guarantees that committed ranges of a series form a gapless,
// non-overlapping sequence and that at most one processor owns a live lease.
//
// # Quick Start
//
//	store := memory.New()
//	coord := coordinator.New(store)
//	sup := supplier.NewRange(1000, "s1")
//
//	cfg := seqtx.DefaultConfig()
//	cfg.MaxBatchSize = 300
//
//	handler := seqtx.HandlerFunc(func(pc seqtx.ProcessingContext, batch []seqtx.Item) (bool, error) {
//	    return process(batch) == nil, nil
//	})
//
//	job, err := seqtx.NewProcessing("job", &cfg, coord, handler, sup,
//	    []seqtx.Series{{ID: "s1", From: "0", To: "1000"}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p, _ := job.CreateProcessor("worker-1")
//	go p.Run(ctx)
//	_ = job.StartAll()
//	<-job.Done()
//
// # Key Features
//
//   - Lease takeover: a transaction whose owner stops renewing is reclaimed after its timeout
//   - Admission control: separate caps for open new and open retried transactions
//   - Sticky affinity: processors may stay on an open series that keeps yielding data
//   - Detached finisher: handlers may resolve a transaction asynchronously
//   - Two retry layers: transient store failures under a backoff, failed work by reclaim
//
// # Architecture
//
// Processors progress through a state machine:
//
//	NEW → STARTED → RUNNING {ACQUIRING ⇄ PROCESSING ⇄ FINISHING} → STOPPING → FINISHED
//
// STARTED is entered only after StartAll released the start barrier, so the
// job-wide admission accounting and the series rotation are well defined from
// the first claim.
//
// Coordinator state lives in a types.Store. The module ships adapters for
// memory (store/memory), NATS JetStream KeyValue (store/natskv) and Redis
// (store/redis), and suppliers for in-memory slices (supplier), JetStream
// streams (supplier/jetstream) and Kafka partitions (supplier/kafka).
//
// See the examples/ directory for a complete working example.
package seqtx
