// Package testing provides test utilities for the seqtx library.
//
// This package offers helpers for setting up test environments, particularly
// embedded NATS servers for integration testing. It follows Go's convention
// of providing testing utilities in a dedicated package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - CreateJetStreamKV: KV bucket for transaction records
//   - CreateSeriesStream: Stream pre-filled with per-series messages
//   - FakeClock: Manually advanced clock for lease expiry
//   - NewTestLogger: Logger writing through testing.T
//
// Example usage:
//
//	import (
//	    "testing"
//	    seqtest "github.com/arloliu/seqtx/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := seqtest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
