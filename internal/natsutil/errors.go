// Package natsutil classifies NATS client errors for the store and supplier adapters.
package natsutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/seqtx/types"
)

// IsConnectivityError checks if an error is caused by connectivity issues.
//
// This includes NATS timeouts, connection refused, disconnections, etc.
// Kept in internal/natsutil to avoid importing NATS dependencies in the types/ package.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if error indicates connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionReconnecting) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, jetstream.ErrNoHeartbeat) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// Unavailable wraps err with sentinel so that callers retry it.
//
// Connectivity errors and any other unexpected client error are both treated
// as transient; the adapters map every known business outcome before calling it.
//
// Parameters:
//   - sentinel: types.ErrStoreUnavailable or types.ErrSupplierUnavailable
//   - op: Operation name for context
//   - err: The NATS client error
func Unavailable(sentinel error, op string, err error) error {
	if IsConnectivityError(err) {
		return fmt.Errorf("%s: %w: connectivity: %w", op, sentinel, err)
	}

	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}

// UnavailableStore is a shorthand for Unavailable(types.ErrStoreUnavailable, op, err).
func UnavailableStore(op string, err error) error {
	return Unavailable(types.ErrStoreUnavailable, op, err)
}
