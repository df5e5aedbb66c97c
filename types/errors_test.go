package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsNothingToClaim(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "busy", err: ErrSeriesBusy, want: true},
		{name: "wrapped drained", err: fmt.Errorf("claim s1: %w", ErrSeriesDrained), want: true},
		{name: "not admitted", err: ErrNotAdmitted, want: true},
		{name: "attempts exhausted", err: ErrRetryLimitReached, want: true},
		{name: "lost race", err: ErrConcurrentModification, want: true},
		{name: "store down", err: ErrStoreUnavailable, want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsNothingToClaim(tt.err))
		})
	}
}

func TestIsInfrastructureError(t *testing.T) {
	require.False(t, IsInfrastructureError(nil))
	require.True(t, IsInfrastructureError(fmt.Errorf("get head: %w", ErrStoreUnavailable)))
	require.True(t, IsInfrastructureError(ErrSupplierUnavailable))
	require.True(t, IsInfrastructureError(errors.New("dial tcp 127.0.0.1:4222: connection refused")))
	require.False(t, IsInfrastructureError(ErrLostOwnership))
}
