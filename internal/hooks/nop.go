// Package hooks provides default lifecycle hook implementations.
package hooks

import (
	"context"

	"github.com/arloliu/seqtx/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, string, types.ProcessorState, types.ProcessorState) error = (*NopHooks)(nil).OnStateChanged
	_ func(context.Context, *types.Transaction, types.Outcome) error                  = (*NopHooks)(nil).OnTransactionResolved
	_ func(context.Context, error) error                                              = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnStateChanged:        h.OnStateChanged,
		OnTransactionResolved: h.OnTransactionResolved,
		OnError:               h.OnError,
	}
}

// Fill returns h with every nil callback replaced by its no-op counterpart.
func Fill(h *types.Hooks) types.Hooks {
	nop := NewNop()
	if h == nil {
		return nop
	}

	out := *h
	if out.OnStateChanged == nil {
		out.OnStateChanged = nop.OnStateChanged
	}
	if out.OnTransactionResolved == nil {
		out.OnTransactionResolved = nop.OnTransactionResolved
	}
	if out.OnError == nil {
		out.OnError = nop.OnError
	}

	return out
}

// OnStateChanged is a no-op implementation.
func (h *NopHooks) OnStateChanged(_ context.Context, _ string, _, _ types.ProcessorState) error {
	return nil
}

// OnTransactionResolved is a no-op implementation.
func (h *NopHooks) OnTransactionResolved(_ context.Context, _ *types.Transaction, _ types.Outcome) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(_ context.Context, _ error) error {
	return nil
}
