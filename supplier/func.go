package supplier

import (
	"context"

	"github.com/arloliu/seqtx/types"
)

// Func adapts a plain function to types.Supplier.
type Func func(ctx context.Context, req types.PullRequest) (types.PullResult, error)

var _ types.Supplier = Func(nil)

// Pull calls f.
func (f Func) Pull(ctx context.Context, req types.PullRequest) (types.PullResult, error) {
	return f(ctx, req)
}
