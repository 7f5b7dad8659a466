package fiber

import "context"

// Loader produces the decoded bytes of a fiber on a cache miss.
//
// The returned Buffer must be unpinned; the cache pins it for its callers.
// Errors are returned to the caller of the cache unchanged.
type Loader interface {
	Load(ctx context.Context, f Fiber) (*Buffer, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, f Fiber) (*Buffer, error)

// Load calls fn(ctx, f).
func (fn LoaderFunc) Load(ctx context.Context, f Fiber) (*Buffer, error) {
	return fn(ctx, f)
}
