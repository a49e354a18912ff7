//go:build !trace

package tracing

import "context"

// DefaultFile is where Start writes when given an empty path.
const DefaultFile = "iocscan.trace"

// Start is a no-op without the trace build tag.
func Start(path string) error {
	return nil
}

func Stop() {}

func StartTask(ctx context.Context, name string) (context.Context, func()) {
	return ctx, func() {}
}

func StartRegion(ctx context.Context, name string) func() {
	return func() {}
}

func Log(ctx context.Context, category, message string) {}
