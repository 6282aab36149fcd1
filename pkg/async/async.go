package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/nexus-mcp/pkg/observability"
)

// SafeGo runs fn in its own goroutine. Panics are recovered and logged with
// their stack; a returned error is logged at error level. A non-positive
// timeout bounds fn by ctx alone.
func SafeGo(ctx context.Context, logger *observability.Logger, timeout time.Duration, task string, fn func(context.Context) error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	go func() {
		runCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()

		if err := call(runCtx, task, fn); err != nil {
			logger.WithError(err).WithField("task", task).Error("background task failed")
		}
	}()
}

// call runs fn and turns a panic into an error
func call(ctx context.Context, task string, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v\n%s", task, r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Batch runs fn for every item with at most workers in flight. The result is
// aligned with items: errs[i] is nil when items[i] succeeded. Items not yet
// started when ctx ends fail with the context error. A non-positive timeout
// leaves each call bounded by ctx only.
func Batch[T any](ctx context.Context, items []T, workers int, timeout time.Duration, task string,
	fn func(context.Context, T) error) []error {

	errs := make([]error, len(items))
	if len(items) == 0 {
		return errs
	}
	if workers <= 0 {
		workers = len(items)
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i, item := range items {
		g.Go(func() error {
			var err error
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			} else {
				runCtx, cancel := ctx, context.CancelFunc(func() {})
				if timeout > 0 {
					runCtx, cancel = context.WithTimeout(ctx, timeout)
				}
				err = call(runCtx, task, func(c context.Context) error { return fn(c, item) })
				cancel()
			}

			mu.Lock()
			errs[i] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
