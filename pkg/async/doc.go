// Package async runs background work without letting a panic take the
// process down.
//
// SafeGo starts one long-lived or fire-and-forget task, such as the catalog
// file watcher:
//
//	async.SafeGo(ctx, logger, 0, "catalog watcher", func(ctx context.Context) error {
//		watcher.Run(ctx)
//		return nil
//	})
//
// Batch fans a slice out over a bounded number of goroutines and reports one
// error slot per item, which is how the catalog loads its namespaces:
//
//	errs := async.Batch(ctx, names, 4, 0, "load namespace", func(ctx context.Context, name string) error {
//		_, err := c.Reload(name)
//		return err
//	})
package async
