// Package cleanup provides a per-run registry of teardown callbacks that are
// guaranteed to run exactly once when the run settles.
//
// A Registry maps string keys to callbacks. Adding a callback under an existing
// key replaces the stored one without invoking it, which makes registration
// dedup-safe when the same logical resource is acquired again on retry.
// RunAll invokes every callback currently registered, isolating failures so one
// callback cannot prevent the others from running, and then empties the registry.
//
// # Usage
//
//	reg := cleanup.New(cleanup.WithLogger(log))
//	ctx = cleanup.WithRegistry(ctx, reg)
//
//	// somewhere deep inside a task body
//	_ = cleanup.Register(ctx, "tmpdir:"+dir, func(context.Context) error {
//	    return os.RemoveAll(dir)
//	})
//
//	// once, after every body tied to the run has returned
//	if err := reg.RunAll(context.WithoutCancel(ctx)); err != nil {
//	    log.Warn("cleanup finished with errors", logger.Error(err))
//	}
//
// A key runs at most once per registry lifetime: adding a key again after it
// has already run is ignored.
package cleanup
