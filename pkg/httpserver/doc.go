// Package httpserver runs the admin HTTP endpoint of a worker process.
//
// Run binds the listener, serves until the context ends and then shuts down
// gracefully within the configured timeout, which makes it a natural
// errgroup member next to queue servers:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	eg.Go(func() error { return srv.Run(ctx, router) })
//
// HealthCheckHandler turns named probes (for example pg.Healthcheck) into a
// readiness endpoint.
package httpserver
