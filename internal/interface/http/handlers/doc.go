// Package handlers provides shared HTTP middleware and health check plumbing.
//
// The admin API and the Kubernetes probes are built from three pieces:
// a composite health checker, an API key authenticator and a small set
// of wrapper middlewares.
//
// # Health Checks
//
// HealthChecker aggregates named probes. CompositeHealthChecker runs
// them in parallel, each under its own timeout, and fails the aggregate
// when any probe fails:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewDatabaseCheck(conn))
//	checker.AddCheck("redis", handlers.NewCacheCheck(cache))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Printf("health check failed: %s", status.Message)
//	}
//
// A probe is just a func(ctx) error, so dependencies without an adapter
// register directly:
//
//	checker.AddCheck("telegram", func(ctx context.Context) error {
//	    _, err := client.GetMe(ctx)
//	    return err
//	})
//
// Keep probes cheap. They run on every /health hit, and a probe that
// blocks past its timeout marks the whole service unhealthy.
//
// # Middleware
//
// Middlewares wrap http.Handler and compose with ChainHandler, first
// argument outermost:
//
//	auth := handlers.NewAPIKeyAuth("X-API-Key", cfg.APIKeyHashes)
//
//	handler := handlers.ChainHandler(
//	    statsHandler,
//	    auth.Middleware,
//	    handlers.NoCacheMiddleware,
//	    handlers.TimeoutMiddleware(10*time.Second),
//	)
//
// API keys are configured as bcrypt hashes, never in the clear. Clients
// present the raw key either in the configured header or as a Bearer
// token. SecurityHeadersMiddleware belongs on every route; the
// authenticator only on the ones that expose data.
package handlers
