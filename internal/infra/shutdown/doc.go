// Package shutdown coordinates graceful process shutdown.
//
// Hooks are registered with a name and run in reverse registration order
// once the run context ends (normally on SIGINT or SIGTERM), each under a
// shared deadline:
//
//	ctx, stop := shutdown.WithSignals(context.Background())
//	defer stop()
//	h := shutdown.NewHandler(15*time.Second, log)
//	h.OnShutdown("audit", auditLog.Close)
//	err := h.Run(ctx)
package shutdown
