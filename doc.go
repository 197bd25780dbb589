/*
Package ussdflow is a USSD session execution engine driven by declarative flow documents.

A flow is a graph of typed screens (menu, input, dynamic, router, notification). For every
gateway event the engine loads the caller's session, decides the next screen from the
user's answer, renders it with the session variables and returns a response envelope that
tells the gateway whether to keep the session open.

# Architecture

The App type wires the pieces together:

  - Flow Registry (pkg/flow): loads and validates flow documents.
  - Helper Registry (pkg/helpers): named validators and dynamic handlers, built in or
    backed by external processes.
  - Session Store (pkg/session): sliding-TTL records over Redis or an in-memory cache.
  - Executor (internal/runtime): the per-request state machine.
  - Gateway (pkg/gateway) and HTTP transport (pkg/adapters/http).
  - Task Queue (pkg/taskqueue) and telemetry (pkg/telemetry) for work off the request path.

# Usage

	cfg, err := config.Load(cmd)
	if err != nil {
		log.Fatal(err)
	}

	app, err := ussdflow.New(ctx, cfg, ussdflow.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	// Blocks until ctx is cancelled, then shuts down gracefully.
	if err := app.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package ussdflow
