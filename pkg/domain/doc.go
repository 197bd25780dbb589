/*
Package domain contains the core domain models of the USSD flow engine.

It defines the fundamental entities of the session state machine: flows, their typed
screens, the per-session record and the envelope returned to the gateway. This package
is kept pure and free of external dependencies like I/O or persistence, following
Hexagonal Architecture principles.

# Key Entities

  - Flow: A named, immutable graph of screens (one complete menu application).
  - Screen: One node of a flow; its Body is a tagged union (Menu, Input, Dynamic, Router,
    Notification, Passthrough).
  - Target: A "next" reference, static or a compiled expression.
  - Session: The persisted snapshot of one conversation (current screen, history, variables).
  - Envelope: The response contract returned to the gateway for every event.
*/
package domain
