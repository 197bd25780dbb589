package domain

import "errors"

// ErrFlowNotFound is returned when no flow is registered under the requested name.
var ErrFlowNotFound = errors.New("flow not found")

// ErrScreenNotFound is returned when a screen id does not exist in its flow.
var ErrScreenNotFound = errors.New("screen not found")

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrStoreUnavailable wraps failures of the session backing engine.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrHelperNotFound is returned when a named validator or handler is not registered.
var ErrHelperNotFound = errors.New("helper not found")
