/*
Package ports defines the driven ports (interfaces) of the USSD flow engine.

These interfaces decouple the executor from external implementations, allowing it to
run on top of different backing stores and to call out to pluggable helpers.

# Key Interfaces

  - KVStore: A TTL key-value primitive (Redis, or an in-process TTL cache) used by the session store.
  - DistributedLocker: Optional per-session serialization across goroutines or replicas.
  - Validator: A named input check used by input screens.
  - DynamicHandler: A named capability that renders dynamic screens and handles their input.
*/
package ports
