/*
Package telemetry records what the engine does without slowing down request handling.

Two consumers of domain.LifecycleHooks live here:

  - Tracker buffers analytics events and ships them in batches to a Sink.
  - Monitor keeps aggregate performance counters and exposes them as Prometheus metrics.

Both do their periodic work (flushes, summaries, memory samples) as task queue jobs.
*/
package telemetry
