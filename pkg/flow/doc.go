/*
Package flow loads, validates and serves flow definitions.

A flow document is a JSON or YAML file whose base name is the flow name. It is decoded
into the typed domain.Flow model, every ${...} target and router condition is compiled,
and the whole set is published atomically by Registry.LoadAll.

Validation is split in two: hard errors (returned as an *AggregateError) reject the
document, while warnings (missing welcome screen, dangling static references, unknown
helpers) are logged and returned to the caller.
*/
package flow
