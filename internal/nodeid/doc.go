/*
Package nodeid provides a structured, type-safe representation of job
instance identifiers.

The canonical format is the job name, optionally followed by its axis
values in brackets: `test` or `test[os=linux,go=1.22]`. Formatting lives in
model.InstanceID; this package parses identifiers back so callers such as
the status server can validate and match the IDs they receive.
*/
package nodeid
