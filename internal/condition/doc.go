// Package condition implements the gating expressions of a pipeline and the
// small template language used for cache keys and runs_on.
//
// Conditions are written in HCL native syntax but restricted to a tiny,
// statically checked subset: string literals and templates, booleans, field
// references, ==, !=, &&, ||, ! and parentheses. The referenceable fields are
// fixed: event, ref, base_ref, os and matrix.<axis>. Expressions are parsed
// and checked once when a workflow loads; evaluation is a pure function of the
// expression and a Vars value, so it is safe to call repeatedly, concurrently
// and speculatively (for example while printing a dry-run plan).
package condition
