// Package config defines the format-agnostic entry points for pipeline
// definitions: the Loader interface implemented by the HCL and document
// loaders, and Validate, which performs every check that must pass before a
// run may start.
//
// Loaders only translate syntax into a model.Workflow. All semantic rules
// live in Validate so every format reports the same errors for the same
// mistakes.
package config
