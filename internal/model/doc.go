// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model holds the format-agnostic, in-memory representation of a
// pipeline definition and of the concrete job instances derived from it.
//
// Why a separate model?
//
// Pipelines can be written in HCL, YAML or JSONC. Each loader decodes its own
// syntax and then translates it into the structures in this package, so every
// later stage (validation, matrix expansion, scheduling, execution and
// reporting) works against one shape regardless of where the definition came
// from. Conditions and templates are kept as parsed expressions rather than
// strings so they are validated once at load time and evaluated many times.
//
// Everything in this package is immutable once a Workflow has been loaded.
// Mutable run state lives in the state store, never on these types.
package model
