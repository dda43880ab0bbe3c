// Package app contains the core application logic. It defines the App
// struct, its configuration, and the lifecycle of one invocation (load,
// plan, run, report), decoupled from any specific entrypoint like a CLI.
package app
