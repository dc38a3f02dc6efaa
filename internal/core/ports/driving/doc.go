// Package driving defines the interfaces through which the command
// boundary (CLI / IPC) drives the core services.
package driving
