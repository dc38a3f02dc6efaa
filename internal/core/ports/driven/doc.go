// Package driven defines the interfaces the core depends on: document
// storage, the replication peer and the notification sink. Adapters under
// internal/adapters/driven implement them.
package driven
