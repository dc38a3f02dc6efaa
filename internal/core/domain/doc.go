// Package domain defines the core types of the catalog store: documents
// with opaque revisions, field paths, attachments, change events and the
// static database configuration table. It has no dependencies on storage
// or transport.
package domain
