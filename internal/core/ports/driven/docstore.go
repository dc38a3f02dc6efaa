package driven

import (
	"context"

	"github.com/ludex-app/ludex/internal/core/domain"
)

// DocumentStore is one logical database. Backed by SQLite; the memory
// implementation exists for tests.
//
// Writes are linearised per document through revision checks: Put fails
// with domain.ErrConflict when the supplied revision is stale. Every
// successful write is assigned the next commit sequence and delivered, in
// order, to subscribers.
type DocumentStore interface {
	// Name returns the logical database name.
	Name() string

	// Get retrieves a live document by ID. Tombstoned and absent
	// documents yield domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// Put replaces a document. doc.Rev must match the current revision
	// (or be empty for a new document). A put with Deleted set writes a
	// tombstone and discards the document's attachments. Returns the
	// new revision token.
	Put(ctx context.Context, doc *domain.Document) (string, error)

	// Remove tombstones a document. Absent documents are treated as
	// already removed.
	Remove(ctx context.Context, id string) error

	// AllDocs returns every live document keyed by ID.
	AllDocs(ctx context.Context) (map[string]*domain.Document, error)

	// Changes returns committed writes with sequence > since, in commit
	// order. Tombstones are included. limit <= 0 means no limit.
	Changes(ctx context.Context, since int64, limit int) ([]domain.Change, error)

	// LastSeq returns the highest committed sequence.
	LastSeq(ctx context.Context) (int64, error)

	// Subscribe registers a change callback invoked after commit, in
	// commit order. The returned cancel removes the subscription.
	Subscribe(fn func(domain.Change)) (cancel func())

	// ApplyRemote applies a replicated document last-writer-wins: the
	// remote revision token is stored verbatim, attachments are
	// replaced wholesale, and the change is flagged with
	// domain.OriginReplication so it is not pushed back. Applying a
	// revision the store already holds is a no-op.
	ApplyRemote(ctx context.Context, doc *domain.RemoteDocument) error

	// PutAttachment writes a named blob, creating the owning document
	// if absent, and bumps the document's revision.
	PutAttachment(ctx context.Context, docID string, att *domain.Attachment) error

	// GetAttachment retrieves a blob, or domain.ErrNotFound.
	GetAttachment(ctx context.Context, docID, name string) (*domain.Attachment, error)

	// ListAttachments returns the attachment names of a document.
	// Absent documents yield an empty list.
	ListAttachments(ctx context.Context, docID string) ([]string, error)

	// HasAttachment reports whether the named attachment exists.
	HasAttachment(ctx context.Context, docID, name string) (bool, error)

	// RemoveAttachment deletes a blob and bumps the document revision.
	RemoveAttachment(ctx context.Context, docID, name string) error

	// Checkpoint reads a named replication checkpoint; empty string if
	// unset.
	Checkpoint(ctx context.Context, id string) (string, error)

	// SaveCheckpoint persists a replication checkpoint.
	SaveCheckpoint(ctx context.Context, id, value string) error

	// ClearCheckpoints drops every checkpoint, forcing the next sync to
	// reconcile from scratch.
	ClearCheckpoints(ctx context.Context) error

	// Close releases the store. Further calls fail with
	// domain.ErrClosed.
	Close() error
}
