package driving

import (
	"context"

	"github.com/ludex-app/ludex/internal/core/domain"
)

// Catalog is the document surface consumed by the command boundary and by
// feature code (scrapers, importers). Every operation addresses one
// logical database by name; unknown names fail with
// domain.ErrNotConfigured.
type Catalog interface {
	// SetValue upserts the field at path. The #all path replaces the
	// whole body (merging over existing fields); the #delete value at
	// #all tombstones the document. docID #all with path #all bulk-sets
	// every value of the supplied map via SetAllDocs.
	SetValue(ctx context.Context, dbName, docID, path string, value any) error

	// GetValue reads the field at path. When the document or field is
	// missing the default is persisted and returned, so later reads are
	// stable without recomputing defaults.
	GetValue(ctx context.Context, dbName, docID, path string, def any) (any, error)

	// RemoveDoc tombstones a document; absent documents succeed.
	RemoveDoc(ctx context.Context, dbName, docID string) error

	// GetAllDocs returns every live document body (including id) keyed
	// by document ID.
	GetAllDocs(ctx context.Context, dbName string) (map[string]map[string]any, error)

	// SetAllDocs bulk-writes: entries with an "id" field are merged via
	// upsert, entries without get a fresh ID. Entries are independent;
	// there is no cross-document atomicity.
	SetAllDocs(ctx context.Context, dbName string, docs []map[string]any) error

	// Upsert runs the read-modify-write protocol with bounded conflict
	// retry and returns the stored document.
	Upsert(ctx context.Context, dbName, docID string, mutate func(doc *domain.Document) error) (*domain.Document, error)

	// PutAttachment stores a blob, sniffing the content type when empty
	// and creating the document if needed.
	PutAttachment(ctx context.Context, dbName, docID, name string, data []byte, contentType string) error

	// GetAttachment returns the blob bytes.
	GetAttachment(ctx context.Context, dbName, docID, name string) (*domain.Attachment, error)

	ListAttachmentNames(ctx context.Context, dbName, docID string) ([]string, error)
	CheckAttachment(ctx context.Context, dbName, docID, name string) (bool, error)
	RemoveAttachment(ctx context.Context, dbName, docID, name string) error
}
