package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/ludex-app/ludex/internal/attachio"
	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
	"github.com/ludex-app/ludex/internal/core/ports/driving"
	"github.com/ludex-app/ludex/internal/logger"
)

var _ driving.Catalog = (*Catalog)(nil)

// upsertRetries bounds conflict retries inside Upsert. Conflicts only occur
// between in-process writers; jitter keeps contending writers from
// retrying in lockstep.
const upsertRetries = 10

// Catalog implements the document surface over the store registry.
type Catalog struct {
	stores   *Registry
	notifier driven.Notifier
}

// NewCatalog builds the catalog service.
func NewCatalog(stores *Registry, notifier driven.Notifier) *Catalog {
	return &Catalog{stores: stores, notifier: notifier}
}

// Upsert runs the read-modify-write protocol: fetch the current document
// (or an empty shell), mutate, put; on a revision conflict re-fetch and
// reapply.
func (c *Catalog) Upsert(ctx context.Context, dbName, docID string, mutate func(doc *domain.Document) error) (*domain.Document, error) {
	store, err := c.stores.Store(dbName)
	if err != nil {
		return nil, err
	}

	var result *domain.Document
	backoff := retry.WithMaxRetries(upsertRetries, retry.WithJitterPercent(50, retry.NewConstant(10*time.Millisecond)))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		doc, err := store.Get(ctx, docID)
		if errors.Is(err, domain.ErrNotFound) {
			doc = &domain.Document{ID: docID, Body: make(map[string]any)}
		} else if err != nil {
			return err
		}

		if err := mutate(doc); err != nil {
			return err
		}
		doc.ID = docID

		rev, err := store.Put(ctx, doc)
		if errors.Is(err, domain.ErrConflict) {
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		doc.Rev = rev
		result = doc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert %s/%s: %w", dbName, docID, err)
	}
	return result, nil
}

// SetValue upserts the field at path.
func (c *Catalog) SetValue(ctx context.Context, dbName, docID, path string, value any) error {
	if docID == domain.TargetAll && path == domain.TargetAll {
		docs, err := bulkDocs(value)
		if err != nil {
			return err
		}
		return c.SetAllDocs(ctx, dbName, docs)
	}

	target := domain.ParseTarget(path)
	if target.All && domain.IsDeleteValue(value) {
		return c.RemoveDoc(ctx, dbName, docID)
	}

	_, err := c.Upsert(ctx, dbName, docID, func(doc *domain.Document) error {
		if target.All {
			body, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("whole-document write needs an object, got %T", value)
			}
			doc.Body = domain.Merge(doc.Body, body)
			return nil
		}
		target.Path.Set(doc.Body, value)
		return nil
	})
	return err
}

// bulkDocs converts the whole-database write payload into the SetAllDocs
// shape: a map keyed by document ID.
func bulkDocs(value any) ([]map[string]any, error) {
	byID, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("whole-database write needs an object keyed by document id, got %T", value)
	}
	docs := make([]map[string]any, 0, len(byID))
	for id, v := range byID {
		body, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("document %s: body must be an object, got %T", id, v)
		}
		doc := domain.CloneBody(body)
		doc["id"] = id
		docs = append(docs, doc)
	}
	return docs, nil
}

// GetValue reads the field at path. A missing document or field persists
// and returns the default, so later reads are stable.
func (c *Catalog) GetValue(ctx context.Context, dbName, docID, path string, def any) (any, error) {
	store, err := c.stores.Store(dbName)
	if err != nil {
		return nil, err
	}

	target := domain.ParseTarget(path)
	doc, err := store.Get(ctx, docID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if doc != nil {
		if target.All {
			body := domain.CloneBody(doc.Body)
			body["id"] = doc.ID
			return body, nil
		}
		if v, ok := target.Path.Get(doc.Body); ok {
			return v, nil
		}
	}

	// Heal the miss by writing the default through. A whole-document read
	// with a non-object default still persists an empty shell so later
	// reads find the document.
	if target.All {
		body, _ := def.(map[string]any)
		if _, err := c.Upsert(ctx, dbName, docID, func(doc *domain.Document) error {
			doc.Body = domain.Merge(doc.Body, body)
			return nil
		}); err != nil {
			return nil, err
		}
		return def, nil
	}
	if err := c.SetValue(ctx, dbName, docID, path, def); err != nil {
		return nil, err
	}
	return def, nil
}

// RemoveDoc tombstones a document; absent documents succeed.
func (c *Catalog) RemoveDoc(ctx context.Context, dbName, docID string) error {
	store, err := c.stores.Store(dbName)
	if err != nil {
		return err
	}
	return store.Remove(ctx, docID)
}

// GetAllDocs returns every live document body keyed by ID, with the ID
// included in each body.
func (c *Catalog) GetAllDocs(ctx context.Context, dbName string) (map[string]map[string]any, error) {
	store, err := c.stores.Store(dbName)
	if err != nil {
		return nil, err
	}
	docs, err := store.AllDocs(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]map[string]any, len(docs))
	for id, doc := range docs {
		body := doc.Body
		if body == nil {
			body = make(map[string]any)
		}
		body["id"] = id
		out[id] = body
	}
	return out, nil
}

// SetAllDocs bulk-writes: entries carrying an "id" are merged via upsert,
// entries without one are created under a fresh ID. Entries are
// independent; a failure aborts the remainder.
func (c *Catalog) SetAllDocs(ctx context.Context, dbName string, docs []map[string]any) error {
	for _, entry := range docs {
		id, _ := entry["id"].(string)
		if id == "" {
			id = uuid.NewString()
		}
		fields := domain.CloneBody(entry)
		delete(fields, "id")

		if _, err := c.Upsert(ctx, dbName, id, func(doc *domain.Document) error {
			doc.Body = domain.Merge(doc.Body, fields)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// PutAttachment stores a blob, sniffing the content type when empty.
func (c *Catalog) PutAttachment(ctx context.Context, dbName, docID, name string, data []byte, contentType string) error {
	store, err := c.stores.Store(dbName)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = attachio.SniffContentType(data)
	}
	if err := store.PutAttachment(ctx, docID, &domain.Attachment{
		Name:        name,
		ContentType: contentType,
		Data:        data,
	}); err != nil {
		return err
	}

	c.notifyAttachment(dbName, docID, name)
	return nil
}

func (c *Catalog) notifyAttachment(dbName, docID, name string) {
	if c.notifier == nil {
		return
	}
	c.notifier.AttachmentChanged(domain.AttachmentChange{
		DBName:       dbName,
		DocID:        docID,
		AttachmentID: name,
		Timestamp:    domain.NowMillis(),
	})
	logger.WithFields(logger.Fields{"db": dbName, "doc": docID, "attachment": name}).Debug("attachment updated")
}

// GetAttachment returns the blob with its metadata.
func (c *Catalog) GetAttachment(ctx context.Context, dbName, docID, name string) (*domain.Attachment, error) {
	store, err := c.stores.Store(dbName)
	if err != nil {
		return nil, err
	}
	return store.GetAttachment(ctx, docID, name)
}

// ListAttachmentNames lists a document's attachment names.
func (c *Catalog) ListAttachmentNames(ctx context.Context, dbName, docID string) ([]string, error) {
	store, err := c.stores.Store(dbName)
	if err != nil {
		return nil, err
	}
	return store.ListAttachments(ctx, docID)
}

// CheckAttachment reports whether the named attachment exists.
func (c *Catalog) CheckAttachment(ctx context.Context, dbName, docID, name string) (bool, error) {
	store, err := c.stores.Store(dbName)
	if err != nil {
		return false, err
	}
	return store.HasAttachment(ctx, docID, name)
}

// RemoveAttachment deletes a blob; absent blobs succeed.
func (c *Catalog) RemoveAttachment(ctx context.Context, dbName, docID, name string) error {
	store, err := c.stores.Store(dbName)
	if err != nil {
		return err
	}
	if err := store.RemoveAttachment(ctx, docID, name); err != nil {
		return err
	}
	c.notifyAttachment(dbName, docID, name)
	return nil
}
