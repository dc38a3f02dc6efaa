package services

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/ludex-app/ludex/internal/logger"
)

// Backup exports and imports full catalog snapshots. The archive is a zip
// with one <db>.json per database (the all-docs dump keyed by ID), the raw
// attachment blobs under attachments/<db>/<docID>/<name>, and an
// attachments.json manifest carrying their content types.
type Backup struct {
	stores  *Registry
	catalog *Catalog
}

// NewBackup builds the snapshot service.
func NewBackup(stores *Registry, catalog *Catalog) *Backup {
	return &Backup{stores: stores, catalog: catalog}
}

// attachmentEntry is one manifest row.
type attachmentEntry struct {
	DB          string `json:"db"`
	DocID       string `json:"docId"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

func attachmentPath(db, docID, name string) string {
	return path.Join("attachments", db, docID, name)
}

// Export writes a full snapshot of every configured database to w.
func (b *Backup) Export(ctx context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)
	var manifest []attachmentEntry

	for _, dbName := range b.stores.Names() {
		docs, err := b.catalog.GetAllDocs(ctx, dbName)
		if err != nil {
			return fmt.Errorf("dumping %s: %w", dbName, err)
		}

		f, err := zw.Create(dbName + ".json")
		if err != nil {
			return fmt.Errorf("creating archive entry for %s: %w", dbName, err)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(docs); err != nil {
			return fmt.Errorf("encoding %s: %w", dbName, err)
		}

		ids := make([]string, 0, len(docs))
		for id := range docs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, docID := range ids {
			entries, err := b.exportAttachments(ctx, zw, dbName, docID)
			if err != nil {
				return err
			}
			manifest = append(manifest, entries...)
		}
	}

	mf, err := zw.Create("attachments.json")
	if err != nil {
		return fmt.Errorf("creating attachment manifest: %w", err)
	}
	if err := json.NewEncoder(mf).Encode(manifest); err != nil {
		return fmt.Errorf("encoding attachment manifest: %w", err)
	}
	return zw.Close()
}

func (b *Backup) exportAttachments(ctx context.Context, zw *zip.Writer, dbName, docID string) ([]attachmentEntry, error) {
	names, err := b.catalog.ListAttachmentNames(ctx, dbName, docID)
	if err != nil {
		return nil, fmt.Errorf("listing attachments of %s/%s: %w", dbName, docID, err)
	}

	var entries []attachmentEntry
	for _, name := range names {
		att, err := b.catalog.GetAttachment(ctx, dbName, docID, name)
		if err != nil {
			return nil, fmt.Errorf("reading attachment %s/%s/%s: %w", dbName, docID, name, err)
		}
		f, err := zw.Create(attachmentPath(dbName, docID, name))
		if err != nil {
			return nil, fmt.Errorf("archiving attachment %s/%s/%s: %w", dbName, docID, name, err)
		}
		if _, err := f.Write(att.Data); err != nil {
			return nil, fmt.Errorf("archiving attachment %s/%s/%s: %w", dbName, docID, name, err)
		}
		entries = append(entries, attachmentEntry{
			DB:          dbName,
			DocID:       docID,
			Name:        name,
			ContentType: att.ContentType,
		})
	}
	return entries, nil
}

// ExportFile writes a snapshot archive at path.
func (b *Backup) ExportFile(ctx context.Context, p string) error {
	f, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("creating backup file: %w", err)
	}
	if err := b.Export(ctx, f); err != nil {
		f.Close()
		os.Remove(p)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing backup file: %w", err)
	}
	logger.WithFields(logger.Fields{"path": p}).Info("backup written")
	return nil
}

// Import replays a snapshot archive. Documents merge through the bulk
// write, so importing over live data behaves like a sync, not a wipe.
// Databases in the archive that are not configured are skipped.
func (b *Backup) Import(ctx context.Context, ra io.ReaderAt, size int64) error {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return fmt.Errorf("opening backup archive: %w", err)
	}

	configured := make(map[string]bool)
	for _, name := range b.stores.Names() {
		configured[name] = true
	}

	for _, f := range zr.File {
		dbName, ok := strings.CutSuffix(f.Name, ".json")
		if !ok || strings.Contains(f.Name, "/") || f.Name == "attachments.json" {
			continue
		}
		if !configured[dbName] {
			logger.WithFields(logger.Fields{"db": dbName}).Warn("backup contains unconfigured database, skipped")
			continue
		}
		if err := b.importDocs(ctx, f, dbName); err != nil {
			return err
		}
	}

	return b.importAttachments(ctx, zr, configured)
}

func (b *Backup) importDocs(ctx context.Context, f *zip.File, dbName string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	var docs map[string]map[string]any
	if err := json.NewDecoder(rc).Decode(&docs); err != nil {
		return fmt.Errorf("decoding %s: %w", f.Name, err)
	}

	list := make([]map[string]any, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		doc := docs[id]
		doc["id"] = id
		list = append(list, doc)
	}
	if err := b.catalog.SetAllDocs(ctx, dbName, list); err != nil {
		return fmt.Errorf("restoring %s: %w", dbName, err)
	}
	logger.WithFields(logger.Fields{"db": dbName, "docs": len(list)}).Info("database restored")
	return nil
}

func (b *Backup) importAttachments(ctx context.Context, zr *zip.Reader, configured map[string]bool) error {
	mf, err := zr.Open("attachments.json")
	if err != nil {
		// Older archives carried no attachments.
		return nil
	}
	defer mf.Close()

	var manifest []attachmentEntry
	if err := json.NewDecoder(mf).Decode(&manifest); err != nil {
		return fmt.Errorf("decoding attachment manifest: %w", err)
	}

	for _, entry := range manifest {
		if !configured[entry.DB] {
			continue
		}
		rc, err := zr.Open(attachmentPath(entry.DB, entry.DocID, entry.Name))
		if err != nil {
			return fmt.Errorf("opening attachment %s/%s/%s: %w", entry.DB, entry.DocID, entry.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("reading attachment %s/%s/%s: %w", entry.DB, entry.DocID, entry.Name, err)
		}
		if err := b.catalog.PutAttachment(ctx, entry.DB, entry.DocID, entry.Name, data, entry.ContentType); err != nil {
			return fmt.Errorf("restoring attachment %s/%s/%s: %w", entry.DB, entry.DocID, entry.Name, err)
		}
	}
	return nil
}

// ImportFile replays the snapshot archive at path.
func (b *Backup) ImportFile(ctx context.Context, p string) error {
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("opening backup file: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("inspecting backup file: %w", err)
	}
	return b.Import(ctx, f, st.Size())
}
