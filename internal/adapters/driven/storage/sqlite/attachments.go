package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ludex-app/ludex/internal/core/domain"
)

func insertAttachment(ctx context.Context, tx *sql.Tx, docID, name, contentType string, revpos int64, data []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO attachments (doc_id, name, content_type, revpos, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_id, name) DO UPDATE SET
			content_type = excluded.content_type,
			revpos = excluded.revpos,
			data = excluded.data
	`, docID, name, contentType, revpos, data)
	if err != nil {
		return fmt.Errorf("writing attachment %s/%s: %w", docID, name, err)
	}
	return nil
}

// bumpDoc advances the document's generation, revision and sequence inside
// an attachment write so the change feed and replication see the update.
// Returns the new generation. Callers hold writeMu.
func (s *Store) bumpDoc(ctx context.Context, tx *sql.Tx, docID string) (gen int64, change domain.Change, err error) {
	current, err := s.getRow(ctx, tx, docID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, domain.Change{}, err
	}

	gen = 1
	body := "{}"
	if current != nil {
		gen = current.generation + 1
		if !current.deleted {
			body = current.body
		}
	}

	rev := newRev(gen)
	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return 0, domain.Change{}, err
	}
	if err := upsertRow(ctx, tx, docID, rev, gen, seq, false, domain.OriginLocal, body); err != nil {
		return 0, domain.Change{}, err
	}

	doc, err := (&docRow{id: docID, rev: rev, generation: gen, seq: seq, body: body}).document()
	if err != nil {
		return 0, domain.Change{}, err
	}
	change = domain.Change{Seq: seq, Doc: *doc, Origin: domain.OriginLocal}
	return gen, change, nil
}

// PutAttachment stores a named blob on a document. A missing or tombstoned
// document is created so the blob always has a carrier.
func (s *Store) PutAttachment(ctx context.Context, docID string, att *domain.Attachment) error {
	if docID == "" || att == nil || att.Name == "" {
		return fmt.Errorf("attachment needs a document id and a name")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning write: %w", err)
	}
	defer tx.Rollback()

	gen, change, err := s.bumpDoc(ctx, tx, docID)
	if err != nil {
		return err
	}
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := insertAttachment(ctx, tx, docID, att.Name, contentType, gen, att.Data); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing attachment write: %w", err)
	}

	s.emit(change)
	return nil
}

// GetAttachment retrieves a named blob with its metadata.
func (s *Store) GetAttachment(ctx context.Context, docID, name string) (*domain.Attachment, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT content_type, revpos, data FROM attachments WHERE doc_id = ? AND name = ?", docID, name)

	att := domain.Attachment{Name: name}
	err := row.Scan(&att.ContentType, &att.RevPos, &att.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading attachment %s/%s: %w", docID, name, err)
	}
	return &att, nil
}

// ListAttachments returns the attachment names of a document.
func (s *Store) ListAttachments(ctx context.Context, docID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM attachments WHERE doc_id = ? ORDER BY name", docID)
	if err != nil {
		return nil, fmt.Errorf("listing attachments of %s: %w", docID, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning attachment name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasAttachment reports whether a named blob exists.
func (s *Store) HasAttachment(ctx context.Context, docID, name string) (bool, error) {
	var one int
	row := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM attachments WHERE doc_id = ? AND name = ?", docID, name)
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking attachment %s/%s: %w", docID, name, err)
	}
	return true, nil
}

// RemoveAttachment deletes a named blob. Removing an absent blob succeeds.
func (s *Store) RemoveAttachment(ctx context.Context, docID, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning write: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM attachments WHERE doc_id = ? AND name = ?", docID, name)
	if err != nil {
		return fmt.Errorf("removing attachment %s/%s: %w", docID, name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("removing attachment %s/%s: %w", docID, name, err)
	}
	if n == 0 {
		return nil
	}

	_, change, err := s.bumpDoc(ctx, tx, docID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing attachment removal: %w", err)
	}

	s.emit(change)
	return nil
}
