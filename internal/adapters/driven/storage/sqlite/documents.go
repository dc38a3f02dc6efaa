package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ludex-app/ludex/internal/core/domain"
)

// docRow mirrors one documents row.
type docRow struct {
	id         string
	rev        string
	generation int64
	seq        int64
	deleted    bool
	origin     string
	body       string
}

func scanDocRow(scanner interface{ Scan(...any) error }) (*docRow, error) {
	var r docRow
	var deleted int
	if err := scanner.Scan(&r.id, &r.rev, &r.generation, &r.seq, &deleted, &r.origin, &r.body); err != nil {
		return nil, err
	}
	r.deleted = deleted != 0
	return &r, nil
}

const docColumns = "id, rev, generation, seq, deleted, origin, body"

func (r *docRow) document() (*domain.Document, error) {
	body := make(map[string]any)
	if !r.deleted && r.body != "" {
		if err := json.Unmarshal([]byte(r.body), &body); err != nil {
			return nil, fmt.Errorf("decoding document %s: %w", r.id, err)
		}
	}
	return &domain.Document{ID: r.id, Rev: r.rev, Deleted: r.deleted, Body: body}, nil
}

func (r *docRow) change() (domain.Change, error) {
	doc, err := r.document()
	if err != nil {
		return domain.Change{}, err
	}
	return domain.Change{
		Seq:     r.seq,
		Doc:     *doc,
		Deleted: r.deleted,
		Origin:  domain.ChangeOrigin(r.origin),
	}, nil
}

func (s *Store) getRow(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, id string) (*docRow, error) {
	row := q.QueryRowContext(ctx, "SELECT "+docColumns+" FROM documents WHERE id = ?", id)
	r, err := scanDocRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return r, nil
}

// nextSeq allocates the next commit sequence. Callers hold writeMu.
func nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	row := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM documents")
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("allocating sequence: %w", err)
	}
	return seq, nil
}

// Get retrieves a live document by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Document, error) {
	r, err := s.getRow(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if r.deleted {
		return nil, domain.ErrNotFound
	}
	return r.document()
}

// Put replaces a document, enforcing the revision check.
func (s *Store) Put(ctx context.Context, doc *domain.Document) (string, error) {
	if doc.ID == "" {
		return "", fmt.Errorf("document has no id")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning write: %w", err)
	}
	defer tx.Rollback()

	current, err := s.getRow(ctx, tx, doc.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	var generation int64 = 1
	if current != nil {
		switch {
		case current.deleted && doc.Rev == "":
			// Resurrecting a tombstone needs no revision.
		case doc.Rev != current.rev:
			return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrConflict)
		}
		generation = current.generation + 1
	} else if doc.Rev != "" {
		return "", fmt.Errorf("put %s: revision on missing document: %w", doc.ID, domain.ErrConflict)
	}

	rev := newRev(generation)
	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return "", err
	}

	bodyJSON := "{}"
	if doc.Deleted {
		// Tombstones keep no fields and lose their attachments.
		if _, err := tx.ExecContext(ctx, "DELETE FROM attachments WHERE doc_id = ?", doc.ID); err != nil {
			return "", fmt.Errorf("discarding attachments of %s: %w", doc.ID, err)
		}
	} else if doc.Body != nil {
		raw, err := json.Marshal(doc.Body)
		if err != nil {
			return "", fmt.Errorf("encoding document %s: %w", doc.ID, err)
		}
		bodyJSON = string(raw)
	}

	if err := upsertRow(ctx, tx, doc.ID, rev, generation, seq, doc.Deleted, domain.OriginLocal, bodyJSON); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing write: %w", err)
	}

	s.emit(domain.Change{
		Seq:     seq,
		Doc:     domain.Document{ID: doc.ID, Rev: rev, Deleted: doc.Deleted, Body: domain.CloneBody(doc.Body)},
		Deleted: doc.Deleted,
		Origin:  domain.OriginLocal,
	})
	return rev, nil
}

func upsertRow(ctx context.Context, tx *sql.Tx, id, rev string, generation, seq int64, deleted bool, origin domain.ChangeOrigin, body string) error {
	deletedInt := 0
	if deleted {
		deletedInt = 1
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, rev, generation, seq, deleted, origin, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rev = excluded.rev,
			generation = excluded.generation,
			seq = excluded.seq,
			deleted = excluded.deleted,
			origin = excluded.origin,
			body = excluded.body
	`, id, rev, generation, seq, deletedInt, string(origin), body)
	if err != nil {
		return fmt.Errorf("writing document %s: %w", id, err)
	}
	return nil
}

// Remove tombstones a document; absent documents are already satisfied.
func (s *Store) Remove(ctx context.Context, id string) error {
	current, err := s.getRow(ctx, s.db, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.deleted {
		return nil
	}
	_, err = s.Put(ctx, &domain.Document{ID: id, Rev: current.rev, Deleted: true})
	return err
}

// AllDocs returns every live document keyed by ID.
func (s *Store) AllDocs(ctx context.Context) (map[string]*domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+docColumns+" FROM documents WHERE deleted = 0")
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.Document)
	for rows.Next() {
		r, err := scanDocRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		out[doc.ID] = doc
	}
	return out, rows.Err()
}

// Changes returns committed writes after the given sequence in commit
// order. Each document appears once, at its latest sequence.
func (s *Store) Changes(ctx context.Context, since int64, limit int) ([]domain.Change, error) {
	query := "SELECT " + docColumns + " FROM documents WHERE seq > ? ORDER BY seq ASC"
	args := []any{since}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reading changes: %w", err)
	}
	defer rows.Close()

	var out []domain.Change
	for rows.Next() {
		r, err := scanDocRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning change: %w", err)
		}
		c, err := r.change()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastSeq returns the highest committed sequence.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM documents")
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("reading last sequence: %w", err)
	}
	return seq, nil
}

// ApplyRemote applies a replicated document last-writer-wins.
func (s *Store) ApplyRemote(ctx context.Context, doc *domain.RemoteDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("remote document has no id")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning write: %w", err)
	}
	defer tx.Rollback()

	current, err := s.getRow(ctx, tx, doc.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	var generation int64 = 1
	if current != nil {
		if current.rev == doc.Rev {
			// Already have this revision; nothing to do.
			return nil
		}
		generation = current.generation + 1
	}

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return err
	}

	bodyJSON := "{}"
	if !doc.Deleted && doc.Body != nil {
		raw, err := json.Marshal(doc.Body)
		if err != nil {
			return fmt.Errorf("encoding remote document %s: %w", doc.ID, err)
		}
		bodyJSON = string(raw)
	}

	// The remote revision token is stored verbatim so the same revision
	// arriving again is recognised as a no-op.
	if err := upsertRow(ctx, tx, doc.ID, doc.Rev, generation, seq, doc.Deleted, domain.OriginReplication, bodyJSON); err != nil {
		return err
	}

	// Attachments travel with the document; replace wholesale.
	if _, err := tx.ExecContext(ctx, "DELETE FROM attachments WHERE doc_id = ?", doc.ID); err != nil {
		return fmt.Errorf("clearing attachments of %s: %w", doc.ID, err)
	}
	if !doc.Deleted {
		for _, att := range doc.Attachments {
			revpos := att.RevPos
			if revpos == 0 {
				revpos = generation
			}
			if err := insertAttachment(ctx, tx, doc.ID, att.Name, att.ContentType, revpos, att.Data); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing remote write: %w", err)
	}

	s.emit(domain.Change{
		Seq:     seq,
		Doc:     domain.Document{ID: doc.ID, Rev: doc.Rev, Deleted: doc.Deleted, Body: domain.CloneBody(doc.Body)},
		Deleted: doc.Deleted,
		Origin:  domain.OriginReplication,
	})
	return nil
}
