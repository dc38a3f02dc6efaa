// Package memory implements the document store in process memory. It
// mirrors the SQLite adapter's semantics and exists for tests and
// throwaway sessions; nothing survives Close.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
)

var _ driven.DocumentStore = (*Store)(nil)

type record struct {
	doc         domain.Document
	generation  int64
	seq         int64
	origin      domain.ChangeOrigin
	attachments map[string]*domain.Attachment
}

// Store is one in-memory logical database.
type Store struct {
	name string

	mu          sync.RWMutex
	docs        map[string]*record
	checkpoints map[string]string
	lastSeq     int64
	subs        map[int]func(domain.Change)
	nextSub     int
	closed      bool
}

// Open creates an empty database.
func Open(name string) *Store {
	return &Store{
		name:        name,
		docs:        make(map[string]*record),
		checkpoints: make(map[string]string),
		subs:        make(map[int]func(domain.Change)),
	}
}

func (s *Store) Name() string { return s.name }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen() error {
	if s.closed {
		return domain.ErrClosed
	}
	return nil
}

func newRev(generation int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", generation, suffix)
}

func (s *Store) Get(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rec, ok := s.docs[id]
	if !ok || rec.doc.Deleted {
		return nil, domain.ErrNotFound
	}
	return rec.doc.Clone(), nil
}

func (s *Store) Put(_ context.Context, doc *domain.Document) (string, error) {
	if doc.ID == "" {
		return "", fmt.Errorf("document has no id")
	}

	s.mu.Lock()
	if err := s.checkOpen(); err != nil {
		s.mu.Unlock()
		return "", err
	}

	current := s.docs[doc.ID]
	var generation int64 = 1
	if current != nil {
		switch {
		case current.doc.Deleted && doc.Rev == "":
		case doc.Rev != current.doc.Rev:
			s.mu.Unlock()
			return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrConflict)
		}
		generation = current.generation + 1
	} else if doc.Rev != "" {
		s.mu.Unlock()
		return "", fmt.Errorf("put %s: revision on missing document: %w", doc.ID, domain.ErrConflict)
	}

	rev := newRev(generation)
	s.lastSeq++
	rec := &record{
		doc: domain.Document{
			ID:      doc.ID,
			Rev:     rev,
			Deleted: doc.Deleted,
			Body:    domain.CloneBody(doc.Body),
		},
		generation:  generation,
		seq:         s.lastSeq,
		origin:      domain.OriginLocal,
		attachments: make(map[string]*domain.Attachment),
	}
	if doc.Deleted {
		rec.doc.Body = map[string]any{}
	} else if current != nil && !current.doc.Deleted {
		rec.attachments = current.attachments
	}
	s.docs[doc.ID] = rec

	change := domain.Change{Seq: rec.seq, Doc: *rec.doc.Clone(), Deleted: rec.doc.Deleted, Origin: domain.OriginLocal}
	fns := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
	return rev, nil
}

func (s *Store) snapshotSubs() []func(domain.Change) {
	fns := make([]func(domain.Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.RLock()
	rec, ok := s.docs[id]
	var rev string
	if ok {
		rev = rec.doc.Rev
	}
	deleted := ok && rec.doc.Deleted
	s.mu.RUnlock()

	if !ok || deleted {
		return nil
	}
	_, err := s.Put(ctx, &domain.Document{ID: id, Rev: rev, Deleted: true})
	return err
}

func (s *Store) AllDocs(_ context.Context) (map[string]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := make(map[string]*domain.Document)
	for id, rec := range s.docs {
		if rec.doc.Deleted {
			continue
		}
		out[id] = rec.doc.Clone()
	}
	return out, nil
}

func (s *Store) Changes(_ context.Context, since int64, limit int) ([]domain.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out []domain.Change
	for _, rec := range s.docs {
		if rec.seq <= since {
			continue
		}
		out = append(out, domain.Change{Seq: rec.seq, Doc: *rec.doc.Clone(), Deleted: rec.doc.Deleted, Origin: rec.origin})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LastSeq(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeq, nil
}

func (s *Store) Subscribe(fn func(domain.Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) ApplyRemote(_ context.Context, doc *domain.RemoteDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("remote document has no id")
	}

	s.mu.Lock()
	if err := s.checkOpen(); err != nil {
		s.mu.Unlock()
		return err
	}

	current := s.docs[doc.ID]
	var generation int64 = 1
	if current != nil {
		if current.doc.Rev == doc.Rev {
			s.mu.Unlock()
			return nil
		}
		generation = current.generation + 1
	}

	s.lastSeq++
	rec := &record{
		doc: domain.Document{
			ID:      doc.ID,
			Rev:     doc.Rev,
			Deleted: doc.Deleted,
			Body:    domain.CloneBody(doc.Body),
		},
		generation:  generation,
		seq:         s.lastSeq,
		origin:      domain.OriginReplication,
		attachments: make(map[string]*domain.Attachment),
	}
	if doc.Deleted {
		rec.doc.Body = map[string]any{}
	} else {
		for i := range doc.Attachments {
			att := doc.Attachments[i]
			if att.RevPos == 0 {
				att.RevPos = generation
			}
			rec.attachments[att.Name] = &att
		}
	}
	s.docs[doc.ID] = rec

	change := domain.Change{Seq: rec.seq, Doc: *rec.doc.Clone(), Deleted: rec.doc.Deleted, Origin: domain.OriginReplication}
	fns := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
	return nil
}

func (s *Store) PutAttachment(_ context.Context, docID string, att *domain.Attachment) error {
	if docID == "" || att == nil || att.Name == "" {
		return fmt.Errorf("attachment needs a document id and a name")
	}

	s.mu.Lock()
	if err := s.checkOpen(); err != nil {
		s.mu.Unlock()
		return err
	}

	rec, change := s.bump(docID)
	stored := *att
	if stored.ContentType == "" {
		stored.ContentType = "application/octet-stream"
	}
	stored.RevPos = rec.generation
	rec.attachments[stored.Name] = &stored

	fns := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
	return nil
}

// bump advances the document, creating it when absent or tombstoned.
// Callers hold mu.
func (s *Store) bump(docID string) (*record, domain.Change) {
	current := s.docs[docID]
	var generation int64 = 1
	body := map[string]any{}
	attachments := make(map[string]*domain.Attachment)
	if current != nil {
		generation = current.generation + 1
		if !current.doc.Deleted {
			body = domain.CloneBody(current.doc.Body)
			attachments = current.attachments
		}
	}

	s.lastSeq++
	rec := &record{
		doc:         domain.Document{ID: docID, Rev: newRev(generation), Body: body},
		generation:  generation,
		seq:         s.lastSeq,
		origin:      domain.OriginLocal,
		attachments: attachments,
	}
	s.docs[docID] = rec
	return rec, domain.Change{Seq: rec.seq, Doc: *rec.doc.Clone(), Origin: domain.OriginLocal}
}

func (s *Store) GetAttachment(_ context.Context, docID, name string) (*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[docID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	att, ok := rec.attachments[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *att
	out.Data = append([]byte(nil), att.Data...)
	return &out, nil
}

func (s *Store) ListAttachments(_ context.Context, docID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[docID]
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(rec.attachments))
	for name := range rec.attachments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) HasAttachment(_ context.Context, docID, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[docID]
	if !ok {
		return false, nil
	}
	_, ok = rec.attachments[name]
	return ok, nil
}

func (s *Store) RemoveAttachment(_ context.Context, docID, name string) error {
	s.mu.Lock()
	rec, ok := s.docs[docID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if _, ok := rec.attachments[name]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(rec.attachments, name)
	_, change := s.bump(docID)
	fns := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
	return nil
}

func (s *Store) Checkpoint(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[id], nil
}

func (s *Store) SaveCheckpoint(_ context.Context, id, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[id] = value
	return nil
}

func (s *Store) ClearCheckpoints(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints = make(map[string]string)
	return nil
}
