package domain

// Document is a semi-structured record keyed by a stable ID and versioned
// by an opaque revision token. Body holds every field except the reserved
// id/revision pair; callers never see or set the revision format.
type Document struct {
	// ID is the stable primary key, immutable once assigned.
	ID string

	// Rev is the store-assigned revision token. A write targeting an
	// existing document must present the revision it read or it fails
	// with ErrConflict. Empty on creation.
	Rev string

	// Deleted marks a tombstone: the document is logically removed but
	// kept as a deletion marker for replication.
	Deleted bool

	// Body is the document content. Values are the JSON scalar types,
	// nested maps and slices.
	Body map[string]any
}

// Clone returns a deep copy of the document. Stores hand out clones so a
// caller can never mutate shared state through a returned body.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{
		ID:      d.ID,
		Rev:     d.Rev,
		Deleted: d.Deleted,
		Body:    CloneBody(d.Body),
	}
}

// CloneBody deep-copies a document body.
func CloneBody(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneBody(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Merge overlays src onto dst at the top level, PouchDB-upsert style:
// existing fields not named in src are preserved.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

// Attachment is a named binary blob owned by exactly one document.
type Attachment struct {
	Name        string
	ContentType string

	// RevPos is the owning document's generation at the time the
	// attachment was written. It is an explicit counter, independent of
	// the revision token's format.
	RevPos int64

	Data []byte
}

// RemoteDocument is a document as exchanged with a replication peer:
// the remote's revision token verbatim, plus inline attachments.
type RemoteDocument struct {
	Document
	Attachments []Attachment
}

// ChangeOrigin records which side produced a committed write.
type ChangeOrigin string

const (
	// OriginLocal marks writes made through the public store API.
	OriginLocal ChangeOrigin = "local"

	// OriginReplication marks writes applied from a remote peer. The
	// push loop skips these so replicated changes are not echoed back.
	OriginReplication ChangeOrigin = "replication"
)

// Change is one committed write in a database's change feed, delivered in
// commit order.
type Change struct {
	Seq     int64
	Doc     Document
	Deleted bool
	Origin  ChangeOrigin
}
