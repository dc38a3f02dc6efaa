package driven

import (
	"context"

	"github.com/ludex-app/ludex/internal/core/domain"
)

// RemoteChange is one row of a remote change feed.
type RemoteChange struct {
	ID      string
	Seq     string
	Deleted bool
	Doc     *domain.RemoteDocument
}

// RemoteChanges is one batch of a remote change feed.
type RemoteChanges struct {
	Results []RemoteChange
	LastSeq string
}

// RemoteInfo describes a remote database.
type RemoteInfo struct {
	DocCount  int64
	FileSize  int64
	DiskAlloc int64
}

// RemoteReplica is one database on a replication peer.
//
// Transport failures map to domain.ErrUnreachable, rejected credentials to
// domain.ErrDenied and stale-revision writes to domain.ErrConflict, all
// wrapped with request context.
type RemoteReplica interface {
	// Name returns the remote database name.
	Name() string

	// Ensure provisions the database, tolerating "already exists".
	Ensure(ctx context.Context) error

	// Info fetches database statistics (used for usage reporting).
	Info(ctx context.Context) (*RemoteInfo, error)

	// Changes reads the change feed after the given remote sequence.
	// With longpoll set the call blocks server-side until a change
	// arrives or the feed's timeout elapses (returning an empty batch).
	Changes(ctx context.Context, since string, longpoll bool) (*RemoteChanges, error)

	// Get fetches one document with inline attachments.
	Get(ctx context.Context, id string) (*domain.RemoteDocument, error)

	// Put writes one document with inline attachments, returning the
	// new remote revision.
	Put(ctx context.Context, doc *domain.RemoteDocument) (string, error)

	// Delete tombstones a remote document at the given revision.
	Delete(ctx context.Context, id, rev string) error
}

// RemoteFactory constructs replicas. Indirected so replication sessions
// are unit-testable without a network.
type RemoteFactory interface {
	Open(baseURL, dbName string, auth *domain.Credentials) RemoteReplica
}
