package driving

import (
	"context"

	"github.com/ludex-app/ludex/internal/core/domain"
)

// SyncController drives replication sessions across the configured
// databases.
type SyncController interface {
	// StartSync opens (or restarts) the session for one database.
	// Local databases are skipped silently. Setup errors (provisioning,
	// unreachable host, initial catch-up) return to the caller; a
	// running session reports through status notifications instead.
	StartSync(ctx context.Context, dbName, remoteBase string, opts domain.SyncOptions) error

	// StopSync cancels the session for one database. No-op when absent.
	StopSync(dbName string)

	// SyncAll stops every session, then starts one per non-local
	// configured database, sequentially.
	SyncAll(ctx context.Context, remoteBase string, opts domain.SyncOptions) error

	// FullSync is SyncAll after dropping replication checkpoints,
	// forcing a complete reconciliation.
	FullSync(ctx context.Context, remoteBase string, opts domain.SyncOptions) error

	// StopAll cancels every session. Idempotent.
	StopAll()

	// Active lists databases with a live session.
	Active() []string

	// RemoteUsage sums the remote storage footprint of the user's
	// databases, in bytes.
	RemoteUsage(ctx context.Context, remoteBase string, opts domain.SyncOptions) (int64, error)
}
