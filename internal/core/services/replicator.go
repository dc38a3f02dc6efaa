package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
	"github.com/ludex-app/ludex/internal/core/ports/driving"
	"github.com/ludex-app/ludex/internal/logger"
)

var _ driving.SyncController = (*Replicator)(nil)

// Replicator drives one replication session per non-local database.
type Replicator struct {
	stores   *Registry
	factory  driven.RemoteFactory
	notifier driven.Notifier

	mu       sync.Mutex
	sessions map[string]*session
}

// NewReplicator builds the replication controller.
func NewReplicator(stores *Registry, factory driven.RemoteFactory, notifier driven.Notifier) *Replicator {
	return &Replicator{
		stores:   stores,
		factory:  factory,
		notifier: notifier,
		sessions: make(map[string]*session),
	}
}

// StartSync opens (or restarts) the session for one database. The initial
// catch-up runs synchronously so provisioning and connectivity problems
// surface to the caller; only then do the live loops take over.
func (r *Replicator) StartSync(ctx context.Context, dbName, remoteBase string, opts domain.SyncOptions) error {
	if domain.IsLocalDatabase(dbName) {
		logger.WithFields(logger.Fields{"db": dbName}).Debug("local database, sync skipped")
		return nil
	}

	r.StopSync(dbName)

	store, err := r.stores.Store(dbName)
	if err != nil {
		return err
	}

	remoteName := domain.RemoteDatabaseName(dbName, opts)
	replica := r.factory.Open(remoteBase, remoteName, opts.Auth)

	r.notify(domain.SyncStateSyncing, fmt.Sprintf("%s: starting sync", dbName))

	if opts.Auth != nil {
		if err := replica.Ensure(ctx); err != nil {
			r.notify(domain.SyncStateError, fmt.Sprintf("%s: provisioning failed", dbName))
			return fmt.Errorf("provisioning %s: %w", remoteName, err)
		}
	}

	s := newSession(dbName, store, replica, r.notifier)

	// One-shot catch-up before going live.
	if _, err := s.pull(ctx, false); err != nil {
		r.notify(domain.SyncStateError, fmt.Sprintf("%s: initial sync failed", dbName))
		return fmt.Errorf("initial pull of %s: %w", dbName, err)
	}
	if _, err := s.push(ctx); err != nil {
		r.notify(domain.SyncStateError, fmt.Sprintf("%s: initial sync failed", dbName))
		return fmt.Errorf("initial push of %s: %w", dbName, err)
	}

	r.mu.Lock()
	// A concurrent StartSync may have won the race; keep the newest.
	if old, ok := r.sessions[dbName]; ok {
		old.stop()
	}
	s.start()
	r.sessions[dbName] = s
	r.mu.Unlock()

	r.notify(domain.SyncStateSuccess, fmt.Sprintf("%s: up to date", dbName))
	logger.WithFields(logger.Fields{"db": dbName, "remote": remoteName}).Info("sync started")
	return nil
}

// StopSync cancels one session. No-op when absent.
func (r *Replicator) StopSync(dbName string) {
	r.mu.Lock()
	s, ok := r.sessions[dbName]
	if ok {
		delete(r.sessions, dbName)
	}
	r.mu.Unlock()

	if ok {
		s.stop()
		logger.WithFields(logger.Fields{"db": dbName}).Info("sync stopped")
	}
}

// SyncAll stops everything, then starts one session per non-local
// database, sequentially. Failing databases are reported but do not stop
// the rest.
func (r *Replicator) SyncAll(ctx context.Context, remoteBase string, opts domain.SyncOptions) error {
	r.StopAll()

	var errs []error
	for _, name := range r.stores.Names() {
		if domain.IsLocalDatabase(name) {
			continue
		}
		if err := r.StartSync(ctx, name, remoteBase, opts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FullSync drops every replication checkpoint before SyncAll, forcing a
// complete reconciliation.
func (r *Replicator) FullSync(ctx context.Context, remoteBase string, opts domain.SyncOptions) error {
	r.StopAll()

	for _, name := range r.stores.Names() {
		if domain.IsLocalDatabase(name) {
			continue
		}
		store, err := r.stores.Store(name)
		if err != nil {
			return err
		}
		if err := store.ClearCheckpoints(ctx); err != nil {
			return fmt.Errorf("resetting %s: %w", name, err)
		}
	}
	return r.SyncAll(ctx, remoteBase, opts)
}

// StopAll cancels every session.
func (r *Replicator) StopAll() {
	for _, name := range r.Active() {
		r.StopSync(name)
	}
}

// Active lists databases with a live session.
func (r *Replicator) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RemoteUsage sums the storage footprint of the user's remote databases.
// Databases not yet provisioned count as zero.
func (r *Replicator) RemoteUsage(ctx context.Context, remoteBase string, opts domain.SyncOptions) (int64, error) {
	var total int64
	for _, name := range r.stores.Names() {
		if domain.IsLocalDatabase(name) {
			continue
		}
		replica := r.factory.Open(remoteBase, domain.RemoteDatabaseName(name, opts), opts.Auth)
		info, err := replica.Info(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("reading usage of %s: %w", name, err)
		}
		total += info.FileSize
	}
	return total, nil
}

func (r *Replicator) notify(state domain.SyncState, message string) {
	if r.notifier != nil {
		r.notifier.SyncStatus(domain.NewSyncStatus(state, message))
	}
}
