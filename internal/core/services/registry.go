// Package services implements the application core: the document catalog,
// the store registry, replication sessions and the export/import surface.
// Everything here talks to the outside world through the ports only.
package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
	"github.com/ludex-app/ludex/internal/logger"
)

// StoreOpener opens the backing store of one logical database at its
// configured directory.
type StoreOpener func(name, dir string) (driven.DocumentStore, error)

// syncStopper is the slice of the replication controller the registry needs
// when closing a database.
type syncStopper interface {
	StopSync(dbName string)
}

// handle is one opened database plus its notification listener.
type handle struct {
	store driven.DocumentStore
	unsub func()
}

// Registry owns the opened databases. Stores open lazily on first use and
// stay shared; closing goes through the registry so the replication session
// and the change listener are torn down before the store.
type Registry struct {
	opener   StoreOpener
	paths    map[string]string
	notifier driven.Notifier

	mu      sync.RWMutex
	handles map[string]*handle
	stopper syncStopper
}

// NewRegistry builds a registry over the configured database table.
func NewRegistry(opener StoreOpener, paths map[string]string, notifier driven.Notifier) *Registry {
	return &Registry{
		opener:   opener,
		paths:    paths,
		notifier: notifier,
		handles:  make(map[string]*handle),
	}
}

// BindReplicator wires the replication controller in after construction;
// the two depend on each other and the registry is built first.
func (r *Registry) BindReplicator(s syncStopper) {
	r.mu.Lock()
	r.stopper = s
	r.mu.Unlock()
}

// Names returns the configured database names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.paths))
	for name := range r.paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store returns the shared store for a database, opening it on first use.
func (r *Registry) Store(name string) (driven.DocumentStore, error) {
	r.mu.RLock()
	h, ok := r.handles[name]
	r.mu.RUnlock()
	if ok {
		return h.store, nil
	}

	dir, configured := r.paths[name]
	if !configured {
		return nil, fmt.Errorf("database %q: %w", name, domain.ErrNotConfigured)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[name]; ok {
		return h.store, nil
	}

	store, err := r.opener(name, dir)
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", name, err)
	}

	unsub := store.Subscribe(broadcaster(name, r.notifier))
	r.handles[name] = &handle{store: store, unsub: unsub}
	logger.WithFields(logger.Fields{"db": name}).Debug("database registered")
	return store, nil
}

// Close tears one database down: replication first, then the listener,
// then the store itself.
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	h, ok := r.handles[name]
	if ok {
		delete(r.handles, name)
	}
	stopper := r.stopper
	r.mu.Unlock()

	if !ok {
		return nil
	}
	if stopper != nil {
		stopper.StopSync(name)
	}
	h.unsub()
	if err := h.store.Close(); err != nil {
		return fmt.Errorf("closing database %q: %w", name, err)
	}
	return nil
}

// CloseAll closes every opened database, returning the first error.
func (r *Registry) CloseAll() error {
	r.mu.RLock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	var firstErr error
	for _, name := range names {
		if err := r.Close(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
