package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
)

// fakeRemote is an in-memory replication peer.
type fakeRemote struct {
	name string

	mu      sync.Mutex
	ensured bool
	rev     int
	docs    map[string]*domain.RemoteDocument
	log     []driven.RemoteChange
	info    driven.RemoteInfo
	infoErr error
}

func newFakeRemote(name string) *fakeRemote {
	return &fakeRemote{name: name, docs: make(map[string]*domain.RemoteDocument)}
}

func (f *fakeRemote) Name() string { return f.name }

func (f *fakeRemote) Ensure(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = true
	return nil
}

func (f *fakeRemote) Info(context.Context) (*driven.RemoteInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	info := f.info
	return &info, nil
}

func (f *fakeRemote) Changes(ctx context.Context, since string, longpoll bool) (*driven.RemoteChanges, error) {
	var from int
	if since != "" {
		from, _ = strconv.Atoi(since)
	}

	f.mu.Lock()
	results := make([]driven.RemoteChange, 0)
	for i := from; i < len(f.log); i++ {
		results = append(results, f.log[i])
	}
	last := strconv.Itoa(len(f.log))
	f.mu.Unlock()

	if longpoll && len(results) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return &driven.RemoteChanges{Results: results, LastSeq: last}, nil
}

func (f *fakeRemote) Get(_ context.Context, id string) (*domain.RemoteDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.Deleted {
		return nil, domain.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (f *fakeRemote) Put(_ context.Context, doc *domain.RemoteDocument) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.docs[doc.ID]; ok && !cur.Deleted && cur.Rev != doc.Rev {
		return "", domain.ErrConflict
	}
	f.rev++
	stored := *doc
	stored.Rev = fmt.Sprintf("%d-fake", f.rev)
	f.docs[doc.ID] = &stored
	f.log = append(f.log, driven.RemoteChange{
		ID:  doc.ID,
		Seq: strconv.Itoa(len(f.log) + 1),
		Doc: &stored,
	})
	return stored.Rev, nil
}

func (f *fakeRemote) Delete(_ context.Context, id, rev string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Rev != rev {
		return domain.ErrConflict
	}
	f.rev++
	tomb := &domain.RemoteDocument{Document: domain.Document{
		ID: id, Rev: fmt.Sprintf("%d-fake", f.rev), Deleted: true,
	}}
	f.docs[id] = tomb
	f.log = append(f.log, driven.RemoteChange{
		ID: id, Seq: strconv.Itoa(len(f.log) + 1), Deleted: true, Doc: tomb,
	})
	return nil
}

func (f *fakeRemote) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	return ok && !doc.Deleted
}

func (f *fakeRemote) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.log)
}

// fakeFactory hands out one fakeRemote per remote database name.
type fakeFactory struct {
	mu      sync.Mutex
	remotes map[string]*fakeRemote
	opened  []string
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{remotes: make(map[string]*fakeRemote)}
}

func (f *fakeFactory) Open(_, dbName string, _ *domain.Credentials) driven.RemoteReplica {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, dbName)
	if r, ok := f.remotes[dbName]; ok {
		return r
	}
	r := newFakeRemote(dbName)
	f.remotes[dbName] = r
	return r
}

func (f *fakeFactory) remote(dbName string) *fakeRemote {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.remotes[dbName]; ok {
		return r
	}
	r := newFakeRemote(dbName)
	f.remotes[dbName] = r
	return r
}

func newTestReplicator(t *testing.T) (*Replicator, *Registry, *fakeFactory, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	registry := NewRegistry(memoryOpener, testPaths, notifier)
	factory := newFakeFactory()
	rep := NewReplicator(registry, factory, notifier)
	registry.BindReplicator(rep)
	t.Cleanup(func() {
		rep.StopAll()
		registry.CloseAll()
	})
	return rep, registry, factory, notifier
}

const testRemoteBase = "http://remote.test:5984"

func testAuth() domain.SyncOptions {
	return domain.SyncOptions{Auth: &domain.Credentials{Username: "alice", Password: "secret"}}
}

func TestReplicator_LocalDatabaseSkipped(t *testing.T) {
	rep, _, factory, _ := newTestReplicator(t)

	err := rep.StartSync(context.Background(), domain.DBGameLocal, testRemoteBase, testAuth())
	require.NoError(t, err)
	assert.Empty(t, rep.Active())
	assert.Empty(t, factory.opened)
}

func TestReplicator_InitialPushForwardsLocalWrites(t *testing.T) {
	rep, registry, factory, _ := newTestReplicator(t)
	ctx := context.Background()

	store, err := registry.Store(domain.DBGame)
	require.NoError(t, err)
	_, err = store.Put(ctx, &domain.Document{ID: "g1", Body: map[string]any{"name": "Foo"}})
	require.NoError(t, err)

	require.NoError(t, rep.StartSync(ctx, domain.DBGame, testRemoteBase, testAuth()))
	defer rep.StopSync(domain.DBGame)

	remote := factory.remote("ludex-game")
	assert.True(t, remote.ensured)
	assert.True(t, remote.has("g1"))
}

func TestReplicator_InitialPullAppliesRemoteState(t *testing.T) {
	rep, registry, factory, _ := newTestReplicator(t)
	ctx := context.Background()

	remote := factory.remote("ludex-game")
	_, err := remote.Put(ctx, &domain.RemoteDocument{
		Document: domain.Document{ID: "r1", Body: map[string]any{"name": "Remote"}},
	})
	require.NoError(t, err)
	before := remote.putCount()

	require.NoError(t, rep.StartSync(ctx, domain.DBGame, testRemoteBase, testAuth()))
	defer rep.StopSync(domain.DBGame)

	store, err := registry.Store(domain.DBGame)
	require.NoError(t, err)
	doc, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Remote", doc.Body["name"])

	// The replicated document must not be echoed back.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, remote.putCount())
}

func TestReplicator_StartTwiceLeavesOneSession(t *testing.T) {
	rep, _, _, _ := newTestReplicator(t)
	ctx := context.Background()

	require.NoError(t, rep.StartSync(ctx, domain.DBGame, testRemoteBase, testAuth()))
	require.NoError(t, rep.StartSync(ctx, domain.DBGame, testRemoteBase, testAuth()))

	assert.Equal(t, []string{domain.DBGame}, rep.Active())

	rep.StopSync(domain.DBGame)
	assert.Empty(t, rep.Active())
}

func TestReplicator_LivePushAndPull(t *testing.T) {
	rep, registry, factory, _ := newTestReplicator(t)
	ctx := context.Background()

	require.NoError(t, rep.StartSync(ctx, domain.DBGame, testRemoteBase, testAuth()))
	defer rep.StopSync(domain.DBGame)

	store, err := registry.Store(domain.DBGame)
	require.NoError(t, err)
	remote := factory.remote("ludex-game")

	// A local write reaches the remote without waiting for the sweep.
	_, err = store.Put(ctx, &domain.Document{ID: "live1", Body: map[string]any{"v": 1}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return remote.has("live1") },
		2*time.Second, 10*time.Millisecond)

	// A remote write lands locally through the longpoll loop.
	_, err = remote.Put(ctx, &domain.RemoteDocument{
		Document: domain.Document{ID: "live2", Body: map[string]any{"v": 2}},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := store.Get(ctx, "live2")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReplicator_LivePushForwardsTombstones(t *testing.T) {
	rep, registry, factory, _ := newTestReplicator(t)
	ctx := context.Background()

	store, err := registry.Store(domain.DBGame)
	require.NoError(t, err)
	_, err = store.Put(ctx, &domain.Document{ID: "g1", Body: map[string]any{}})
	require.NoError(t, err)

	require.NoError(t, rep.StartSync(ctx, domain.DBGame, testRemoteBase, testAuth()))
	defer rep.StopSync(domain.DBGame)

	remote := factory.remote("ludex-game")
	require.True(t, remote.has("g1"))

	require.NoError(t, store.Remove(ctx, "g1"))
	require.Eventually(t, func() bool { return !remote.has("g1") },
		2*time.Second, 10*time.Millisecond)
}

func TestReplicator_SyncAllSkipsLocal(t *testing.T) {
	rep, _, factory, notifier := newTestReplicator(t)

	require.NoError(t, rep.SyncAll(context.Background(), testRemoteBase, testAuth()))
	defer rep.StopAll()

	assert.Equal(t, []string{domain.DBConfig, domain.DBGame}, rep.Active())
	factory.mu.Lock()
	opened := append([]string(nil), factory.opened...)
	factory.mu.Unlock()
	assert.NotContains(t, opened, "ludex-game-local")
	assert.NotContains(t, opened, "ludex-config-local")

	assert.Contains(t, notifier.statusStates(), domain.SyncStateSuccess)
}

func TestReplicator_FullSyncResetsCheckpoints(t *testing.T) {
	rep, registry, _, _ := newTestReplicator(t)
	ctx := context.Background()

	store, err := registry.Store(domain.DBGame)
	require.NoError(t, err)
	require.NoError(t, store.SaveCheckpoint(ctx, "pull", "bogus"))

	require.NoError(t, rep.FullSync(ctx, testRemoteBase, testAuth()))
	defer rep.StopAll()

	cp, err := store.Checkpoint(ctx, "pull")
	require.NoError(t, err)
	assert.NotEqual(t, "bogus", cp)
}

func TestReplicator_RemoteUsage(t *testing.T) {
	rep, _, factory, _ := newTestReplicator(t)

	factory.remote("ludex-game").info = driven.RemoteInfo{FileSize: 1000}
	factory.remote("ludex-config").info = driven.RemoteInfo{FileSize: 234}
	factory.remote("ludex-game-collection").info = driven.RemoteInfo{FileSize: 999999}

	size, err := rep.RemoteUsage(context.Background(), testRemoteBase, testAuth())
	require.NoError(t, err)

	// Only the configured non-local databases count.
	assert.EqualValues(t, 1234, size)
}

func TestReplicator_RemoteUsage_SkipsUnprovisioned(t *testing.T) {
	rep, _, factory, _ := newTestReplicator(t)

	factory.remote("ludex-game").info = driven.RemoteInfo{FileSize: 500}
	factory.remote("ludex-config").infoErr = domain.ErrNotFound

	size, err := rep.RemoteUsage(context.Background(), testRemoteBase, testAuth())
	require.NoError(t, err)
	assert.EqualValues(t, 500, size)
}
