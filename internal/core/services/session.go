package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
	"github.com/ludex-app/ludex/internal/logger"
)

// Checkpoint IDs, one per replication direction.
const (
	checkpointPull = "pull"
	checkpointPush = "push"
)

// pushInterval is the safety-net sweep of the push loop; the wake channel
// normally triggers a push well before it fires.
const pushInterval = 30 * time.Second

// pushPutRetries bounds conflict retries of one remote document write.
const pushPutRetries = 3

// maxReconnectDelay caps the exponential backoff of a failing session loop.
const maxReconnectDelay = 60 * time.Second

// session is one database's live replication: a longpoll pull loop and an
// event-driven push loop over the same store/replica pair. Stopping is
// cooperative; loops exit at their next suspension point.
type session struct {
	dbName   string
	store    driven.DocumentStore
	replica  driven.RemoteReplica
	notifier driven.Notifier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wake   chan struct{}
	unsub  func()
}

func newSession(dbName string, store driven.DocumentStore, replica driven.RemoteReplica, notifier driven.Notifier) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		dbName:   dbName,
		store:    store,
		replica:  replica,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
	}
}

// start launches the live loops. The store subscription only nudges the
// push loop for local writes, so replicated changes are never echoed back.
func (s *session) start() {
	s.unsub = s.store.Subscribe(func(c domain.Change) {
		if c.Origin != domain.OriginLocal {
			return
		}
		select {
		case s.wake <- struct{}{}:
		default:
		}
	})

	s.wg.Add(2)
	go s.pullLoop()
	go s.pushLoop()
}

// stop cancels the loops and waits for them to exit.
func (s *session) stop() {
	s.cancel()
	if s.unsub != nil {
		s.unsub()
	}
	s.wg.Wait()
}

func (s *session) status(state domain.SyncState, message string) {
	if s.notifier != nil {
		s.notifier.SyncStatus(domain.NewSyncStatus(state, message))
	}
}

// reconnectBackoff returns the delay sequence of a failing loop.
func reconnectBackoff() retry.Backoff {
	return retry.WithCappedDuration(maxReconnectDelay, retry.NewExponential(time.Second))
}

func (s *session) sleep(b retry.Backoff) bool {
	d, _ := b.Next()
	select {
	case <-time.After(d):
		return true
	case <-s.ctx.Done():
		return false
	}
}

// reportError maps a loop failure onto a status notification. Denied is
// non-fatal; the session keeps retrying in case permissions change.
func (s *session) reportError(op string, err error) {
	logger.WithError(err).WithFields(logger.Fields{"db": s.dbName, "op": op}).Warn("sync error")
	if errors.Is(err, domain.ErrDenied) {
		s.status(domain.SyncStateError, fmt.Sprintf("%s: access denied by remote", s.dbName))
		return
	}
	s.status(domain.SyncStateError, fmt.Sprintf("%s: %s failed: %v", s.dbName, op, err))
}

// pullLoop longpolls the remote change feed and applies each batch.
func (s *session) pullLoop() {
	defer s.wg.Done()
	backoff := reconnectBackoff()

	for {
		if s.ctx.Err() != nil {
			return
		}
		applied, err := s.pull(s.ctx, true)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.reportError("pull", err)
			if !s.sleep(backoff) {
				return
			}
			continue
		}
		backoff = reconnectBackoff()
		if applied > 0 {
			s.status(domain.SyncStateSuccess, fmt.Sprintf("%s: up to date", s.dbName))
		}
	}
}

// pull reads the remote feed once from the saved checkpoint and applies
// it. Returns the number of applied changes.
func (s *session) pull(ctx context.Context, longpoll bool) (int, error) {
	since, err := s.store.Checkpoint(ctx, checkpointPull)
	if err != nil {
		return 0, err
	}

	batch, err := s.replica.Changes(ctx, since, longpoll)
	if err != nil {
		return 0, err
	}
	if len(batch.Results) > 0 {
		s.status(domain.SyncStateSyncing, fmt.Sprintf("%s: receiving changes", s.dbName))
	}

	applied := 0
	for _, change := range batch.Results {
		if change.Doc == nil {
			logger.WithFields(logger.Fields{"db": s.dbName, "doc": change.ID}).Debug("change without document, skipped")
			continue
		}
		if err := s.store.ApplyRemote(ctx, change.Doc); err != nil {
			return applied, fmt.Errorf("applying %s: %w", change.ID, err)
		}
		applied++
	}

	if batch.LastSeq != "" && batch.LastSeq != since {
		if err := s.store.SaveCheckpoint(ctx, checkpointPull, batch.LastSeq); err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// pushLoop forwards local writes, woken by the subscription and swept by a
// ticker.
func (s *session) pushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()
	backoff := reconnectBackoff()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}

		if _, err := s.push(s.ctx); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.reportError("push", err)
			if !s.sleep(backoff) {
				return
			}
			// Retry the failed push rather than waiting for a new write.
			select {
			case s.wake <- struct{}{}:
			default:
			}
			continue
		}
		backoff = reconnectBackoff()
	}
}

// push forwards committed local writes after the push checkpoint. The
// checkpoint advances per change so a partial push never re-sends what the
// remote already accepted. Returns the number of pushed documents.
func (s *session) push(ctx context.Context) (int, error) {
	raw, err := s.store.Checkpoint(ctx, checkpointPush)
	if err != nil {
		return 0, err
	}
	var since int64
	if raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt push checkpoint %q: %w", raw, err)
		}
	}

	changes, err := s.store.Changes(ctx, since, 0)
	if err != nil {
		return 0, err
	}

	pushed := 0
	announced := false
	for _, change := range changes {
		if change.Origin == domain.OriginLocal {
			if !announced {
				s.status(domain.SyncStateSyncing, fmt.Sprintf("%s: sending changes", s.dbName))
				announced = true
			}
			if err := s.pushChange(ctx, change); err != nil {
				return pushed, err
			}
			pushed++
		}
		if err := s.store.SaveCheckpoint(ctx, checkpointPush, strconv.FormatInt(change.Seq, 10)); err != nil {
			return pushed, err
		}
	}
	if pushed > 0 {
		s.status(domain.SyncStateSuccess, fmt.Sprintf("%s: up to date", s.dbName))
	}
	return pushed, nil
}

// pushChange writes one local change to the remote, retrying stale-revision
// rejections by re-reading the remote revision.
func (s *session) pushChange(ctx context.Context, change domain.Change) error {
	remoteRev, err := s.remoteRev(ctx, change.Doc.ID)
	if err != nil {
		return err
	}

	if change.Deleted {
		if remoteRev == "" {
			return nil
		}
		err := s.replica.Delete(ctx, change.Doc.ID, remoteRev)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	backoff := retry.WithMaxRetries(pushPutRetries, retry.NewConstant(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		doc := &domain.RemoteDocument{Document: domain.Document{
			ID:   change.Doc.ID,
			Rev:  remoteRev,
			Body: change.Doc.Body,
		}}
		atts, err := s.localAttachments(ctx, change.Doc.ID)
		if err != nil {
			return err
		}
		doc.Attachments = atts

		if _, err := s.replica.Put(ctx, doc); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				remoteRev, err = s.remoteRev(ctx, change.Doc.ID)
				if err != nil {
					return err
				}
				return retry.RetryableError(domain.ErrConflict)
			}
			return err
		}
		return nil
	})
}

// remoteRev reads the remote's current revision of a document, "" when the
// remote does not have it.
func (s *session) remoteRev(ctx context.Context, id string) (string, error) {
	doc, err := s.replica.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return doc.Rev, nil
}

// localAttachments collects a document's attachments for an inline push.
func (s *session) localAttachments(ctx context.Context, docID string) ([]domain.Attachment, error) {
	names, err := s.store.ListAttachments(ctx, docID)
	if err != nil {
		return nil, err
	}
	atts := make([]domain.Attachment, 0, len(names))
	for _, name := range names {
		att, err := s.store.GetAttachment(ctx, docID, name)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		atts = append(atts, *att)
	}
	return atts, nil
}
