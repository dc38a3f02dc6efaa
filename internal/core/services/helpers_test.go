package services

import (
	"sync"

	"github.com/ludex-app/ludex/internal/adapters/driven/storage/memory"
	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
)

// testPaths is the configuration table used across the service tests.
var testPaths = map[string]string{
	domain.DBGame:        "unused",
	domain.DBGameLocal:   "unused",
	domain.DBConfig:      "unused",
	domain.DBConfigLocal: "unused",
}

func memoryOpener(name, _ string) (driven.DocumentStore, error) {
	return memory.Open(name), nil
}

// recordingNotifier captures every notification for assertions.
type recordingNotifier struct {
	mu          sync.Mutex
	docs        []domain.DocChange
	attachments []domain.AttachmentChange
	statuses    []domain.SyncStatus
}

func (n *recordingNotifier) DocChanged(c domain.DocChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.docs = append(n.docs, c)
}

func (n *recordingNotifier) AttachmentChanged(c domain.AttachmentChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attachments = append(n.attachments, c)
}

func (n *recordingNotifier) SyncStatus(s domain.SyncStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, s)
}

func (n *recordingNotifier) docCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.docs)
}

func (n *recordingNotifier) lastDoc() (domain.DocChange, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.docs) == 0 {
		return domain.DocChange{}, false
	}
	return n.docs[len(n.docs)-1], true
}

func (n *recordingNotifier) statusStates() []domain.SyncState {
	n.mu.Lock()
	defer n.mu.Unlock()
	states := make([]domain.SyncState, 0, len(n.statuses))
	for _, s := range n.statuses {
		states = append(states, s.Status)
	}
	return states
}
