// Package notify fans document, attachment and sync-status events out to
// in-process subscribers. It is the seam a UI shell would hook into;
// delivery is best-effort and never blocks the writer.
package notify

import (
	"sync"

	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
	"github.com/ludex-app/ludex/internal/logger"
)

var _ driven.Notifier = (*Hub)(nil)

// eventBuffer bounds each subscriber's queue. A subscriber that stops
// draining loses events rather than stalling everyone else.
const eventBuffer = 64

// Event is one delivered notification. Exactly one field is set.
type Event struct {
	Doc        *domain.DocChange
	Attachment *domain.AttachmentChange
	Sync       *domain.SyncStatus
}

// Hub is the in-process Notifier.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextSub int
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of future events and a cancel that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, eventBuffer)
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			logger.Debug("notify: subscriber queue full, event dropped")
		}
	}
}

func (h *Hub) DocChanged(change domain.DocChange) {
	logger.WithFields(logger.Fields{"db": change.DBName, "doc": change.DocID}).Debug("document changed")
	h.publish(Event{Doc: &change})
}

func (h *Hub) AttachmentChanged(change domain.AttachmentChange) {
	logger.WithFields(logger.Fields{"db": change.DBName, "doc": change.DocID, "attachment": change.AttachmentID}).Debug("attachment changed")
	h.publish(Event{Attachment: &change})
}

func (h *Hub) SyncStatus(status domain.SyncStatus) {
	logger.WithFields(logger.Fields{"status": status.Status, "message": status.Message}).Debug("sync status")
	h.publish(Event{Sync: &status})
}
