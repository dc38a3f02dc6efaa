package services

import (
	"github.com/ludex-app/ludex/internal/core/domain"
	"github.com/ludex-app/ludex/internal/core/ports/driven"
)

// broadcaster adapts one database's change feed to UI notifications.
// Local and replicated writes both notify; tombstones carry a nil body so
// the listener can distinguish removal from update.
func broadcaster(dbName string, notifier driven.Notifier) func(domain.Change) {
	return func(c domain.Change) {
		if notifier == nil {
			return
		}
		var data map[string]any
		if !c.Deleted {
			data = domain.CloneBody(c.Doc.Body)
			if data == nil {
				data = make(map[string]any, 1)
			}
			data["id"] = c.Doc.ID
		}
		notifier.DocChanged(domain.DocChange{
			DBName:    dbName,
			DocID:     c.Doc.ID,
			Data:      data,
			Timestamp: domain.NowMillis(),
		})
	}
}
