package driven

import "github.com/ludex-app/ludex/internal/core/domain"

// Notifier is the outbound event sink towards the UI. Delivery is
// fire-and-forget: implementations must not block the caller and no
// acknowledgement is expected.
type Notifier interface {
	DocChanged(change domain.DocChange)
	AttachmentChanged(change domain.AttachmentChange)
	SyncStatus(status domain.SyncStatus)
}
