package domain

import "time"

// DocChange is the UI-facing notification for one committed document write.
type DocChange struct {
	DBName    string         `json:"dbName"`
	DocID     string         `json:"docId"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// AttachmentChange notifies the UI that an attachment was written or
// removed.
type AttachmentChange struct {
	DBName       string `json:"dbName"`
	DocID        string `json:"docId"`
	AttachmentID string `json:"attachmentId"`
	Timestamp    int64  `json:"timestamp"`
}

// SyncState is the coarse status shown to the user.
type SyncState string

const (
	SyncStateSyncing SyncState = "syncing"
	SyncStateSuccess SyncState = "success"
	SyncStateError   SyncState = "error"
)

// SyncStatus is the UI-facing replication status notification.
type SyncStatus struct {
	Status    SyncState `json:"status"`
	Message   string    `json:"message"`
	Timestamp string    `json:"timestamp"`
}

// NewSyncStatus stamps a status event with the current time in ISO-8601.
func NewSyncStatus(state SyncState, message string) SyncStatus {
	return SyncStatus{
		Status:    state,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// NowMillis is the timestamp format carried by change notifications.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
