package state

import "uplink/internal/uplink/domain"

type EventType string

const (
	// EventTaskAdded fires when a selection enters the task list.
	EventTaskAdded EventType = "TASK_ADDED"
	// EventTaskUpdated fires on every task mutation (status, progress).
	EventTaskUpdated EventType = "TASK_UPDATED"
	// EventTaskRemoved fires on explicit removal or bulk clears.
	EventTaskRemoved EventType = "TASK_REMOVED"
	// EventTaskEvicted fires when the task cap forces a drop.
	EventTaskEvicted EventType = "TASK_EVICTED"
	// EventBatchFinished fires once every task that entered UPLOADING has
	// reached a terminal state. Results holds completed artifacts only.
	EventBatchFinished EventType = "BATCH_FINISHED"
)

// Event is a change notification for UI subscribers. Task is always a
// deep copy; subscribers never observe live store state.
type Event struct {
	Type    EventType
	Task    *domain.UploadTask
	Results []domain.Result
}
