package domain

import "time"

// StatusPending is the status assigned to every task imported from the
// calendar source. Directly created tasks may carry any status string.
const StatusPending = "Pending"

// Task is a locally owned unit of work, either created directly through the
// API or imported from an external calendar event.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	// EventID is set only on tasks that originated from the calendar
	// source. It is unique across all tasks, not merely per user.
	EventID string `json:"eventId,omitempty"`
}

// ImportNotice announces the tasks created by one sync pass to downstream
// consumers on the import queue.
type ImportNotice struct {
	UserID   string    `json:"userId"`
	TaskIDs  []string  `json:"taskIds"`
	Imported int       `json:"imported"`
	SyncedAt time.Time `json:"syncedAt"`
}
