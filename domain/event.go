package domain

import "time"

// Event is a calendar entry as returned by the external source. It is never
// persisted as its own entity; importable events become tasks.
type Event struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

const (
	untitledEventTitle      = "Untitled Event"
	missingEventDescription = "No description"
)

// Importable reports whether the event carries the external identifier
// required to turn it into a task.
func (e Event) Importable() bool {
	return e.ID != ""
}

// TaskFromEvent maps an importable event to a new pending task owned by
// userID, substituting placeholders for absent fields. The event id is
// copied verbatim.
func TaskFromEvent(e Event, userID string, now time.Time) Task {
	title := e.Summary
	if title == "" {
		title = untitledEventTitle
	}
	description := e.Description
	if description == "" {
		description = missingEventDescription
	}
	return Task{
		Title:       title,
		Description: description,
		Status:      StatusPending,
		UserID:      userID,
		CreatedAt:   now,
		EventID:     e.ID,
	}
}
