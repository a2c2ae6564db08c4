package api

import "tasksync-api/domain"

const (
	postTaskMaxSize = 64 * 1024 // 64 KiB
	postSyncMaxSize = 16 * 1024 // 16 KiB
)

// POST /api/tasks request body. Direct creations carry no event id; the
// field set keeps imported-task provenance out of the caller's hands.
type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// GET /api/tasks response body.
type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

// POST /api/tasks/sync request body.
type syncRequest struct {
	AccessToken string `json:"accessToken"`
}

// POST /api/tasks/sync response body.
type syncResponse struct {
	Imported int    `json:"imported"`
	Error    string `json:"error,omitempty"`
}

// Opaque reason classes returned to callers on sync failure.
const (
	reasonSourceUnavailable  = "source_unavailable"
	reasonMalformedResponse  = "malformed_response"
	reasonPersistenceFailure = "persistence_failure"
	reasonSyncInProgress     = "sync_in_progress"
)
