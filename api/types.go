package api

import (
	"context"

	"tasksync-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	CreateTask(ctx context.Context, task domain.Task) (domain.Task, error)
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
}

// Synchronizer runs one calendar import pass for a user.
type Synchronizer interface {
	Synchronize(ctx context.Context, accessToken, userID string) (int, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// SyncLocker serializes synchronization passes per user.
type SyncLocker interface {
	// Acquire takes the user's sync lock, returning true when it was free.
	Acquire(ctx context.Context, userID string) (bool, error)
	// Release frees the lock before its TTL expires.
	Release(ctx context.Context, userID string) error
}
