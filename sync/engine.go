package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"tasksync-api/domain"
)

// ErrPersistenceFailure indicates the task store rejected or could not
// complete a write during an import pass. Earlier writes stay committed;
// the pass is safe to retry.
var ErrPersistenceFailure = errors.New("task store write failed")

// EventSource returns the calendar event collection for a bearer credential.
type EventSource interface {
	FetchEvents(ctx context.Context, accessToken string) ([]domain.Event, error)
}

// TaskStore is the persistence surface the engine writes through.
type TaskStore interface {
	// FindTaskByEventID resolves an event id to its imported task, if any.
	FindTaskByEventID(ctx context.Context, eventID string) (domain.Task, bool, error)
	// ImportTask atomically claims the task's event id and persists the
	// task. A claim lost to a concurrent pass surfaces as an error
	// implementing AlreadyImportedError.
	ImportTask(ctx context.Context, task domain.Task) (domain.Task, error)
	// EnqueueImportNotice publishes the outcome of a pass for downstream
	// consumers.
	EnqueueImportNotice(ctx context.Context, notice domain.ImportNotice) error
}

// AlreadyImportedError is implemented by store errors reporting a benign
// uniqueness conflict: the event id was claimed by another pass.
type AlreadyImportedError interface {
	error
	AlreadyImported()
}

// Engine performs one full, idempotent synchronization pass per invocation.
// It holds no cross-call state; everything it knows lives in the store.
type Engine struct {
	source EventSource
	store  TaskStore
	logger *log.Logger
}

// New creates a sync engine.
func New(source EventSource, store TaskStore, logger *log.Logger) *Engine {
	if source == nil {
		panic("sync.New: event source is nil")
	}
	if store == nil {
		panic("sync.New: task store is nil")
	}
	if logger == nil {
		panic("sync.New: logger is nil")
	}
	return &Engine{source: source, store: store, logger: logger}
}

// Synchronize fetches the user's calendar events and imports each one that
// has not been imported before. It returns the number of tasks created.
// Events are processed sequentially; an event without an id, or one whose id
// is already present in the store, is skipped without error.
func (e *Engine) Synchronize(ctx context.Context, accessToken, userID string) (int, error) {
	events, err := e.source.FetchEvents(ctx, accessToken)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		e.logger.WithField("user", userID).Debug("no calendar events to import")
		return 0, nil
	}

	imported := 0
	taskIDs := make([]string, 0, len(events))
	for _, ev := range events {
		if !ev.Importable() {
			e.logger.WithField("user", userID).Debug("skipping event without id")
			continue
		}

		if _, exists, err := e.store.FindTaskByEventID(ctx, ev.ID); err != nil {
			return imported, fmt.Errorf("%w: lookup event %s: %v", ErrPersistenceFailure, ev.ID, err)
		} else if exists {
			continue
		}

		task, err := e.store.ImportTask(ctx, domain.TaskFromEvent(ev, userID, time.Now().UTC()))
		if err != nil {
			var dup AlreadyImportedError
			if errors.As(err, &dup) {
				// Lost a race with a concurrent pass; the store's
				// event-id claim keeps the import exactly-once.
				continue
			}
			return imported, fmt.Errorf("%w: import event %s: %v", ErrPersistenceFailure, ev.ID, err)
		}
		imported++
		taskIDs = append(taskIDs, task.ID)
	}

	if imported > 0 {
		notice := domain.ImportNotice{
			UserID:   userID,
			TaskIDs:  taskIDs,
			Imported: imported,
			SyncedAt: time.Now().UTC(),
		}
		if err := e.store.EnqueueImportNotice(ctx, notice); err != nil {
			// The notice is advisory; a failed publish never fails the pass.
			e.logger.WithError(err).WithField("user", userID).Warn("import notice enqueue failed")
		}
	}

	e.logger.WithFields(log.Fields{
		"user":     userID,
		"seen":     len(events),
		"imported": imported,
	}).Info("sync pass complete")
	return imported, nil
}
