package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"tasksync-api/domain"
)

// tableClient is the subset of *aztables.Client used by Storage. It exists so
// tests can substitute fakes.
type tableClient interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// queueClient is the subset of *azqueue.QueueClient used by Storage.
type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage provides access to underlying persistence mechanisms: the tasks
// table, the import ledger table that enforces event-id uniqueness, and the
// import notification queue.
type Storage struct {
	taskTable   tableClient
	importTable tableClient
	importQueue queueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, importsTable, importQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	tt := svc.NewClient(tasksTable)
	it := svc.NewClient(importsTable)

	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	iq, err := azqueue.NewQueueClientFromConnectionString(connStr, importQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{taskTable: tt, importTable: it, importQueue: iq}, nil
}

// EventAlreadyImportedError reports that the import ledger already holds a
// claim for the event id. The conflict is benign: exactly one task exists for
// the event.
type EventAlreadyImportedError struct {
	EventID string
}

func (e EventAlreadyImportedError) Error() string {
	return fmt.Sprintf("event %s already imported", e.EventID)
}

// AlreadyImported marks the error as a benign uniqueness conflict.
func (EventAlreadyImportedError) AlreadyImported() {}

type taskEntity struct {
	aztables.Entity
	Title       string    `json:"Title"`
	Description string    `json:"Description"`
	Status      string    `json:"Status"`
	CreatedAt   time.Time `json:"CreatedAt"`
	EventID     string    `json:"EventID"`
}

// importEntity is one row of the import ledger. PartitionKey and RowKey are
// both the event id, so AddEntity is an atomic claim on it.
type importEntity struct {
	aztables.Entity
	TaskID string `json:"TaskID"`
	UserID string `json:"UserID"`
}

// CreateTask persists a directly created task. The store assigns the
// identifier and the creation timestamp.
func (s *Storage) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if task.UserID == "" {
		return domain.Task{}, errors.New("task user id is required")
	}
	task.ID = uuid.NewString()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	if task.Status == "" {
		task.Status = domain.StatusPending
	}
	if err := s.addTask(ctx, task); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// ImportTask persists a task created from a calendar event. The event id is
// claimed in the import ledger first; a conflicting claim surfaces as
// EventAlreadyImportedError and means another pass won the race.
func (s *Storage) ImportTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if task.EventID == "" {
		return domain.Task{}, errors.New("imported task requires an event id")
	}
	task.ID = uuid.NewString()

	claim := importEntity{
		Entity: aztables.Entity{PartitionKey: task.EventID, RowKey: task.EventID},
		TaskID: task.ID,
		UserID: task.UserID,
	}
	data, err := json.Marshal(claim)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.importTable.AddEntity(ctx, data, nil); err != nil {
		if hasStatusCode(err, http.StatusConflict) {
			return domain.Task{}, EventAlreadyImportedError{EventID: task.EventID}
		}
		return domain.Task{}, err
	}

	if err := s.addTask(ctx, task); err != nil {
		// Release the claim so a retry can import the event.
		if _, derr := s.importTable.DeleteEntity(ctx, task.EventID, task.EventID, nil); derr != nil {
			return domain.Task{}, fmt.Errorf("task write failed (%v) and ledger rollback failed: %w", err, derr)
		}
		return domain.Task{}, err
	}
	return task, nil
}

func (s *Storage) addTask(ctx context.Context, task domain.Task) error {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: task.UserID, RowKey: task.ID},
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		CreatedAt:   task.CreatedAt,
		EventID:     task.EventID,
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, data, nil)
	return err
}

// FetchTasks retrieves all tasks for the provided user.
func (s *Storage) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(userID) + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			task, err := decodeTaskEntity(raw)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// FindTaskByEventID resolves an event id through the import ledger to the
// task it produced, if any.
func (s *Storage) FindTaskByEventID(ctx context.Context, eventID string) (domain.Task, bool, error) {
	resp, err := s.importTable.GetEntity(ctx, eventID, eventID, nil)
	if err != nil {
		if hasStatusCode(err, http.StatusNotFound) {
			return domain.Task{}, false, nil
		}
		return domain.Task{}, false, err
	}
	var claim importEntity
	if err := json.Unmarshal(resp.Value, &claim); err != nil {
		return domain.Task{}, false, err
	}

	taskResp, err := s.taskTable.GetEntity(ctx, claim.UserID, claim.TaskID, nil)
	if err != nil {
		if hasStatusCode(err, http.StatusNotFound) {
			// The ledger stays authoritative for dedup even when the task
			// row is missing (interrupted import): report the claim.
			return domain.Task{ID: claim.TaskID, UserID: claim.UserID, EventID: eventID}, true, nil
		}
		return domain.Task{}, false, err
	}
	task, err := decodeTaskEntity(taskResp.Value)
	if err != nil {
		return domain.Task{}, false, err
	}
	return task, true, nil
}

// EnqueueImportNotice sends the outcome of a sync pass to the import queue.
func (s *Storage) EnqueueImportNotice(ctx context.Context, notice domain.ImportNotice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	_, err = s.importQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      ent.Status,
		UserID:      ent.PartitionKey,
		CreatedAt:   ent.CreatedAt,
		EventID:     ent.EventID,
	}, nil
}

func hasStatusCode(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func escapeFilterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
