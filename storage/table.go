package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"github.com/Anuvesh07/Planicorn/domain"
)

// TableStore persists tasks in an Azure Table, one entity per task with
// PartitionKey = owner and RowKey = task id. Entity writes are atomic per
// row; rank assignment is read-then-write without a lock, so two concurrent
// creates may share a rank and the display tie-break resolves it.
type TableStore struct {
	table *aztables.Client
	now   func() time.Time
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, tableName string) (*TableStore, error) {
	opts := aztables.ClientOptions{
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
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{table: svc.NewClient(tableName), now: time.Now}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Lane        string `json:"Lane"`
	Rank        int    `json:"Rank"`
	CompletedAt string `json:"CompletedAt"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func toEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.OwnerID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Lane:        string(t.Lane),
		Rank:        t.Rank,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.CompletedAt != nil {
		ent.CompletedAt = t.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return ent
}

func fromEntity(ent taskEntity) (domain.Task, error) {
	t := domain.Task{
		ID:          ent.RowKey,
		OwnerID:     ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Lane:        domain.Lane(ent.Lane),
		Rank:        ent.Rank,
	}
	var err error
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, ent.CreatedAt); err != nil {
		return domain.Task{}, fmt.Errorf("task %s: bad CreatedAt %q: %w", ent.RowKey, ent.CreatedAt, err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, ent.UpdatedAt); err != nil {
		return domain.Task{}, fmt.Errorf("task %s: bad UpdatedAt %q: %w", ent.RowKey, ent.UpdatedAt, err)
	}
	if ent.CompletedAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, ent.CompletedAt)
		if err != nil {
			return domain.Task{}, fmt.Errorf("task %s: bad CompletedAt %q: %w", ent.RowKey, ent.CompletedAt, err)
		}
		t.CompletedAt = &ts
	}
	return t, nil
}

func (s *TableStore) Create(ctx context.Context, ownerID string, draft domain.Draft) (domain.Task, error) {
	lane := draft.Lane
	if lane == "" {
		lane = domain.LaneTodo
	}

	now := s.now()
	t := domain.Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       draft.Title,
		Description: draft.Description,
		Lane:        lane,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if draft.Rank != nil {
		t.Rank = *draft.Rank
	} else {
		existing, err := s.ListAll(ctx, ownerID)
		if err != nil {
			return domain.Task{}, err
		}
		t.Rank = domain.NextRank(existing, lane)
	}
	if lane == domain.LaneDone {
		done := now
		t.CompletedAt = &done
	}

	payload, err := json.Marshal(toEntity(t))
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *TableStore) List(ctx context.Context, ownerID string, f Filter, page, pageSize int) ([]domain.Task, int, error) {
	tasks, err := s.ListAll(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	out, total := paginate(tasks, f, page, pageSize)
	return out, total, nil
}

// ListAll retrieves every task for the owner's partition.
func (s *TableStore) ListAll(ctx context.Context, ownerID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + ownerID + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			t, err := fromEntity(ent)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

func (s *TableStore) Update(ctx context.Context, ownerID, taskID string, patch domain.Patch) (domain.Task, error) {
	t, err := s.get(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	t.Apply(patch, s.now())

	payload, err := json.Marshal(toEntity(t))
	if err != nil {
		return domain.Task{}, err
	}
	// Unconditional replace: concurrent writers to the same task race and
	// the last commit wins.
	mode := aztables.UpdateModeReplace
	if _, err := s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: mode}); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (s *TableStore) Delete(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	t, err := s.get(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.table.DeleteEntity(ctx, ownerID, taskID, nil); err != nil {
		if isNotFound(err) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}
	return t, nil
}

func (s *TableStore) get(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	resp, err := s.table.GetEntity(ctx, ownerID, taskID, nil)
	if err != nil {
		if isNotFound(err) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, err
	}
	return fromEntity(ent)
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
