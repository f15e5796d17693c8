package storage

import (
	"context"
	"sort"

	"github.com/Anuvesh07/Planicorn/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Filter narrows a listing to a single lane when set.
type Filter struct {
	Lane *domain.Lane
}

// Store persists tasks and guarantees the board's ordering rules: rank is
// assigned on create when absent, and a lane transition recomputes the
// completion stamp alongside any explicit rank change.
type Store interface {
	Create(ctx context.Context, ownerID string, draft domain.Draft) (domain.Task, error)
	List(ctx context.Context, ownerID string, f Filter, page, pageSize int) ([]domain.Task, int, error)
	Update(ctx context.Context, ownerID, taskID string, patch domain.Patch) (domain.Task, error)
	Delete(ctx context.Context, ownerID, taskID string) (domain.Task, error)
}

// backend is the surface the cache decorator needs: the mutation operations
// plus access to an owner's full board for read-through population.
type backend interface {
	Create(ctx context.Context, ownerID string, draft domain.Draft) (domain.Task, error)
	ListAll(ctx context.Context, ownerID string) ([]domain.Task, error)
	Update(ctx context.Context, ownerID, taskID string, patch domain.Patch) (domain.Task, error)
	Delete(ctx context.Context, ownerID, taskID string) (domain.Task, error)
}

// paginate sorts the owner's tasks into display order, applies the lane
// filter and slices out the requested page. The returned total counts the
// filtered set, not the page.
func paginate(tasks []domain.Task, f Filter, page, pageSize int) ([]domain.Task, int) {
	filtered := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Lane != nil && t.Lane != *f.Lane {
			continue
		}
		filtered = append(filtered, t)
	}
	sort.Slice(filtered, func(i, j int) bool { return domain.Less(filtered[i], filtered[j]) })

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	total := len(filtered)
	start := (page - 1) * pageSize
	if start >= total {
		return []domain.Task{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return filtered[start:end], total
}
