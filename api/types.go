package api

import (
	"context"

	"github.com/Anuvesh07/Planicorn/domain"
	"github.com/Anuvesh07/Planicorn/storage"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	Create(ctx context.Context, ownerID string, draft domain.Draft) (domain.Task, error)
	List(ctx context.Context, ownerID string, f storage.Filter, page, pageSize int) ([]domain.Task, int, error)
	Update(ctx context.Context, ownerID, taskID string, patch domain.Patch) (domain.Task, error)
	Delete(ctx context.Context, ownerID, taskID string) (domain.Task, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Publisher fans a committed mutation out to the account's live sessions.
type Publisher interface {
	Publish(ownerID string, ev domain.Event)
}

// Pagination describes the page of a task listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type tasksResponse struct {
	Tasks      []domain.Task `json:"tasks"`
	Pagination Pagination    `json:"pagination"`
}

type taskResponse struct {
	Task domain.Task `json:"task"`
}

type deleteResponse struct {
	Message string      `json:"message"`
	Task    domain.Task `json:"task"`
}

type errorResponse struct {
	Error string `json:"error"`
}
