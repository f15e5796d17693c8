// Package client implements the board-side half of the reconciliation
// protocol: an HTTP client for the task API, a locally cached board with
// optimistic mutations and rollback, and an SSE reader that feeds server
// events back into the board.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"github.com/Anuvesh07/Planicorn/domain"
)

// APIError is a non-2xx response from the task API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// Pagination mirrors the listing metadata returned by the server.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ListOptions narrow and page a task listing.
type ListOptions struct {
	Status domain.Lane
	Page   int
	Limit  int
}

// Client talks to the task API on behalf of one authenticated session.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client for the API at baseURL authenticating with the given
// bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type tasksPayload struct {
	Tasks      []domain.Task `json:"tasks"`
	Pagination Pagination    `json:"pagination"`
}

type taskPayload struct {
	Task domain.Task `json:"task"`
}

type deletePayload struct {
	Message string      `json:"message"`
	Task    domain.Task `json:"task"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// ListTasks fetches one page of the account's board.
func (c *Client) ListTasks(ctx context.Context, opts ListOptions) ([]domain.Task, Pagination, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var payload tasksPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, Pagination{}, err
	}
	return payload.Tasks, payload.Pagination, nil
}

// CreateTask creates a task from the draft and returns the canonical record.
func (c *Client) CreateTask(ctx context.Context, draft domain.Draft) (domain.Task, error) {
	body := map[string]any{"title": draft.Title}
	if draft.Description != "" {
		body["description"] = draft.Description
	}
	if draft.Lane != "" {
		body["lane"] = string(draft.Lane)
	}
	if draft.Rank != nil {
		body["rank"] = *draft.Rank
	}
	var payload taskPayload
	if err := c.do(ctx, http.MethodPost, "/api/tasks", body, &payload); err != nil {
		return domain.Task{}, err
	}
	return payload.Task, nil
}

// UpdateTask applies a partial update and returns the canonical record.
func (c *Client) UpdateTask(ctx context.Context, taskID string, patch domain.Patch) (domain.Task, error) {
	body := map[string]any{}
	if patch.Title != nil {
		body["title"] = *patch.Title
	}
	if patch.Description != nil {
		body["description"] = *patch.Description
	}
	if patch.Lane != nil {
		body["lane"] = string(*patch.Lane)
	}
	if patch.Rank != nil {
		body["rank"] = *patch.Rank
	}
	var payload taskPayload
	if err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(taskID), body, &payload); err != nil {
		return domain.Task{}, err
	}
	return payload.Task, nil
}

// DeleteTask removes a task and returns the last persisted record.
func (c *Client) DeleteTask(ctx context.Context, taskID string) (domain.Task, error) {
	var payload deletePayload
	if err := c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(taskID), nil, &payload); err != nil {
		return domain.Task{}, err
	}
	return payload.Task, nil
}

// ChangeStatus moves a task to another lane, optionally at a target rank.
func (c *Client) ChangeStatus(ctx context.Context, taskID string, lane domain.Lane, rank *int) (domain.Task, error) {
	body := map[string]any{"status": string(lane)}
	if rank != nil {
		body["rank"] = *rank
	}
	var payload taskPayload
	if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(taskID)+"/status", body, &payload); err != nil {
		return domain.Task{}, err
	}
	return payload.Task, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := resp.Status
		var ep errorPayload
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024)); err == nil {
			if err := sonic.ConfigStd.Unmarshal(data, &ep); err == nil && ep.Error != "" {
				msg = ep.Error
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return sonic.ConfigStd.NewDecoder(resp.Body).Decode(out)
}
