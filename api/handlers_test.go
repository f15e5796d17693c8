package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Anuvesh07/Planicorn/domain"
	"github.com/Anuvesh07/Planicorn/storage"
)

type mockStore struct {
	createFn func(ctx context.Context, ownerID string, draft domain.Draft) (domain.Task, error)
	listFn   func(ctx context.Context, ownerID string, f storage.Filter, page, pageSize int) ([]domain.Task, int, error)
	updateFn func(ctx context.Context, ownerID, taskID string, patch domain.Patch) (domain.Task, error)
	deleteFn func(ctx context.Context, ownerID, taskID string) (domain.Task, error)
}

func (m *mockStore) Create(ctx context.Context, ownerID string, draft domain.Draft) (domain.Task, error) {
	return m.createFn(ctx, ownerID, draft)
}

func (m *mockStore) List(ctx context.Context, ownerID string, f storage.Filter, page, pageSize int) ([]domain.Task, int, error) {
	return m.listFn(ctx, ownerID, f, page, pageSize)
}

func (m *mockStore) Update(ctx context.Context, ownerID, taskID string, patch domain.Patch) (domain.Task, error) {
	return m.updateFn(ctx, ownerID, taskID, patch)
}

func (m *mockStore) Delete(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	return m.deleteFn(ctx, ownerID, taskID)
}

type mockAuth struct{ err error }

func (m mockAuth) UserIDFromAuthHeader(string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "user", nil
}

type capturePublisher struct {
	mu     sync.Mutex
	owners []string
	events []domain.Event
}

func (p *capturePublisher) Publish(ownerID string, ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owners = append(p.owners, ownerID)
	p.events = append(p.events, ev)
}

func (p *capturePublisher) last(t *testing.T) (string, domain.Event) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		t.Fatal("expected a published event")
	}
	return p.owners[len(p.owners)-1], p.events[len(p.events)-1]
}

func newTestContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCreateTask(t *testing.T) {
	store := &mockStore{
		createFn: func(ctx context.Context, ownerID string, draft domain.Draft) (domain.Task, error) {
			if ownerID != "user" {
				t.Fatalf("unexpected owner %q", ownerID)
			}
			if draft.Title != "Draft release notes" {
				t.Fatalf("unexpected title %q", draft.Title)
			}
			return domain.Task{ID: "t1", OwnerID: ownerID, Title: draft.Title, Lane: domain.LaneTodo}, nil
		},
	}
	pub := &capturePublisher{}
	c, rec := newTestContext(http.MethodPost, "/api/tasks", `{"title":"Draft release notes"}`)

	if err := createTask(store, mockAuth{}, pub)(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	var resp taskResponse
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Task.ID != "t1" || resp.Task.Lane != domain.LaneTodo {
		t.Fatalf("unexpected task: %+v", resp.Task)
	}

	owner, ev := pub.last(t)
	if owner != "user" {
		t.Fatalf("event addressed to %q", owner)
	}
	if ev.Type != domain.EventTaskCreated || ev.TaskID != "t1" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	store := &mockStore{
		createFn: func(context.Context, string, domain.Draft) (domain.Task, error) {
			t.Fatal("store must not be called for invalid input")
			return domain.Task{}, nil
		},
	}
	pub := &capturePublisher{}

	cases := []struct {
		name string
		body string
	}{
		{"missing title", `{}`},
		{"bad lane", `{"title":"t","lane":"backlog"}`},
		{"negative rank", `{"title":"t","rank":-1}`},
		{"unknown field", `{"title":"t","bogus":1}`},
		{"malformed json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newTestContext(http.MethodPost, "/api/tasks", tc.body)
			if err := createTask(store, mockAuth{}, pub)(c); err != nil {
				t.Fatalf("handler: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
	if len(pub.events) != 0 {
		t.Fatalf("expected no events for rejected input, got %d", len(pub.events))
	}
}

func TestCreateTaskUnauthorized(t *testing.T) {
	c, rec := newTestContext(http.MethodPost, "/api/tasks", `{"title":"t"}`)
	err := createTask(&mockStore{}, mockAuth{err: errors.New("token expired")}, &capturePublisher{})(c)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListTasks(t *testing.T) {
	store := &mockStore{
		listFn: func(ctx context.Context, ownerID string, f storage.Filter, page, pageSize int) ([]domain.Task, int, error) {
			if f.Lane == nil || *f.Lane != domain.LaneDone {
				t.Fatalf("expected done filter, got %+v", f)
			}
			if page != 2 || pageSize != 5 {
				t.Fatalf("unexpected paging: page=%d limit=%d", page, pageSize)
			}
			return []domain.Task{{ID: "t1", Lane: domain.LaneDone}}, 11, nil
		},
	}
	c, rec := newTestContext(http.MethodGet, "/api/tasks?status=done&page=2&limit=5", "")

	if err := listTasks(store, mockAuth{}, log.New())(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp tasksResponse
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks: %+v", resp.Tasks)
	}
	want := Pagination{Page: 2, Limit: 5, Total: 11, TotalPages: 3}
	if resp.Pagination != want {
		t.Fatalf("unexpected pagination: %+v", resp.Pagination)
	}
}

func TestListTasksRejectsBadQuery(t *testing.T) {
	store := &mockStore{
		listFn: func(context.Context, string, storage.Filter, int, int) ([]domain.Task, int, error) {
			t.Fatal("store must not be called")
			return nil, 0, nil
		},
	}
	for _, target := range []string{
		"/api/tasks?status=backlog",
		"/api/tasks?page=0",
		"/api/tasks?page=x",
		"/api/tasks?limit=-2",
	} {
		c, rec := newTestContext(http.MethodGet, target, "")
		if err := listTasks(store, mockAuth{}, log.New())(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	store := &mockStore{
		updateFn: func(context.Context, string, string, domain.Patch) (domain.Task, error) {
			return domain.Task{}, domain.ErrNotFound
		},
	}
	pub := &capturePublisher{}
	c, rec := newTestContext(http.MethodPut, "/api/tasks/unknown", `{"title":"x"}`)
	c.SetParamNames("id")
	c.SetParamValues("unknown")

	if err := updateTask(store, mockAuth{}, pub)(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if len(pub.events) != 0 {
		t.Fatal("expected no event for failed mutation")
	}
}

func TestUpdateTaskEmptyPatch(t *testing.T) {
	c, rec := newTestContext(http.MethodPut, "/api/tasks/t1", `{}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")
	if err := updateTask(&mockStore{}, mockAuth{}, &capturePublisher{})(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteTask(t *testing.T) {
	store := &mockStore{
		deleteFn: func(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
			return domain.Task{ID: taskID, Title: "gone"}, nil
		},
	}
	pub := &capturePublisher{}
	c, rec := newTestContext(http.MethodDelete, "/api/tasks/t1", "")
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := deleteTask(store, mockAuth{}, pub)(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp deleteResponse
	if err := sonic.ConfigStd.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Message == "" || resp.Task.ID != "t1" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	_, ev := pub.last(t)
	if ev.Type != domain.EventTaskDeleted || ev.Task == nil || ev.Task.Title != "gone" {
		t.Fatalf("expected deleted event with last record, got %+v", ev)
	}
}

func TestChangeStatus(t *testing.T) {
	store := &mockStore{
		updateFn: func(ctx context.Context, ownerID, taskID string, patch domain.Patch) (domain.Task, error) {
			if patch.Lane == nil || *patch.Lane != domain.LaneDone {
				t.Fatalf("expected lane done, got %+v", patch)
			}
			if patch.Rank == nil || *patch.Rank != 2 {
				t.Fatalf("expected rank 2, got %+v", patch.Rank)
			}
			task := domain.Task{ID: taskID, Lane: domain.LaneDone, Rank: 2}
			return task, nil
		},
	}
	pub := &capturePublisher{}
	c, rec := newTestContext(http.MethodPatch, "/api/tasks/t1/status", `{"status":"done","rank":2}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")

	if err := changeStatus(store, mockAuth{}, pub)(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	_, ev := pub.last(t)
	if ev.Type != domain.EventTaskStatusUpdated {
		t.Fatalf("unexpected event type %q", ev.Type)
	}
}

func TestChangeStatusRejectsUnknownStatus(t *testing.T) {
	c, rec := newTestContext(http.MethodPatch, "/api/tasks/t1/status", `{"status":"archived"}`)
	c.SetParamNames("id")
	c.SetParamValues("t1")
	if err := changeStatus(&mockStore{}, mockAuth{}, &capturePublisher{})(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
