package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Anuvesh07/Planicorn/domain"
	"github.com/Anuvesh07/Planicorn/storage"
)

const requestBodyMaxSize = 64 * 1024 // 64 KiB

// Register wires up all task routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, hub Publisher, logger *log.Logger) {
	e.GET("/api/tasks", listTasks(store, auth, logger))
	e.POST("/api/tasks", createTask(store, auth, hub))
	e.PUT("/api/tasks/:id", updateTask(store, auth, hub))
	e.DELETE("/api/tasks/:id", deleteTask(store, auth, hub))
	e.PATCH("/api/tasks/:id/status", changeStatus(store, auth, hub))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Lane        string `json:"lane"`
	Rank        *int   `json:"rank"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Lane        *string `json:"lane"`
	Rank        *int    `json:"rank"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
	Rank   *int   `json:"rank"`
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(c echo.Context, err error) error {
	var verr domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: domain.ErrNotFound.Error()})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func listTasks(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics := newListRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		var filter storage.Filter
		if status := strings.TrimSpace(c.QueryParam("status")); status != "" {
			lane, ok := domain.ParseLane(status)
			if !ok {
				metrics.SetErrorStage("invalid_status")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown status"})
				return err
			}
			filter.Lane = &lane
			metrics.SetLaneFilter(string(lane))
		}

		page := 1
		if raw := c.QueryParam("page"); raw != "" {
			page, err = strconv.Atoi(raw)
			if err != nil || page <= 0 {
				metrics.SetErrorStage("invalid_page")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid page"})
				return err
			}
		}
		limit := storage.DefaultPageSize
		if raw := c.QueryParam("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit <= 0 {
				metrics.SetErrorStage("invalid_limit")
				err = c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid limit"})
				return err
			}
		}
		if limit > storage.MaxPageSize {
			limit = storage.MaxPageSize
		}

		fetchStart := time.Now()
		tasks, total, fetchErr := store.List(ctx, userID, filter, page, limit)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = writeError(c, fetchErr)
			return err
		}
		metrics.SetTasksReturned(len(tasks))

		totalPages := 0
		if total > 0 {
			totalPages = (total + limit - 1) / limit
		}
		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, tasksResponse{
			Tasks: tasks,
			Pagination: Pagination{
				Page:       page,
				Limit:      limit,
				Total:      total,
				TotalPages: totalPages,
			},
		})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func createTask(store Storage, auth Authenticator, hub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		draft := domain.Draft{
			Title:       req.Title,
			Description: req.Description,
			Lane:        domain.Lane(req.Lane),
			Rank:        req.Rank,
		}
		if err := draft.Validate(); err != nil {
			return writeError(c, err)
		}

		task, err := store.Create(c.Request().Context(), userID, draft)
		if err != nil {
			return writeError(c, err)
		}
		hub.Publish(userID, domain.NewEvent(domain.EventTaskCreated, task))
		return c.JSON(http.StatusCreated, taskResponse{Task: task})
	}
}

func updateTask(store Storage, auth Authenticator, hub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		patch := domain.Patch{
			Title:       req.Title,
			Description: req.Description,
			Rank:        req.Rank,
		}
		if req.Lane != nil {
			lane, ok := domain.ParseLane(*req.Lane)
			if !ok {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown lane"})
			}
			patch.Lane = &lane
		}
		if patch.Empty() {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "empty patch"})
		}
		if err := patch.Validate(); err != nil {
			return writeError(c, err)
		}

		task, err := store.Update(c.Request().Context(), userID, c.Param("id"), patch)
		if err != nil {
			return writeError(c, err)
		}
		hub.Publish(userID, domain.NewEvent(domain.EventTaskUpdated, task))
		return c.JSON(http.StatusOK, taskResponse{Task: task})
	}
}

func deleteTask(store Storage, auth Authenticator, hub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		task, err := store.Delete(c.Request().Context(), userID, c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		hub.Publish(userID, domain.NewEvent(domain.EventTaskDeleted, task))
		return c.JSON(http.StatusOK, deleteResponse{Message: "Task deleted successfully", Task: task})
	}
}

func changeStatus(store Storage, auth Authenticator, hub Publisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		var req changeStatusRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		lane, ok := domain.ParseLane(req.Status)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown status"})
		}
		patch := domain.Patch{Lane: &lane, Rank: req.Rank}
		if err := patch.Validate(); err != nil {
			return writeError(c, err)
		}

		task, err := store.Update(c.Request().Context(), userID, c.Param("id"), patch)
		if err != nil {
			return writeError(c, err)
		}
		hub.Publish(userID, domain.NewEvent(domain.EventTaskStatusUpdated, task))
		return c.JSON(http.StatusOK, taskResponse{Task: task})
	}
}
