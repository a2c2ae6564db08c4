package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tasksync-api/calendar"
	"tasksync-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, engine Synchronizer, auth Authenticator, locker SyncLocker, logger *log.Logger) {
	e.GET("/api/tasks", getTasks(store, auth))
	e.POST("/api/tasks", postTask(store, auth))
	e.POST("/api/tasks/sync", postSync(engine, auth, locker, logger))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tasks, err := store.FetchTasks(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to fetch tasks")
		}
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	}
}

func postTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, postTaskMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req createTaskRequest
		if err := dec.Decode(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Title) == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}

		// Direct creations never carry an event id, so they stay outside
		// the import dedup path entirely.
		task, err := store.CreateTask(ctx, domain.Task{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
			UserID:      userID,
		})
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create task")
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func postSync(engine Synchronizer, auth Authenticator, locker SyncLocker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newSyncRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		lr := io.LimitReader(c.Request().Body, postSyncMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req syncRequest
		if err := dec.Decode(&req); err != nil {
			metrics.SetErrorStage("invalid_body")
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.AccessToken == "" {
			metrics.SetErrorStage("missing_access_token")
			return c.String(http.StatusBadRequest, "accessToken is required")
		}

		lockStart := time.Now()
		acquired, lockErr := locker.Acquire(ctx, userID)
		metrics.ObserveLock(time.Since(lockStart))
		if lockErr != nil {
			metrics.SetErrorStage("lock")
			c.Logger().Error(lockErr)
			err = c.JSON(http.StatusInternalServerError, syncResponse{Error: reasonPersistenceFailure})
			return err
		}
		if !acquired {
			metrics.SetErrorStage("lock_busy")
			err = c.JSON(http.StatusConflict, syncResponse{Error: reasonSyncInProgress})
			return err
		}
		defer func() {
			if rerr := locker.Release(ctx, userID); rerr != nil {
				logger.WithError(rerr).WithField("user", userID).Warn("sync lock release failed")
			}
		}()

		syncStart := time.Now()
		imported, syncErr := engine.Synchronize(ctx, req.AccessToken, userID)
		metrics.ObserveSync(time.Since(syncStart))
		metrics.SetImported(imported)
		if syncErr != nil {
			status, reason := syncFailure(syncErr)
			metrics.SetErrorStage(reason)
			logger.WithError(syncErr).WithField("user", userID).Error("sync pass failed")
			err = c.JSON(status, syncResponse{Imported: imported, Error: reason})
			return err
		}

		err = c.JSON(http.StatusOK, syncResponse{Imported: imported})
		return err
	}
}

// syncFailure maps an engine error to an HTTP status and an opaque reason
// class. Internal detail stays in the logs.
func syncFailure(err error) (int, string) {
	switch {
	case errors.Is(err, calendar.ErrSourceUnavailable):
		return http.StatusBadGateway, reasonSourceUnavailable
	case errors.Is(err, calendar.ErrMalformedResponse):
		return http.StatusBadGateway, reasonMalformedResponse
	default:
		return http.StatusInternalServerError, reasonPersistenceFailure
	}
}
