package server

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	core "github.com/handywriterz/handywriterz/internal/agent/core"
)

func newConversationID() string { return uuid.NewString() }

// WorkflowsHandler exposes the writing pipeline over HTTP. Runs execute
// asynchronously: submission returns immediately and the client polls status
// until the run reaches a terminal state.
type WorkflowsHandler struct {
	app    *App
	logger *log.Logger
}

func NewWorkflowsHandler(app *App) *WorkflowsHandler {
	return &WorkflowsHandler{
		app:    app,
		logger: log.New(log.Writer(), "[WORKFLOWS] ", log.LstdFlags),
	}
}

func (h *WorkflowsHandler) Register(g *echo.Group) {
	g.POST("/workflows", h.create)
	g.GET("/workflows", h.list)
	g.GET("/workflows/:id", h.status)
	g.GET("/workflows/:id/result", h.result)
	g.POST("/workflows/:id/resume", h.resume)
}

type createResponse struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

func (h *WorkflowsHandler) create(c echo.Context) error {
	var req core.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Prompt == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt is required")
	}
	if req.ConversationID == "" {
		// Assign here so the id is known before the async run starts.
		req.ConversationID = newConversationID()
	}

	go h.runAsync(req)

	return c.JSON(http.StatusAccepted, createResponse{
		ConversationID: req.ConversationID,
		Status:         string(core.StatusInitiated),
	})
}

// runAsync drives one workflow in the background. The run outlives the HTTP
// request, so it gets its own context bounded only by the step timeout.
func (h *WorkflowsHandler) runAsync(req core.Request) {
	timeout := h.app.Cfg.General.DefaultTimeout
	if timeout <= 0 {
		timeout = time.Hour
	} else {
		// The server default timeout is per-request; a full run spans many.
		timeout *= 10
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	state, err := h.app.Orch.ProcessRequest(ctx, req)
	if err != nil {
		h.logger.Printf("run %s failed: %v", req.ConversationID, err)
		return
	}
	h.indexSources(state)
}

// indexSources folds a completed run's verified sources into the local
// library index so later runs can search them offline.
func (h *WorkflowsHandler) indexSources(state *core.WorkflowState) {
	if h.app.Library == nil || state.Status != core.StatusComplete || len(state.Sources) == 0 {
		return
	}
	if err := h.app.Library.Add(state.Sources); err != nil {
		h.logger.Printf("warn: indexing sources for %s: %v", state.ConversationID, err)
	}
}

type statusResponse struct {
	ConversationID string  `json:"conversation_id"`
	Status         string  `json:"status"`
	Stage          string  `json:"stage,omitempty"`
	Percent        float64 `json:"percent,omitempty"`
}

func (h *WorkflowsHandler) status(c echo.Context) error {
	id := c.Param("id")
	status, ok, err := h.app.Orch.Status(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}

	resp := statusResponse{ConversationID: id, Status: string(status)}
	if h.app.Progress != nil {
		if ev, ok, err := h.app.Progress.Latest(c.Request().Context(), id); err == nil && ok {
			resp.Stage = ev.Stage
			resp.Percent = ev.Percent
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *WorkflowsHandler) result(c echo.Context) error {
	id := c.Param("id")
	state, ok, err := h.app.Orch.Result(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}
	if !state.Terminal() {
		return echo.NewHTTPError(http.StatusConflict, "workflow still running")
	}
	return c.JSON(http.StatusOK, state)
}

func (h *WorkflowsHandler) resume(c echo.Context) error {
	id := c.Param("id")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		state, err := h.app.Orch.Resume(ctx, id)
		if err != nil {
			h.logger.Printf("resume %s failed: %v", id, err)
			return
		}
		h.indexSources(state)
	}()
	return c.JSON(http.StatusAccepted, createResponse{ConversationID: id, Status: "resuming"})
}

func (h *WorkflowsHandler) list(c echo.Context) error {
	if h.app.Store == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "listing requires postgres")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	out, err := h.app.Store.ListWorkflows(c.Request().Context(), c.QueryParam("user_id"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"workflows": out})
}
