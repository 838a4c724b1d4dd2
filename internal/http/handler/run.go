package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"masthead.app/newsroom/internal/http/dto"
	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/service"
)

type RunHandler struct {
	service     service.RunService
	traceHeader string
}

func NewRunHandler(service service.RunService, traceHeader string) *RunHandler {
	return &RunHandler{
		service:     service,
		traceHeader: traceHeader,
	}
}

func (h *RunHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid start run request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := service.StartRunParams{Topic: req.Topic}
	if traceID := h.requestTraceID(c); traceID != "" {
		params.TraceID = &traceID
	}

	run, err := h.service.StartRun(ctx, params)
	if err != nil {
		if errors.Is(err, service.ErrEmptyTopic) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
			return
		}
		slog.ErrorContext(ctx, "failed to start run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start run"})
		return
	}

	c.JSON(http.StatusAccepted, toRunResponse(run))
}

func (h *RunHandler) Resume(c *gin.Context) {
	ctx := c.Request.Context()

	runID, ok := parseRunID(c)
	if !ok {
		return
	}

	// The body is optional: a bare resume restarts an interrupted run.
	var req dto.ResumeRunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.WarnContext(ctx, "invalid resume request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	params := service.ResumeRunParams{RunID: runID, UserFeedback: req.UserFeedback}
	if traceID := h.requestTraceID(c); traceID != "" {
		params.TraceID = &traceID
	}

	run, err := h.service.ResumeRun(ctx, params)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRunNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		case errors.Is(err, service.ErrRunFinished):
			c.JSON(http.StatusConflict, gin.H{"error": "run already finished; provide user_feedback to revise"})
		default:
			slog.ErrorContext(ctx, "failed to resume run", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resume run"})
		}
		return
	}

	c.JSON(http.StatusAccepted, toRunResponse(run))
}

func (h *RunHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	runID, ok := parseRunID(c)
	if !ok {
		return
	}

	run, err := h.service.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to fetch run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch run"})
		return
	}

	c.JSON(http.StatusOK, toRunResponse(run))
}

func (h *RunHandler) GetState(c *gin.Context) {
	ctx := c.Request.Context()

	runID, ok := parseRunID(c)
	if !ok {
		return
	}

	state, err := h.service.GetState(ctx, runID)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load run state", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run state"})
		return
	}

	c.JSON(http.StatusOK, toStateResponse(state))
}

func (h *RunHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	runs, err := h.service.ListRuns(ctx, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	resp := dto.RunListResponse{Runs: make([]dto.RunResponse, 0, len(runs))}
	for i := range runs {
		resp.Runs = append(resp.Runs, toRunResponse(&runs[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *RunHandler) requestTraceID(c *gin.Context) string {
	traceID := c.GetHeader(h.traceHeader)
	if traceID == "" {
		if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.IsValid() {
			traceID = spanCtx.TraceID().String()
		}
	}
	return traceID
}

func parseRunID(c *gin.Context) (int64, bool) {
	runID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return 0, false
	}
	return runID, true
}

func toRunResponse(run *model.Run) dto.RunResponse {
	return dto.RunResponse{
		ID:         run.ID,
		Topic:      run.Topic,
		Status:     string(run.Status),
		Error:      run.Error,
		CreatedAt:  run.CreatedAt,
		FinishedAt: run.FinishedAt,
	}
}

func toStateResponse(state *model.RunState) dto.RunStateResponse {
	resp := dto.RunStateResponse{
		Run:            toRunResponse(&state.Run),
		CurrentVersion: state.Current.Number,
		RevisionCount:  state.RevisionCount(),
		Confidence:     state.Research.Confidence,
		Findings:       len(state.Research.Findings),
		History:        make([]dto.CycleResponse, 0, len(state.History)),
	}
	for _, cycle := range state.History {
		cr := dto.CycleResponse{
			Version: dto.VersionResponse{
				Number:      cycle.Version.Number,
				CreatedFrom: cycle.Version.CreatedFrom,
				CreatedAt:   cycle.Version.CreatedAt,
				Length:      len(cycle.Version.Text),
			},
			Verdicts: make([]dto.VerdictResponse, 0, len(cycle.Verdicts)),
		}
		for _, v := range cycle.Verdicts {
			cr.Verdicts = append(cr.Verdicts, dto.VerdictResponse{
				Role:      string(v.Role),
				Approved:  v.Approved,
				Grade:     v.Grade,
				Score:     v.Score,
				Issues:    len(v.Issues),
				Malformed: v.Malformed,
			})
		}
		resp.History = append(resp.History, cr)
	}
	return resp
}
