package httpserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/MissVz/EQiLevel/internal/emotion"
	"github.com/MissVz/EQiLevel/internal/history"
	"github.com/MissVz/EQiLevel/internal/mcp"
	"github.com/MissVz/EQiLevel/internal/objectives"
	"github.com/MissVz/EQiLevel/internal/orchestrator"
	"github.com/MissVz/EQiLevel/internal/reward"
	"github.com/MissVz/EQiLevel/internal/store"
)

// Database is the persistence surface the API needs. Nil means the server
// runs without durability: session endpoints degrade instead of failing.
type Database interface {
	Health(ctx context.Context) (bool, string)
	CreateSession(ctx context.Context) (string, error)
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	LogTurn(ctx context.Context, rec store.TurnRecord) (string, error)
	Metrics(ctx context.Context, sessionID string) (store.Metrics, error)
}

// Pipeline runs one tutoring turn.
type Pipeline interface {
	Run(ctx context.Context, in orchestrator.TurnInput) orchestrator.Result
}

// Transcriber converts captured audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// Handlers bundles the API routes and their dependencies.
type Handlers struct {
	DB          Database
	Pipeline    Pipeline
	STT         Transcriber
	Catalog     *objectives.Catalog
	Voice       http.Handler
	AdminAPIKey string
	AltLanguage string
}

// Register attaches all routes to the Echo instance.
func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", h.healthz)
	e.GET("/metrics", h.metrics, h.adminGuard)
	e.GET("/api/v1/objectives", h.listObjectives)
	e.POST("/api/v1/session", h.sessionTurn)
	e.POST("/api/v1/session/start", h.sessionStart)
	e.POST("/api/v1/turn/log", h.turnLog)
	e.POST("/api/v1/analyze", h.analyze)
	if h.Voice != nil {
		e.GET("/ws/voice", echo.WrapHandler(h.Voice))
	}
}

// adminGuard rejects requests without the configured admin key. With no key
// configured the route is open.
func (h Handlers) adminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.AdminAPIKey != "" && c.Request().Header.Get("X-Admin-Key") != h.AdminAPIKey {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid admin key"})
		}
		return next(c)
	}
}

func (h Handlers) healthz(c echo.Context) error {
	dbStatus := "disabled"
	if h.DB != nil {
		if ok, msg := h.DB.Health(c.Request().Context()); ok {
			dbStatus = "ok"
		} else {
			// degraded storage is reported, not fatal
			dbStatus = "degraded: " + msg
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "db": dbStatus})
}

func (h Handlers) metrics(c echo.Context) error {
	if h.DB == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "metrics require a database"})
	}
	m, err := h.DB.Metrics(c.Request().Context(), c.QueryParam("session_id"))
	if err != nil {
		log.Printf("httpserver: metrics query failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "metrics query failed"})
	}
	return c.JSON(http.StatusOK, m)
}

func (h Handlers) listObjectives(c echo.Context) error {
	objs, err := h.Catalog.List(c.QueryParam("unit"), c.QueryParam("q"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"objectives": objs, "count": len(objs)})
}

type turnRequest struct {
	SessionID        string            `json:"session_id"`
	UserText         string            `json:"user_text"`
	ObjectiveCode    string            `json:"objective_code"`
	ChatHistoryTurns []history.Message `json:"chat_history_turns"`
}

// turnResponse flattens the pipeline result: text, mcp and reward sit at the
// top level next to session_id and the optional transcript.
type turnResponse struct {
	orchestrator.Result
	SessionID  string `json:"session_id"`
	Transcript string `json:"transcript,omitempty"`
}

// sessionTurn accepts either a JSON body with user_text or a multipart form
// with an audio part, transcribes the latter, and runs the turn pipeline.
func (h Handlers) sessionTurn(c echo.Context) error {
	req, transcribed, err := h.parseTurnRequest(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session_id is required"})
	}
	if strings.TrimSpace(req.UserText) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_text or audio is required"})
	}

	res := h.Pipeline.Run(c.Request().Context(), orchestrator.TurnInput{
		SessionID:     req.SessionID,
		UserText:      req.UserText,
		ObjectiveCode: req.ObjectiveCode,
		ChatHistory:   req.ChatHistoryTurns,
	})
	out := turnResponse{Result: res, SessionID: req.SessionID}
	if transcribed {
		out.Transcript = req.UserText
	}
	return c.JSON(http.StatusOK, out)
}

// parseTurnRequest returns the decoded request and whether the text came
// from audio transcription.
func (h Handlers) parseTurnRequest(c echo.Context) (turnRequest, bool, error) {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		var req turnRequest
		if err := c.Bind(&req); err != nil {
			return turnRequest{}, false, errors.New("invalid request body")
		}
		return req, false, nil
	}

	req := turnRequest{
		SessionID:     c.FormValue("session_id"),
		ObjectiveCode: c.FormValue("objective_code"),
		UserText:      c.FormValue("user_text"),
	}
	if req.UserText != "" {
		return req, false, nil
	}

	fh, err := c.FormFile("audio")
	if err != nil {
		return req, false, errors.New("audio part is required")
	}
	f, err := fh.Open()
	if err != nil {
		return req, false, err
	}
	defer f.Close()
	audio, err := io.ReadAll(f)
	if err != nil {
		return req, false, err
	}
	if h.STT == nil {
		return req, false, errors.New("transcription is not configured")
	}

	text, err := h.STT.Transcribe(c.Request().Context(), audio, "")
	if err != nil {
		log.Printf("httpserver: transcription failed: %v", err)
	}
	if strings.TrimSpace(text) == "" && h.AltLanguage != "" {
		text, err = h.STT.Transcribe(c.Request().Context(), audio, h.AltLanguage)
		if err != nil {
			log.Printf("httpserver: retry transcription failed: %v", err)
		}
	}
	req.UserText = strings.TrimSpace(text)
	return req, true, nil
}

func (h Handlers) sessionStart(c echo.Context) error {
	if h.DB == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "sessions require a database"})
	}
	id, err := h.DB.CreateSession(c.Request().Context())
	if err != nil {
		log.Printf("httpserver: session create failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create session"})
	}
	return c.JSON(http.StatusOK, echo.Map{"session_id": id})
}

type turnLogRequest struct {
	SessionID     string              `json:"session_id"`
	UserText      string              `json:"user_text"`
	ReplyText     string              `json:"reply_text"`
	Emotion       emotion.Signal      `json:"emotion"`
	Performance   emotion.Performance `json:"performance"`
	State         mcp.ControlState    `json:"mcp"`
	Reward        float64             `json:"reward"`
	ObjectiveCode string              `json:"objective_code"`
}

// turnLog records an externally-produced turn against an existing session.
func (h Handlers) turnLog(c echo.Context) error {
	if h.DB == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "turn logging requires a database"})
	}
	var req turnLogRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session_id is required"})
	}
	exists, err := h.DB.SessionExists(c.Request().Context(), req.SessionID)
	if err != nil {
		log.Printf("httpserver: session lookup failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session lookup failed"})
	}
	if !exists {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown session_id"})
	}
	id, err := h.DB.LogTurn(c.Request().Context(), store.TurnRecord{
		SessionID:     req.SessionID,
		UserText:      req.UserText,
		ReplyText:     req.ReplyText,
		Emotion:       req.Emotion,
		Performance:   req.Performance,
		State:         req.State,
		Reward:        req.Reward,
		ObjectiveCode: req.ObjectiveCode,
	})
	if err != nil {
		log.Printf("httpserver: turn log failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "turn log failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"turn_id": id})
}

type analyzeRequest struct {
	Text string `json:"text"`
}

// analyze exposes the signal extraction stage on its own, without running a
// turn or touching storage.
func (h Handlers) analyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "text is required"})
	}
	em := emotion.Classify(req.Text)
	perf := emotion.EstimatePerformance(req.Text)
	return c.JSON(http.StatusOK, echo.Map{
		"emotion":     em,
		"performance": perf,
		"reward":      reward.Compute(em, perf),
		"mcp":         mcp.Build(em, perf),
	})
}
