// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/user/genie/internal/chat"
	"github.com/user/genie/internal/gateway"
	"github.com/user/genie/internal/models"
	"github.com/user/genie/internal/types"
)

// Controller is the part of the chat controller exposed over HTTP.
type Controller interface {
	StartNewChat(ctx context.Context) types.ChatSession
	RenameSession(ctx context.Context, id types.SessionID, title string) error
	DeleteSession(ctx context.Context, id types.SessionID) error
	TogglePin(ctx context.Context, id types.SessionID) error
	ChangeSessionModel(ctx context.Context, id types.SessionID, modelID string) error
	ChangeDefaultModel(ctx context.Context, modelID string) (bool, error)
	StopGenerating()
	Session(id types.SessionID) (types.ChatSession, bool)
	Sessions() []types.ChatSession
	ActiveID() types.SessionID
	DefaultModel() string
	Watch(fn func(chat.Change)) func()
}

// Submitter queues a user turn and waits for it to finish.
type Submitter interface {
	Submit(ctx context.Context, event *types.InboundEvent) (gateway.Result, error)
}

// Catalog lists the selectable models.
type Catalog interface {
	List() []models.Descriptor
}

// Server is the local HTTP JSON API.
type Server struct {
	ctl    Controller
	gw     Submitter
	models Catalog
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer creates a Server wired to the controller, the gateway and the model catalogue.
func NewServer(ctl Controller, gw Submitter, catalog Catalog, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ctl:    ctl,
		gw:     gw,
		models: catalog,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/models", s.handleModels)
	s.mux.HandleFunc("PUT /api/default-model", s.handleDefaultModel)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("PATCH /api/sessions/{id}", s.handlePatchSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/messages", s.handleSendMessage)
	s.mux.HandleFunc("POST /api/stop", s.handleStop)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http api listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default": s.ctl.DefaultModel(),
		"models":  s.models.List(),
	})
}

type defaultModelRequest struct {
	ModelID string `json:"model_id"`
}

func (s *Server) handleDefaultModel(w http.ResponseWriter, r *http.Request) {
	var req defaultModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ok, err := s.ctl.ChangeDefaultModel(r.Context(), req.ModelID)
	if err != nil {
		s.logger.Error("set default model failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown model")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"default": req.ModelID})
}

type sessionSummary struct {
	ID           types.SessionID `json:"id"`
	Title        string          `json:"title"`
	ModelID      string          `json:"model_id"`
	IsPinned     bool            `json:"is_pinned"`
	CreatedAt    time.Time       `json:"created_at"`
	MessageCount int             `json:"message_count"`
	Active       bool            `json:"active"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	active := s.ctl.ActiveID()
	sessions := s.ctl.Sessions()
	result := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionSummary{
			ID:           sess.ID,
			Title:        sess.Title,
			ModelID:      sess.ModelID,
			IsPinned:     sess.IsPinned,
			CreatedAt:    sess.CreatedAt,
			MessageCount: len(sess.Messages),
			Active:       sess.ID == active,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, s.ctl.StartNewChat(r.Context()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ctl.Session(types.SessionID(r.PathValue("id")))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// patchSessionRequest holds the optional fields of PATCH /api/sessions/{id}.
type patchSessionRequest struct {
	Title   *string `json:"title"`
	Pinned  *bool   `json:"pinned"`
	ModelID *string `json:"model_id"`
}

func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	id := types.SessionID(r.PathValue("id"))
	sess, ok := s.ctl.Session(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req patchSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ctx := r.Context()
	if req.ModelID != nil {
		if err := s.ctl.ChangeSessionModel(ctx, id, *req.ModelID); err != nil {
			s.writeControllerError(w, err)
			return
		}
	}
	if req.Title != nil {
		if err := s.ctl.RenameSession(ctx, id, *req.Title); err != nil {
			s.writeControllerError(w, err)
			return
		}
	}
	if req.Pinned != nil && *req.Pinned != sess.IsPinned {
		if err := s.ctl.TogglePin(ctx, id); err != nil {
			s.writeControllerError(w, err)
			return
		}
	}

	sess, _ = s.ctl.Session(id)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.DeleteSession(r.Context(), types.SessionID(r.PathValue("id"))); err != nil {
		s.writeControllerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctl.StopGenerating()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, chat.ErrUnknownModel):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
