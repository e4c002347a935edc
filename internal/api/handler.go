// Package api exposes registered conductor sessions over HTTP: the
// remote file RPC, background command execution and the mirrored
// terminal.
package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coxswain-dev/coxswain/internal/conductor"
	"github.com/coxswain-dev/coxswain/internal/domain"
	"github.com/coxswain-dev/coxswain/internal/mirror"
	apiTypes "github.com/coxswain-dev/coxswain/pkg/api"
)

// ScreenSource resolves the mirrored screen for a session, nil when
// the session has no mirror.
type ScreenSource func(dcsID string) *mirror.Screen

// Handler routes REST requests to registered conductors.
type Handler struct {
	registry *conductor.Registry
	screens  ScreenSource
	logger   *slog.Logger
}

func NewHandler(registry *conductor.Registry, screens ScreenSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if screens == nil {
		screens = func(string) *mirror.Screen { return nil }
	}
	return &Handler{registry: registry, screens: screens, logger: logger}
}

// Mount registers all routes on the provided router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/api/sessions", h.listSessions)
	r.Get("/api/sessions/{id}/files", h.listFiles)
	r.Get("/api/sessions/{id}/files/stat", h.statFile)
	r.Get("/api/sessions/{id}/files/download", h.downloadFile)
	r.Delete("/api/sessions/{id}/files", h.deleteFile)
	r.Post("/api/sessions/{id}/files/mkdir", h.mkdir)
	r.Post("/api/sessions/{id}/files/create", h.createFile)
	r.Post("/api/sessions/{id}/files/mv", h.moveFile)
	r.Post("/api/sessions/{id}/files/ln", h.symlink)
	r.Post("/api/sessions/{id}/run", h.runCommand)
	r.Get("/api/sessions/{id}/screen", h.screenSnapshot)
	r.Get("/api/sessions/{id}/terminal/ws", h.terminalWebSocket)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) *conductor.Conductor {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required", "")
		return nil
	}
	c := h.registry.FindByDCSID(id)
	if c == nil {
		writeError(w, http.StatusNotFound, "session not found", "")
		return nil
	}
	return c
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	var resp apiTypes.SessionListResponse
	for _, c := range h.registry.List() {
		resp.Sessions = append(resp.Sessions, apiTypes.SessionSummary{
			DCSID:          c.DCSID(),
			ClientUniqueID: c.ClientUniqueID(),
			Depth:          c.Depth(),
			FramedPID:      c.FramedPID(),
			Framing:        c.Framing(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	order := domain.SortByName
	if r.URL.Query().Get("sort") == "date" {
		order = domain.SortByDate
	}

	files, err := c.ListFiles(r.Context(), []byte(path), order)
	if err != nil {
		writeFileError(w, err)
		return
	}
	resp := apiTypes.FileListResponse{Path: path}
	for _, f := range files {
		resp.Entries = append(resp.Entries, fileEntry(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) statFile(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required", "")
		return
	}
	file, err := c.StatFile(r.Context(), []byte(path))
	if err != nil {
		writeFileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileEntry(file))
}

func (h *Handler) downloadFile(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required", "")
		return
	}
	data, err := c.Download(r.Context(), []byte(path))
	if err != nil {
		writeFileError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required", "")
		return
	}
	recursive := r.URL.Query().Get("recursive") == "true"
	if err := c.DeleteFile(r.Context(), []byte(path), recursive); err != nil {
		writeFileError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) mkdir(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	var req apiTypes.MkdirRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid mkdir request", "")
		return
	}
	if err := c.Mkdir(r.Context(), []byte(req.Path)); err != nil {
		writeFileError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) createFile(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	var req apiTypes.CreateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "invalid create request", "")
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, "content must be base64", err.Error())
		return
	}
	if err := c.CreateFile(r.Context(), []byte(req.Path), content); err != nil {
		writeFileError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) moveFile(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	var req apiTypes.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == "" || req.Dest == "" {
		writeError(w, http.StatusBadRequest, "invalid move request", "")
		return
	}
	file, err := c.Move(r.Context(), []byte(req.Source), []byte(req.Dest))
	if err != nil {
		writeFileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileEntry(file))
}

func (h *Handler) symlink(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	var req apiTypes.SymlinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == "" || req.Symlink == "" {
		writeError(w, http.StatusBadRequest, "invalid symlink request", "")
		return
	}
	file, err := c.Symlink(r.Context(), []byte(req.Source), []byte(req.Symlink))
	if err != nil {
		writeFileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileEntry(file))
}

func (h *Handler) runCommand(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	var req apiTypes.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		writeError(w, http.StatusBadRequest, "invalid run request", "")
		return
	}

	done := make(chan apiTypes.RunResponse, 1)
	c.RunRemoteCommand(req.Command, func(output []byte, code int) {
		done <- apiTypes.RunResponse{Output: string(output), Code: code}
	})

	select {
	case resp := <-done:
		writeJSON(w, http.StatusOK, resp)
	case <-r.Context().Done():
		writeError(w, http.StatusGatewayTimeout, "command did not finish", "")
	}
}

func (h *Handler) screenSnapshot(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	screen := h.screens(c.DCSID())
	if screen == nil {
		writeError(w, http.StatusNotFound, "session has no mirrored screen", "")
		return
	}
	snap, ok := screen.Snapshot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "screen not ready", "")
		return
	}
	writeJSON(w, http.StatusOK, apiTypes.ScreenSnapshot{
		Rows:    snap.Rows,
		Cols:    snap.Cols,
		Lines:   snap.Lines,
		CursorX: snap.CurX,
		CursorY: snap.CurY,
	})
}

func fileEntry(f domain.RemoteFile) apiTypes.FileEntry {
	return apiTypes.FileEntry{
		Name:        f.Name,
		Kind:        string(f.Kind),
		Size:        f.Size,
		MTime:       f.MTime,
		Permissions: f.Permissions,
		Target:      f.Target,
	}
}

func writeFileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "remote path not found", err.Error())
	case errors.Is(err, domain.ErrConnectionClosed):
		writeError(w, http.StatusBadGateway, "session connection closed", err.Error())
	case errors.Is(err, domain.ErrNotImplemented):
		writeError(w, http.StatusNotImplemented, "operation not implemented", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "file operation failed", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message, details string) {
	writeJSON(w, code, apiTypes.ErrorResponse{Error: message, Details: details})
}
