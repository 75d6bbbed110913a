package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vedantwpatil/FormFrame/internal/analysis"
	"github.com/vedantwpatil/FormFrame/internal/history"
	"github.com/vedantwpatil/FormFrame/internal/recording"
)

const maxRequestBody = 1 << 20

type createRunRequest struct {
	VideoPath string          `json:"video_path"`
	Label     string          `json:"label,omitempty"`
	Analysis  json.RawMessage `json:"analysis"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Error: code, Detail: detail})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.VideoPath == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "video_path is required")
		return
	}
	videoPath, ok := inputPath(s.cfg.InputDir, req.VideoPath)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_video_path", "video_path must be a relative path inside the input directory")
		return
	}
	if len(req.Analysis) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "analysis is required")
		return
	}
	result, err := analysis.DecodeJSON(req.Analysis)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_analysis", err.Error())
		return
	}

	run, err := s.runs.Start(result, videoPath, req.Label)
	switch {
	case errors.Is(err, ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid_run", err.Error())
		return
	}
	w.Header().Set("Location", "/runs/"+run.ID())
	writeJSON(w, http.StatusAccepted, run.Snapshot())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if run, ok := s.runs.Get(id); ok {
		writeJSON(w, http.StatusOK, run.Snapshot())
		return
	}
	if s.history != nil {
		entry, err := s.history.Get(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, entry)
			return
		}
		if !errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", "unknown run "+id)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok := s.runs.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown run "+id)
		return
	}
	run.Cancel()
	writeJSON(w, http.StatusAccepted, run.Snapshot())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []history.Entry{})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	blob, ok := s.urls.Lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "blob revoked or unknown")
		return
	}
	w.Header().Set("Content-Type", recording.ContainerType(blob.MimeType))
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(blob.Data))
}

// servableName accepts only exported recordings and stills, never a path.
func servableName(name string) bool {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return false
	}
	for _, suffix := range []string{"_analyzed.webm", "_analyzed.mp4", "_frame.png"} {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return true
		}
	}
	return false
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !servableName(name) {
		writeError(w, http.StatusBadRequest, "invalid_name", "not an exported recording")
		return
	}
	f, err := os.Open(filepath.Join(s.cfg.Run.OutputDir, name))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", name)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stat_failed", err.Error())
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// inputPath resolves a client-supplied video path under dir. Absolute paths
// and paths that climb out of dir are refused.
func inputPath(dir, name string) (string, bool) {
	name = filepath.FromSlash(name)
	if !filepath.IsLocal(name) {
		return "", false
	}
	return filepath.Join(dir, name), true
}
