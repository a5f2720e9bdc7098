package operator

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cardscan/internal/identify"
	"cardscan/internal/logging"
	"cardscan/internal/scanstats"
)

type confirmRequest struct {
	Name   string `json:"name"`
	Method string `json:"method"`
}

type correctRequest struct {
	Name   string `json:"name"`
	CardID string `json:"card_id"`
}

type buildRequest struct {
	Limit int `json:"limit"`
}

type healthResponse struct {
	Status       string `json:"status"`
	Sessions     int    `json:"sessions"`
	BuildRunning bool   `json:"build_running"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Sessions: s.deps.Registry.Len()}
	if s.builds != nil {
		resp.BuildRunning = s.builds.status().Running
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	capture := identify.Capture{
		RawText: r.FormValue("text"),
		Source:  "api",
	}
	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		data, readErr := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		_ = file.Close()
		if readErr != nil {
			s.writeError(w, http.StatusBadRequest, "unable to read image")
			return
		}
		capture.ImageBytes = data
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		s.writeError(w, http.StatusBadRequest, "invalid image upload")
		return
	}
	if strings.TrimSpace(capture.RawText) == "" && len(capture.ImageBytes) == 0 {
		s.writeError(w, http.StatusBadRequest, "image or text is required")
		return
	}

	if pruned := s.deps.Registry.Prune(s.deps.Now(), s.deps.SessionTTL); pruned > 0 {
		s.logger.Debug("pruned expired sessions", logging.Int("count", pruned))
	}
	session := s.deps.Engine.Identify(r.Context(), capture)
	s.deps.Registry.Put(session)
	s.writeJSON(w, http.StatusCreated, session.View())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.deps.Registry.List()
	views := make([]identify.View, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, session.View())
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*identify.Session, bool) {
	id := chi.URLParam(r, "id")
	session, ok := s.deps.Registry.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) handleSessionImage(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	data := session.Image()
	if len(data) == 0 {
		s.writeError(w, http.StatusNotFound, "session has no image")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	var method scanstats.Kind
	if strings.TrimSpace(req.Method) != "" {
		kind, err := scanstats.ParseKind(req.Method)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		method = kind
	}
	if err := s.deps.Engine.Confirm(r.Context(), session, req.Name, method); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	var req correctRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	if err := s.deps.Engine.Correct(r.Context(), session, req.Name, req.CardID); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.deps.Engine.Retry(r.Context(), session); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.deps.Engine.Cancel(session); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session.View())
}

func (s *Server) handleCatalogStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		s.writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}
	stats, err := s.deps.Catalog.Stats(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleBuildStatus(w http.ResponseWriter, r *http.Request) {
	if s.builds == nil {
		s.writeError(w, http.StatusServiceUnavailable, "catalog build unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, s.builds.status())
}

func (s *Server) handleBuildStart(w http.ResponseWriter, r *http.Request) {
	if s.builds == nil {
		s.writeError(w, http.StatusServiceUnavailable, "catalog build unavailable")
		return
	}
	var req buildRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	if req.Limit < 0 {
		s.writeError(w, http.StatusBadRequest, "limit must be zero or positive")
		return
	}
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if err := s.builds.start(ctx, req.Limit); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.builds.status())
}

func (s *Server) handleBuildEvents(w http.ResponseWriter, r *http.Request) {
	s.hub.serveWS(w, r)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Engine.Statistics(r.Context()))
}

func (s *Server) handleStatsExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.deps.Engine.Statistics(r.Context()).Export())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Search == nil {
		s.writeError(w, http.StatusServiceUnavailable, "search unavailable")
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	result, err := s.deps.Search.Search(r.Context(), query, strings.TrimSpace(r.URL.Query().Get("set")))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// decodeOptional reads a JSON body into dst. An empty body leaves dst zero.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
