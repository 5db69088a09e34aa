package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"mediastream/internal/domain"
	"mediastream/internal/usecase"
)

type startPlaybackRequest struct {
	FileID      string `json:"fileId"`
	Size        int64  `json:"size"`
	MIME        string `json:"mime"`
	AllowDirect bool   `json:"allowDirect"`
}

type startPlaybackResponse struct {
	Token     string `json:"token,omitempty"`
	URL       string `json:"url,omitempty"`
	Direct    bool   `json:"direct"`
	LocalPath string `json:"localPath,omitempty"`
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleStartPlayback(w, r)
	case http.MethodGet:
		s.handleListSessions(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStartPlayback(w http.ResponseWriter, r *http.Request) {
	if s.startPlayback == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "start playback use case not configured")
		return
	}

	var body startPlaybackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}

	file := domain.MediaFile{
		ID:   domain.FileID(strings.TrimSpace(body.FileID)),
		Size: body.Size,
		MIME: strings.TrimSpace(body.MIME),
	}
	if err := file.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.startPlayback.Execute(r.Context(), usecase.StartPlaybackInput{
		File:        file,
		AllowDirect: body.AllowDirect,
	})
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, startPlaybackResponse{
		Token:     result.Token,
		URL:       result.URL,
		Direct:    result.Direct,
		LocalPath: result.LocalPath,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusOK, []domain.SessionState{})
		return
	}
	states := s.sessions.Sessions()
	if states == nil {
		states = []domain.SessionState{}
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handlePlaybackByToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/playback/")
	if token == "" || strings.Contains(token, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.stopPlayback == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stop playback use case not configured")
		return
	}

	if err := s.stopPlayback.Execute(r.Context(), token); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		writeUseCaseError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
