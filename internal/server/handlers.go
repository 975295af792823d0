package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/pipeline"
	"github.com/sells-group/valuation-cli/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	DealID  string `json:"deal_id"`
	DocsDir string `json:"docs_dir"`
}

// handleCreateSession starts a session and runs it in the background. The
// response carries the session ID; progress streams from the events endpoint.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DealID == "" || req.DocsDir == "" {
		writeError(w, http.StatusBadRequest, "deal_id and docs_dir are required")
		return
	}

	session := s.pipeline.StartSession(req.DealID, req.DocsDir)
	// The run outlives the request.
	go func() {
		if err := s.pipeline.Run(context.Background(), session); err != nil {
			zap.L().Error("server: session run failed",
				zap.String("session", session.ID()), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": session.ID(),
		"deal_id":    req.DealID,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionFilter{
		Status: model.SessionStatus(r.URL.Query().Get("status")),
		DealID: r.URL.Query().Get("deal_id"),
	}
	sessions, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	// Prefer live state; fall back to the persisted record.
	if session := s.pipeline.Registry().Get(id); session != nil {
		resp := map[string]any{"session": session.Info()}
		if v := session.Validation(); v != nil {
			resp["validation"] = v
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	info, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": info})
}

// handleSessionEvents streams the session's progress as server-sent events
// until the client disconnects or the stream closes.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	session := s.pipeline.Registry().Get(chi.URLParam(r, "sessionID"))
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-session.Events():
			if !open {
				return
			}
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("event: " + string(e.Type) + "\ndata: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	session := s.pipeline.Registry().Get(chi.URLParam(r, "sessionID"))
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(pipeline.FormatReport(session)))
}

func (s *Server) handleListClarifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if session := s.pipeline.Registry().Get(id); session != nil {
		writeJSON(w, http.StatusOK, map[string]any{"clarifications": session.PendingClarifications()})
		return
	}

	clarifications, err := s.store.ListClarifications(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clarifications": clarifications})
}

type resumeRequest struct {
	Answers []answerPayload `json:"answers"`
}

type answerPayload struct {
	ClarificationID string  `json:"clarification_id"`
	Value           float64 `json:"value"`
	ResolvedBy      string  `json:"resolved_by"`
	Note            string  `json:"note,omitempty"`
	Skip            bool    `json:"skip,omitempty"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	session := s.pipeline.Registry().Get(chi.URLParam(r, "sessionID"))
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "answers are required")
		return
	}

	answers := make([]pipeline.Answer, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = pipeline.Answer{
			ClarificationID: a.ClarificationID,
			Value:           a.Value,
			ResolvedBy:      a.ResolvedBy,
			Note:            a.Note,
			Skip:            a.Skip,
		}
	}

	if err := s.pipeline.Resume(r.Context(), session, answers); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session.Info()})
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListProfiles(r.Context(), chi.URLParam(r, "dealID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
