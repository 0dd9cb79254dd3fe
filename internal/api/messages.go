package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/chathub/internal/chat"
	"github.com/MikeSquared-Agency/chathub/internal/relay"
)

// postMessage is the HTTP equivalent of the socket message event for
// clients that cannot hold a socket open.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var p relay.MessagePayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p.ConversationID = strings.TrimSpace(p.ConversationID)
	if p.ConversationID == "" || strings.TrimSpace(p.Author) == "" || p.Text == "" {
		writeError(w, http.StatusBadRequest, "conversationId, author and text are required")
		return
	}

	msg := chat.Message{
		ID:     uuid.NewString(),
		Author: p.Author,
		Role:   chat.RoleUser,
		Text:   p.Text,
		TS:     chat.NowMillis(),
		Meta:   p.Meta,
	}
	s.deps.Relay.Submit(r.Context(), relay.Event{
		Kind:           relay.EventMessage,
		ConversationID: p.ConversationID,
		Message:        msg,
	})

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": msg.ID})
}

func (s *Server) conversationMessages(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, s.deps.Relay.History(convID))
}

func (s *Server) conversationSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.Summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, "summaries are not configured")
		return
	}
	convID := chi.URLParam(r, "id")
	summary := s.deps.Summarizer.Summarize(r.Context(), s.deps.Relay.History(convID))
	writeJSON(w, http.StatusOK, map[string]string{"conversationId": convID, "summary": summary})
}
