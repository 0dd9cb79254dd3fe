package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/chathub/internal/byom"
	"github.com/MikeSquared-Agency/chathub/internal/provider"
)

const maxBodyBytes = 1 << 20

type registerRequest struct {
	UserID   string          `json:"userId"`
	Provider provider.Kind   `json:"provider"`
	Config   provider.Config `json:"config"`
}

func (s *Server) registerProvider(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.deps.BYOM.Register(req.UserID, req.Provider, req.Config); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req byom.InvokeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.deps.BYOM.Invoke(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, byom.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) getProvider(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	reg, ok := s.deps.BYOM.Registry().Lookup(userID)
	if !ok {
		writeError(w, http.StatusNotFound, "no provider registered")
		return
	}
	writeJSON(w, http.StatusOK, reg.Public())
}
