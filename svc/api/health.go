package api

import (
	"net/http"
)

type HealthResponse struct {
	Status string `json:"status"`
	Pastes int    `json:"pastes"`
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Pastes: s.store.Len(),
	})
}
