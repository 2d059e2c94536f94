package server

import (
	"net/http"
	"time"
)

const serviceName = "cernio-api"

type healthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Service:     serviceName,
		Version:     s.cfg.Version,
		Environment: s.cfg.Environment,
	})
}
