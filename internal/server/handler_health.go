package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Tick      uint32 `json:"tick"`
	Clients   int    `json:"clients"`
	Journal   string `json:"journal"`
	Dropped   uint64 `json:"dropped_events"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	snap := s.radio.Snapshot()

	resp := healthResponse{
		Status:    "healthy",
		Version:   s.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Tick:      snap.Tick,
		Clients:   snap.Clients,
		Journal:   "disabled",
	}
	if s.journal != nil {
		resp.Journal = "enabled"
	}
	if s.bus != nil {
		resp.Dropped = s.bus.Dropped()
	}
	respondOK(w, reqID, resp)
}
