package server

import "net/http"

// handleState returns the scheduler snapshot.
// GET /api/v1/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.radio.Snapshot())
}
