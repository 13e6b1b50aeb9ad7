package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "rfsim API",
		Version:     "v1",
		Description: "Radio command scheduler simulation: live state, command history and stop requests",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health and simulated clock"},
			{"/api/v1/state", []string{"GET"}, "Scheduler snapshot: current and next command, stop deadlines, radio state"},
			{"/api/v1/commands", []string{"GET"}, "Journaled commands, paginated"},
			{"/api/v1/commands/{id}", []string{"GET"}, "Live status and journal record of one command"},
			{"/api/v1/commands/{id}/transitions", []string{"GET"}, "Status transitions of one command"},
			{"/api/v1/commands/{id}/notifications", []string{"GET"}, "Client notifications of one command, paginated"},
			{"/api/v1/commands/{id}/stop", []string{"POST"}, "Stop a command: {\"type\": \"deschedule|graceful|hard\"}"},
			{"/api/v1/sse/notifications", []string{"GET"}, "Live notification stream (Server-Sent Events)"},
		},
	})
}
