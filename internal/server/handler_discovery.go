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
		Name:        "s7dump API",
		Version:     "v1",
		Description: "Firmware memory dump orchestration: serial bridging, power cycling, bootloader staging and scheduled dumps",
		Endpoints: []endpointInfo{
			{"/api/v1/jobs", []string{"GET", "POST"}, "Dump job submission and listing. GET accepts ?history=true&state=..."},
			{"/api/v1/jobs/{id}", []string{"GET"}, "Single job detail"},
			{"/api/v1/jobs/{id}/cancel", []string{"PUT"}, "Cancel a queued or running job"},
			{"/api/v1/profiles/serial", []string{"GET", "POST"}, "Serial device profile management"},
			{"/api/v1/profiles/serial/{id}", []string{"GET", "PUT", "DELETE"}, "Single serial profile operations"},
			{"/api/v1/profiles/socat", []string{"GET", "POST"}, "Serial-to-TCP bridge profile management"},
			{"/api/v1/profiles/socat/{id}", []string{"GET", "PUT", "DELETE"}, "Single socat profile operations"},
			{"/api/v1/profiles/power", []string{"GET", "POST"}, "Power supply profile management"},
			{"/api/v1/profiles/power/{id}", []string{"GET", "PUT", "DELETE"}, "Single power profile operations"},
			{"/api/v1/profiles/jobs", []string{"GET", "POST"}, "Job profile management"},
			{"/api/v1/profiles/jobs/{id}", []string{"GET", "PUT", "DELETE"}, "Single job profile operations"},
			{"/api/v1/profiles/jobs/{id}/validate", []string{"POST"}, "Validate a job profile without executing"},
			{"/api/v1/profiles/jobs/{id}/can-execute", []string{"GET"}, "Check validity and resource availability"},
			{"/api/v1/profiles/jobs/{id}/duplicate", []string{"POST"}, "Copy a template into an editable profile"},
			{"/api/v1/schedules", []string{"GET", "POST"}, "Cron schedule management"},
			{"/api/v1/schedules/{id}", []string{"GET", "PUT", "DELETE"}, "Single schedule operations"},
			{"/api/v1/resources", []string{"GET"}, "Resources currently held by running jobs"},
			{"/api/v1/sse/jobs", []string{"GET"}, "Job event stream (Server-Sent Events)"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
