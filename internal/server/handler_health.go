package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/s7dump/pkg/model"
)

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	GoVersion     string `json:"go_version"`
	Uptime        string `json:"uptime"`
	QueuedJobs    int    `json:"queued_jobs"`
	RunningJobs   int    `json:"running_jobs"`
	HeldResources int    `json:"held_resources"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var queued, running int
	for _, job := range s.sched.GetAll() {
		switch job.State {
		case model.JobStateQueued:
			queued++
		case model.JobStateRunning:
			running++
		}
	}

	respondOK(w, reqID, healthResponse{
		Status:        "healthy",
		Version:       "0.1.0",
		GoVersion:     runtime.Version(),
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		QueuedJobs:    queued,
		RunningJobs:   running,
		HeldResources: len(s.coord.Holdings()),
	})
}
