package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/s7dump/pkg/model"
)

// handleSubmitJob materializes a job profile and enqueues the job.
// POST /api/v1/jobs
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		ProfileID string `json:"profile_id"`
		Name      string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	if req.ProfileID == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "profile_id", Message: "profile_id is required"}))
		return
	}

	p, err := s.store.GetJobProfile(r.Context(), req.ProfileID)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if p == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job profile", req.ProfileID))
		return
	}

	job, err := s.profiles.Materialize(r.Context(), p)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if req.Name != "" {
		job.Name = req.Name
	}

	id, err := s.sched.Enqueue(job)
	if err != nil {
		respondError(w, reqID, http.StatusConflict, model.NewConflictError(err.Error()))
		return
	}

	s.logger.Info("job submitted", "job_id", id, "profile_id", p.ID)
	queued, _ := s.sched.Get(id)
	respondCreated(w, reqID, queued)
}

// handleListJobs lists jobs known to the scheduler; with ?history=true
// it lists the persisted job history instead.
// GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if r.URL.Query().Get("history") == "true" {
		opts := model.DefaultListOptions()
		if state := r.URL.Query().Get("state"); state != "" {
			opts.State = state
		}
		jobs, total, err := s.store.ListJobs(r.Context(), opts)
		if err != nil {
			respondAPIError(w, reqID, err)
			return
		}
		respondList(w, reqID, jobs, &model.Pagination{
			Total:   total,
			Limit:   opts.Limit,
			Offset:  opts.Offset,
			HasMore: opts.Offset+opts.Limit < total,
		})
		return
	}

	jobs := s.sched.GetAll()
	respondList(w, reqID, jobs, &model.Pagination{Total: len(jobs), Limit: len(jobs)})
}

// handleGetJob returns one job, falling back to the persisted history
// for jobs the scheduler no longer tracks (e.g. after a restart).
// GET /api/v1/jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid job id: "+err.Error()))
		return
	}

	if job, ok := s.sched.Get(id); ok {
		respondOK(w, reqID, job)
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if job == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job", id.String()))
		return
	}
	respondOK(w, reqID, job)
}

// handleCancelJob cancels a queued or running job.
// PUT /api/v1/jobs/{id}/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid job id: "+err.Error()))
		return
	}

	if err := s.sched.Cancel(id); err != nil {
		respondError(w, reqID, http.StatusConflict, model.NewConflictError(err.Error()))
		return
	}

	job, _ := s.sched.Get(id)
	respondOK(w, reqID, job)
}
