package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/s7dump/internal/schedule"
	"github.com/me/s7dump/pkg/model"
)

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	schedules, err := s.store.ListSchedules(r.Context())
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, schedules)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var sc model.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	var fields []model.FieldError
	if sc.Name == "" {
		fields = append(fields, model.FieldError{Field: "name", Message: "name is required"})
	}
	if sc.JobProfileID == "" {
		fields = append(fields, model.FieldError{Field: "job_profile_id", Message: "job_profile_id is required"})
	}
	if sc.CronExpr == "" {
		fields = append(fields, model.FieldError{Field: "cron_expr", Message: "cron_expr is required"})
	}
	if len(fields) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid schedule", fields...))
		return
	}

	sc.ID = uuid.NewString()
	if err := s.schedules.CreateSchedule(r.Context(), &sc); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, sc)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	sc, err := s.store.GetSchedule(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if sc == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("schedule", id))
		return
	}
	respondOK(w, reqID, sc)
}

// handleUpdateSchedule replaces a schedule's mutable fields. A changed
// cron expression recomputes next_due from now.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	existing, err := s.store.GetSchedule(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if existing == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("schedule", id))
		return
	}

	var sc model.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	if err := schedule.ValidateCronExpr(sc.CronExpr); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(err.Error()))
		return
	}
	if sc.JobProfileID != "" && sc.JobProfileID != existing.JobProfileID {
		p, err := s.store.GetJobProfile(r.Context(), sc.JobProfileID)
		if err != nil {
			respondAPIError(w, reqID, err)
			return
		}
		if p == nil {
			respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job profile", sc.JobProfileID))
			return
		}
	} else {
		sc.JobProfileID = existing.JobProfileID
	}

	now := time.Now().UTC()
	sc.ID = id
	sc.LastRun = existing.LastRun
	sc.CreatedAt = existing.CreatedAt
	sc.UpdatedAt = now
	sc.NextDue = existing.NextDue
	if sc.CronExpr != existing.CronExpr {
		next, err := schedule.NextAfter(sc.CronExpr, now)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(err.Error()))
			return
		}
		sc.NextDue = next
	}

	if err := s.store.UpdateSchedule(r.Context(), &sc); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, sc)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.store.DeleteSchedule(r.Context(), id); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]string{"deleted": id})
}
