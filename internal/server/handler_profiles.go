package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/me/s7dump/internal/bridge"
	"github.com/me/s7dump/pkg/model"
)

// --- Serial profiles ---

func (s *Server) handleListSerialProfiles(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	profiles, err := s.store.ListSerialProfiles(r.Context())
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, profiles)
}

func (s *Server) handleCreateSerialProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var p model.SerialProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	var fields []model.FieldError
	if p.Name == "" {
		fields = append(fields, model.FieldError{Field: "name", Message: "name is required"})
	}
	if p.Device == "" {
		fields = append(fields, model.FieldError{Field: "device", Message: "device is required"})
	}
	if p.Baud <= 0 {
		fields = append(fields, model.FieldError{Field: "baud", Message: "baud must be positive"})
	}
	if err := bridge.ValidateSttyFlags(p.SttyFlags); err != nil {
		fields = append(fields, model.FieldError{Field: "stty_flags", Message: err.Error()})
	}
	if len(fields) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid serial profile", fields...))
		return
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.IsDefault = false
	p.ReadOnly = false
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.CreateSerialProfile(r.Context(), &p); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, p)
}

func (s *Server) handleGetSerialProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	p, err := s.store.GetSerialProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if p == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("serial profile", id))
		return
	}
	respondOK(w, reqID, p)
}

func (s *Server) handleUpdateSerialProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	existing, err := s.store.GetSerialProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if existing == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("serial profile", id))
		return
	}
	if existing.IsDefault || existing.ReadOnly {
		respondError(w, reqID, http.StatusConflict,
			model.NewConflictError(fmt.Sprintf("serial profile '%s' is read-only", id)))
		return
	}

	var p model.SerialProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if err := bridge.ValidateSttyFlags(p.SttyFlags); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid serial profile",
				model.FieldError{Field: "stty_flags", Message: err.Error()}))
		return
	}

	p.ID = id
	p.IsDefault = existing.IsDefault
	p.ReadOnly = existing.ReadOnly
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateSerialProfile(r.Context(), &p); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, p)
}

func (s *Server) handleDeleteSerialProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	existing, err := s.store.GetSerialProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if existing == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("serial profile", id))
		return
	}
	if existing.IsDefault || existing.ReadOnly {
		respondError(w, reqID, http.StatusConflict,
			model.NewConflictError(fmt.Sprintf("serial profile '%s' is read-only", id)))
		return
	}

	if err := s.store.DeleteSerialProfile(r.Context(), id); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]string{"deleted": id})
}

// --- Socat profiles ---

func (s *Server) handleListSocatProfiles(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	profiles, err := s.store.ListSocatProfiles(r.Context())
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, profiles)
}

func (s *Server) handleCreateSocatProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var p model.SocatProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	var fields []model.FieldError
	if p.Name == "" {
		fields = append(fields, model.FieldError{Field: "name", Message: "name is required"})
	}
	if p.TCPPort <= 0 || p.TCPPort > 65535 {
		fields = append(fields, model.FieldError{Field: "tcp_port", Message: "tcp_port must be in 1..65535"})
	}
	if len(fields) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid socat profile", fields...))
		return
	}
	if p.TCPHost == "" {
		p.TCPHost = "127.0.0.1"
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.IsDefault = false
	p.ReadOnly = false
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.CreateSocatProfile(r.Context(), &p); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, p)
}

func (s *Server) handleGetSocatProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	p, err := s.store.GetSocatProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if p == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("socat profile", id))
		return
	}
	respondOK(w, reqID, p)
}

func (s *Server) handleUpdateSocatProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	existing, err := s.store.GetSocatProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if existing == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("socat profile", id))
		return
	}
	if existing.IsDefault || existing.ReadOnly {
		respondError(w, reqID, http.StatusConflict,
			model.NewConflictError(fmt.Sprintf("socat profile '%s' is read-only", id)))
		return
	}

	var p model.SocatProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	p.ID = id
	p.IsDefault = existing.IsDefault
	p.ReadOnly = existing.ReadOnly
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateSocatProfile(r.Context(), &p); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, p)
}

func (s *Server) handleDeleteSocatProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	existing, err := s.store.GetSocatProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if existing == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("socat profile", id))
		return
	}
	if existing.IsDefault || existing.ReadOnly {
		respondError(w, reqID, http.StatusConflict,
			model.NewConflictError(fmt.Sprintf("socat profile '%s' is read-only", id)))
		return
	}

	if err := s.store.DeleteSocatProfile(r.Context(), id); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]string{"deleted": id})
}

// --- Power profiles ---

func (s *Server) handleListPowerProfiles(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	profiles, err := s.store.ListPowerProfiles(r.Context())
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, profiles)
}

func (s *Server) handleCreatePowerProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var p model.PowerProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	var fields []model.FieldError
	if p.Name == "" {
		fields = append(fields, model.FieldError{Field: "name", Message: "name is required"})
	}
	if p.Host == "" {
		fields = append(fields, model.FieldError{Field: "host", Message: "host is required"})
	}
	if p.Port <= 0 || p.Port > 65535 {
		fields = append(fields, model.FieldError{Field: "port", Message: "port must be in 1..65535"})
	}
	if p.Channel <= 0 {
		fields = append(fields, model.FieldError{Field: "channel", Message: "channel must be positive"})
	}
	if len(fields) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("invalid power profile", fields...))
		return
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.IsDefault = false
	p.ReadOnly = false
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.CreatePowerProfile(r.Context(), &p); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, p)
}

func (s *Server) handleGetPowerProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	p, err := s.store.GetPowerProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if p == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("power profile", id))
		return
	}
	respondOK(w, reqID, p)
}

func (s *Server) handleUpdatePowerProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	existing, err := s.store.GetPowerProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if existing == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("power profile", id))
		return
	}
	if existing.IsDefault || existing.ReadOnly {
		respondError(w, reqID, http.StatusConflict,
			model.NewConflictError(fmt.Sprintf("power profile '%s' is read-only", id)))
		return
	}

	var p model.PowerProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	p.ID = id
	p.IsDefault = existing.IsDefault
	p.ReadOnly = existing.ReadOnly
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdatePowerProfile(r.Context(), &p); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, p)
}

func (s *Server) handleDeletePowerProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	existing, err := s.store.GetPowerProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if existing == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("power profile", id))
		return
	}
	if existing.IsDefault || existing.ReadOnly {
		respondError(w, reqID, http.StatusConflict,
			model.NewConflictError(fmt.Sprintf("power profile '%s' is read-only", id)))
		return
	}

	if err := s.store.DeletePowerProfile(r.Context(), id); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]string{"deleted": id})
}

// --- Job profiles ---

func (s *Server) handleListJobProfiles(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	profiles, err := s.store.ListJobProfiles(r.Context())
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, profiles)
}

func (s *Server) handleCreateJobProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var p model.JobProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if p.Name == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "name", Message: "name is required"}))
		return
	}

	if err := s.profiles.Validate(r.Context(), &p); err != nil {
		respondAPIError(w, reqID, err)
		return
	}

	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.IsDefault = false
	p.ReadOnly = false
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.CreateJobProfile(r.Context(), &p); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, p)
}

func (s *Server) handleGetJobProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	p, err := s.store.GetJobProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if p == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job profile", id))
		return
	}
	respondOK(w, reqID, p)
}

func (s *Server) handleUpdateJobProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var p model.JobProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	p.ID = id

	if err := s.profiles.UpdateJobProfile(r.Context(), &p); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, p)
}

func (s *Server) handleDeleteJobProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.profiles.DeleteJobProfile(r.Context(), id); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]string{"deleted": id})
}

// handleValidateJobProfile runs the static checks only.
// POST /api/v1/profiles/jobs/{id}/validate
func (s *Server) handleValidateJobProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	p, err := s.store.GetJobProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if p == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job profile", id))
		return
	}

	if err := s.profiles.Validate(r.Context(), p); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]bool{"valid": true})
}

// handleCanExecuteJobProfile checks validity plus resource availability.
// GET /api/v1/profiles/jobs/{id}/can-execute
func (s *Server) handleCanExecuteJobProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	p, err := s.store.GetJobProfile(r.Context(), id)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	if p == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job profile", id))
		return
	}

	if err := s.profiles.CanExecute(r.Context(), p); err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]bool{"can_execute": true})
}

// handleDuplicateJobProfile copies a template into an editable profile.
// POST /api/v1/profiles/jobs/{id}/duplicate
func (s *Server) handleDuplicateJobProfile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if req.Name == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "name", Message: "name is required"}))
		return
	}

	dup, err := s.profiles.CreateFromTemplate(r.Context(), id, req.Name)
	if err != nil {
		respondAPIError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, dup)
}
