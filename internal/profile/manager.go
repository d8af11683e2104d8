// Package profile resolves stored profile references into executable
// jobs and enforces the validation and protection rules around them.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/me/s7dump/internal/bridge"
	"github.com/me/s7dump/internal/coordinator"
	"github.com/me/s7dump/internal/store"
	"github.com/me/s7dump/pkg/model"
)

// MaxDumpBytes caps a single dump region. Larger requests are almost
// always a typo in the length field, and the target cannot stream more
// than this in one session anyway.
const MaxDumpBytes = 16 * 1024 * 1024

// Manager validates job profiles and materializes them into jobs.
type Manager struct {
	store  store.Store
	coord  *coordinator.Coordinator
	logger *slog.Logger
}

// NewManager creates a Manager.
func NewManager(st store.Store, coord *coordinator.Coordinator, logger *slog.Logger) *Manager {
	return &Manager{
		store:  st,
		coord:  coord,
		logger: logger.With("component", "profiles"),
	}
}

// Validate checks a job profile without touching any hardware: all
// referenced profiles must resolve, the region must be sane, and the
// stty flags must pass the blocklist.
func (m *Manager) Validate(ctx context.Context, p *model.JobProfile) error {
	var fields []model.FieldError

	serial, socat, power, err := m.resolveRefs(ctx, p)
	if err != nil {
		return err
	}
	if serial == nil {
		fields = append(fields, model.FieldError{Field: "serial_profile_id", Message: fmt.Sprintf("serial profile '%s' not found", p.SerialProfileID)})
	}
	if socat == nil {
		fields = append(fields, model.FieldError{Field: "socat_profile_id", Message: fmt.Sprintf("socat profile '%s' not found", p.SocatProfileID)})
	}
	if power == nil {
		fields = append(fields, model.FieldError{Field: "power_profile_id", Message: fmt.Sprintf("power profile '%s' not found", p.PowerProfileID)})
	}

	if p.Region.Length == 0 {
		fields = append(fields, model.FieldError{Field: "region.length", Message: "dump length must be greater than zero"})
	}
	if p.Region.Length > MaxDumpBytes {
		fields = append(fields, model.FieldError{Field: "region.length", Message: fmt.Sprintf("dump length exceeds %d byte limit", MaxDumpBytes)})
	}
	// A region may end exactly at the top of the 32-bit address space;
	// only reading beyond it wraps.
	if p.Region.Length > 0 && p.Region.Start > ^uint32(0)-(p.Region.Length-1) {
		fields = append(fields, model.FieldError{Field: "region", Message: "region wraps past the end of the address space"})
	}

	if p.OutputPath == "" {
		fields = append(fields, model.FieldError{Field: "output_path", Message: "output path is required"})
	}
	if p.PayloadDir == "" {
		fields = append(fields, model.FieldError{Field: "payload_dir", Message: "payload directory is required"})
	}

	if serial != nil {
		if err := bridge.ValidateSttyFlags(serial.SttyFlags); err != nil {
			fields = append(fields, model.FieldError{Field: "serial_profile_id", Message: err.Error()})
		}
	}

	if len(fields) > 0 {
		return model.NewValidationError("job profile is not executable", fields...)
	}
	return nil
}

// CanExecute reports whether the profile could run right now: it must
// validate, and every resource it needs must be free. The probe
// acquires and immediately releases the resource set, so a positive
// answer can still race with a later submission.
func (m *Manager) CanExecute(ctx context.Context, p *model.JobProfile) error {
	if p.IsTemplate {
		return model.NewValidationError("templates cannot be executed directly")
	}
	if err := m.Validate(ctx, p); err != nil {
		return err
	}

	set, err := m.materializeSet(ctx, p)
	if err != nil {
		return err
	}
	keys := set.ResourceKeys()
	if !m.coord.TryAcquire(keys) {
		busy := make([]string, 0, len(keys))
		for _, k := range keys {
			if m.coord.Held(k) {
				busy = append(busy, k.String())
			}
		}
		return model.NewConflictError("resources busy: " + strings.Join(busy, ", "))
	}
	m.coord.Release(keys)
	return nil
}

// Materialize resolves the profile's references into a CREATED job with
// a frozen JobProfileSet. Later profile edits do not affect the job.
func (m *Manager) Materialize(ctx context.Context, p *model.JobProfile) (*model.Job, error) {
	if p.IsTemplate {
		return nil, model.NewValidationError("templates cannot be executed directly")
	}
	if err := m.Validate(ctx, p); err != nil {
		return nil, err
	}

	set, err := m.materializeSet(ctx, p)
	if err != nil {
		return nil, err
	}

	job := model.NewJob(p.Name, *set)
	m.logger.Info("job materialized", "job_id", job.ID, "profile_id", p.ID)
	return job, nil
}

// CreateFromTemplate duplicates a template into a new editable profile.
func (m *Manager) CreateFromTemplate(ctx context.Context, templateID, name string) (*model.JobProfile, error) {
	tpl, err := m.store.GetJobProfile(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, model.NewNotFoundError("job profile", templateID)
	}
	if !tpl.IsTemplate {
		return nil, model.NewValidationError(fmt.Sprintf("profile '%s' is not a template", templateID))
	}

	now := time.Now().UTC()
	dup := *tpl
	dup.ID = uuid.NewString()
	dup.Name = name
	dup.IsTemplate = false
	dup.IsDefault = false
	dup.ReadOnly = false
	dup.CreatedAt = now
	dup.UpdatedAt = now

	if err := m.store.CreateJobProfile(ctx, &dup); err != nil {
		return nil, err
	}
	m.logger.Info("profile created from template", "template_id", templateID, "profile_id", dup.ID)
	return &dup, nil
}

// UpdateJobProfile applies an update, refusing to touch protected
// profiles.
func (m *Manager) UpdateJobProfile(ctx context.Context, p *model.JobProfile) error {
	existing, err := m.store.GetJobProfile(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return model.NewNotFoundError("job profile", p.ID)
	}
	if existing.Protected() {
		return model.NewConflictError(fmt.Sprintf("profile '%s' is read-only", p.ID))
	}

	p.IsDefault = existing.IsDefault
	p.ReadOnly = existing.ReadOnly
	p.UpdatedAt = time.Now().UTC()
	return m.store.UpdateJobProfile(ctx, p)
}

// DeleteJobProfile deletes a profile, refusing protected ones.
func (m *Manager) DeleteJobProfile(ctx context.Context, id string) error {
	existing, err := m.store.GetJobProfile(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return model.NewNotFoundError("job profile", id)
	}
	if existing.Protected() {
		return model.NewConflictError(fmt.Sprintf("profile '%s' is read-only", id))
	}
	return m.store.DeleteJobProfile(ctx, id)
}

// EnsureDefaults seeds the read-only default profiles on first start.
// Existing rows are left alone.
func (m *Manager) EnsureDefaults(ctx context.Context) error {
	now := time.Now().UTC()

	serial, err := m.store.GetSerialProfile(ctx, "default-serial")
	if err != nil {
		return err
	}
	if serial == nil {
		if err := m.store.CreateSerialProfile(ctx, &model.SerialProfile{
			ID: "default-serial", Name: "Default serial", Device: "/dev/ttyUSB0", Baud: 9600,
			IsDefault: true, ReadOnly: true, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("seed serial profile: %w", err)
		}
	}

	socat, err := m.store.GetSocatProfile(ctx, "default-socat")
	if err != nil {
		return err
	}
	if socat == nil {
		if err := m.store.CreateSocatProfile(ctx, &model.SocatProfile{
			ID: "default-socat", Name: "Default bridge", TCPHost: "127.0.0.1", TCPPort: 1238,
			RawMode: true, NoEcho: true,
			IsDefault: true, ReadOnly: true, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("seed socat profile: %w", err)
		}
	}

	power, err := m.store.GetPowerProfile(ctx, "default-power")
	if err != nil {
		return err
	}
	if power == nil {
		if err := m.store.CreatePowerProfile(ctx, &model.PowerProfile{
			ID: "default-power", Name: "Default power channel", Host: "127.0.0.1", Port: 5025,
			Channel: 1, DelaySeconds: 5,
			IsDefault: true, ReadOnly: true, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("seed power profile: %w", err)
		}
	}

	tpl, err := m.store.GetJobProfile(ctx, "template-dump")
	if err != nil {
		return err
	}
	if tpl == nil {
		if err := m.store.CreateJobProfile(ctx, &model.JobProfile{
			ID: "template-dump", Name: "Memory dump template",
			IsTemplate: true, IsDefault: true, ReadOnly: true,
			SerialProfileID: "default-serial", SocatProfileID: "default-socat", PowerProfileID: "default-power",
			Region:     model.MemoryRegion{Start: 0, Length: 64 * 1024},
			PayloadDir: "payloads", OutputPath: "dumps/dump.bin",
			CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("seed job template: %w", err)
		}
	}

	m.logger.Debug("default profiles present")
	return nil
}

// materializeSet resolves references into concrete parameters. All
// three references must exist; Validate reports the friendly errors,
// this returns the first hard failure.
func (m *Manager) materializeSet(ctx context.Context, p *model.JobProfile) (*model.JobProfileSet, error) {
	serial, socat, power, err := m.resolveRefs(ctx, p)
	if err != nil {
		return nil, err
	}
	if serial == nil || socat == nil || power == nil {
		return nil, model.NewValidationError("job profile references unresolved profiles")
	}

	outputPath := p.OutputPath
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, model.NewInternalError(fmt.Sprintf("create output directory: %v", err))
		}
	}

	return &model.JobProfileSet{
		Serial: model.SerialParams{
			Device:    serial.Device,
			Baud:      serial.Baud,
			SttyFlags: serial.SttyFlags,
		},
		Bridge: model.BridgeParams{
			Host: socat.TCPHost,
			Port: socat.TCPPort,
		},
		Power: model.PowerParams{
			Host:         power.Host,
			Port:         power.Port,
			Channel:      power.Channel,
			DelaySeconds: power.DelaySeconds,
		},
		Region:     p.Region,
		PayloadDir: p.PayloadDir,
		OutputPath: outputPath,
	}, nil
}

func (m *Manager) resolveRefs(ctx context.Context, p *model.JobProfile) (*model.SerialProfile, *model.SocatProfile, *model.PowerProfile, error) {
	serial, err := m.store.GetSerialProfile(ctx, p.SerialProfileID)
	if err != nil {
		return nil, nil, nil, err
	}
	socat, err := m.store.GetSocatProfile(ctx, p.SocatProfileID)
	if err != nil {
		return nil, nil, nil, err
	}
	power, err := m.store.GetPowerProfile(ctx, p.PowerProfileID)
	if err != nil {
		return nil, nil, nil, err
	}
	return serial, socat, power, nil
}
