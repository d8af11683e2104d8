package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/me/s7dump/pkg/model"
)

// Store defines the persistence layer for profiles, job history, and
// schedules. Get methods return (nil, nil) when the row does not exist.
type Store interface {
	// Serial profile CRUD
	CreateSerialProfile(ctx context.Context, p *model.SerialProfile) error
	GetSerialProfile(ctx context.Context, id string) (*model.SerialProfile, error)
	ListSerialProfiles(ctx context.Context) ([]*model.SerialProfile, error)
	UpdateSerialProfile(ctx context.Context, p *model.SerialProfile) error
	DeleteSerialProfile(ctx context.Context, id string) error

	// Socat profile CRUD
	CreateSocatProfile(ctx context.Context, p *model.SocatProfile) error
	GetSocatProfile(ctx context.Context, id string) (*model.SocatProfile, error)
	ListSocatProfiles(ctx context.Context) ([]*model.SocatProfile, error)
	UpdateSocatProfile(ctx context.Context, p *model.SocatProfile) error
	DeleteSocatProfile(ctx context.Context, id string) error

	// Power profile CRUD
	CreatePowerProfile(ctx context.Context, p *model.PowerProfile) error
	GetPowerProfile(ctx context.Context, id string) (*model.PowerProfile, error)
	ListPowerProfiles(ctx context.Context) ([]*model.PowerProfile, error)
	UpdatePowerProfile(ctx context.Context, p *model.PowerProfile) error
	DeletePowerProfile(ctx context.Context, id string) error

	// Job profile CRUD
	CreateJobProfile(ctx context.Context, p *model.JobProfile) error
	GetJobProfile(ctx context.Context, id string) (*model.JobProfile, error)
	ListJobProfiles(ctx context.Context) ([]*model.JobProfile, error)
	UpdateJobProfile(ctx context.Context, p *model.JobProfile) error
	DeleteJobProfile(ctx context.Context, id string) error

	// Job history
	RecordJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*model.Job, error)
	ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error)

	// Schedule CRUD
	CreateSchedule(ctx context.Context, sc *model.Schedule) error
	GetSchedule(ctx context.Context, id string) (*model.Schedule, error)
	ListSchedules(ctx context.Context) ([]*model.Schedule, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error)
	UpdateSchedule(ctx context.Context, sc *model.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
