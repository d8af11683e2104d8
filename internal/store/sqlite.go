package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/me/s7dump/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Serial profile CRUD ---

func (s *SQLiteStore) CreateSerialProfile(ctx context.Context, p *model.SerialProfile) error {
	s.logger.Debug("sql", "op", "insert", "table", "serial_profiles", "id", p.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO serial_profiles (id, name, device, baud, stty_flags, is_default, read_only, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Device, p.Baud, p.SttyFlags, p.IsDefault, p.ReadOnly,
		p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetSerialProfile(ctx context.Context, id string) (*model.SerialProfile, error) {
	s.logger.Debug("sql", "op", "select", "table", "serial_profiles", "id", id)

	var p model.SerialProfile
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, device, baud, stty_flags, is_default, read_only, created_at, updated_at
		 FROM serial_profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Device, &p.Baud, &p.SttyFlags, &p.IsDefault, &p.ReadOnly, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

func (s *SQLiteStore) ListSerialProfiles(ctx context.Context) ([]*model.SerialProfile, error) {
	s.logger.Debug("sql", "op", "list", "table", "serial_profiles")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, device, baud, stty_flags, is_default, read_only, created_at, updated_at
		 FROM serial_profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*model.SerialProfile
	for rows.Next() {
		var p model.SerialProfile
		var createdAt, updatedAt string

		if err := rows.Scan(&p.ID, &p.Name, &p.Device, &p.Baud, &p.SttyFlags,
			&p.IsDefault, &p.ReadOnly, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

func (s *SQLiteStore) UpdateSerialProfile(ctx context.Context, p *model.SerialProfile) error {
	s.logger.Debug("sql", "op", "update", "table", "serial_profiles", "id", p.ID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE serial_profiles SET name=?, device=?, baud=?, stty_flags=?, is_default=?, read_only=?, updated_at=?
		 WHERE id=?`,
		p.Name, p.Device, p.Baud, p.SttyFlags, p.IsDefault, p.ReadOnly,
		p.UpdatedAt.Format(time.RFC3339Nano), p.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("serial profile %s not found", p.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteSerialProfile(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "serial_profiles", "id", id)

	result, err := s.db.ExecContext(ctx, `DELETE FROM serial_profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("serial profile %s not found", id)
	}
	return nil
}

// --- Socat profile CRUD ---

func (s *SQLiteStore) CreateSocatProfile(ctx context.Context, p *model.SocatProfile) error {
	s.logger.Debug("sql", "op", "insert", "table", "socat_profiles", "id", p.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO socat_profiles (id, name, tcp_host, tcp_port, raw_mode, no_echo, verbose, is_default, read_only, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.TCPHost, p.TCPPort, p.RawMode, p.NoEcho, p.Verbose, p.IsDefault, p.ReadOnly,
		p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetSocatProfile(ctx context.Context, id string) (*model.SocatProfile, error) {
	s.logger.Debug("sql", "op", "select", "table", "socat_profiles", "id", id)

	var p model.SocatProfile
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, tcp_host, tcp_port, raw_mode, no_echo, verbose, is_default, read_only, created_at, updated_at
		 FROM socat_profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.TCPHost, &p.TCPPort, &p.RawMode, &p.NoEcho, &p.Verbose,
		&p.IsDefault, &p.ReadOnly, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

func (s *SQLiteStore) ListSocatProfiles(ctx context.Context) ([]*model.SocatProfile, error) {
	s.logger.Debug("sql", "op", "list", "table", "socat_profiles")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, tcp_host, tcp_port, raw_mode, no_echo, verbose, is_default, read_only, created_at, updated_at
		 FROM socat_profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*model.SocatProfile
	for rows.Next() {
		var p model.SocatProfile
		var createdAt, updatedAt string

		if err := rows.Scan(&p.ID, &p.Name, &p.TCPHost, &p.TCPPort, &p.RawMode, &p.NoEcho, &p.Verbose,
			&p.IsDefault, &p.ReadOnly, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

func (s *SQLiteStore) UpdateSocatProfile(ctx context.Context, p *model.SocatProfile) error {
	s.logger.Debug("sql", "op", "update", "table", "socat_profiles", "id", p.ID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE socat_profiles SET name=?, tcp_host=?, tcp_port=?, raw_mode=?, no_echo=?, verbose=?, is_default=?, read_only=?, updated_at=?
		 WHERE id=?`,
		p.Name, p.TCPHost, p.TCPPort, p.RawMode, p.NoEcho, p.Verbose, p.IsDefault, p.ReadOnly,
		p.UpdatedAt.Format(time.RFC3339Nano), p.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("socat profile %s not found", p.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteSocatProfile(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "socat_profiles", "id", id)

	result, err := s.db.ExecContext(ctx, `DELETE FROM socat_profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("socat profile %s not found", id)
	}
	return nil
}

// --- Power profile CRUD ---

func (s *SQLiteStore) CreatePowerProfile(ctx context.Context, p *model.PowerProfile) error {
	s.logger.Debug("sql", "op", "insert", "table", "power_profiles", "id", p.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO power_profiles (id, name, host, port, channel, delay_seconds, is_default, read_only, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Host, p.Port, p.Channel, p.DelaySeconds, p.IsDefault, p.ReadOnly,
		p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetPowerProfile(ctx context.Context, id string) (*model.PowerProfile, error) {
	s.logger.Debug("sql", "op", "select", "table", "power_profiles", "id", id)

	var p model.PowerProfile
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, host, port, channel, delay_seconds, is_default, read_only, created_at, updated_at
		 FROM power_profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Host, &p.Port, &p.Channel, &p.DelaySeconds,
		&p.IsDefault, &p.ReadOnly, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

func (s *SQLiteStore) ListPowerProfiles(ctx context.Context) ([]*model.PowerProfile, error) {
	s.logger.Debug("sql", "op", "list", "table", "power_profiles")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, host, port, channel, delay_seconds, is_default, read_only, created_at, updated_at
		 FROM power_profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*model.PowerProfile
	for rows.Next() {
		var p model.PowerProfile
		var createdAt, updatedAt string

		if err := rows.Scan(&p.ID, &p.Name, &p.Host, &p.Port, &p.Channel, &p.DelaySeconds,
			&p.IsDefault, &p.ReadOnly, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

func (s *SQLiteStore) UpdatePowerProfile(ctx context.Context, p *model.PowerProfile) error {
	s.logger.Debug("sql", "op", "update", "table", "power_profiles", "id", p.ID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE power_profiles SET name=?, host=?, port=?, channel=?, delay_seconds=?, is_default=?, read_only=?, updated_at=?
		 WHERE id=?`,
		p.Name, p.Host, p.Port, p.Channel, p.DelaySeconds, p.IsDefault, p.ReadOnly,
		p.UpdatedAt.Format(time.RFC3339Nano), p.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("power profile %s not found", p.ID)
	}
	return nil
}

func (s *SQLiteStore) DeletePowerProfile(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "power_profiles", "id", id)

	result, err := s.db.ExecContext(ctx, `DELETE FROM power_profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("power profile %s not found", id)
	}
	return nil
}

// --- Job profile CRUD ---

func (s *SQLiteStore) CreateJobProfile(ctx context.Context, p *model.JobProfile) error {
	s.logger.Debug("sql", "op", "insert", "table", "job_profiles", "id", p.ID)

	regionJSON, err := json.Marshal(p.Region)
	if err != nil {
		return fmt.Errorf("marshal region: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO job_profiles (id, name, is_template, is_default, read_only,
		 serial_profile_id, socat_profile_id, power_profile_id, region, payload_dir, output_path,
		 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.IsTemplate, p.IsDefault, p.ReadOnly,
		p.SerialProfileID, p.SocatProfileID, p.PowerProfileID,
		string(regionJSON), p.PayloadDir, p.OutputPath,
		p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetJobProfile(ctx context.Context, id string) (*model.JobProfile, error) {
	s.logger.Debug("sql", "op", "select", "table", "job_profiles", "id", id)
	return s.scanJobProfile(s.db.QueryRowContext(ctx,
		`SELECT id, name, is_template, is_default, read_only,
		 serial_profile_id, socat_profile_id, power_profile_id, region, payload_dir, output_path,
		 created_at, updated_at
		 FROM job_profiles WHERE id = ?`, id))
}

func (s *SQLiteStore) ListJobProfiles(ctx context.Context) ([]*model.JobProfile, error) {
	s.logger.Debug("sql", "op", "list", "table", "job_profiles")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, is_template, is_default, read_only,
		 serial_profile_id, socat_profile_id, power_profile_id, region, payload_dir, output_path,
		 created_at, updated_at
		 FROM job_profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*model.JobProfile
	for rows.Next() {
		p, err := s.scanJobProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *SQLiteStore) UpdateJobProfile(ctx context.Context, p *model.JobProfile) error {
	s.logger.Debug("sql", "op", "update", "table", "job_profiles", "id", p.ID)

	regionJSON, err := json.Marshal(p.Region)
	if err != nil {
		return fmt.Errorf("marshal region: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE job_profiles SET name=?, is_template=?, is_default=?, read_only=?,
		 serial_profile_id=?, socat_profile_id=?, power_profile_id=?, region=?, payload_dir=?, output_path=?, updated_at=?
		 WHERE id=?`,
		p.Name, p.IsTemplate, p.IsDefault, p.ReadOnly,
		p.SerialProfileID, p.SocatProfileID, p.PowerProfileID,
		string(regionJSON), p.PayloadDir, p.OutputPath,
		p.UpdatedAt.Format(time.RFC3339Nano), p.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job profile %s not found", p.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteJobProfile(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "job_profiles", "id", id)

	result, err := s.db.ExecContext(ctx, `DELETE FROM job_profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job profile %s not found", id)
	}
	return nil
}

// --- Job history ---

// RecordJob upserts a job row, so re-recording a job after a state
// change overwrites the previous snapshot.
func (s *SQLiteStore) RecordJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "upsert", "table", "jobs", "id", job.ID)

	resourcesJSON, err := json.Marshal(job.Resources)
	if err != nil {
		return fmt.Errorf("marshal resources: %w", err)
	}
	profilesJSON, err := json.Marshal(job.Profiles)
	if err != nil {
		return fmt.Errorf("marshal profiles: %w", err)
	}

	var startedAt, completedAt *string
	if job.StartedAt != nil {
		v := job.StartedAt.Format(time.RFC3339Nano)
		startedAt = &v
	}
	if job.CompletedAt != nil {
		v := job.CompletedAt.Format(time.RFC3339Nano)
		completedAt = &v
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, name, resources, profiles, state, detail, created_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 state=excluded.state, detail=excluded.detail,
		 started_at=excluded.started_at, completed_at=excluded.completed_at`,
		job.ID.String(), job.Name, string(resourcesJSON), string(profilesJSON),
		string(job.State), job.Detail,
		job.CreatedAt.Format(time.RFC3339Nano), startedAt, completedAt,
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "id", id)
	return s.scanJob(s.db.QueryRowContext(ctx,
		`SELECT id, name, resources, profiles, state, detail, created_at, started_at, completed_at
		 FROM jobs WHERE id = ?`, id.String()))
}

func (s *SQLiteStore) ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "jobs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := ""
	var countArgs []any
	if opts.State != "" {
		whereSQL = " WHERE state = ?"
		countArgs = append(countArgs, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+whereSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(countArgs, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, resources, profiles, state, detail, created_at, started_at, completed_at
		 FROM jobs`+whereSQL+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// --- Schedule CRUD ---

func (s *SQLiteStore) CreateSchedule(ctx context.Context, sc *model.Schedule) error {
	s.logger.Debug("sql", "op", "insert", "table", "schedules", "id", sc.ID)

	var lastRun *string
	if sc.LastRun != nil {
		v := sc.LastRun.Format(time.RFC3339Nano)
		lastRun = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, name, job_profile_id, cron_expr, enabled, next_due, last_run, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.Name, sc.JobProfileID, sc.CronExpr, sc.Enabled,
		sc.NextDue.Format(time.RFC3339Nano), lastRun,
		sc.CreatedAt.Format(time.RFC3339Nano), sc.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	s.logger.Debug("sql", "op", "select", "table", "schedules", "id", id)
	return s.scanSchedule(s.db.QueryRowContext(ctx,
		`SELECT id, name, job_profile_id, cron_expr, enabled, next_due, last_run, created_at, updated_at
		 FROM schedules WHERE id = ?`, id))
}

func (s *SQLiteStore) ListSchedules(ctx context.Context) ([]*model.Schedule, error) {
	s.logger.Debug("sql", "op", "list", "table", "schedules")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, job_profile_id, cron_expr, enabled, next_due, last_run, created_at, updated_at
		 FROM schedules ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanSchedules(rows)
}

// ListDueSchedules returns enabled schedules whose next_due is at or
// before now, soonest first.
func (s *SQLiteStore) ListDueSchedules(ctx context.Context, now time.Time) ([]*model.Schedule, error) {
	s.logger.Debug("sql", "op", "list_due", "table", "schedules")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, job_profile_id, cron_expr, enabled, next_due, last_run, created_at, updated_at
		 FROM schedules WHERE enabled = 1 AND next_due <= ? ORDER BY next_due`,
		now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanSchedules(rows)
}

func (s *SQLiteStore) UpdateSchedule(ctx context.Context, sc *model.Schedule) error {
	s.logger.Debug("sql", "op", "update", "table", "schedules", "id", sc.ID)

	var lastRun *string
	if sc.LastRun != nil {
		v := sc.LastRun.Format(time.RFC3339Nano)
		lastRun = &v
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET name=?, job_profile_id=?, cron_expr=?, enabled=?, next_due=?, last_run=?, updated_at=?
		 WHERE id=?`,
		sc.Name, sc.JobProfileID, sc.CronExpr, sc.Enabled,
		sc.NextDue.Format(time.RFC3339Nano), lastRun,
		sc.UpdatedAt.Format(time.RFC3339Nano), sc.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("schedule %s not found", sc.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteSchedule(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "schedules", "id", id)

	result, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("schedule %s not found", id)
	}
	return nil
}

// --- scan helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanJobProfile(row scanner) (*model.JobProfile, error) {
	var p model.JobProfile
	var regionJSON, createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &p.IsTemplate, &p.IsDefault, &p.ReadOnly,
		&p.SerialProfileID, &p.SocatProfileID, &p.PowerProfileID,
		&regionJSON, &p.PayloadDir, &p.OutputPath, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(regionJSON), &p.Region); err != nil {
		return nil, fmt.Errorf("unmarshal region: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

func (s *SQLiteStore) scanJob(row scanner) (*model.Job, error) {
	var job model.Job
	var id, resourcesJSON, profilesJSON, state, createdAt string
	var startedAt, completedAt *string

	err := row.Scan(&id, &job.Name, &resourcesJSON, &profilesJSON, &state, &job.Detail,
		&createdAt, &startedAt, &completedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(resourcesJSON), &job.Resources); err != nil {
		return nil, fmt.Errorf("unmarshal resources: %w", err)
	}
	if err := json.Unmarshal([]byte(profilesJSON), &job.Profiles); err != nil {
		return nil, fmt.Errorf("unmarshal profiles: %w", err)
	}
	job.State = model.JobState(state)
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if startedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *startedAt)
		job.StartedAt = &t
	}
	if completedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *completedAt)
		job.CompletedAt = &t
	}
	return &job, nil
}

func (s *SQLiteStore) scanSchedules(rows *sql.Rows) ([]*model.Schedule, error) {
	var schedules []*model.Schedule
	for rows.Next() {
		sc, err := s.scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}

func (s *SQLiteStore) scanSchedule(row scanner) (*model.Schedule, error) {
	var sc model.Schedule
	var nextDue, createdAt, updatedAt string
	var lastRun *string

	err := row.Scan(&sc.ID, &sc.Name, &sc.JobProfileID, &sc.CronExpr, &sc.Enabled,
		&nextDue, &lastRun, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sc.NextDue, _ = time.Parse(time.RFC3339Nano, nextDue)
	if lastRun != nil {
		t, _ := time.Parse(time.RFC3339Nano, *lastRun)
		sc.LastRun = &t
	}
	sc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &sc, nil
}
