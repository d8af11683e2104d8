package profile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/s7dump/internal/coordinator"
	"github.com/me/s7dump/internal/store"
	"github.com/me/s7dump/pkg/model"
)

func testManager(t *testing.T) (*Manager, store.Store, *coordinator.Coordinator) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	coord := coordinator.New(logger)
	m := NewManager(st, coord, logger)
	if err := m.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	return m, st, coord
}

func executableProfile(t *testing.T) *model.JobProfile {
	t.Helper()
	now := time.Now().UTC()
	return &model.JobProfile{
		ID: "jp-test", Name: "test dump",
		SerialProfileID: "default-serial",
		SocatProfileID:  "default-socat",
		PowerProfileID:  "default-power",
		Region:          model.MemoryRegion{Start: 0x1000, Length: 4096},
		PayloadDir:      "payloads",
		OutputPath:      filepath.Join(t.TempDir(), "dump.bin"),
		CreatedAt:       now, UpdatedAt: now,
	}
}

func fieldMessages(t *testing.T, err error) []string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not an APIError", err)
	}
	var msgs []string
	for _, d := range apiErr.Details {
		msgs = append(msgs, d.Field+": "+d.Message)
	}
	return msgs
}

func TestValidateAcceptsGoodProfile(t *testing.T) {
	m, _, _ := testManager(t)

	if err := m.Validate(context.Background(), executableProfile(t)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	m, _, _ := testManager(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		mutate    func(p *model.JobProfile)
		wantField string
	}{
		{
			name:      "unknown serial profile",
			mutate:    func(p *model.JobProfile) { p.SerialProfileID = "nope" },
			wantField: "serial_profile_id",
		},
		{
			name:      "unknown power profile",
			mutate:    func(p *model.JobProfile) { p.PowerProfileID = "nope" },
			wantField: "power_profile_id",
		},
		{
			name:      "zero length region",
			mutate:    func(p *model.JobProfile) { p.Region.Length = 0 },
			wantField: "region.length",
		},
		{
			name:      "oversized region",
			mutate:    func(p *model.JobProfile) { p.Region.Length = MaxDumpBytes + 1 },
			wantField: "region.length",
		},
		{
			name: "wrapping region",
			mutate: func(p *model.JobProfile) {
				p.Region.Start = 0xFFFFFF00
				p.Region.Length = 0x200
			},
			wantField: "region",
		},
		{
			name: "region one byte past the top",
			mutate: func(p *model.JobProfile) {
				p.Region.Start = 0xFFFFFF01
				p.Region.Length = 0x100
			},
			wantField: "region",
		},
		{
			name:      "missing output path",
			mutate:    func(p *model.JobProfile) { p.OutputPath = "" },
			wantField: "output_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := executableProfile(t)
			tt.mutate(p)
			err := m.Validate(ctx, p)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			found := false
			for _, msg := range fieldMessages(t, err) {
				if strings.HasPrefix(msg, tt.wantField+":") {
					found = true
				}
			}
			if !found {
				t.Errorf("no detail for field %q in %v", tt.wantField, err)
			}
		})
	}
}

func TestValidateAcceptsRegionEndingAtTopOfAddressSpace(t *testing.T) {
	m, _, _ := testManager(t)

	// The last 256 bytes of the 32-bit space are a legal dump target.
	p := executableProfile(t)
	p.Region.Start = 0xFFFFFF00
	p.Region.Length = 0x100
	if err := m.Validate(context.Background(), p); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsDangerousSttyFlags(t *testing.T) {
	m, st, _ := testManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := st.CreateSerialProfile(ctx, &model.SerialProfile{
		ID: "sp-bad", Name: "tampered", Device: "/dev/ttyUSB1", Baud: 9600,
		SttyFlags: "cs8; rm -rf /",
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatal(err)
	}

	p := executableProfile(t)
	p.SerialProfileID = "sp-bad"
	if err := m.Validate(ctx, p); err == nil {
		t.Fatal("profile with dangerous stty flags must not validate")
	}
}

func TestMaterializeFreezesProfileSet(t *testing.T) {
	m, st, _ := testManager(t)
	ctx := context.Background()

	p := executableProfile(t)
	job, err := m.Materialize(ctx, p)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if job.State != model.JobStateCreated {
		t.Errorf("state = %s, want %s", job.State, model.JobStateCreated)
	}
	if job.Profiles.Serial.Device != "/dev/ttyUSB0" || job.Profiles.Bridge.Port != 1238 {
		t.Errorf("materialized set = %+v", job.Profiles)
	}
	if len(job.Resources) != 3 {
		t.Errorf("resources = %d, want 3", len(job.Resources))
	}

	// Editing the source serial profile must not touch the job.
	serial, _ := st.GetSerialProfile(ctx, "default-serial")
	serial.Device = "/dev/ttyUSB9"
	serial.ReadOnly = false
	if err := st.UpdateSerialProfile(ctx, serial); err != nil {
		t.Fatal(err)
	}
	if job.Profiles.Serial.Device != "/dev/ttyUSB0" {
		t.Error("job profile set changed after source edit")
	}
}

func TestMaterializeRejectsTemplates(t *testing.T) {
	m, _, _ := testManager(t)

	p := executableProfile(t)
	p.IsTemplate = true
	if _, err := m.Materialize(context.Background(), p); err == nil {
		t.Fatal("templates must not materialize")
	}
}

func TestCanExecuteReportsBusyResources(t *testing.T) {
	m, _, coord := testManager(t)
	ctx := context.Background()
	p := executableProfile(t)

	if err := m.CanExecute(ctx, p); err != nil {
		t.Fatalf("CanExecute on idle bench: %v", err)
	}

	// Hold the serial device and check the conflict surfaces.
	coord.TryAcquire([]model.ResourceKey{{Kind: model.ResourceSerial, ID: "/dev/ttyUSB0"}})
	err := m.CanExecute(ctx, p)
	if err == nil {
		t.Fatal("CanExecute should fail while the device is held")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrConflict {
		t.Errorf("error = %v, want CONFLICT", err)
	}

	// The probe must not leave anything held besides the original key.
	coord.Release([]model.ResourceKey{{Kind: model.ResourceSerial, ID: "/dev/ttyUSB0"}})
	if len(coord.Holdings()) != 0 {
		t.Errorf("probe leaked holdings: %v", coord.Holdings())
	}
}

func TestCreateFromTemplate(t *testing.T) {
	m, st, _ := testManager(t)
	ctx := context.Background()

	dup, err := m.CreateFromTemplate(ctx, "template-dump", "my dump")
	if err != nil {
		t.Fatalf("CreateFromTemplate: %v", err)
	}
	if dup.IsTemplate || dup.IsDefault || dup.ReadOnly {
		t.Errorf("duplicate kept protection flags: %+v", dup)
	}
	if dup.Name != "my dump" || dup.ID == "template-dump" {
		t.Errorf("duplicate identity wrong: %+v", dup)
	}

	stored, err := st.GetJobProfile(ctx, dup.ID)
	if err != nil || stored == nil {
		t.Fatalf("duplicate not persisted: %v", err)
	}

	// Duplicating a non-template fails.
	if _, err := m.CreateFromTemplate(ctx, dup.ID, "again"); err == nil {
		t.Error("non-template source should be rejected")
	}
}

func TestProtectedProfilesAreImmutable(t *testing.T) {
	m, st, _ := testManager(t)
	ctx := context.Background()

	tpl, _ := st.GetJobProfile(ctx, "template-dump")
	tpl.Name = "renamed"
	if err := m.UpdateJobProfile(ctx, tpl); err == nil {
		t.Error("updating a read-only profile should fail")
	}
	if err := m.DeleteJobProfile(ctx, "template-dump"); err == nil {
		t.Error("deleting a read-only profile should fail")
	}

	if err := m.DeleteJobProfile(ctx, "missing"); err == nil {
		t.Error("deleting a missing profile should fail")
	}
}

func TestEnsureDefaultsIsIdempotent(t *testing.T) {
	m, st, _ := testManager(t)
	ctx := context.Background()

	if err := m.EnsureDefaults(ctx); err != nil {
		t.Fatalf("second EnsureDefaults: %v", err)
	}
	profiles, err := st.ListSerialProfiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 {
		t.Errorf("serial profiles = %d after reseed, want 1", len(profiles))
	}
}
