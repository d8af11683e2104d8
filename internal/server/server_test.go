package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/s7dump/internal/config"
	"github.com/me/s7dump/internal/coordinator"
	"github.com/me/s7dump/internal/orchestrator"
	"github.com/me/s7dump/internal/profile"
	"github.com/me/s7dump/internal/schedule"
	"github.com/me/s7dump/internal/scheduler"
	"github.com/me/s7dump/internal/store"
	"github.com/me/s7dump/pkg/model"
)

// instantRunner completes every job immediately.
type instantRunner struct{}

func (instantRunner) Run(ctx context.Context, job *model.Job, progress orchestrator.ProgressFunc) error {
	return nil
}

func testServer(t *testing.T) (*Server, store.Store) {
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
	profiles := profile.NewManager(st, coord, logger)
	if err := profiles.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}

	sched := scheduler.New(coord, instantRunner{}, scheduler.Config{History: st}, logger)
	t.Cleanup(sched.Stop)
	broker := scheduler.NewBroker(sched.Events(), logger)
	schedules := schedule.NewService(st, profiles, sched, schedule.DefaultConfig(), logger)

	srv := New(config.DefaultServerConfig(), Deps{
		Store:       st,
		Scheduler:   sched,
		Profiles:    profiles,
		Coordinator: coord,
		Broker:      broker,
		Schedules:   schedules,
	}, logger)
	return srv, st
}

// envelope decodes the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func doReq(t *testing.T, srv *Server, method, path string, body any, wantStatus int) envelope {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("%s %s: status=%d, want %d, body=%s", method, path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON: %v", method, path, err)
	}
	return env
}

func decodeData(t *testing.T, env envelope, into any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, into); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

// createJobProfile makes an executable profile over the API, referencing
// the seeded default collaborator profiles.
func createJobProfile(t *testing.T, srv *Server, name string) model.JobProfile {
	t.Helper()
	env := doReq(t, srv, "POST", "/api/v1/profiles/jobs", model.JobProfile{
		Name:            name,
		SerialProfileID: "default-serial",
		SocatProfileID:  "default-socat",
		PowerProfileID:  "default-power",
		Region:          model.MemoryRegion{Start: 0x1000, Length: 4096},
		PayloadDir:      "payloads",
		OutputPath:      filepath.Join(t.TempDir(), "dump.bin"),
	}, http.StatusCreated)

	var p model.JobProfile
	decodeData(t, env, &p)
	if p.ID == "" {
		t.Fatal("created profile has no id")
	}
	return p
}

func TestDiscovery(t *testing.T) {
	srv, _ := testServer(t)
	env := doReq(t, srv, "GET", "/api/v1/", nil, http.StatusOK)
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	var data struct {
		Name      string `json:"name"`
		Endpoints []struct {
			Path string `json:"path"`
		} `json:"endpoints"`
	}
	decodeData(t, env, &data)
	if data.Name != "s7dump API" {
		t.Errorf("name = %q, want s7dump API", data.Name)
	}
	if len(data.Endpoints) < 10 {
		t.Errorf("endpoints count = %d, want >= 10", len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	env := doReq(t, srv, "GET", "/api/v1/health", nil, http.StatusOK)

	var data struct {
		Status    string `json:"status"`
		GoVersion string `json:"go_version"`
	}
	decodeData(t, env, &data)
	if data.Status != "healthy" {
		t.Errorf("status = %q, want healthy", data.Status)
	}
	if data.GoVersion == "" {
		t.Error("go_version is empty")
	}
}

func TestSerialProfileCRUD(t *testing.T) {
	srv, _ := testServer(t)

	env := doReq(t, srv, "POST", "/api/v1/profiles/serial", model.SerialProfile{
		Name: "bench rig", Device: "/dev/ttyUSB1", Baud: 115200, SttyFlags: "cs8 -parenb",
	}, http.StatusCreated)
	var created model.SerialProfile
	decodeData(t, env, &created)

	env = doReq(t, srv, "GET", "/api/v1/profiles/serial/"+created.ID, nil, http.StatusOK)
	var got model.SerialProfile
	decodeData(t, env, &got)
	if got.Device != "/dev/ttyUSB1" || got.Baud != 115200 {
		t.Errorf("got %+v", got)
	}

	got.Baud = 57600
	env = doReq(t, srv, "PUT", "/api/v1/profiles/serial/"+created.ID, got, http.StatusOK)
	decodeData(t, env, &got)
	if got.Baud != 57600 {
		t.Errorf("baud = %d after update, want 57600", got.Baud)
	}

	doReq(t, srv, "DELETE", "/api/v1/profiles/serial/"+created.ID, nil, http.StatusOK)
	doReq(t, srv, "GET", "/api/v1/profiles/serial/"+created.ID, nil, http.StatusNotFound)
}

func TestSerialProfileRejectsDangerousFlags(t *testing.T) {
	srv, _ := testServer(t)

	env := doReq(t, srv, "POST", "/api/v1/profiles/serial", model.SerialProfile{
		Name: "bad", Device: "/dev/ttyUSB1", Baud: 9600, SttyFlags: "cs8; rm -rf /",
	}, http.StatusBadRequest)
	if env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Fatalf("error = %+v, want validation error", env.Error)
	}
}

func TestDefaultProfilesAreProtected(t *testing.T) {
	srv, _ := testServer(t)

	env := doReq(t, srv, "PUT", "/api/v1/profiles/serial/default-serial", model.SerialProfile{
		Name: "hijack", Device: "/dev/null", Baud: 1,
	}, http.StatusConflict)
	if env.Error == nil || env.Error.Code != model.ErrConflict {
		t.Fatalf("error = %+v, want conflict", env.Error)
	}

	doReq(t, srv, "DELETE", "/api/v1/profiles/power/default-power", nil, http.StatusConflict)
}

func TestJobProfileValidateAndCanExecute(t *testing.T) {
	srv, _ := testServer(t)
	p := createJobProfile(t, srv, "validate me")

	env := doReq(t, srv, "POST", "/api/v1/profiles/jobs/"+p.ID+"/validate", nil, http.StatusOK)
	var v map[string]bool
	decodeData(t, env, &v)
	if !v["valid"] {
		t.Error("valid = false, want true")
	}

	env = doReq(t, srv, "GET", "/api/v1/profiles/jobs/"+p.ID+"/can-execute", nil, http.StatusOK)
	decodeData(t, env, &v)
	if !v["can_execute"] {
		t.Error("can_execute = false, want true")
	}
}

func TestDuplicateTemplate(t *testing.T) {
	srv, _ := testServer(t)

	env := doReq(t, srv, "POST", "/api/v1/profiles/jobs/template-dump/duplicate",
		map[string]string{"name": "my dump"}, http.StatusCreated)
	var dup model.JobProfile
	decodeData(t, env, &dup)
	if dup.IsTemplate || dup.IsDefault || dup.ReadOnly {
		t.Errorf("duplicate kept protection flags: %+v", dup)
	}
	if dup.Name != "my dump" {
		t.Errorf("name = %q", dup.Name)
	}
	if dup.ID == "template-dump" {
		t.Error("duplicate reused template id")
	}
}

func TestSubmitJobLifecycle(t *testing.T) {
	srv, _ := testServer(t)
	p := createJobProfile(t, srv, "lifecycle")

	env := doReq(t, srv, "POST", "/api/v1/jobs",
		map[string]string{"profile_id": p.ID, "name": "first dump"}, http.StatusCreated)
	var job model.Job
	decodeData(t, env, &job)
	if job.Name != "first dump" {
		t.Errorf("name = %q", job.Name)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		env = doReq(t, srv, "GET", "/api/v1/jobs/"+job.ID.String(), nil, http.StatusOK)
		decodeData(t, env, &job)
		if job.State.IsTerminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in state %s", job.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if job.State != model.JobStateCompleted {
		t.Fatalf("state = %s, want COMPLETED", job.State)
	}

	// Terminal jobs land in the persisted history.
	env = doReq(t, srv, "GET", "/api/v1/jobs?history=true", nil, http.StatusOK)
	var history []model.Job
	decodeData(t, env, &history)
	found := false
	for _, h := range history {
		if h.ID == job.ID {
			found = true
		}
	}
	if !found {
		t.Error("completed job missing from history")
	}
	if env.Pagination == nil {
		t.Error("history listing has no pagination")
	}
}

func TestSubmitJobUnknownProfile(t *testing.T) {
	srv, _ := testServer(t)
	env := doReq(t, srv, "POST", "/api/v1/jobs",
		map[string]string{"profile_id": "nope"}, http.StatusNotFound)
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Fatalf("error = %+v, want not found", env.Error)
	}
}

func TestSubmitJobMissingProfileID(t *testing.T) {
	srv, _ := testServer(t)
	doReq(t, srv, "POST", "/api/v1/jobs", map[string]string{}, http.StatusBadRequest)
}

func TestCancelUnknownJob(t *testing.T) {
	srv, _ := testServer(t)
	doReq(t, srv, "PUT", "/api/v1/jobs/00000000-0000-0000-0000-000000000001/cancel",
		nil, http.StatusConflict)
	doReq(t, srv, "PUT", "/api/v1/jobs/not-a-uuid/cancel", nil, http.StatusBadRequest)
}

func TestScheduleCRUD(t *testing.T) {
	srv, _ := testServer(t)
	p := createJobProfile(t, srv, "nightly profile")

	env := doReq(t, srv, "POST", "/api/v1/schedules", model.Schedule{
		Name: "nightly", JobProfileID: p.ID, CronExpr: "0 3 * * *", Enabled: true,
	}, http.StatusCreated)
	var sc model.Schedule
	decodeData(t, env, &sc)
	if sc.NextDue.IsZero() {
		t.Error("next_due not computed")
	}

	env = doReq(t, srv, "GET", "/api/v1/schedules/"+sc.ID, nil, http.StatusOK)
	decodeData(t, env, &sc)

	sc.CronExpr = "30 4 * * *"
	env = doReq(t, srv, "PUT", "/api/v1/schedules/"+sc.ID, sc, http.StatusOK)
	var updated model.Schedule
	decodeData(t, env, &updated)
	if updated.CronExpr != "30 4 * * *" {
		t.Errorf("cron_expr = %q", updated.CronExpr)
	}

	doReq(t, srv, "DELETE", "/api/v1/schedules/"+sc.ID, nil, http.StatusOK)
	doReq(t, srv, "GET", "/api/v1/schedules/"+sc.ID, nil, http.StatusNotFound)
}

func TestScheduleRejectsBadCron(t *testing.T) {
	srv, _ := testServer(t)
	p := createJobProfile(t, srv, "bad cron profile")

	doReq(t, srv, "POST", "/api/v1/schedules", model.Schedule{
		Name: "broken", JobProfileID: p.ID, CronExpr: "not a cron", Enabled: true,
	}, http.StatusBadRequest)
}

func TestResourcesEmptyWhenIdle(t *testing.T) {
	srv, _ := testServer(t)
	env := doReq(t, srv, "GET", "/api/v1/resources", nil, http.StatusOK)

	var data struct {
		Count int `json:"count"`
	}
	decodeData(t, env, &data)
	if data.Count != 0 {
		t.Errorf("count = %d, want 0", data.Count)
	}
}

func TestHealthzPlainText(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz: code=%d body=%q", w.Code, w.Body.String())
	}
}

func TestSSEJobsSendsInit(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/v1/sse/jobs", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sse request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: init") {
			return
		}
	}
	t.Fatal("no init event before stream ended")
}
