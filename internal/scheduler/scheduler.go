// Package scheduler owns the job queue and the admission-controlled
// dispatch of jobs onto exclusive hardware resources.
//
// Each dispatch pass scans the whole queue and admits every job whose
// full resource set is currently free; blocked jobs keep their queue
// position. This trades strict FIFO between conflicting jobs for
// resistance to head-of-line blocking: a job waiting on a busy serial
// line never delays jobs that need a different one.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/s7dump/internal/coordinator"
	"github.com/me/s7dump/internal/metrics"
	"github.com/me/s7dump/internal/orchestrator"
	"github.com/me/s7dump/pkg/model"
)

const defaultEventBuffer = 64

// Runner executes one admitted job. Implemented by the orchestrator;
// tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, job *model.Job, progress orchestrator.ProgressFunc) error
}

// History records jobs that reached a terminal state. Implemented by
// the store; nil disables recording.
type History interface {
	RecordJob(ctx context.Context, job *model.Job) error
}

// Config holds optional scheduler dependencies.
type Config struct {
	// EventBuffer is the capacity of the Events channel (default 64).
	// When the buffer is full, events are dropped rather than blocking
	// the dispatcher.
	EventBuffer int

	// History, when set, receives every job that reaches a terminal
	// state so it survives a restart.
	History History

	// Metrics, when set, receives scheduler counters.
	Metrics *metrics.Metrics
}

// Scheduler is the only component that transitions job state. Many
// jobs run concurrently as long as their resource sets are pairwise
// disjoint; conflicting jobs are serialized by the coordinator.
type Scheduler struct {
	coord   *coordinator.Coordinator
	runner  Runner
	history History
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	jobs    map[uuid.UUID]*model.Job
	queue   []uuid.UUID
	cancels map[uuid.UUID]context.CancelFunc
	closed  bool

	events chan model.JobEvent
	wg     sync.WaitGroup
}

// New creates a Scheduler.
func New(coord *coordinator.Coordinator, runner Runner, cfg Config, logger *slog.Logger) *Scheduler {
	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = defaultEventBuffer
	}
	return &Scheduler{
		coord:   coord,
		runner:  runner,
		history: cfg.History,
		metrics: cfg.Metrics,
		logger:  logger.With("component", "scheduler"),
		jobs:    make(map[uuid.UUID]*model.Job),
		cancels: make(map[uuid.UUID]context.CancelFunc),
		events:  make(chan model.JobEvent, buf),
	}
}

// Events returns the stream of job state notifications. The channel is
// closed by Stop. Slow consumers lose events rather than stalling the
// dispatcher.
func (s *Scheduler) Events() <-chan model.JobEvent {
	return s.events
}

// Enqueue accepts a CREATED job, marks it QUEUED, and triggers a
// dispatch pass. It never blocks on execution.
func (s *Scheduler) Enqueue(job *model.Job) (uuid.UUID, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return uuid.Nil, errors.New("scheduler is stopped")
	}
	if job.State != model.JobStateCreated {
		s.mu.Unlock()
		return uuid.Nil, fmt.Errorf("job %s is %s, only new jobs can be enqueued", job.ID, job.State)
	}
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		return uuid.Nil, fmt.Errorf("job %s already enqueued", job.ID)
	}

	owned := job.Clone()
	ev := s.transition(owned, model.JobStateQueued, "")
	s.jobs[owned.ID] = owned
	s.queue = append(s.queue, owned.ID)
	s.metrics.ObserveEnqueued()
	s.mu.Unlock()

	s.logger.Info("job enqueued", "job_id", owned.ID, "name", owned.Name, "resources", len(owned.Resources))
	s.emit(ev)
	s.dispatch()
	return owned.ID, nil
}

// Get returns a snapshot of one job.
func (s *Scheduler) Get(id uuid.UUID) (*model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// GetAll returns snapshots of every job the scheduler has seen,
// oldest first.
func (s *Scheduler) GetAll() []model.Job {
	s.mu.Lock()
	out := make([]model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Cancel cancels a job. A queued job goes straight to CANCELED; a
// running job is signaled and reaches CANCELED at the next stage or
// dump-chunk boundary. Canceling a terminal job is an error.
func (s *Scheduler) Cancel(id uuid.UUID) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %s not found", id)
	}

	switch job.State {
	case model.JobStateQueued:
		s.removeFromQueue(id)
		ev := s.transition(job, model.JobStateCanceled, "canceled before start")
		s.metrics.ObserveCanceledQueued(string(model.JobStateCanceled))
		clone := job.Clone()
		s.mu.Unlock()

		s.logger.Info("queued job canceled", "job_id", id)
		s.emit(ev)
		s.record(clone)
		return nil

	case model.JobStateRunning:
		cancel := s.cancels[id]
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.logger.Info("running job cancellation requested", "job_id", id)
		return nil

	default:
		state := job.State
		s.mu.Unlock()
		return &model.InvalidTransitionError{JobID: id.String(), From: state, To: model.JobStateCanceled}
	}
}

// Stop cancels all running jobs, waits for them to finish, and closes
// the events channel. Calling Stop more than once is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancels := make([]context.CancelFunc, 0, len(s.cancels))
	for _, c := range s.cancels {
		cancels = append(cancels, c)
	}
	s.mu.Unlock()

	for _, c := range cancels {
		c()
	}
	s.wg.Wait()

	// Close under the lock: emit holds it across its send, so no send
	// can race the close, and any emit arriving later sees closed.
	s.mu.Lock()
	close(s.events)
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

// dispatch is triggered on every Enqueue and on every job completion;
// the scheduler is reactive, there is no polling loop.
func (s *Scheduler) dispatch() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	type admission struct {
		ctx context.Context
		job *model.Job
	}

	var events []model.JobEvent
	var admitted []admission
	remaining := s.queue[:0]
	for _, id := range s.queue {
		job := s.jobs[id]
		if job == nil || job.State != model.JobStateQueued {
			continue
		}
		if !s.coord.TryAcquire(job.Resources) {
			// Busy resource: not an error, the job just keeps waiting.
			s.metrics.ObserveAdmissionDenied()
			remaining = append(remaining, id)
			continue
		}

		events = append(events, s.transition(job, model.JobStateRunning, "starting"))
		ctx, cancel := context.WithCancel(context.Background())
		s.cancels[id] = cancel
		s.metrics.ObserveStarted(len(job.Resources))

		s.wg.Add(1)
		admitted = append(admitted, admission{ctx: ctx, job: job.Clone()})
	}
	s.queue = append([]uuid.UUID(nil), remaining...)
	s.mu.Unlock()

	// RUNNING events go out before the runs start, so a job that
	// finishes instantly still reports RUNNING before its terminal
	// event.
	for _, ev := range events {
		s.emit(ev)
	}
	for _, a := range admitted {
		go s.run(a.ctx, a.job)
	}
}

// run executes one admitted job and finalizes it. finalize releases
// the job's resources exactly once on every path, including panics
// inside orchestration.
func (s *Scheduler) run(ctx context.Context, job *model.Job) {
	defer s.wg.Done()
	start := time.Now()

	err := s.execute(ctx, job)
	s.finalize(job.ID, err, time.Since(start))
}

// execute invokes the runner, converting panics into errors so a
// single broken job can never take down the dispatcher.
func (s *Scheduler) execute(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestration panic: %v", r)
		}
	}()
	return s.runner.Run(ctx, job, func(stage string, frac float64) {
		s.reportProgress(job.ID, stage, frac)
	})
}

// reportProgress emits an interim RUNNING event with a
// "stage:percent%" marker.
func (s *Scheduler) reportProgress(id uuid.UUID, stage string, frac float64) {
	detail := fmt.Sprintf("%s:%d%%", stage, int(frac*100+0.5))

	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.State != model.JobStateRunning {
		s.mu.Unlock()
		return
	}
	job.Detail = detail
	ev := model.JobEvent{JobID: id, State: model.JobStateRunning, Detail: detail, At: time.Now().UTC()}
	s.mu.Unlock()

	s.emit(ev)
}

// finalize translates the run result into a terminal state, releases
// the job's resources, and triggers the next dispatch pass.
func (s *Scheduler) finalize(id uuid.UUID, runErr error, elapsed time.Duration) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.cancels, id)

	var next model.JobState
	var detail string
	switch {
	case runErr == nil:
		next = model.JobStateCompleted
		detail = job.Profiles.OutputPath
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		next = model.JobStateCanceled
		detail = "canceled: " + runErr.Error()
	default:
		next = model.JobStateFailed
		detail = runErr.Error()
	}

	ev := s.transition(job, next, detail)
	s.coord.Release(job.Resources)
	s.metrics.ObserveFinished(string(next), len(job.Resources), elapsed.Seconds())
	clone := job.Clone()
	s.mu.Unlock()

	switch next {
	case model.JobStateFailed:
		s.logger.Error("job failed", "job_id", id, "detail", detail, "elapsed", elapsed.String())
	default:
		s.logger.Info("job finished", "job_id", id, "state", next, "elapsed", elapsed.String())
	}

	s.emit(ev)
	s.record(clone)
	s.dispatch()
}

// transition applies a guarded state change. Caller holds s.mu.
func (s *Scheduler) transition(job *model.Job, next model.JobState, detail string) model.JobEvent {
	if !job.State.CanTransitionTo(next) {
		// Internal invariant violation; log loudly and refuse.
		s.logger.Error("invalid state transition",
			"job_id", job.ID, "from", job.State, "to", next)
		return model.JobEvent{JobID: job.ID, State: job.State, Detail: job.Detail, At: time.Now().UTC()}
	}

	now := time.Now().UTC()
	job.State = next
	job.Detail = detail
	switch {
	case next == model.JobStateRunning:
		job.StartedAt = &now
	case next.IsTerminal():
		job.CompletedAt = &now
	}
	return model.JobEvent{JobID: job.ID, State: next, Detail: detail, At: now}
}

// removeFromQueue drops one id from the queue. Caller holds s.mu.
func (s *Scheduler) removeFromQueue(id uuid.UUID) {
	for i, qid := range s.queue {
		if qid == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// emit pushes an event without ever blocking the dispatcher. Events
// raised after Stop has begun are dropped; the jobs themselves still
// reach the history sink.
func (s *Scheduler) emit(ev model.JobEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event buffer full, dropping event", "job_id", ev.JobID, "state", ev.State)
	}
}

// record persists a terminal job if a history sink is configured.
func (s *Scheduler) record(job *model.Job) {
	if s.history == nil || !job.State.IsTerminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.RecordJob(ctx, job); err != nil {
		s.logger.Error("record job history", "job_id", job.ID, "error", err)
	}
}
