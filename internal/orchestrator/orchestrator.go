// Package orchestrator sequences the hardware protocol for one job:
// bridge the serial line, power-cycle the target, handshake with its
// bootloader, install the stager, dump the requested memory region,
// and tear the session down again.
//
// The orchestrator does not catch stage errors; translating them into
// job state is the scheduler's responsibility.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/me/s7dump/pkg/model"
)

// Stage names reported through the progress sink and carried in error
// messages so a failed job's detail names the stage that broke.
const (
	StageBridge    = "bridge"
	StagePower     = "power"
	StageHandshake = "handshake"
	StageStager    = "stager"
	StageDump      = "dump"
	StageTeardown  = "teardown"
)

// Overall run fractions at the start of each stage. The dump stage
// interpolates between dumpStart and dumpEnd as bytes arrive.
const (
	fracBridge    = 0.05
	fracPower     = 0.10
	fracHandshake = 0.20
	fracStager    = 0.30
	dumpStart     = 0.50
	dumpEnd       = 0.95
)

// Orchestrator runs one job's profile set against the injected
// hardware collaborators. It is stateless and safe for concurrent use;
// each Run gets its own Client from the factory.
type Orchestrator struct {
	clients  ClientFactory
	payloads PayloadProvider
	power    PowerService
	bridge   BridgeService
	logger   *slog.Logger
}

// Config holds the orchestrator's collaborators.
type Config struct {
	Clients  ClientFactory
	Payloads PayloadProvider
	Power    PowerService
	Bridge   BridgeService
}

// New creates an Orchestrator.
func New(cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		clients:  cfg.Clients,
		payloads: cfg.Payloads,
		power:    cfg.Power,
		bridge:   cfg.Bridge,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Run executes the stage sequence for job and writes the dumped bytes
// to the job's output path. Cancellation is observed between stages and
// inside the dump's chunked read loop. progress may be nil.
func (o *Orchestrator) Run(ctx context.Context, job *model.Job, progress ProgressFunc) error {
	if progress == nil {
		progress = func(string, float64) {}
	}
	p := job.Profiles
	logger := o.logger.With("job_id", job.ID)

	// Stage 1: bridge the serial device to the TCP endpoint.
	progress(StageBridge, fracBridge)
	if err := o.bridge.EnsureBridge(ctx, p.Serial, p.Bridge.Host, p.Bridge.Port); err != nil {
		return fmt.Errorf("%s: %w", StageBridge, err)
	}
	logger.Debug("bridge ready", "device", p.Serial.Device, "addr", p.Bridge.Addr())
	defer func() {
		if err := o.bridge.StopBridge(p.Bridge.Port); err != nil {
			logger.Warn("bridge stop", "error", err)
		}
		progress(StageTeardown, 1.0)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 2: power-cycle the target so it boots into the loader.
	progress(StagePower, fracPower)
	if err := o.power.PowerCycle(ctx, p.Power.Host, p.Power.Port, p.Power.Channel, p.Power.Delay()); err != nil {
		return fmt.Errorf("%s: %w", StagePower, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 3: connect and handshake. Failure here aborts the run;
	// no payload ever reaches the target.
	progress(StageHandshake, fracHandshake)
	client := o.clients(p.Bridge.Host, p.Bridge.Port)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("client close", "error", err)
		}
	}()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("%s: connect: %w", StageHandshake, err)
	}
	if err := client.Handshake(ctx); err != nil {
		return fmt.Errorf("%s: %w", StageHandshake, err)
	}
	logger.Debug("handshake complete")

	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 4: install the stager loader.
	progress(StageStager, fracStager)
	stager, err := o.payloads.Stager(p.PayloadDir)
	if err != nil {
		return fmt.Errorf("%s: %w", StageStager, err)
	}
	if err := client.InstallStager(ctx, stager); err != nil {
		return fmt.Errorf("%s: %w", StageStager, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 5: dump the memory region, reporting cumulative progress.
	progress(StageDump, dumpStart)
	dumper, err := o.payloads.MemoryDumper(p.PayloadDir)
	if err != nil {
		return fmt.Errorf("%s: %w", StageDump, err)
	}

	data, err := client.DumpMemory(ctx, p.Region.Start, p.Region.Length, dumper, func(read uint32) {
		frac := dumpStart
		if p.Region.Length > 0 {
			frac += (dumpEnd - dumpStart) * float64(read) / float64(p.Region.Length)
		}
		progress(StageDump, frac)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", StageDump, err)
	}

	if err := writeArtifact(p.OutputPath, data); err != nil {
		return fmt.Errorf("%s: %w", StageDump, err)
	}
	logger.Info("dump written", "path", p.OutputPath, "bytes", len(data))

	return nil
}

// writeArtifact writes the dump to path, creating parent directories.
func writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
