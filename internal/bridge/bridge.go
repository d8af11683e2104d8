// Package bridge manages socat processes that expose a serial device
// as a TCP listener, so the dump protocol can run over a plain socket.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/me/s7dump/pkg/model"
)

const startupGrace = 200 * time.Millisecond

// Manager starts and stops one socat bridge per TCP port. A bridge
// started for a job is torn down when the job finishes; Close reaps
// anything left at shutdown.
type Manager struct {
	socatPath string
	sttyPath  string
	logger    *slog.Logger

	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// Config holds optional tool paths, mainly for tests.
type Config struct {
	// SocatPath overrides the socat binary (default "socat").
	SocatPath string
	// SttyPath overrides the stty binary (default "stty").
	SttyPath string
}

// NewManager creates a Manager.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.SocatPath == "" {
		cfg.SocatPath = "socat"
	}
	if cfg.SttyPath == "" {
		cfg.SttyPath = "stty"
	}
	return &Manager{
		socatPath: cfg.SocatPath,
		sttyPath:  cfg.SttyPath,
		logger:    logger.With("component", "bridge"),
		procs:     make(map[int]*exec.Cmd),
	}
}

// socatArgs builds the two socat addresses: a forking TCP listener and
// the raw serial device with local echo disabled.
func socatArgs(device string, baud int, host string, port int) []string {
	listen := fmt.Sprintf("TCP-LISTEN:%d,bind=%s,reuseaddr,fork", port, host)
	file := fmt.Sprintf("FILE:%s,b%d,raw,echo=0", device, baud)
	return []string{listen, file}
}

// EnsureBridge starts a socat bridge from the serial device to
// host:port unless one is already running on that port. Extra stty
// flags from the serial profile are applied to the device first, so
// socat opens a line that is already configured.
func (m *Manager) EnsureBridge(ctx context.Context, serial model.SerialParams, host string, port int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, running := m.procs[port]; running {
		m.logger.Debug("bridge already running", "port", port)
		return nil
	}

	if err := m.ApplyStty(ctx, serial.Device, serial.SttyFlags); err != nil {
		return err
	}

	args := socatArgs(serial.Device, serial.Baud, host, port)
	cmd := exec.Command(m.socatPath, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start socat for %s: %w", serial.Device, err)
	}
	m.procs[port] = cmd
	m.logger.Info("bridge started", "device", serial.Device, "baud", serial.Baud, "addr", fmt.Sprintf("%s:%d", host, port), "pid", cmd.Process.Pid)

	go m.reap(port, cmd)

	// Give socat a moment to bind before the first connection attempt.
	select {
	case <-time.After(startupGrace):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// ApplyStty applies validated extra flags to the serial device before
// the bridge starts.
func (m *Manager) ApplyStty(ctx context.Context, device, flags string) error {
	if err := ValidateSttyFlags(flags); err != nil {
		return err
	}
	if flags == "" {
		return nil
	}

	args := append([]string{"-F", device}, splitFlags(flags)...)
	out, err := exec.CommandContext(ctx, m.sttyPath, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("stty %s: %w (%s)", device, err, string(out))
	}
	m.logger.Debug("stty flags applied", "device", device, "flags", flags)
	return nil
}

// StopBridge kills the bridge on the given port. Stopping a port with
// no bridge is a no-op.
func (m *Manager) StopBridge(port int) error {
	m.mu.Lock()
	cmd, ok := m.procs[port]
	delete(m.procs, port)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("stop bridge on port %d: %w", port, err)
	}
	m.logger.Info("bridge stopped", "port", port)
	return nil
}

// Close stops every remaining bridge.
func (m *Manager) Close() error {
	m.mu.Lock()
	ports := make([]int, 0, len(m.procs))
	for port := range m.procs {
		ports = append(ports, port)
	}
	m.mu.Unlock()

	var firstErr error
	for _, port := range ports {
		if err := m.StopBridge(port); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Running reports whether a bridge is active on the given port.
func (m *Manager) Running(port int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.procs[port]
	return ok
}

// reap waits for the process and clears the table entry, so a socat
// that dies on its own (unplugged device) does not leave a stale entry
// blocking restarts.
func (m *Manager) reap(port int, cmd *exec.Cmd) {
	err := cmd.Wait()

	m.mu.Lock()
	if current, ok := m.procs[port]; ok && current == cmd {
		delete(m.procs, port)
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("bridge process exited", "port", port, "error", err)
	}
}
