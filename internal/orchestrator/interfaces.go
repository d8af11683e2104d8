package orchestrator

import (
	"context"
	"time"

	"github.com/me/s7dump/pkg/model"
)

// Client is a bootloader protocol session over the bridged TCP endpoint.
// Implementations live outside this package (see internal/protocol).
type Client interface {
	// Connect opens the transport to the bridge endpoint.
	Connect(ctx context.Context) error

	// Handshake synchronizes with the target's bootloader. It must only
	// be called after a successful Connect.
	Handshake(ctx context.Context) error

	// InstallStager transfers the stager loader blob to the target.
	InstallStager(ctx context.Context, payload []byte) error

	// DumpMemory installs the dumper payload and streams back length
	// bytes starting at start. progress is called with the cumulative
	// byte count as chunks arrive.
	DumpMemory(ctx context.Context, start, length uint32, dumper []byte, progress func(read uint32)) ([]byte, error)

	// Close releases the transport. Safe to call after a failed Connect.
	Close() error
}

// ClientFactory builds a Client for a bridge endpoint.
type ClientFactory func(host string, port int) Client

// PayloadProvider loads the loader blobs from a payload directory.
type PayloadProvider interface {
	Stager(dir string) ([]byte, error)
	MemoryDumper(dir string) ([]byte, error)
}

// PowerService power-cycles the target device.
type PowerService interface {
	// PowerCycle switches the given supply channel off and back on,
	// then waits delay before returning so the target can boot into
	// its loader.
	PowerCycle(ctx context.Context, host string, port, channel int, delay time.Duration) error
}

// BridgeService manages serial-to-TCP bridges.
type BridgeService interface {
	// EnsureBridge makes sure a bridge from the serial device to the
	// TCP endpoint exists, starting one if needed. The serial profile's
	// extra stty flags are applied to the device before the bridge
	// process starts.
	EnsureBridge(ctx context.Context, serial model.SerialParams, host string, port int) error

	// StopBridge tears down the bridge listening on the given port.
	StopBridge(port int) error
}

// ProgressFunc receives (stage, fraction) markers as the run advances.
// fraction is in [0,1] across the whole run, not per stage.
type ProgressFunc func(stage string, fraction float64)
