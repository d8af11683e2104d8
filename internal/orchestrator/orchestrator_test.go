package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/s7dump/pkg/model"
)

// fakeClient records protocol calls and can be told to fail a stage.
type fakeClient struct {
	calls         []string
	handshakeErr  error
	dumpData      []byte
	cancelAtBytes uint32 // if > 0, the test cancels ctx once progress passes this
	cancel        context.CancelFunc
}

func (c *fakeClient) Connect(ctx context.Context) error {
	c.calls = append(c.calls, "connect")
	return nil
}

func (c *fakeClient) Handshake(ctx context.Context) error {
	c.calls = append(c.calls, "handshake")
	return c.handshakeErr
}

func (c *fakeClient) InstallStager(ctx context.Context, payload []byte) error {
	c.calls = append(c.calls, "stager")
	return nil
}

func (c *fakeClient) DumpMemory(ctx context.Context, start, length uint32, dumper []byte, progress func(uint32)) ([]byte, error) {
	c.calls = append(c.calls, "dump")
	const chunk = 64
	var read uint32
	for read < length {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := uint32(chunk)
		if length-read < n {
			n = length - read
		}
		read += n
		progress(read)
		if c.cancelAtBytes > 0 && read >= c.cancelAtBytes && c.cancel != nil {
			c.cancel()
		}
	}
	if c.dumpData != nil {
		return c.dumpData, nil
	}
	return make([]byte, length), nil
}

func (c *fakeClient) Close() error {
	c.calls = append(c.calls, "close")
	return nil
}

type fakePayloads struct{}

func (fakePayloads) Stager(dir string) ([]byte, error)       { return []byte{0xde, 0xad}, nil }
func (fakePayloads) MemoryDumper(dir string) ([]byte, error) { return []byte{0xbe, 0xef}, nil }

type fakePower struct{ calls int }

func (p *fakePower) PowerCycle(ctx context.Context, host string, port, channel int, delay time.Duration) error {
	p.calls++
	return nil
}

type fakeBridge struct {
	ensured int
	stopped int
	serial  model.SerialParams
}

func (b *fakeBridge) EnsureBridge(ctx context.Context, serial model.SerialParams, host string, port int) error {
	b.ensured++
	b.serial = serial
	return nil
}

func (b *fakeBridge) StopBridge(port int) error {
	b.stopped++
	return nil
}

func testJob(t *testing.T) *model.Job {
	t.Helper()
	return model.NewJob("test-dump", model.JobProfileSet{
		Serial:     model.SerialParams{Device: "/dev/ttyUSB0", Baud: 9600},
		Bridge:     model.BridgeParams{Host: "127.0.0.1", Port: 20000},
		Power:      model.PowerParams{Host: "psu", Port: 5025, Channel: 1},
		Region:     model.MemoryRegion{Start: 0x1000, Length: 512},
		PayloadDir: "payloads",
		OutputPath: filepath.Join(t.TempDir(), "out", "dump.bin"),
	})
}

func testOrchestrator(client *fakeClient) (*Orchestrator, *fakePower, *fakeBridge) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	power := &fakePower{}
	bridge := &fakeBridge{}
	o := New(Config{
		Clients:  func(host string, port int) Client { return client },
		Payloads: fakePayloads{},
		Power:    power,
		Bridge:   bridge,
	}, logger)
	return o, power, bridge
}

func TestRunStageOrder(t *testing.T) {
	client := &fakeClient{}
	o, power, bridge := testOrchestrator(client)
	job := testJob(t)

	var stages []string
	err := o.Run(context.Background(), job, func(stage string, frac float64) {
		if len(stages) == 0 || stages[len(stages)-1] != stage {
			stages = append(stages, stage)
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantCalls := []string{"connect", "handshake", "stager", "dump", "close"}
	if got := strings.Join(client.calls, ","); got != strings.Join(wantCalls, ",") {
		t.Errorf("client calls = %s, want %s", got, strings.Join(wantCalls, ","))
	}
	wantStages := []string{StageBridge, StagePower, StageHandshake, StageStager, StageDump, StageTeardown}
	if got := strings.Join(stages, ","); got != strings.Join(wantStages, ",") {
		t.Errorf("stages = %s, want %s", got, strings.Join(wantStages, ","))
	}
	if power.calls != 1 {
		t.Errorf("power cycles = %d, want 1", power.calls)
	}
	if bridge.ensured != 1 {
		t.Errorf("bridges ensured = %d, want 1", bridge.ensured)
	}
	if bridge.stopped != 1 {
		t.Errorf("bridges stopped = %d, want 1", bridge.stopped)
	}

	data, err := os.ReadFile(job.Profiles.OutputPath)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(data) != int(job.Profiles.Region.Length) {
		t.Errorf("artifact is %d bytes, want %d", len(data), job.Profiles.Region.Length)
	}
}

func TestRunHandsSerialFlagsToBridge(t *testing.T) {
	client := &fakeClient{}
	o, _, bridge := testOrchestrator(client)
	job := testJob(t)
	job.Profiles.Serial.SttyFlags = "cs8 -ixon"

	if err := o.Run(context.Background(), job, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if bridge.serial.SttyFlags != "cs8 -ixon" {
		t.Errorf("bridge received stty flags %q, want %q", bridge.serial.SttyFlags, "cs8 -ixon")
	}
	if bridge.serial.Device != "/dev/ttyUSB0" || bridge.serial.Baud != 9600 {
		t.Errorf("bridge received serial params %+v", bridge.serial)
	}
}

func TestRunProgressMonotonic(t *testing.T) {
	client := &fakeClient{}
	o, _, _ := testOrchestrator(client)

	last := -1.0
	err := o.Run(context.Background(), testJob(t), func(stage string, frac float64) {
		if frac < last {
			t.Errorf("progress went backwards: %f after %f (stage %s)", frac, last, stage)
		}
		last = frac
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if last != 1.0 {
		t.Errorf("final progress = %f, want 1.0", last)
	}
}

func TestRunHandshakeFailureAbortsRun(t *testing.T) {
	client := &fakeClient{handshakeErr: errors.New("no sync byte from target")}
	o, _, _ := testOrchestrator(client)
	job := testJob(t)

	err := o.Run(context.Background(), job, nil)
	if err == nil {
		t.Fatal("Run should fail when the handshake fails")
	}
	if !strings.Contains(err.Error(), StageHandshake) {
		t.Errorf("error %q should name the %s stage", err, StageHandshake)
	}
	for _, call := range client.calls {
		if call == "stager" || call == "dump" {
			t.Errorf("stage %q ran after a failed handshake", call)
		}
	}
	// Teardown still runs.
	if client.calls[len(client.calls)-1] != "close" {
		t.Error("client was not closed after handshake failure")
	}
	if _, err := os.Stat(job.Profiles.OutputPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("no artifact should be written on failure")
	}
}

func TestRunCancelMidDump(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{cancelAtBytes: 200, cancel: cancel}
	o, _, _ := testOrchestrator(client)
	job := testJob(t)

	var maxFrac float64
	err := o.Run(ctx, job, func(stage string, frac float64) {
		if frac > maxFrac && frac < 1.0 {
			maxFrac = frac
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if maxFrac < dumpStart {
		t.Errorf("cancellation fired before the dump started (max frac %f)", maxFrac)
	}
	if _, err := os.Stat(job.Profiles.OutputPath); !errors.Is(err, os.ErrNotExist) {
		t.Error("no artifact should be written on cancellation")
	}
}
