package protocol

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
)

// fakeTarget implements the bootloader side of the conversation on a
// loopback listener.
type fakeTarget struct {
	ln     net.Listener
	memory []byte

	// silent targets never answer the probe.
	silent bool
	// badGreeting replaces the ack bytes.
	badGreeting []byte

	installed [][]byte
	lastStart uint32
	lastLen   uint32
}

func newFakeTarget(t *testing.T) *fakeTarget {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ft := &fakeTarget{ln: ln, memory: make([]byte, 0x10000)}
	for i := range ft.memory {
		ft.memory[i] = byte(i)
	}
	t.Cleanup(func() { ln.Close() })
	go ft.serve()
	return ft
}

func (ft *fakeTarget) addr() (string, int) {
	tcp := ft.ln.Addr().(*net.TCPAddr)
	return tcp.IP.String(), tcp.Port
}

func (ft *fakeTarget) ack(conn net.Conn) {
	g := greeting
	if ft.badGreeting != nil {
		g = ft.badGreeting
	}
	conn.Write(g)
}

func (ft *fakeTarget) readFramed(conn net.Conn) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.LittleEndian.Uint32(hdr[:]))
	_, err := io.ReadFull(conn, payload)
	return payload, err
}

func (ft *fakeTarget) serve() {
	conn, err := ft.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	// Probe.
	var probe [1]byte
	if _, err := io.ReadFull(conn, probe[:]); err != nil {
		return
	}
	if ft.silent {
		return
	}
	ft.ack(conn)

	// A target with a broken greeting just keeps answering probes so
	// every handshake attempt fails fast.
	if ft.badGreeting != nil {
		for {
			if _, err := io.ReadFull(conn, probe[:]); err != nil {
				return
			}
			ft.ack(conn)
		}
	}

	// Stager install, acknowledged.
	stager, err := ft.readFramed(conn)
	if err != nil {
		return
	}
	ft.installed = append(ft.installed, stager)
	ft.ack(conn)

	// Dumper install, then the request buffer, then greeting + memory.
	dumper, err := ft.readFramed(conn)
	if err != nil {
		return
	}
	ft.installed = append(ft.installed, dumper)

	req := make([]byte, 12)
	if _, err := io.ReadFull(conn, req); err != nil {
		return
	}
	ft.lastStart = binary.LittleEndian.Uint32(req[4:8])
	ft.lastLen = binary.LittleEndian.Uint32(req[8:12])
	ft.ack(conn)

	end := ft.lastStart + ft.lastLen
	if int(end) <= len(ft.memory) {
		conn.Write(ft.memory[ft.lastStart:end])
	}
}

func testClient(t *testing.T, ft *fakeTarget) *TCPClient {
	t.Helper()
	host, port := ft.addr()
	c := NewTCPClient(host, port, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFullSession(t *testing.T) {
	ft := newFakeTarget(t)
	c := testClient(t, ft)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Handshake(ctx); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if err := c.InstallStager(ctx, []byte{0xaa, 0xbb}); err != nil {
		t.Fatalf("InstallStager: %v", err)
	}

	var reports []uint32
	data, err := c.DumpMemory(ctx, 0x100, 700, []byte{0xcc}, func(n uint32) {
		reports = append(reports, n)
	})
	if err != nil {
		t.Fatalf("DumpMemory: %v", err)
	}

	if len(data) != 700 {
		t.Fatalf("dump returned %d bytes, want 700", len(data))
	}
	for i, b := range data {
		if want := byte(0x100 + i); b != want {
			t.Fatalf("data[%d] = %#x, want %#x", i, b, want)
		}
	}

	if ft.lastStart != 0x100 || ft.lastLen != 700 {
		t.Errorf("target saw request (%#x, %d), want (0x100, 700)", ft.lastStart, ft.lastLen)
	}

	// 700 bytes in 256-byte chunks means 3 reports, the last cumulative.
	if len(reports) != 3 || reports[len(reports)-1] != 700 {
		t.Errorf("progress reports = %v, want 3 ending at 700", reports)
	}
	for i := 1; i < len(reports); i++ {
		if reports[i] <= reports[i-1] {
			t.Errorf("progress not cumulative: %v", reports)
		}
	}
}

func TestHandshakeSilentTarget(t *testing.T) {
	ft := newFakeTarget(t)
	ft.silent = true
	c := testClient(t, ft)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Handshake(ctx); err == nil {
		t.Fatal("Handshake should fail against a silent target")
	}
}

func TestHandshakeBadGreeting(t *testing.T) {
	ft := newFakeTarget(t)
	ft.badGreeting = []byte{'N', 'o', 0x00}
	c := testClient(t, ft)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	err := c.Handshake(ctx)
	if err == nil {
		t.Fatal("Handshake should reject a wrong greeting")
	}
	if !strings.Contains(err.Error(), "greeting") {
		t.Errorf("error %q should mention the greeting", err)
	}
}

func TestStepsRequireConnect(t *testing.T) {
	c := NewTCPClient("127.0.0.1", 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	if err := c.Handshake(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Handshake error = %v, want ErrNotConnected", err)
	}
	if err := c.InstallStager(ctx, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("InstallStager error = %v, want ErrNotConnected", err)
	}
	if _, err := c.DumpMemory(ctx, 0, 1, nil, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("DumpMemory error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close without connection: %v", err)
	}
}

func TestDumpCancellationBetweenChunks(t *testing.T) {
	ft := newFakeTarget(t)
	c := testClient(t, ft)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if err := c.InstallStager(context.Background(), []byte{0x01}); err != nil {
		t.Fatalf("InstallStager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.DumpMemory(ctx, 0, 1024, []byte{0x02}, func(n uint32) {
		if n >= 256 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
