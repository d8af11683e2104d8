// Package protocol implements the TCP client side of the bootloader
// conversation: handshake, payload installation, and the chunked
// memory dump.
//
// The dump request is a 12-byte buffer: bytes 4..7 carry the target
// address and bytes 8..11 the byte count, both little-endian. The
// target acknowledges each step with the 3-byte greeting "Ok\x00"
// before sending data.
package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
)

const (
	probeByte     = 0x05
	dialTimeout   = 5 * time.Second
	stepTimeout   = 10 * time.Second
	chunkTimeout  = 10 * time.Second
	handshakeTry  = 3
	dumpChunkSize = 256
)

var greeting = []byte{'O', 'k', 0x00}

// ErrNotConnected is returned when a protocol step runs before Connect.
var ErrNotConnected = errors.New("not connected")

// TCPClient drives one bootloader session over the serial bridge.
// Not safe for concurrent use; the scheduler guarantees one session
// per bridge endpoint at a time.
type TCPClient struct {
	addr   string
	logger *slog.Logger
	conn   net.Conn
}

// NewTCPClient creates a client for the bridge endpoint at host:port.
func NewTCPClient(host string, port int, logger *slog.Logger) *TCPClient {
	return &TCPClient{
		addr:   fmt.Sprintf("%s:%d", host, port),
		logger: logger.With("component", "protocol", "addr", fmt.Sprintf("%s:%d", host, port)),
	}
}

// Connect dials the bridge endpoint.
func (c *TCPClient) Connect(ctx context.Context) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.addr, err)
	}
	c.conn = conn
	c.logger.Debug("connected")
	return nil
}

// Handshake probes the target until it answers with the greeting. The
// target may still be flushing boot output, so a few attempts are made
// before giving up.
func (c *TCPClient) Handshake(ctx context.Context) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	var lastErr error
	for attempt := 1; attempt <= handshakeTry; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.probe(); err != nil {
			lastErr = err
			c.logger.Debug("handshake attempt failed", "attempt", attempt, "error", err)
			continue
		}
		c.logger.Debug("handshake complete", "attempt", attempt)
		return nil
	}
	return fmt.Errorf("no greeting after %d attempts: %w", handshakeTry, lastErr)
}

func (c *TCPClient) probe() error {
	if err := c.conn.SetDeadline(time.Now().Add(stepTimeout)); err != nil {
		return err
	}
	if _, err := c.conn.Write([]byte{probeByte}); err != nil {
		return fmt.Errorf("send probe: %w", err)
	}
	return c.expectGreeting()
}

// InstallStager sends the first-stage payload framed as a 4-byte
// little-endian length followed by the payload bytes, and waits for
// the target's acknowledgement.
func (c *TCPClient) InstallStager(ctx context.Context, payload []byte) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.sendFramed(payload); err != nil {
		return fmt.Errorf("install stager: %w", err)
	}
	if err := c.expectGreeting(); err != nil {
		return fmt.Errorf("stager acknowledgement: %w", err)
	}
	c.logger.Debug("stager installed", "bytes", len(payload))
	return nil
}

// DumpMemory installs the dumper payload, sends the dump request for
// [start, start+length), and reads the memory back in chunks. progress
// receives the cumulative byte count after every chunk.
func (c *TCPClient) DumpMemory(ctx context.Context, start, length uint32, dumper []byte, progress func(uint32)) ([]byte, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	if err := c.sendFramed(dumper); err != nil {
		return nil, fmt.Errorf("install dumper: %w", err)
	}

	req := make([]byte, 12)
	binary.LittleEndian.PutUint32(req[4:8], start)
	binary.LittleEndian.PutUint32(req[8:12], length)
	if err := c.conn.SetWriteDeadline(time.Now().Add(stepTimeout)); err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(req); err != nil {
		return nil, fmt.Errorf("send dump request: %w", err)
	}
	if err := c.expectGreeting(); err != nil {
		return nil, fmt.Errorf("dump acknowledgement: %w", err)
	}

	data := make([]byte, 0, length)
	buf := make([]byte, dumpChunkSize)
	for uint32(len(data)) < length {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		want := length - uint32(len(data))
		if want > dumpChunkSize {
			want = dumpChunkSize
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(chunkTimeout)); err != nil {
			return nil, err
		}
		n, err := io.ReadFull(c.conn, buf[:want])
		if err != nil {
			return nil, fmt.Errorf("dump read at %d/%d bytes: %w", len(data), length, err)
		}
		data = append(data, buf[:n]...)
		if progress != nil {
			progress(uint32(len(data)))
		}
	}

	c.logger.Debug("dump complete", "start", fmt.Sprintf("0x%x", start), "bytes", length)
	return data, nil
}

// Close closes the connection. Safe to call without a connection.
func (c *TCPClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *TCPClient) sendFramed(payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(stepTimeout)); err != nil {
		return err
	}
	frame := make([]byte, 4, 4+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	if _, err := c.conn.Write(frame); err != nil {
		return err
	}
	return nil
}

func (c *TCPClient) expectGreeting() error {
	if err := c.conn.SetReadDeadline(time.Now().Add(stepTimeout)); err != nil {
		return err
	}
	got := make([]byte, len(greeting))
	if _, err := io.ReadFull(c.conn, got); err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	if !bytes.Equal(got, greeting) {
		return fmt.Errorf("unexpected greeting %q", got)
	}
	return nil
}
