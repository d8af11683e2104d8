// Package power drives a network-attached power supply so the target
// enters its bootloader from a cold start.
package power

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

const (
	dialTimeout  = 5 * time.Second
	replyTimeout = 5 * time.Second
	offSettle    = 500 * time.Millisecond
)

// TCPController talks a line protocol to a power supply: each command
// is one line, each reply is one line starting with "OK".
type TCPController struct {
	logger *slog.Logger
}

// NewTCPController creates a TCPController.
func NewTCPController(logger *slog.Logger) *TCPController {
	return &TCPController{logger: logger.With("component", "power")}
}

// PowerCycle switches the channel off, lets the supply settle, switches
// it back on, and then waits the post-cycle delay so the target's
// bootloader is listening before anything talks to it.
func (c *TCPController) PowerCycle(ctx context.Context, host string, port, channel int, delay time.Duration) error {
	addr := fmt.Sprintf("%s:%d", host, port)

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("power supply %s: %w", addr, err)
	}
	defer conn.Close()

	c.logger.Info("power cycling", "addr", addr, "channel", channel)

	reader := bufio.NewReader(conn)
	if err := c.command(conn, reader, fmt.Sprintf("OUT %d OFF", channel)); err != nil {
		return err
	}
	if err := sleepCtx(ctx, offSettle); err != nil {
		return err
	}
	if err := c.command(conn, reader, fmt.Sprintf("OUT %d ON", channel)); err != nil {
		return err
	}

	if delay > 0 {
		c.logger.Debug("waiting for target boot", "delay", delay.String())
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (c *TCPController) command(conn net.Conn, reader *bufio.Reader, cmd string) error {
	if err := conn.SetDeadline(time.Now().Add(replyTimeout)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reply to %q: %w", cmd, err)
	}
	reply := strings.TrimSpace(line)
	if !strings.HasPrefix(reply, "OK") {
		return fmt.Errorf("power supply rejected %q: %s", cmd, reply)
	}
	return nil
}

// sleepCtx waits for d unless the context is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
