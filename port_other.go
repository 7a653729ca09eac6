//go:build !linux

package sercom

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// drainSlice is the per-read timeout used while draining; the total drain
// time is still bounded by the configured read timeout.
const drainSlice = 10 * time.Millisecond

// bugstPort adapts a go.bug.st/serial port to the session's Port contract on
// platforms without the termios handle.
type bugstPort struct {
	port        serial.Port
	readTimeout time.Duration
}

var defaultOpener Opener = openBugstPort

func openBugstPort(p Params, readTimeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: p.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(p.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p.Port, err)
	}
	if err := port.SetReadTimeout(drainSlice); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	_ = port.ResetInputBuffer()
	return &bugstPort{port: port, readTimeout: readTimeout}, nil
}

func (b *bugstPort) Write(p []byte) (int, error) {
	n, err := b.port.Write(p)
	return n, mapPortError(err)
}

func (b *bugstPort) Drain() ([]byte, error) {
	var out []byte
	buf := make([]byte, 4096)
	deadline := time.Now().Add(b.readTimeout)
	for time.Now().Before(deadline) {
		n, err := b.port.Read(buf)
		if err != nil {
			return out, mapPortError(err)
		}
		if n == 0 {
			break
		}
		out = append(out, buf[:n]...)
	}
	return out, nil
}

func (b *bugstPort) Poll() error {
	if _, err := b.port.GetModemStatusBits(); err != nil {
		return mapPortError(err)
	}
	return nil
}

func (b *bugstPort) Close() error {
	return b.port.Close()
}

func mapPortError(err error) error {
	var pe *serial.PortError
	if errors.As(err, &pe) && pe.Code() == serial.PortClosed {
		return fmt.Errorf("%w: %v", ErrHangup, err)
	}
	return err
}
