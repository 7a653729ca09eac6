package sercom

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
)

// BaudRates lists the baud rates a session can be opened with.
var BaudRates = []int{9600, 19200, 38400, 57600, 115200}

// Params holds the connection parameters of a session.
type Params struct {
	Port     string // device path or name, e.g. /dev/ttyUSB0 or COM3
	BaudRate int
}

// Validate checks that the parameters can be used to open a session.
func (p Params) Validate() error {
	if p.Port == "" {
		return fmt.Errorf("%w: no port selected", ErrPortUnavailable)
	}
	if !slices.Contains(BaudRates, p.BaudRate) {
		return fmt.Errorf("%w: %d", ErrUnsupportedBaud, p.BaudRate)
	}
	return nil
}

// Port is an open serial handle as seen by a Session.
//
// Implementations do not need to be safe for concurrent use; the session
// serializes every call.
type Port interface {
	io.Writer
	// Drain returns the bytes currently buffered by the driver without
	// waiting for more. It returns an empty slice when nothing is pending.
	Drain() ([]byte, error)
	// Poll returns ErrHangup when the handle is no longer usable, for
	// example after the device was unplugged.
	Poll() error
	Close() error
}

// Opener opens a Port. readTimeout bounds any single read on the handle.
type Opener func(p Params, readTimeout time.Duration) (Port, error)

// decode turns raw device bytes into log text. Invalid UTF-8 is dropped and
// surrounding whitespace, including line terminators, is trimmed.
func decode(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}
