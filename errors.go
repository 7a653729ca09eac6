package sercom

import "errors"

// Errors returned by the session engine. Callers match them with errors.Is;
// the wrapped cause (if any) carries the message of the underlying layer.
var (
	// ErrPortUnavailable is returned when the endpoint cannot be opened
	// (busy device, permission denied, no such path).
	ErrPortUnavailable = errors.New("port unavailable")
	// ErrUnsupportedBaud is returned for a baud rate outside BaudRates.
	ErrUnsupportedBaud = errors.New("unsupported baud rate")
	// ErrAlreadyConnected is returned by Connect while a session is open.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected is returned when an operation needs an open session.
	ErrNotConnected = errors.New("not connected")
	// ErrIOFailure wraps write and read errors of a command round-trip.
	ErrIOFailure = errors.New("serial i/o failure")
	// ErrHangup is reported by a Port whose handle is no longer usable.
	ErrHangup = errors.New("port hung up")

	// ErrMalformed is returned when a command source has the wrong shape.
	ErrMalformed = errors.New("malformed command set")
	// ErrUnreadable is returned when a command source cannot be read.
	ErrUnreadable = errors.New("command source unreadable")

	ErrIndexOutOfRange    = errors.New("command index out of range")
	ErrCommandSetReplaced = errors.New("command set replaced")
	ErrExportFailed       = errors.New("log export failed")
	ErrUnknownFormat      = errors.New("unknown format")
)
