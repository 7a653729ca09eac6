package sercom

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Controller is the front-end facing side of the engine. It combines the
// active command set, one serial session and the session log. Every method
// blocks until its I/O has completed; only the session's reader runs in the
// background, and it reports through the journal.
type Controller struct {
	session *Session
	journal *Journal
	log     zerolog.Logger

	mu         sync.Mutex
	commands   *CommandSet
	generation uint64
}

// NewController returns a disconnected controller with an empty command set.
func NewController(cfg Config) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		session:  NewSession(cfg),
		journal:  cfg.Journal,
		log:      *cfg.Logger,
		commands: NewCommandSet("", nil),
	}
}

// Journal returns the session log.
func (c *Controller) Journal() *Journal { return c.journal }

// Entries returns a snapshot of the session log.
func (c *Controller) Entries() []Entry { return c.journal.Entries() }

// Subscribe delivers log entries as they are appended. See Journal.Subscribe.
func (c *Controller) Subscribe(buffer int) (<-chan Entry, func()) {
	return c.journal.Subscribe(buffer)
}

// ListPorts returns the serial endpoints present on the host.
func (c *Controller) ListPorts() ([]PortInfo, error) {
	return ListPorts()
}

// IsConnected reports whether a session is open.
func (c *Controller) IsConnected() bool { return c.session.IsConnected() }

// SessionID identifies the open session; empty when disconnected.
func (c *Controller) SessionID() string { return c.session.ID() }

// Connect opens a session. It fails with ErrAlreadyConnected, leaving the
// open session and the log untouched, when a session is already open.
func (c *Controller) Connect(p Params) error {
	if c.session.IsConnected() {
		return ErrAlreadyConnected
	}
	if err := c.session.Open(p); err != nil {
		if errors.Is(err, ErrAlreadyConnected) {
			return err
		}
		c.journal.Event(CategoryError, fmt.Sprintf("Error opening serial connection: %v", err), "")
		return err
	}
	c.journal.Event(CategoryInfo, fmt.Sprintf("Connected to %s at %d baud", p.Port, p.BaudRate), "")
	return nil
}

// Disconnect closes the open session. It is a no-op when disconnected.
// A link already dropped after a hangup is only reaped; its disconnect was
// logged when the hangup was seen.
func (c *Controller) Disconnect() error {
	first, p, err := c.session.shutdown()
	if !first {
		return err
	}
	if err != nil {
		c.log.Warn().Err(err).Str("port", p.Port).Msg("close failed")
	}
	c.journal.Event(CategoryInfo, fmt.Sprintf("Disconnected from %s", p.Port), "")
	return err
}

// Commands returns the active command set.
func (c *Controller) Commands() *CommandSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commands
}

// LoadCommandSet replaces the active command set with the one read from
// path. On failure the active set is kept.
func (c *Controller) LoadCommandSet(path string, format CommandFormat) (*CommandSet, error) {
	set, err := LoadCommandSet(path, format)
	return c.install(set, path, err)
}

// LoadCommandSetFrom is LoadCommandSet for an arbitrary reader; name is
// recorded as the source.
func (c *Controller) LoadCommandSetFrom(r io.Reader, name string, format CommandFormat) (*CommandSet, error) {
	set, err := ParseCommandSet(r, name, format)
	return c.install(set, name, err)
}

func (c *Controller) install(set *CommandSet, source string, err error) (*CommandSet, error) {
	if err != nil {
		c.log.Warn().Err(err).Str("source", source).Msg("load command set failed")
		c.journal.Event(CategoryError, fmt.Sprintf("Error loading commands from %s: %v", source, err), "")
		return nil, err
	}
	c.mu.Lock()
	c.commands = set
	c.generation++
	c.mu.Unlock()
	c.journal.Event(CategoryInfo, fmt.Sprintf("Loaded %d commands from %s", set.Len(), source), "")
	return set, nil
}

func (c *Controller) snapshot() (*CommandSet, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commands, c.generation
}

// Send runs the command at index through one round-trip. The attempt is
// always logged as an exchange, with an empty response and the error text
// when it failed.
func (c *Controller) Send(index int) (Exchange, error) {
	set, _ := c.snapshot()
	cmd, err := set.At(index)
	if err != nil {
		c.journal.Event(CategoryError, fmt.Sprintf("Send failed: %v", err), "")
		return Exchange{}, err
	}
	x := c.exchange(cmd)
	return x, x.Err
}

func (c *Controller) exchange(cmd string) Exchange {
	resp, elapsed, err := c.session.WriteThenRead(cmd)
	x := Exchange{Command: cmd, Response: resp, Elapsed: elapsed, Err: err}
	c.journal.Exchange(x)
	return x
}

// SendAll sends every command of the active set in order, one round-trip at
// a time. It stops early only when the connection drops or the command set
// is replaced, and returns how many commands were sent.
func (c *Controller) SendAll() (int, error) {
	set, gen := c.snapshot()
	total := set.Len()
	if total == 0 {
		c.journal.Event(CategoryInfo, "No commands loaded", "")
		return 0, nil
	}

	sent := 0
	for i := 0; i < total; i++ {
		if _, cur := c.snapshot(); cur != gen {
			c.journal.Event(CategoryError,
				fmt.Sprintf("Send all aborted: command set replaced after %d of %d commands", sent, total), "")
			return sent, ErrCommandSetReplaced
		}
		if !c.session.Check() {
			c.journal.Event(CategoryError,
				fmt.Sprintf("Send all aborted: connection lost after %d of %d commands", sent, total), "")
			return sent, ErrNotConnected
		}
		cmd, _ := set.At(i)
		x := c.exchange(cmd)
		sent++
		if x.Err != nil {
			c.log.Warn().Err(x.Err).Int("index", i).Str("command", cmd).Msg("send all: command failed")
		}
	}
	c.journal.Event(CategoryInfo, fmt.Sprintf("All commands sent (%d of %d)", sent, total), "")
	return sent, nil
}

// ToggleEcho flips echo mode and returns the new state.
func (c *Controller) ToggleEcho() bool {
	on := c.session.ToggleEcho()
	state := "OFF"
	if on {
		state = "ON"
	}
	c.journal.Event(CategoryInfo, "Echo mode: "+state, "")
	return on
}

// Echo reports whether echo mode is on.
func (c *Controller) Echo() bool { return c.session.Echo() }

// ExportLog writes a snapshot of the log to path. The in-memory log is not
// modified by a successful export.
func (c *Controller) ExportLog(path string, format LogFormat) error {
	if format == LogFormatAuto {
		format = logFormatForPath(path)
	}
	entries := c.journal.Entries()
	if err := writeLogFile(path, entries, format); err != nil {
		err = fmt.Errorf("%w: %w", ErrExportFailed, err)
		c.log.Error().Err(err).Str("path", path).Msg("export failed")
		c.journal.Event(CategoryError, fmt.Sprintf("Error saving log: %v", err), "")
		return err
	}
	c.log.Info().Str("path", path).Int("entries", len(entries)).Stringer("format", format).Msg("log exported")
	return nil
}

// writeLogFile replaces path only once the whole log was written, so a
// failed export leaves an earlier file at path intact.
func writeLogFile(path string, entries []Entry, format LogFormat) error {
	if !format.valid() {
		return fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	if err := WriteLog(f, entries, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Close disconnects and ends all log subscriptions.
func (c *Controller) Close() error {
	err := c.Disconnect()
	c.journal.Close()
	return err
}
