package sercom

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds the tunables of the session engine. Zero values are replaced
// by the defaults noted on each field.
type Config struct {
	SettleDelay  time.Duration // pause between write and drain; default 100ms
	PollInterval time.Duration // background reader cadence; default 100ms
	ReadTimeout  time.Duration // bound on a single read; default 1s
	Terminator   string        // appended to commands and echoes; default "\r\n"

	Opener  Opener          // default: the platform serial handle
	Journal *Journal        // default: a new journal
	Logger  *zerolog.Logger // default: discard
}

func (c Config) withDefaults() Config {
	if c.SettleDelay <= 0 {
		c.SettleDelay = 100 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = time.Second
	}
	if c.Terminator == "" {
		c.Terminator = "\r\n"
	}
	if c.Opener == nil {
		c.Opener = defaultOpener
	}
	if c.Journal == nil {
		c.Journal = NewJournal()
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	return c
}

// link is one open connection and its background reader.
type link struct {
	id     string
	params Params
	port   Port

	done     chan struct{} // closed when the link is released
	exited   chan struct{} // closed when the reader returns
	released atomic.Bool
	once     sync.Once
}

func (l *link) alive() bool {
	return !l.released.Load()
}

// Session owns at most one open serial handle and the reader polling it.
// All methods are safe for concurrent use.
type Session struct {
	cfg  Config
	sink *Journal
	log  zerolog.Logger

	// io serializes every operation on the handle: a command round-trip,
	// one reader tick, or closing the handle.
	io sync.Mutex

	// state serializes Open and Close.
	state sync.Mutex
	cur   atomic.Pointer[link]

	echo atomic.Bool
}

// NewSession returns a disconnected session.
func NewSession(cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{cfg: cfg, sink: cfg.Journal, log: *cfg.Logger}
}

// IsConnected reports whether a session is open. It never blocks.
func (s *Session) IsConnected() bool {
	l := s.cur.Load()
	return l != nil && l.alive()
}

// Params returns the parameters of the open session.
func (s *Session) Params() (Params, bool) {
	l := s.cur.Load()
	if l == nil || !l.alive() {
		return Params{}, false
	}
	return l.params, true
}

// ID returns the identifier of the open session, or "" when disconnected.
func (s *Session) ID() string {
	l := s.cur.Load()
	if l == nil || !l.alive() {
		return ""
	}
	return l.id
}

// Echo reports whether echo mode is on.
func (s *Session) Echo() bool { return s.echo.Load() }

// SetEcho switches echo mode. It takes effect on the next batch of data the
// reader sees.
func (s *Session) SetEcho(on bool) { s.echo.Store(on) }

// ToggleEcho flips echo mode atomically and returns the new state.
func (s *Session) ToggleEcho() bool {
	for {
		old := s.echo.Load()
		if s.echo.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Open opens the endpoint and starts the background reader.
func (s *Session) Open(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.state.Lock()
	defer s.state.Unlock()

	if s.IsConnected() {
		return ErrAlreadyConnected
	}
	// A link released by its own reader may still be winding down.
	if old := s.cur.Load(); old != nil {
		<-old.exited
	}

	port, err := s.cfg.Opener(p, s.cfg.ReadTimeout)
	if err != nil {
		s.log.Warn().Err(err).Str("port", p.Port).Int("baud", p.BaudRate).Msg("open failed")
		if errors.Is(err, ErrUnsupportedBaud) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrPortUnavailable, err)
	}

	l := &link{
		id:     uuid.NewString(),
		params: p,
		port:   port,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	s.cur.Store(l)
	go s.readLoop(l)

	s.log.Info().Str("session", l.id).Str("port", p.Port).Int("baud", p.BaudRate).Msg("session opened")
	return nil
}

// Close stops the reader and releases the handle. It is a no-op when the
// session is already closed.
func (s *Session) Close() error {
	_, _, err := s.shutdown()
	return err
}

// shutdown is Close reporting whether this call released the link, as
// opposed to the reader having dropped it after a hangup, and the
// parameters the link was opened with.
func (s *Session) shutdown() (bool, Params, error) {
	s.state.Lock()
	defer s.state.Unlock()

	l := s.cur.Load()
	if l == nil {
		return false, Params{}, nil
	}
	first, err := s.release(l)
	<-l.exited
	s.cur.Store(nil)
	return first, l.params, err
}

// release marks l closed, signals its reader and closes the handle. Only the
// first call does anything and reports true. The caller must not hold s.io.
func (s *Session) release(l *link) (bool, error) {
	var (
		first bool
		err   error
	)
	l.once.Do(func() {
		first = true
		l.released.Store(true)
		close(l.done)
		s.io.Lock()
		err = l.port.Close()
		s.io.Unlock()
		s.log.Info().Str("session", l.id).Str("port", l.params.Port).Msg("session closed")
	})
	return first, err
}

// lost ends a session whose handle reported a hangup.
func (s *Session) lost(l *link, cause error) {
	if first, _ := s.release(l); !first {
		return
	}
	s.log.Warn().Err(cause).Str("session", l.id).Str("port", l.params.Port).Msg("device disconnected")
	s.sink.Event(CategoryError, fmt.Sprintf("Device disconnected: %s", l.params.Port), "")
}

// Check polls the open handle and ends the session if it hung up. It
// reports whether the session is still connected.
func (s *Session) Check() bool {
	l := s.cur.Load()
	if l == nil || !l.alive() {
		return false
	}
	s.io.Lock()
	if !l.alive() {
		s.io.Unlock()
		return false
	}
	err := l.port.Poll()
	s.io.Unlock()
	if errors.Is(err, ErrHangup) {
		s.lost(l, err)
		return false
	}
	return true
}

// WriteThenRead writes command plus the terminator, waits the settle delay
// and returns whatever the device sent meanwhile, decoded as text, together
// with the elapsed time of the whole operation. I/O errors do not close the
// session; only a hangup does.
func (s *Session) WriteThenRead(command string) (string, time.Duration, error) {
	l := s.cur.Load()
	if l == nil || !l.alive() {
		return "", 0, ErrNotConnected
	}

	start := time.Now()
	s.io.Lock()
	if !l.alive() {
		s.io.Unlock()
		return "", 0, ErrNotConnected
	}
	if err := l.port.Poll(); errors.Is(err, ErrHangup) {
		s.io.Unlock()
		s.lost(l, err)
		return "", time.Since(start), fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	if _, err := l.port.Write([]byte(command + s.cfg.Terminator)); err != nil {
		s.io.Unlock()
		return "", time.Since(start), s.ioFailure(l, "write", err)
	}
	time.Sleep(s.cfg.SettleDelay)
	data, err := l.port.Drain()
	elapsed := time.Since(start)
	s.io.Unlock()
	if err != nil {
		return "", elapsed, s.ioFailure(l, "read", err)
	}

	response := decode(data)
	s.log.Debug().Str("session", l.id).Str("command", command).Str("response", response).
		Dur("elapsed", elapsed).Msg("exchange")
	return response, elapsed, nil
}

// ioFailure wraps an exchange error and checks whether the handle is gone.
func (s *Session) ioFailure(l *link, op string, err error) error {
	s.log.Warn().Err(err).Str("session", l.id).Str("op", op).Msg("exchange failed")
	if errors.Is(err, ErrHangup) {
		s.lost(l, err)
	} else {
		s.Check()
	}
	return fmt.Errorf("%w: %s: %w", ErrIOFailure, op, err)
}

// readLoop reports unsolicited data until the link is released.
func (s *Session) readLoop(l *link) {
	defer close(l.exited)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
		}
		if !s.poll(l) {
			return
		}
	}
}

// poll runs one reader tick under the handle lock. It returns false once
// the link is gone.
func (s *Session) poll(l *link) bool {
	s.io.Lock()
	if !l.alive() {
		s.io.Unlock()
		return false
	}
	if err := l.port.Poll(); errors.Is(err, ErrHangup) {
		s.io.Unlock()
		s.lost(l, err)
		return false
	}
	data, err := l.port.Drain()
	if err != nil {
		s.io.Unlock()
		if errors.Is(err, ErrHangup) {
			s.lost(l, err)
			return false
		}
		s.log.Warn().Err(err).Str("session", l.id).Msg("read failed")
		s.sink.Event(CategoryError, fmt.Sprintf("Error reading serial data: %v", err), "")
		return true
	}

	text := decode(data)
	if text == "" {
		s.io.Unlock()
		return true
	}
	s.sink.Event(CategoryReceived, "Received: "+text, text)

	if s.echo.Load() {
		if _, err := l.port.Write([]byte(text + s.cfg.Terminator)); err != nil {
			s.log.Warn().Err(err).Str("session", l.id).Msg("echo failed")
			s.sink.Event(CategoryError, fmt.Sprintf("Error echoing data: %v", err), text)
		} else {
			s.sink.Event(CategoryEchoed, "Echoed: "+text, text)
		}
	}
	s.io.Unlock()
	return true
}
