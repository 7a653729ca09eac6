package sercom

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// fakePort is an in-memory device. Every write is recorded; respond, when
// set, produces the reply that the next drain returns.
type fakePort struct {
	mu       sync.Mutex
	inbound  []byte
	written  []string
	respond  func(cmd string) string
	writeErr error

	// hangAfter makes the device disappear once the reply to that many
	// writes has been drained. Zero disables it.
	hangAfter int
	writes    int
	hanging   bool
	hungUp    bool
	closed    bool
}

func (f *fakePort) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New("write on closed port")
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written = append(f.written, string(b))
	f.writes++
	if f.respond != nil {
		f.inbound = append(f.inbound, f.respond(strings.TrimRight(string(b), "\r\n"))...)
	}
	if f.hangAfter > 0 && f.writes == f.hangAfter {
		f.hanging = true
	}
	return len(b), nil
}

func (f *fakePort) Drain() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.inbound
	f.inbound = nil
	if f.hanging {
		f.hungUp = true
	}
	return out, nil
}

func (f *fakePort) Poll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hungUp {
		return ErrHangup
	}
	return nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// inject queues unsolicited bytes from the device.
func (f *fakePort) inject(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, s...)
}

func (f *fakePort) hangup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hungUp = true
}

func (f *fakePort) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakePort) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePort) opener() Opener {
	return func(Params, time.Duration) (Port, error) { return f, nil }
}

func okResponder(cmd string) string { return "OK " + cmd + "\r\n" }

// testConfig keeps round-trips and reader ticks short.
func testConfig(open Opener) Config {
	return Config{
		SettleDelay:  5 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		Opener:       open,
	}
}

func exchanges(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Kind == KindExchange {
			out = append(out, e)
		}
	}
	return out
}

func events(entries []Entry, cat Category) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Kind == KindEvent && e.Category == cat {
			out = append(out, e)
		}
	}
	return out
}
