package sercom

import (
	"sync"
	"time"
)

// TimestampLayout is the layout of timestamps in exported logs.
const TimestampLayout = "2006-01-02 15:04:05"

// Kind discriminates log entries.
type Kind int

const (
	KindEvent Kind = iota
	KindExchange
)

// Category classifies event entries.
type Category int

const (
	CategoryInfo     Category = iota // lifecycle: connect, disconnect, load
	CategoryReceived                 // unsolicited data from the device
	CategoryEchoed                   // data relayed back in echo mode
	CategoryError                    // failed operation or read error
)

func (c Category) String() string {
	switch c {
	case CategoryInfo:
		return "info"
	case CategoryReceived:
		return "received"
	case CategoryEchoed:
		return "echoed"
	case CategoryError:
		return "error"
	}
	return "unknown"
}

// Entry is one record of the session log. Event entries use Category,
// Description and Payload; exchange entries use Command, Response, Elapsed
// and Err.
type Entry struct {
	Seq  uint64
	Kind Kind
	Time time.Time

	Category    Category
	Description string
	Payload     string

	Command  string
	Response string
	Elapsed  time.Duration
	Err      string
}

// Timestamp formats the entry time with TimestampLayout.
func (e Entry) Timestamp() string {
	return e.Time.Format(TimestampLayout)
}

// Failed reports whether an exchange did not complete.
func (e Entry) Failed() bool {
	return e.Kind == KindExchange && e.Err != ""
}

// Exchange is the outcome of a single command round-trip.
type Exchange struct {
	Command  string
	Response string
	Elapsed  time.Duration
	Err      error
}

// Journal is an append-only, ordered log of entries. It is safe for
// concurrent use; appends from the background reader may interleave with
// foreground reads, exports and subscriptions.
type Journal struct {
	mu      sync.RWMutex
	entries []Entry
	subs    map[int]*subscriber
	nextID  int
	closed  bool
	dropped uint64
	now     func() time.Time
}

type subscriber struct {
	ch chan Entry
}

// NewJournal returns an empty journal.
func NewJournal() *Journal {
	return &Journal{subs: make(map[int]*subscriber), now: time.Now}
}

// Append records e and delivers it to subscribers. Seq is always assigned;
// Time is set to now when zero. The stored entry is returned.
func (j *Journal) Append(e Entry) Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	if e.Time.IsZero() {
		e.Time = j.now()
	}
	e.Seq = uint64(len(j.entries)) + 1
	j.entries = append(j.entries, e)
	for _, s := range j.subs {
		select {
		case s.ch <- e:
		default:
			j.dropped++
		}
	}
	return e
}

// Event appends an event entry.
func (j *Journal) Event(cat Category, description, payload string) Entry {
	return j.Append(Entry{Kind: KindEvent, Category: cat, Description: description, Payload: payload})
}

// Exchange appends an exchange entry. A non-nil x.Err is stored as text and
// the response is left empty.
func (j *Journal) Exchange(x Exchange) Entry {
	e := Entry{Kind: KindExchange, Command: x.Command, Response: x.Response, Elapsed: x.Elapsed}
	if x.Err != nil {
		e.Err = x.Err.Error()
		e.Response = ""
	}
	return j.Append(e)
}

// Entries returns a copy of all entries in append order.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Len returns the number of entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Subscribe returns a channel receiving every entry appended from now on, in
// order, and a function that cancels the subscription. When the buffer is
// full the entry is dropped for this subscriber only; Dropped reports how
// many. The channel is closed on cancel or when the journal is closed.
func (j *Journal) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer < 1 {
		buffer = 1
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	ch := make(chan Entry, buffer)
	if j.closed {
		close(ch)
		return ch, func() {}
	}
	id := j.nextID
	j.nextID++
	j.subs[id] = &subscriber{ch: ch}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			if s, ok := j.subs[id]; ok {
				delete(j.subs, id)
				close(s.ch)
			}
		})
	}
}

// Dropped returns the total number of entries dropped for slow subscribers,
// including subscriptions that have since ended.
func (j *Journal) Dropped() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.dropped
}

// Close ends all subscriptions. Appends are still recorded afterwards.
func (j *Journal) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	for id, s := range j.subs {
		close(s.ch)
		delete(j.subs, id)
	}
}
