package sercom

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"
)

// LogFormat selects the export format of the session log.
type LogFormat int

const (
	LogFormatAuto LogFormat = iota // pick by file extension
	LogFormatJSON
	LogFormatText
)

func (f LogFormat) String() string {
	switch f {
	case LogFormatAuto:
		return "auto"
	case LogFormatJSON:
		return "json"
	case LogFormatText:
		return "text"
	}
	return fmt.Sprintf("LogFormat(%d)", int(f))
}

// ParseLogFormat maps a format name (auto, json, text) to a LogFormat.
func ParseLogFormat(s string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return LogFormatAuto, nil
	case "json":
		return LogFormatJSON, nil
	case "text", "txt":
		return LogFormatText, nil
	}
	return LogFormatAuto, fmt.Errorf("%w: log format %q", ErrUnknownFormat, s)
}

func (f LogFormat) valid() bool {
	return f >= LogFormatAuto && f <= LogFormatText
}

func logFormatForPath(path string) LogFormat {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LogFormatJSON
	}
	return LogFormatText
}

// record is the structured export shape of an entry. Exchange fields are
// pointers so an empty response is still written.
type record struct {
	Timestamp string   `json:"timestamp"`
	Event     *string  `json:"event,omitempty"`
	Command   *string  `json:"command,omitempty"`
	Response  *string  `json:"response,omitempty"`
	Time      *float64 `json:"time,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func toRecord(e Entry) record {
	r := record{Timestamp: e.Timestamp()}
	if e.Kind == KindExchange {
		secs := e.Elapsed.Seconds()
		r.Command, r.Response, r.Time = &e.Command, &e.Response, &secs
		r.Error = e.Err
		return r
	}
	r.Event = &e.Description
	return r
}

// WriteJSON writes entries as an indented JSON array.
func WriteJSON(w io.Writer, entries []Entry) error {
	records := make([]record, 0, len(entries))
	for _, e := range entries {
		records = append(records, toRecord(e))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(records)
}

// WriteText writes entries in the human-readable line format: events on a
// single line, exchanges as a header line, a response line and a blank line.
func WriteText(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if e.Kind == KindEvent {
			fmt.Fprintf(bw, "[%s] %s\n", e.Timestamp(), e.Description)
			continue
		}
		fmt.Fprintf(bw, "[%s] > %s (Took %.3f sec)\n", e.Timestamp(), e.Command, e.Elapsed.Seconds())
		if e.Err != "" {
			fmt.Fprintf(bw, "Error: %s\n\n", e.Err)
			continue
		}
		fmt.Fprintf(bw, "Response: %s\n\n", e.Response)
	}
	return bw.Flush()
}

// WriteLog writes entries in the given format. LogFormatAuto writes JSON.
func WriteLog(w io.Writer, entries []Entry, format LogFormat) error {
	switch format {
	case LogFormatAuto, LogFormatJSON:
		return WriteJSON(w, entries)
	case LogFormatText:
		return WriteText(w, entries)
	}
	return fmt.Errorf("%w: %v", ErrUnknownFormat, format)
}

// ParseJSONLog reads a structured export back into entries. Timestamps are
// interpreted in local time; Seq is assigned in file order.
func ParseJSONLog(r io.Reader) ([]Entry, error) {
	var records []record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	entries := make([]Entry, 0, len(records))
	for i, rec := range records {
		ts, err := time.ParseInLocation(TimestampLayout, rec.Timestamp, time.Local)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		e := Entry{Seq: uint64(i) + 1, Time: ts}
		switch {
		case rec.Command != nil:
			e.Kind = KindExchange
			e.Command = *rec.Command
			if rec.Response != nil {
				e.Response = *rec.Response
			}
			if rec.Time != nil {
				e.Elapsed = time.Duration(math.Round(*rec.Time * float64(time.Second)))
			}
			e.Err = rec.Error
		case rec.Event != nil:
			e.Kind = KindEvent
			e.Description = *rec.Event
		default:
			return nil, fmt.Errorf("entry %d: neither event nor command", i)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
