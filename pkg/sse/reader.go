package sse

import (
	"bufio"
	"io"
	"strings"
)

// Reader parses SSE events from an io.Reader. When constructed with
// NewTeeReader every raw line is also copied to a destination writer.
type Reader struct {
	scanner *bufio.Scanner
	dest    io.Writer

	current  *Event
	hasField bool
	hasData  bool
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader) *Reader {
	return NewTeeReader(src, nil)
}

// NewTeeReader returns a Reader over src that writes the raw stream to dest.
func NewTeeReader(src io.Reader, dest io.Writer) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{
		scanner: scanner,
		dest:    dest,
		current: &Event{},
	}
}

// Next blocks until a complete event is available. It returns nil, nil once
// src is exhausted. A trailing event without a terminating blank line is
// still returned.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()

		if r.dest != nil {
			if _, err := io.WriteString(r.dest, raw+"\n"); err != nil {
				return nil, err
			}
		}

		if raw == "" {
			if r.hasField {
				return r.flush(), nil
			}
			// keep-alive
			continue
		}

		if strings.HasPrefix(raw, ":") {
			continue
		}

		r.parseLine(raw)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	if r.hasField {
		return r.flush(), nil
	}

	return nil, nil
}

// parseLine accumulates one "field:value" line. A single space after the
// colon is stripped.
func (r *Reader) parseLine(line string) {
	field, value, ok := strings.Cut(line, ":")
	if ok {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "data":
		if r.hasData {
			r.current.Data += "\n"
		}
		r.current.Data += value
		r.hasData = true
	case "event":
		r.current.Type = value
	case "id":
		r.current.ID = value
	default:
		// "retry" and unknown fields are ignored
		return
	}
	r.hasField = true
}

func (r *Reader) flush() *Event {
	ev := r.current
	r.current = &Event{}
	r.hasField = false
	r.hasData = false
	return ev
}
