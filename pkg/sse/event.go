// Package sse reads and writes Server-Sent Events frames. The reader consumes
// upstream completion streams and the gateway's own stream in `cohort chat`;
// the writer frames gateway payloads.
//
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event is a single SSE event, delimited by a blank line on the wire.
type Event struct {
	// Type is the "event:" field. Empty means the default "message" type.
	Type string

	// Data holds every "data:" line of the event joined with "\n".
	Data string

	// ID is the "id:" field, if present.
	ID string
}
