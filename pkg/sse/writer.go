package sse

import (
	"io"
	"strings"
)

// Encode frames data as a single SSE message event. Each line of data becomes
// its own "data:" line so embedded newlines survive the round trip.
func Encode(data string) []byte {
	var b strings.Builder
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// WriteData writes the framed data to w.
func WriteData(w io.Writer, data string) error {
	_, err := w.Write(Encode(data))
	return err
}
