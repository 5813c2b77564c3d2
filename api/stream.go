package api

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/cohort/pkg/sse"
)

const doneMarker = "[DONE]"

// abortGrace is how long a finished turn context waits for the terminal
// frame before the pipe is torn down under a stalled writer.
const abortGrace = 2 * time.Second

var errStreamAborted = errors.New("stream aborted: client stopped reading")

// pipeWriter is the write side of the response body pipe.
type pipeWriter interface {
	io.WriteCloser
	CloseWithError(err error) error
}

// eventStream writes SSE frames to the response pipe. Writes are
// serialized by mu and nothing is written after the terminal frame.
type eventStream struct {
	mu     sync.Mutex
	w      pipeWriter
	cancel context.CancelFunc

	closed atomic.Bool
	done   chan struct{}
}

func newEventStream(w pipeWriter, cancel context.CancelFunc) *eventStream {
	return &eventStream{w: w, cancel: cancel, done: make(chan struct{})}
}

// Send writes one data frame. It reports false once the stream is closed.
// A failed write means the client is gone: the stream closes and the turn
// context is canceled.
func (s *eventStream) Send(data string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return false
	}
	if err := sse.WriteData(s.w, data); err != nil {
		s.closeLocked()
		s.cancel()
		return false
	}
	return true
}

// Done writes the completion marker and closes the stream.
func (s *eventStream) Done() {
	s.finish(doneMarker)
}

// Error writes an error frame and closes the stream.
func (s *eventStream) Error(msg string) {
	s.finish("Error: " + msg)
}

func (s *eventStream) finish(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return
	}
	_ = sse.WriteData(s.w, data)
	s.closeLocked()
}

// Close closes the stream without a terminal frame.
func (s *eventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// Closed reports whether the stream accepts no more frames.
func (s *eventStream) Closed() bool {
	return s.closed.Load()
}

// watch tears the pipe down when ctx ends and the stream is still open
// after grace. It does not take mu, so it unblocks a write stuck on a
// client that stopped reading.
func (s *eventStream) watch(ctx context.Context, grace time.Duration) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()

		select {
		case <-s.done:
		case <-timer.C:
			s.abort()
		}
	})
}

func (s *eventStream) abort() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)
	_ = s.w.CloseWithError(errStreamAborted)
}

func (s *eventStream) closeLocked() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)
	_ = s.w.Close()
}
