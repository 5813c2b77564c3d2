package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/papercomputeco/cohort/pkg/checkpoint"
	"github.com/papercomputeco/cohort/pkg/llm"
	"github.com/papercomputeco/cohort/pkg/storage"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 64

	// maxTranscriptChars bounds the transcript bytes sent to the completer.
	maxTranscriptChars = 30000

	ErrEmptySummary = errors.New("completer returned a summary without sections")
)

// Job asks for the summary of one thread.
type Job struct {
	ThreadID string
	UserID   string
}

// Config holds the summary worker's collaborators.
type Config struct {
	Checkpoints storage.CheckpointStore
	Summaries   storage.SummaryStore
	Completer   llm.Completer

	NumWorkers uint
	QueueSize  uint

	// JobTimeout bounds one summary. Defaults to two minutes.
	JobTimeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Worker summarizes threads in the background.
type Worker struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending map[string]bool
}

// NewWorker starts the worker goroutines.
func NewWorker(c *Config) (*Worker, error) {
	if c.Checkpoints == nil || c.Summaries == nil || c.Completer == nil {
		return nil, errors.New("summary worker requires checkpoint and summary stores and a completer")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 2 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	w := &Worker{
		config:  c,
		queue:   make(chan Job, c.QueueSize),
		logger:  c.Logger,
		pending: make(map[string]bool),
	}

	w.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go w.work(i)
	}
	return w, nil
}

// Enqueue submits a job. It returns false when the job was dropped because
// the queue is full, the worker is closed, or the thread is already queued.
func (w *Worker) Enqueue(job Job) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.pending[job.ThreadID] {
		return false
	}

	select {
	case w.queue <- job:
		w.pending[job.ThreadID] = true
		w.logger.Debug("summary job queued", "thread_id", job.ThreadID)
		return true
	default:
		w.logger.Warn("summary job dropped, queue full", "thread_id", job.ThreadID)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Worker) work(id uint) {
	defer w.wg.Done()
	w.logger.Debug("summary worker started", "worker_id", id)

	for job := range w.queue {
		w.mu.Lock()
		delete(w.pending, job.ThreadID)
		w.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), w.config.JobTimeout)
		if err := w.Summarize(ctx, job); err != nil {
			w.logger.Error("summary failed", "thread_id", job.ThreadID, "error", err)
		}
		cancel()
	}

	w.logger.Debug("summary worker stopped", "worker_id", id)
}

// Summarize derives and stores the summary for job synchronously.
func (w *Worker) Summarize(ctx context.Context, job Job) error {
	cps, err := w.config.Checkpoints.List(ctx, job.ThreadID)
	if err != nil {
		return fmt.Errorf("loading thread: %w", err)
	}
	messages := checkpoint.Reconstruct(cps)
	if len(messages) == 0 {
		return nil
	}

	completion, err := w.config.Completer.Complete(ctx, buildSummaryPrompt(buildTranscript(messages)), nil)
	if err != nil {
		return fmt.Errorf("llm call: %w", err)
	}
	text, err := completion.Text()
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if Project(text).IsEmpty() {
		return ErrEmptySummary
	}

	err = w.config.Summaries.PutSummary(ctx, &storage.Summary{
		UserID:    job.UserID,
		ThreadID:  job.ThreadID,
		Text:      text,
		CreatedAt: w.config.Now(),
	})
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}

	w.logger.Info("summary stored", "thread_id", job.ThreadID, "user_id", job.UserID)
	return nil
}

func buildTranscript(messages []llm.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}
	transcript := b.String()
	if len(transcript) > maxTranscriptChars {
		// keep the most recent part, starting on a rune
		cut := len(transcript) - maxTranscriptChars
		for cut < len(transcript) && !utf8.RuneStart(transcript[cut]) {
			cut++
		}
		transcript = transcript[cut:]
	}
	return transcript
}

func buildSummaryPrompt(transcript string) string {
	return "Summarize this conversation between a founder and an accelerator application advisor.\n" +
		"Reply with exactly these three sections separated by blank lines, each a bulleted list using \"- \":\n\n" +
		LabelDiscussions + "\n- ...\n\n" +
		LabelLastTask + "\n- ...\n\n" +
		LabelContext + "\n- ...\n\n" +
		"Transcript:\n" + transcript
}
