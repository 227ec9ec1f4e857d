// Package session coordinates the capture lifecycle state machine and watchdog.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hollisb/micgrab/internal/backend"
	"github.com/hollisb/micgrab/internal/fsm"
	"github.com/hollisb/micgrab/internal/metrics"
)

const (
	triggerCaller   = "caller"
	triggerWatchdog = "watchdog"
)

// Session is the process-wide capture coordination point. It owns at most one
// active backend stream, enforces start/stop exclusivity, and bounds capture
// time with a watchdog timer. Constructed once and reused across cycles; no
// error leaves it unusable.
type Session struct {
	logger    *slog.Logger
	open      backend.OpenFunc
	supported func() bool
	opts      backend.Options

	mu          sync.Mutex
	state       fsm.State
	stream      backend.Stream
	startedAt   time.Time
	maxDuration time.Duration
	watchdog    *time.Timer
	lastResult  string
	lastErr     error
	done        chan struct{}
}

// New constructs an idle session. Nil open/supported fall back to the
// platform backend.
func New(logger *slog.Logger, open backend.OpenFunc, supported func() bool, opts backend.Options) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if open == nil {
		open = backend.Open
	}
	if supported == nil {
		supported = backend.Supported
	}

	return &Session{
		logger:    logger,
		open:      open,
		supported: supported,
		opts:      opts,
		state:     fsm.StateIdle,
	}
}

// Supported reports the platform capability backing this session.
func (s *Session) Supported() bool {
	return s.supported()
}

// State returns the current lifecycle state snapshot.
func (s *Session) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastResult returns the most recently finalized artifact path. This is how
// a caller retrieves the output of a watchdog-forced stop, which leaves the
// session idle.
func (s *Session) LastResult() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// LastError returns the failure of the most recently finalized cycle, or nil
// when it completed cleanly.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Done returns a channel closed when the active cycle finalizes, via either
// an explicit stop or the watchdog. Nil before the first Start; after a cycle
// finalizes the channel remains, already closed, until the next Start
// replaces it, so a caller that grabs it after a fast stop still wakes.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Start acquires the platform backend and begins one bounded capture cycle.
// The support check runs before duration validation, and acquisition happens
// inside the state critical section so a concurrent Stop can never interleave
// with the rollback of a failed Start.
func (s *Session) Start(ctx context.Context, maxDuration time.Duration) error {
	if !s.supported() {
		return ErrUnsupported
	}
	if maxDuration <= 0 {
		return ErrInvalidDuration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != fsm.StateIdle {
		return ErrAlreadyCapturing
	}
	next, err := fsm.Transition(s.state, fsm.EventStart)
	if err != nil {
		return err
	}
	s.state = next

	stream, err := s.open(ctx, s.opts)
	if err != nil {
		s.state, _ = fsm.Transition(s.state, fsm.EventFail)
		metrics.RecordFailure("acquire")
		return &BackendError{Op: "acquire", Err: err}
	}

	s.stream = stream
	s.startedAt = time.Now()
	s.maxDuration = maxDuration
	s.done = make(chan struct{})
	s.watchdog = time.AfterFunc(maxDuration, s.onWatchdog)

	metrics.RecordSessionStart()
	s.logger.Info("capture started",
		"max_duration", maxDuration.String(),
		"sample_rate", s.opts.SampleRate,
		"channels", s.opts.Channels,
	)
	return nil
}

// Stop finalizes the active capture and returns the artifact path. A stop
// already in flight is reported as ErrAlreadyStopping rather than joined;
// callers should await the in-flight result instead of retrying immediately.
func (s *Session) Stop(ctx context.Context) (string, error) {
	return s.finalize(ctx, triggerCaller)
}

// Close releases any in-flight backend and watchdog at process shutdown.
func (s *Session) Close() error {
	_, err := s.finalize(context.Background(), triggerCaller)
	if errors.Is(err, ErrNotCapturing) || errors.Is(err, ErrAlreadyStopping) {
		return nil
	}
	return err
}

// finalize is the single guarded path shared by Stop and the watchdog.
// Whichever caller wins the capturing->stopping transition owns the stream;
// the loser observes the updated state and takes an error branch cleanly.
func (s *Session) finalize(ctx context.Context, trigger string) (string, error) {
	s.mu.Lock()
	switch s.state {
	case fsm.StateIdle:
		s.mu.Unlock()
		return "", ErrNotCapturing
	case fsm.StateStopping:
		s.mu.Unlock()
		return "", ErrAlreadyStopping
	}

	event := fsm.EventStop
	if trigger == triggerWatchdog {
		event = fsm.EventTimeout
	}
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.state = next

	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	stream := s.stream
	startedAt := s.startedAt
	done := s.done
	s.mu.Unlock()

	// Finalize can suspend on device flush; the stopping state keeps
	// concurrent starts and stops out until the cycle lands back on idle.
	result, finalizeErr := stream.Finalize(ctx)
	bytes := stream.BytesCaptured()
	elapsed := time.Since(startedAt)

	s.mu.Lock()
	s.stream = nil
	s.startedAt = time.Time{}
	s.maxDuration = 0
	if finalizeErr != nil {
		s.state, _ = fsm.Transition(s.state, fsm.EventFail)
		s.lastErr = &BackendError{Op: "finalize", Err: finalizeErr}
	} else {
		s.state, _ = fsm.Transition(s.state, fsm.EventFinalized)
		s.lastResult = result
		s.lastErr = nil
	}
	// The channel stays in place, closed, until the next Start replaces it;
	// closing under the lock keeps it in step with the idle transition.
	close(done)
	s.mu.Unlock()

	if finalizeErr != nil {
		metrics.RecordFailure("finalize")
		s.logger.Error("capture finalize failed", "trigger", trigger, "error", finalizeErr.Error())
		return "", &BackendError{Op: "finalize", Err: finalizeErr}
	}

	metrics.RecordSessionFinalized(trigger, bytes, elapsed)
	s.logger.Info("capture finalized",
		"trigger", trigger,
		"result", result,
		"bytes_captured", bytes,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

// onWatchdog forces the finalize path when the duration bound elapses. A
// caller-initiated stop that won the transition first leaves nothing to do.
func (s *Session) onWatchdog() {
	result, err := s.finalize(context.Background(), triggerWatchdog)
	if err != nil {
		if errors.Is(err, ErrNotCapturing) || errors.Is(err, ErrAlreadyStopping) {
			return
		}
		s.logger.Error("watchdog stop failed", "error", err.Error())
		return
	}
	s.logger.Info("watchdog stopped capture at duration bound", "result", result)
}
