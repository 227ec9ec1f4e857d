package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hollisb/micgrab/internal/backend"
	"github.com/hollisb/micgrab/internal/fsm"
)

type fakeStream struct {
	result        string
	finalizeErr   error
	finalizeDelay time.Duration
	bytes         int64

	finalized atomic.Int32
}

func (f *fakeStream) BytesCaptured() int64 {
	return f.bytes
}

func (f *fakeStream) Finalize(context.Context) (string, error) {
	f.finalized.Add(1)
	if f.finalizeDelay > 0 {
		time.Sleep(f.finalizeDelay)
	}
	if f.finalizeErr != nil {
		return "", f.finalizeErr
	}
	return f.result, nil
}

type fakeOpener struct {
	mu      sync.Mutex
	openErr error
	opened  int
	last    *fakeStream

	result        string
	finalizeErr   error
	finalizeDelay time.Duration
}

func (f *fakeOpener) open(context.Context, backend.Options) (backend.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	result := f.result
	if result == "" {
		result = "/tmp/capture-test.wav"
	}
	f.last = &fakeStream{
		result:        result,
		finalizeErr:   f.finalizeErr,
		finalizeDelay: f.finalizeDelay,
		bytes:         3200,
	}
	return f.last, nil
}

func (f *fakeOpener) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *fakeOpener) lastStream() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func supportedYes() bool { return true }

func supportedNo() bool { return false }

func newTestSession(opener *fakeOpener, supported func() bool) *Session {
	return New(nil, opener.open, supported, backend.Options{OutputDir: "unused"})
}

func TestStartStopCycle(t *testing.T) {
	opener := &fakeOpener{result: "/captures/one.wav"}
	s := newTestSession(opener, supportedYes)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, 5*time.Second))
	require.Equal(t, fsm.StateCapturing, s.State())

	err := s.Start(ctx, 5*time.Second)
	require.ErrorIs(t, err, ErrAlreadyCapturing)
	require.Equal(t, 1, opener.openCount())
	require.Equal(t, fsm.StateCapturing, s.State())

	result, err := s.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, "/captures/one.wav", result)
	require.Equal(t, fsm.StateIdle, s.State())

	_, err = s.Stop(ctx)
	require.ErrorIs(t, err, ErrNotCapturing)
	require.Equal(t, fsm.StateIdle, s.State())
}

func TestStopWithoutStart(t *testing.T) {
	s := newTestSession(&fakeOpener{}, supportedYes)

	_, err := s.Stop(context.Background())
	require.ErrorIs(t, err, ErrNotCapturing)
	require.Equal(t, fsm.StateIdle, s.State())
}

func TestStartUnsupportedChecksSupportBeforeDuration(t *testing.T) {
	opener := &fakeOpener{}
	s := newTestSession(opener, supportedNo)
	ctx := context.Background()

	// Support is checked first, so even invalid durations report Unsupported.
	for _, d := range []time.Duration{5 * time.Second, 0, -time.Second} {
		err := s.Start(ctx, d)
		require.ErrorIs(t, err, ErrUnsupported)
	}
	require.Equal(t, fsm.StateIdle, s.State())
	require.Equal(t, 0, opener.openCount())
}

func TestInvalidDurationLeavesNoResidue(t *testing.T) {
	opener := &fakeOpener{}
	s := newTestSession(opener, supportedYes)
	ctx := context.Background()

	err := s.Start(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidDuration)
	require.Equal(t, fsm.StateIdle, s.State())
	require.Equal(t, 0, opener.openCount())

	require.NoError(t, s.Start(ctx, 5*time.Second))
	_, err = s.Stop(ctx)
	require.NoError(t, err)
}

func TestBackendOpenFailureRollsBack(t *testing.T) {
	opener := &fakeOpener{openErr: errors.New("device busy")}
	s := newTestSession(opener, supportedYes)
	ctx := context.Background()

	err := s.Start(ctx, 5*time.Second)
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, "acquire", backendErr.Op)
	require.ErrorContains(t, err, "device busy")
	require.Equal(t, fsm.StateIdle, s.State())

	opener.mu.Lock()
	opener.openErr = nil
	opener.mu.Unlock()

	require.NoError(t, s.Start(ctx, 5*time.Second))
	_, err = s.Stop(ctx)
	require.NoError(t, err)
}

func TestFinalizeFailureReturnsToIdle(t *testing.T) {
	opener := &fakeOpener{finalizeErr: errors.New("flush failed")}
	s := newTestSession(opener, supportedYes)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, 5*time.Second))

	_, err := s.Stop(ctx)
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Equal(t, "finalize", backendErr.Op)
	require.Equal(t, fsm.StateIdle, s.State())

	// Session stays usable across a failed cycle.
	opener.mu.Lock()
	opener.finalizeErr = nil
	opener.mu.Unlock()

	require.NoError(t, s.Start(ctx, 5*time.Second))
	result, err := s.Stop(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, result)
}

func TestConcurrentStartsSingleWinner(t *testing.T) {
	opener := &fakeOpener{}
	s := newTestSession(opener, supportedYes)
	ctx := context.Background()

	const attempts = 16
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Start(ctx, 5*time.Second)
		}()
	}
	wg.Wait()
	close(errs)

	var successes, rejections int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyCapturing):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, attempts-1, rejections)
	require.Equal(t, 1, opener.openCount())

	_, err := s.Stop(ctx)
	require.NoError(t, err)
}

func TestWatchdogForcesStop(t *testing.T) {
	opener := &fakeOpener{result: "/captures/forced.wav"}
	s := newTestSession(opener, supportedYes)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, 30*time.Millisecond))
	done := s.Done()
	require.NotNil(t, done)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not force a stop")
	}

	require.Equal(t, fsm.StateIdle, s.State())
	require.Equal(t, "/captures/forced.wav", s.LastResult())
	require.Equal(t, int32(1), opener.lastStream().finalized.Load())

	// Forced stops are terminal: a later explicit stop has nothing to do.
	_, err := s.Stop(ctx)
	require.ErrorIs(t, err, ErrNotCapturing)

	// The session remains reusable with the same parameters.
	require.NoError(t, s.Start(ctx, 5*time.Second))
	_, err = s.Stop(ctx)
	require.NoError(t, err)
}

func TestDoneStaysClosedAfterFinalize(t *testing.T) {
	opener := &fakeOpener{result: "/captures/fast.wav"}
	s := newTestSession(opener, supportedYes)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, time.Hour))
	_, err := s.Stop(ctx)
	require.NoError(t, err)

	// A caller that grabs the channel only after a fast stop must still
	// observe the completed cycle rather than block on a nil channel.
	done := s.Done()
	require.NotNil(t, done)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after finalize")
	}

	// The next cycle gets a fresh, open channel.
	require.NoError(t, s.Start(ctx, time.Hour))
	next := s.Done()
	require.NotNil(t, next)
	select {
	case <-next:
		t.Fatal("new cycle's done channel already closed")
	default:
	}
	_, err = s.Stop(ctx)
	require.NoError(t, err)
}

func TestExplicitStopDisarmsWatchdog(t *testing.T) {
	opener := &fakeOpener{}
	s := newTestSession(opener, supportedYes)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, 40*time.Millisecond))
	result, err := s.Stop(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, result)

	// Give a disarmed watchdog every chance to misfire.
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, int32(1), opener.lastStream().finalized.Load())
	require.Equal(t, fsm.StateIdle, s.State())
}

func TestStopDuringStopReturnsAlreadyStopping(t *testing.T) {
	opener := &fakeOpener{finalizeDelay: 150 * time.Millisecond}
	s := newTestSession(opener, supportedYes)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, 5*time.Second))

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Stop(ctx)
		firstErr <- err
	}()

	waitForState(t, s, fsm.StateStopping)

	_, err := s.Stop(ctx)
	require.ErrorIs(t, err, ErrAlreadyStopping)

	// A start racing the in-flight stop is rejected too.
	err = s.Start(ctx, 5*time.Second)
	require.ErrorIs(t, err, ErrAlreadyCapturing)

	require.NoError(t, <-firstErr)
	require.Equal(t, fsm.StateIdle, s.State())
}

func TestWatchdogLosesToInFlightStop(t *testing.T) {
	opener := &fakeOpener{finalizeDelay: 100 * time.Millisecond}
	s := newTestSession(opener, supportedYes)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, time.Hour))

	stopErr := make(chan error, 1)
	go func() {
		_, err := s.Stop(ctx)
		stopErr <- err
	}()

	waitForState(t, s, fsm.StateStopping)

	// Fire the watchdog path directly against the in-flight stop; it must
	// observe the stopping state and back off without a second finalize.
	s.onWatchdog()

	require.NoError(t, <-stopErr)
	require.Equal(t, int32(1), opener.lastStream().finalized.Load())
}

func TestCloseReleasesActiveSession(t *testing.T) {
	opener := &fakeOpener{}
	s := newTestSession(opener, supportedYes)

	require.NoError(t, s.Close())

	require.NoError(t, s.Start(context.Background(), time.Hour))
	require.NoError(t, s.Close())
	require.Equal(t, fsm.StateIdle, s.State())
	require.Equal(t, int32(1), opener.lastStream().finalized.Load())
}

func waitForState(t *testing.T, s *Session, want fsm.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("session never reached state %s (now %s)", want, s.State())
}
