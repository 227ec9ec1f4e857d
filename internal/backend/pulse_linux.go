//go:build linux

package backend

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const supported = true

// pulseStream records 16-bit LE PCM from the default Pulse source.
type pulseStream struct {
	opts Options

	client *pulse.Client
	stream *pulse.RecordStream

	mu      sync.Mutex
	rawPCM  []byte
	stopped bool

	bytes atomic.Int64
}

func openStream(ctx context.Context, opts Options) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("micgrab"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}

	source, err := client.DefaultSource()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve default source: %w", err)
	}

	capture := &pulseStream{opts: opts, client: client}

	recordOpts := []pulse.RecordOption{
		pulse.RecordSource(source),
		pulse.RecordSampleRate(opts.SampleRate),
		pulse.RecordMediaName("micgrab capture"),
	}
	if opts.Channels == 2 {
		recordOpts = append(recordOpts, pulse.RecordStereo)
	} else {
		recordOpts = append(recordOpts, pulse.RecordMono)
	}

	stream, err := client.NewRecord(
		pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE),
		recordOpts...,
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	return capture, nil
}

// BytesCaptured reports total bytes accepted from Pulse.
func (s *pulseStream) BytesCaptured() int64 {
	return s.bytes.Load()
}

// Finalize stops the stream, releases the Pulse connection, and writes the
// accumulated PCM out as a WAV file.
func (s *pulseStream) Finalize(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", fmt.Errorf("pulse stream already finalized")
	}
	s.stopped = true
	s.mu.Unlock()

	s.stream.Stop()
	s.stream.Close()
	s.client.Close()

	s.mu.Lock()
	pcm := s.rawPCM
	s.rawPCM = nil
	s.mu.Unlock()

	return materialize(s.opts, pcm)
}

// onPCM receives raw Pulse frames and accumulates them until Finalize.
func (s *pulseStream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	s.rawPCM = append(s.rawPCM, buffer...)
	s.mu.Unlock()

	s.bytes.Add(int64(len(buffer)))
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
