// Package backend owns platform capture streams and their finalized artifacts.
package backend

import "context"

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
)

// Options controls stream acquisition and artifact placement.
type Options struct {
	OutputDir  string
	SampleRate int
	Channels   int
}

// Stream is one active platform capture stream. Created per cycle by Open,
// destroyed by Finalize, never reused.
type Stream interface {
	// BytesCaptured reports total PCM bytes accepted from the device so far.
	BytesCaptured() int64
	// Finalize halts the device stream, flushes pending samples, and
	// materializes the capture as a WAV file. Returns the file path.
	// The stream is released whether or not materialization succeeds.
	Finalize(ctx context.Context) (string, error)
}

// OpenFunc is the acquisition contract consumed by session wiring.
type OpenFunc func(ctx context.Context, opts Options) (Stream, error)

// Supported reports whether this build carries a working capture backend.
// Pure and safe to call at any time; Open on an unsupported build fails.
func Supported() bool {
	return supported
}

// Open acquires the platform device stream and starts capturing.
func Open(ctx context.Context, opts Options) (Stream, error) {
	return openStream(ctx, withDefaults(opts))
}

func withDefaults(opts Options) Options {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Channels <= 0 {
		opts.Channels = DefaultChannels
	}
	return opts
}
