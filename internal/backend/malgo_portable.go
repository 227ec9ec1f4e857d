//go:build darwin || windows

package backend

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const supported = true

// malgoStream records 16-bit LE PCM via miniaudio on non-Pulse platforms.
type malgoStream struct {
	opts Options

	audioCtx *malgo.AllocatedContext
	device   *malgo.Device

	mu      sync.Mutex
	rawPCM  []byte
	stopped bool

	bytes atomic.Int64
}

func openStream(ctx context.Context, opts Options) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init miniaudio context: %w", err)
	}

	capture := &malgoStream{opts: opts, audioCtx: audioCtx}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(opts.Channels)
	deviceConfig.SampleRate = uint32(opts.SampleRate)

	device, err := malgo.InitDevice(audioCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: capture.onFrames,
	})
	if err != nil {
		capture.releaseContext()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	capture.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		capture.releaseContext()
		return nil, fmt.Errorf("start capture device: %w", err)
	}

	return capture, nil
}

// BytesCaptured reports total bytes accepted from the device.
func (s *malgoStream) BytesCaptured() int64 {
	return s.bytes.Load()
}

// Finalize stops the device, releases miniaudio resources, and writes the
// accumulated PCM out as a WAV file.
func (s *malgoStream) Finalize(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", fmt.Errorf("capture device already finalized")
	}
	s.stopped = true
	s.mu.Unlock()

	_ = s.device.Stop()
	s.device.Uninit()
	s.releaseContext()

	s.mu.Lock()
	pcm := s.rawPCM
	s.rawPCM = nil
	s.mu.Unlock()

	return materialize(s.opts, pcm)
}

// onFrames receives raw device frames and accumulates them until Finalize.
func (s *malgoStream) onFrames(_, input []byte, _ uint32) {
	if len(input) == 0 {
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.rawPCM = append(s.rawPCM, input...)
	s.mu.Unlock()

	s.bytes.Add(int64(len(input)))
}

func (s *malgoStream) releaseContext() {
	_ = s.audioCtx.Uninit()
	s.audioCtx.Free()
}
