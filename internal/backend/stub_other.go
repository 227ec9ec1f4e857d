//go:build !linux && !darwin && !windows

package backend

import (
	"context"
	"errors"
)

const supported = false

// openStream always fails on platforms without a capture implementation.
// Supported() reports false here so callers can avoid reaching Open at all.
func openStream(context.Context, Options) (Stream, error) {
	return nil, errors.New("audio capture is not implemented for this platform")
}
