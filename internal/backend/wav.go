package backend

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const wavBitsPerSample = 16

// materialize writes captured PCM into a uniquely named WAV file under the
// configured output directory and returns its path.
func materialize(opts Options, pcm []byte) (string, error) {
	if err := os.MkdirAll(opts.OutputDir, 0o700); err != nil {
		return "", fmt.Errorf("ensure capture output dir: %w", err)
	}

	path := filepath.Join(opts.OutputDir, fmt.Sprintf("capture-%s.wav", uuid.NewString()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create capture file: %w", err)
	}

	if err := writeWAV(f, pcm, opts.SampleRate, opts.Channels); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write capture file %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close capture file %q: %w", path, err)
	}

	return path, nil
}

// writeWAV emits a canonical RIFF/fmt/data container around 16-bit LE PCM.
func writeWAV(w io.Writer, pcm []byte, sampleRate, channels int) error {
	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * channels * wavBitsPerSample / 8)
	blockAlign := uint16(channels * wavBitsPerSample / 8)

	header := make([]byte, 0, 44)
	header = append(header, "RIFF"...)
	header = binary.LittleEndian.AppendUint32(header, 36+dataSize)
	header = append(header, "WAVE"...)
	header = append(header, "fmt "...)
	header = binary.LittleEndian.AppendUint32(header, 16)
	header = binary.LittleEndian.AppendUint16(header, 1) // PCM
	header = binary.LittleEndian.AppendUint16(header, uint16(channels))
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate))
	header = binary.LittleEndian.AppendUint32(header, byteRate)
	header = binary.LittleEndian.AppendUint16(header, blockAlign)
	header = append(header, "data"...)
	header = binary.LittleEndian.AppendUint32(header, dataSize)

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
