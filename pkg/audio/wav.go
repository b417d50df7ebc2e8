package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// wavHeaderSize is the size of the canonical RIFF/WAVE/fmt /data header
// produced by [EncodeWAV].
const wavHeaderSize = 44

// ErrNotWAV is returned by [ParseWAVHeader] when the input does not start
// with a RIFF/WAVE signature.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// WAVHeader holds the format fields parsed from a WAV container header.
type WAVHeader struct {
	SampleRate    int
	Channels      int
	BitsPerSample int

	// DataSize is the payload length in bytes as declared by the data chunk.
	DataSize int

	// RIFFSize is the declared RIFF chunk size (file size minus 8).
	RIFFSize int
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM in a WAV container.
// The header's data-size and RIFF-size fields are computed from the actual
// payload length, so the result is valid for any payload length including
// zero bytes.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bps = 16
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format tag
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[wavHeaderSize:], pcm)

	return buf
}

// WriteWAVFile encodes pcm as a WAV container and writes it to path
// atomically enough for our purposes: the header is built in memory first,
// so a failed write can never leave a file with a valid header and missing
// payload declared as present.
func WriteWAVFile(path string, pcm []byte, sampleRate, channels int) error {
	if err := os.WriteFile(path, EncodeWAV(pcm, sampleRate, channels), 0o600); err != nil {
		return fmt.Errorf("audio: write wav %q: %w", path, err)
	}
	return nil
}

// ParseWAVHeader parses the canonical 44-byte WAV header at the start of b.
// It returns [ErrNotWAV] when the RIFF/WAVE signature is absent and an error
// when the header is truncated or declares a non-PCM format.
func ParseWAVHeader(b []byte) (WAVHeader, error) {
	if len(b) < wavHeaderSize {
		return WAVHeader{}, fmt.Errorf("audio: wav header truncated: %d bytes", len(b))
	}
	if !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return WAVHeader{}, ErrNotWAV
	}
	if !bytes.Equal(b[12:16], []byte("fmt ")) {
		return WAVHeader{}, fmt.Errorf("audio: missing fmt chunk")
	}
	if tag := binary.LittleEndian.Uint16(b[20:22]); tag != 1 {
		return WAVHeader{}, fmt.Errorf("audio: unsupported wav format tag %d (want PCM)", tag)
	}
	if !bytes.Equal(b[36:40], []byte("data")) {
		return WAVHeader{}, fmt.Errorf("audio: missing data chunk")
	}

	return WAVHeader{
		SampleRate:    int(binary.LittleEndian.Uint32(b[24:28])),
		Channels:      int(binary.LittleEndian.Uint16(b[22:24])),
		BitsPerSample: int(binary.LittleEndian.Uint16(b[34:36])),
		DataSize:      int(binary.LittleEndian.Uint32(b[40:44])),
		RIFFSize:      int(binary.LittleEndian.Uint32(b[4:8])),
	}, nil
}

// DecodeWAV parses a WAV container and returns its header and PCM payload.
// The payload is clamped to the declared data size when the buffer carries
// trailing bytes, and an error is returned when the buffer is shorter than
// the declared payload.
func DecodeWAV(b []byte) (WAVHeader, []byte, error) {
	hdr, err := ParseWAVHeader(b)
	if err != nil {
		return WAVHeader{}, nil, err
	}
	payload := b[wavHeaderSize:]
	if len(payload) < hdr.DataSize {
		return WAVHeader{}, nil, fmt.Errorf("audio: wav payload truncated: declared %d bytes, have %d", hdr.DataSize, len(payload))
	}
	return hdr, payload[:hdr.DataSize], nil
}

// ReadWAVFile reads and decodes the WAV file at path.
func ReadWAVFile(path string) (WAVHeader, []byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return WAVHeader{}, nil, fmt.Errorf("audio: read wav %q: %w", path, err)
	}
	return DecodeWAV(b)
}
