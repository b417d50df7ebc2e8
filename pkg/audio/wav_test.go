package audio_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/quenra/kalliope/pkg/audio"
)

func TestEncodeWAV_HeaderRoundTrip(t *testing.T) {
	t.Parallel()

	// Header fields must be derived from the actual payload length for
	// arbitrary payload sizes, including zero and odd lengths.
	sizes := []int{0, 1, 2, 3, 44, 960, 3841, 65536}
	for _, n := range sizes {
		pcm := bytes.Repeat([]byte{0x7f}, n)
		wav := audio.EncodeWAV(pcm, 16000, 1)

		if got, want := len(wav), 44+n; got != want {
			t.Fatalf("EncodeWAV(%d bytes): len = %d, want %d", n, got, want)
		}

		hdr, err := audio.ParseWAVHeader(wav)
		if err != nil {
			t.Fatalf("ParseWAVHeader(%d bytes): %v", n, err)
		}
		if hdr.DataSize != n {
			t.Errorf("DataSize = %d, want %d", hdr.DataSize, n)
		}
		if hdr.RIFFSize != 36+n {
			t.Errorf("RIFFSize = %d, want %d", hdr.RIFFSize, 36+n)
		}
		if hdr.SampleRate != 16000 || hdr.Channels != 1 || hdr.BitsPerSample != 16 {
			t.Errorf("format = %d Hz / %d ch / %d bit, want 16000/1/16",
				hdr.SampleRate, hdr.Channels, hdr.BitsPerSample)
		}
	}
}

func TestDecodeWAV_RoundTripPayload(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	wav := audio.EncodeWAV(pcm, 48000, 2)

	hdr, payload, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !bytes.Equal(payload, pcm) {
		t.Errorf("payload = %v, want %v", payload, pcm)
	}
	if hdr.SampleRate != 48000 || hdr.Channels != 2 {
		t.Errorf("format = %d Hz / %d ch, want 48000/2", hdr.SampleRate, hdr.Channels)
	}
}

func TestParseWAVHeader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"truncated", []byte("RIFF")},
		{"not riff", bytes.Repeat([]byte{0}, 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := audio.ParseWAVHeader(tt.in); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDecodeWAV_TruncatedPayload(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeWAV(make([]byte, 100), 16000, 1)
	if _, _, err := audio.DecodeWAV(wav[:len(wav)-10]); err == nil {
		t.Error("expected error for truncated payload, got nil")
	}
}

func TestWriteWAVFile_ReadBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.wav")
	pcm := audio.Int16sToBytes([]int16{100, -100, 32767, -32768})

	if err := audio.WriteWAVFile(path, pcm, 24000, 1); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}

	hdr, payload, err := audio.ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	if hdr.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", hdr.SampleRate)
	}
	if !bytes.Equal(payload, pcm) {
		t.Errorf("payload mismatch after round trip")
	}
}

func TestWriteWAVFile_BadPath(t *testing.T) {
	t.Parallel()

	err := audio.WriteWAVFile(filepath.Join(t.TempDir(), "missing", "clip.wav"), nil, 16000, 1)
	if err == nil {
		t.Error("expected error for unwritable destination, got nil")
	}
	if _, statErr := os.Stat(filepath.Join(t.TempDir(), "missing")); statErr == nil {
		t.Error("destination directory should not have been created")
	}
}
