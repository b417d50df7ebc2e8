package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quenra/kalliope/pkg/audio"
)

// ---- Constructor ----

func TestNew_Validation(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty serverURL")
	}
	if _, err := New("http://localhost:8002", WithAPIMode(APIModeXTTS)); err == nil {
		t.Error("expected error for XTTS mode without voice ID")
	}
	if _, err := New("http://localhost:8002", WithAPIMode(APIModeXTTS), WithVoiceID("ref.wav")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// ---- WAV parsing ----

func TestParseWAV_CanonicalHeader(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x01, 0x02}, 512)
	wav := audio.EncodeWAV(pcm, 22050, 1)

	info, err := parseWAV(wav)
	if err != nil {
		t.Fatalf("parseWAV: %v", err)
	}
	if info.DataOffset != 44 {
		t.Errorf("DataOffset = %d, want 44", info.DataOffset)
	}
	if info.SampleRate != 22050 || info.Channels != 1 {
		t.Errorf("format = %d Hz / %d ch, want 22050 Hz mono", info.SampleRate, info.Channels)
	}
	if !bytes.Equal(wav[info.DataOffset:], pcm) {
		t.Error("payload after DataOffset does not match input PCM")
	}
}

func TestParseWAV_ExtraChunkBeforeData(t *testing.T) {
	// Some server builds emit a LIST chunk between fmt and data.
	pcm := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	canonical := audio.EncodeWAV(pcm, 44100, 2)

	var wav []byte
	wav = append(wav, canonical[:36]...) // RIFF + fmt chunks
	wav = append(wav, []byte("LIST")...)
	wav = append(wav, []byte{4, 0, 0, 0}...) // chunk size 4
	wav = append(wav, []byte("INFO")...)
	wav = append(wav, canonical[36:]...) // data chunk

	info, err := parseWAV(wav)
	if err != nil {
		t.Fatalf("parseWAV: %v", err)
	}
	if info.SampleRate != 44100 || info.Channels != 2 {
		t.Errorf("format = %d Hz / %d ch, want 44100 Hz stereo", info.SampleRate, info.Channels)
	}
	if !bytes.Equal(wav[info.DataOffset:], pcm) {
		t.Error("payload after DataOffset does not match input PCM")
	}
}

func TestParseWAV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{name: "empty", in: nil},
		{name: "too short", in: []byte("RIFF")},
		{name: "not riff", in: bytes.Repeat([]byte{0x00}, 64)},
		{name: "no data chunk", in: append([]byte("RIFF\x00\x00\x00\x00WAVE"), bytes.Repeat([]byte{0}, 8)...)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseWAV(tc.in); err == nil {
				t.Error("expected error")
			}
		})
	}
}

// ---- Synthesis round trips ----

func TestSynthesize_StandardMode(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x10, 0x20}, 1024)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("text"); got != "hello there" {
			t.Errorf("text param = %q, want %q", got, "hello there")
		}
		if got := r.URL.Query().Get("speaker_id"); got != "p225" {
			t.Errorf("speaker_id param = %q, want p225", got)
		}
		if got := r.URL.Query().Get("language_id"); got != "en" {
			t.Errorf("language_id param = %q, want en", got)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio.EncodeWAV(pcm, 22050, 1))
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithVoiceID("p225"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := p.Synthesize(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(clip.PCM, pcm) {
		t.Errorf("clip PCM length = %d, want %d", len(clip.PCM), len(pcm))
	}
	if clip.SampleRate != 22050 || clip.Channels != 1 {
		t.Errorf("clip format = %d Hz / %d ch, want 22050 Hz mono", clip.SampleRate, clip.Channels)
	}
}

func TestSynthesize_XTTSMode(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x30, 0x40}, 256)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts_to_audio/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if req.Text != "guten tag" || req.SpeakerWav != "ref.wav" || req.Language != "de" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio.EncodeWAV(pcm, 24000, 1))
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS), WithVoiceID("ref.wav"), WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := p.Synthesize(context.Background(), "guten tag")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(clip.PCM, pcm) {
		t.Errorf("clip PCM length = %d, want %d", len(clip.PCM), len(pcm))
	}
	if clip.SampleRate != 24000 {
		t.Errorf("clip SampleRate = %d, want 24000", clip.SampleRate)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model still loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hello"); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, err := New("http://localhost:5002")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), ""); err == nil {
		t.Error("expected error for empty text")
	}
}
