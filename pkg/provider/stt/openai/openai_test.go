package openai_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quenra/kalliope/pkg/audio"
	"github.com/quenra/kalliope/pkg/provider/stt/openai"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := openai.New("", "whisper-1"); err == nil {
		t.Error("New with empty apiKey = nil error, want error")
	}
}

func TestTranscribeAgainstCompatibleServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": " recognised speech "}`))
	}))
	defer srv.Close()

	p, err := openai.New("test-key", "whisper-1", openai.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path := filepath.Join(t.TempDir(), "utterance.wav")
	if err := audio.WriteWAVFile(path, make([]byte, 3200), 16000, 1); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}

	text, err := p.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "recognised speech" {
		t.Errorf("text = %q, want %q", text, "recognised speech")
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	t.Parallel()

	p, err := openai.New("test-key", "whisper-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), "/does/not/exist.wav"); err == nil {
		t.Error("Transcribe with missing file = nil error, want error")
	}
}
