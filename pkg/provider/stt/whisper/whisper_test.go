package whisper_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/quenra/kalliope/pkg/audio"
	"github.com/quenra/kalliope/pkg/provider/stt"
	"github.com/quenra/kalliope/pkg/provider/stt/whisper"
)

// writeTestWAV writes a small valid WAV file and returns its path.
func writeTestWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "utterance.wav")
	pcm := make([]byte, 3200) // 100 ms of 16 kHz mono silence
	if err := audio.WriteWAVFile(path, pcm, 16000, 1); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}
	return path
}

func TestNewRequiresServerURL(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New(""); err == nil {
		t.Error("New(\"\") = nil error, want error")
	}
}

func TestTranscribeSubmitsMultipart(t *testing.T) {
	t.Parallel()

	var gotPath, gotLanguage, gotModel string
	var gotFileLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		buf := make([]byte, 1<<20)
		n, _ := f.Read(buf)
		gotFileLen = n
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "  hello from whisper  "}`))
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithLanguage("de"), whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), writeTestWAV(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello from whisper" {
		t.Errorf("text = %q, want %q (trimmed)", text, "hello from whisper")
	}
	if gotPath != "/inference" {
		t.Errorf("request path = %q, want /inference", gotPath)
	}
	if gotLanguage != "de" {
		t.Errorf("language field = %q, want de", gotLanguage)
	}
	if gotModel != "base.en" {
		t.Errorf("model field = %q, want base.en", gotModel)
	}
	if gotFileLen != 44+3200 {
		t.Errorf("uploaded file length = %d, want %d", gotFileLen, 44+3200)
	}
}

func TestTranscribeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			p, err := whisper.New(srv.URL)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			_, err = p.Transcribe(context.Background(), writeTestWAV(t))
			if err == nil {
				t.Fatal("Transcribe = nil error, want error")
			}
			var terr *stt.TranscriptionError
			if !errors.As(err, &terr) {
				t.Errorf("error type = %T, want *stt.TranscriptionError", err)
			}
		})
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	t.Parallel()

	p, err := whisper.New("http://localhost:1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), "/does/not/exist.wav"); err == nil {
		t.Error("Transcribe with missing file = nil error, want error")
	}
}
