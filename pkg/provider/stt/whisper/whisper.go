// Package whisper provides a whisper.cpp-backed STT provider.
//
// It connects to a running whisper-server binary (which exposes a REST API at
// POST /inference) and submits each utterance's WAV file as a batch inference
// request. whisper.cpp is a batch engine, which matches the pipeline's
// one-file-per-utterance model exactly.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	text, err := p.Transcribe(ctx, "/tmp/utterance.wav")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/quenra/kalliope/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the HTTP request timeout for inference calls.
// Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for inference calls.
// Intended for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// Multiple transcriptions may be in flight simultaneously.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads the WAV file at wavPath to the server's /inference
// endpoint as multipart/form-data and returns the transcribed text with
// surrounding whitespace trimmed.
func (p *Provider) Transcribe(ctx context.Context, wavPath string) (string, error) {
	wav, err := os.ReadFile(wavPath)
	if err != nil {
		return "", &stt.TranscriptionError{Provider: "whisper", Err: fmt.Errorf("read wav: %w", err)}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", &stt.TranscriptionError{Provider: "whisper", Err: fmt.Errorf("create form file: %w", err)}
	}
	if _, err := fw.Write(wav); err != nil {
		return "", &stt.TranscriptionError{Provider: "whisper", Err: fmt.Errorf("write wav data: %w", err)}
	}

	if p.language != "" {
		if err := mw.WriteField("language", p.language); err != nil {
			return "", &stt.TranscriptionError{Provider: "whisper", Err: fmt.Errorf("write language field: %w", err)}
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return "", &stt.TranscriptionError{Provider: "whisper", Err: fmt.Errorf("write model field: %w", err)}
		}
	}

	if err := mw.Close(); err != nil {
		return "", &stt.TranscriptionError{Provider: "whisper", Err: fmt.Errorf("close multipart writer: %w", err)}
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", &stt.TranscriptionError{Provider: "whisper", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &stt.TranscriptionError{Provider: "whisper", Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &stt.TranscriptionError{Provider: "whisper", Err: fmt.Errorf("server returned HTTP %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &stt.TranscriptionError{Provider: "whisper", Err: fmt.Errorf("read response body: %w", err)}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", &stt.TranscriptionError{Provider: "whisper", Err: fmt.Errorf("parse JSON response: %w", err)}
	}

	return strings.TrimSpace(result.Text), nil
}
