// Package pipeline runs the utterance pipeline: a finished capture is
// transcribed, answered by the language model, synthesized to speech, and
// handed to playback. Every on-disk artifact the pipeline produces is tracked
// by an [artifact.Scope] and reclaimed no matter where a run aborts.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/quenra/kalliope/internal/artifact"
	"github.com/quenra/kalliope/internal/capture"
	"github.com/quenra/kalliope/internal/memory"
	"github.com/quenra/kalliope/internal/observe"
	"github.com/quenra/kalliope/pkg/audio"
	"github.com/quenra/kalliope/pkg/provider/llm"
	"github.com/quenra/kalliope/pkg/provider/stt"
	"github.com/quenra/kalliope/pkg/provider/tts"
)

const (
	// DefaultMinTranscriptChars is the minimum transcript length (in runes,
	// after trimming) below which an utterance is treated as recognition
	// noise and dropped.
	DefaultMinTranscriptChars = 2

	// DefaultMaxReplyChars bounds the spoken reply length. Long replies make
	// terrible voice UX and burn synthesis quota.
	DefaultMaxReplyChars = 600
)

// transcribeFormat is the PCM layout handed to speech recognition. Whisper
// models are trained on 16 kHz mono; feeding anything else just makes the
// engine resample internally.
var transcribeFormat = audio.Format{SampleRate: 16000, Channels: 1}

// Enqueuer accepts a finished clip for playback in a room. The implementation
// owns the clip file from the moment Enqueue is called, error or not.
type Enqueuer interface {
	Enqueue(roomID, path string) error
}

// identity keys the per-speaker processing guard.
type identity struct {
	roomID    string
	speakerID string
}

// tuning groups the reply-shaping settings. They may be replaced at runtime
// by a config reload; each Process run works with the snapshot it started
// with.
type tuning struct {
	systemPrompt       string
	minTranscriptChars int
	maxReplyChars      int
	wake               *WakeDetector
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithSystemPrompt sets the system message prepended to every generation
// request.
func WithSystemPrompt(prompt string) Option {
	return func(c *Coordinator) { c.tune.systemPrompt = prompt }
}

// WithMinTranscriptChars overrides the noise threshold on transcript length.
func WithMinTranscriptChars(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.tune.minTranscriptChars = n
		}
	}
}

// WithMaxReplyChars overrides the reply truncation bound. Zero disables
// truncation.
func WithMaxReplyChars(n int) Option {
	return func(c *Coordinator) { c.tune.maxReplyChars = n }
}

// WithWakeDetector enables wake-phrase filtering: utterances whose transcript
// does not open with the wake phrase are dropped. A nil detector leaves
// filtering disabled.
func WithWakeDetector(d *WakeDetector) Option {
	return func(c *Coordinator) { c.tune.wake = d }
}

// WithMetrics overrides the metrics instance, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator drives one utterance through transcription, generation, and
// synthesis. At most one run per (room, speaker) identity executes at a time;
// an utterance arriving while its speaker's previous run is still in flight
// is dropped rather than queued — by the time the earlier reply has played,
// a stale follow-up answer would only confuse the conversation.
//
// All methods are safe for concurrent use.
type Coordinator struct {
	stt       stt.Provider
	llm       llm.Provider
	tts       tts.Provider
	mem       *memory.Store
	artifacts *artifact.Store
	enqueue   Enqueuer
	metrics   *observe.Metrics

	tuneMu sync.RWMutex
	tune   tuning

	mu   sync.Mutex
	busy map[identity]struct{}
}

// NewCoordinator wires the pipeline stages together. All five collaborators
// are required.
func NewCoordinator(sttp stt.Provider, llmp llm.Provider, ttsp tts.Provider, mem *memory.Store, artifacts *artifact.Store, enqueue Enqueuer, opts ...Option) (*Coordinator, error) {
	switch {
	case sttp == nil:
		return nil, fmt.Errorf("pipeline: stt provider is required")
	case llmp == nil:
		return nil, fmt.Errorf("pipeline: llm provider is required")
	case ttsp == nil:
		return nil, fmt.Errorf("pipeline: tts provider is required")
	case mem == nil:
		return nil, fmt.Errorf("pipeline: memory store is required")
	case artifacts == nil:
		return nil, fmt.Errorf("pipeline: artifact store is required")
	case enqueue == nil:
		return nil, fmt.Errorf("pipeline: enqueuer is required")
	}

	c := &Coordinator{
		stt:       sttp,
		llm:       llmp,
		tts:       ttsp,
		mem:       mem,
		artifacts: artifacts,
		enqueue:   enqueue,
		tune: tuning{
			minTranscriptChars: DefaultMinTranscriptChars,
			maxReplyChars:      DefaultMaxReplyChars,
		},
		busy: make(map[identity]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Process runs the full pipeline for one utterance. Dropped utterances
// (speaker already in flight, noise-length transcript, missing wake phrase,
// empty reply) return nil; only stage failures return an error. Temp files
// are removed before Process returns except the playback clip, whose
// ownership passes to the [Enqueuer].
func (c *Coordinator) Process(ctx context.Context, utt capture.Utterance) error {
	id := identity{roomID: utt.RoomID, speakerID: utt.SpeakerID}
	if !c.acquire(id) {
		observe.Logger(ctx).Debug("utterance dropped, speaker pipeline already running",
			"room_id", utt.RoomID, "speaker_id", utt.SpeakerID)
		c.metrics.RecordDiscard(ctx, "busy")
		return nil
	}
	defer c.release(id)

	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("room_id", utt.RoomID),
			attribute.String("speaker_id", utt.SpeakerID),
		),
	)
	defer span.End()
	log := observe.Logger(ctx)

	c.metrics.RecordUtterance(ctx, utt.RoomID)
	tune := c.tuning()

	scope := c.artifacts.NewScope()
	defer scope.ReleaseAll()

	transcript, err := c.transcribe(ctx, scope, utt)
	if err != nil {
		c.metrics.RecordProviderError(ctx, "stt", "transcribe")
		return fmt.Errorf("pipeline: transcribe: %w", err)
	}
	if len([]rune(transcript)) < tune.minTranscriptChars {
		log.Debug("utterance dropped, transcript below noise threshold",
			"speaker_id", utt.SpeakerID, "transcript", transcript)
		c.metrics.RecordDiscard(ctx, "short_transcript")
		return nil
	}
	if tune.wake != nil {
		stripped, ok := tune.wake.Strip(transcript)
		if !ok {
			log.Debug("utterance dropped, wake phrase not detected",
				"speaker_id", utt.SpeakerID)
			c.metrics.RecordDiscard(ctx, "no_wake_phrase")
			return nil
		}
		transcript = stripped
		if len([]rune(transcript)) < tune.minTranscriptChars {
			c.metrics.RecordDiscard(ctx, "short_transcript")
			return nil
		}
	}

	reply, err := c.generate(ctx, utt.RoomID, utt.SpeakerID, transcript, tune.systemPrompt)
	if err != nil {
		c.metrics.RecordProviderError(ctx, "llm", "generate")
		return fmt.Errorf("pipeline: generate: %w", err)
	}
	reply = sanitizeReply(reply, tune.maxReplyChars)
	if reply == "" {
		log.Debug("utterance dropped, model returned an empty reply",
			"speaker_id", utt.SpeakerID)
		c.metrics.RecordDiscard(ctx, "empty_reply")
		return nil
	}

	// History records the exchange even when synthesis fails below: the
	// model did answer, and the next turn should see that.
	c.mem.Append(utt.RoomID, utt.SpeakerID, transcript, reply)

	clipPath, err := c.synthesize(ctx, scope, reply)
	if err != nil {
		c.metrics.RecordProviderError(ctx, "tts", "synthesize")
		return fmt.Errorf("pipeline: synthesize: %w", err)
	}

	// The arbiter owns the clip from here on, success or failure.
	scope.Detach(clipPath)
	if err := c.enqueue.Enqueue(utt.RoomID, clipPath); err != nil {
		return fmt.Errorf("pipeline: enqueue clip: %w", err)
	}

	c.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	log.Info("utterance answered",
		"room_id", utt.RoomID,
		"speaker_id", utt.SpeakerID,
		"audio_duration", utt.Duration(),
		"total_duration", time.Since(start),
	)
	return nil
}

// Retune replaces the reply-shaping settings for subsequent utterances, as
// on a config reload. In-flight runs keep the settings they started with.
// Non-positive minTranscriptChars falls back to the default; maxReplyChars
// of zero disables truncation; a nil wake detector disables wake filtering.
func (c *Coordinator) Retune(systemPrompt string, minTranscriptChars, maxReplyChars int, wake *WakeDetector) {
	if minTranscriptChars <= 0 {
		minTranscriptChars = DefaultMinTranscriptChars
	}
	c.tuneMu.Lock()
	c.tune = tuning{
		systemPrompt:       systemPrompt,
		minTranscriptChars: minTranscriptChars,
		maxReplyChars:      maxReplyChars,
		wake:               wake,
	}
	c.tuneMu.Unlock()
}

func (c *Coordinator) tuning() tuning {
	c.tuneMu.RLock()
	defer c.tuneMu.RUnlock()
	return c.tune
}

// Busy reports whether a pipeline run is in flight for the identity.
func (c *Coordinator) Busy(roomID, speakerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.busy[identity{roomID: roomID, speakerID: speakerID}]
	return ok
}

func (c *Coordinator) acquire(id identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.busy[id]; ok {
		return false
	}
	c.busy[id] = struct{}{}
	return true
}

func (c *Coordinator) release(id identity) {
	c.mu.Lock()
	delete(c.busy, id)
	c.mu.Unlock()
}

// transcribe converts the capture to the recognition format, writes it to a
// scoped WAV file, and runs speech-to-text on it.
func (c *Coordinator) transcribe(ctx context.Context, scope *artifact.Scope, utt capture.Utterance) (string, error) {
	pcm := audio.ConvertFormat(utt.PCM, utt.Format, transcribeFormat)

	path, err := scope.CreatePath("utterance-*.wav")
	if err != nil {
		return "", err
	}
	if err := audio.WriteWAVFile(path, pcm, transcribeFormat.SampleRate, transcribeFormat.Channels); err != nil {
		return "", err
	}

	start := time.Now()
	text, err := c.stt.Transcribe(ctx, path)
	c.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return text, nil
}

// generate builds the message window from the speaker's history and asks the
// model for a reply.
func (c *Coordinator) generate(ctx context.Context, roomID, speakerID, transcript, systemPrompt string) (string, error) {
	history := c.mem.Get(roomID, speakerID)

	messages := make([]llm.Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	for _, turn := range history {
		role := llm.RoleUser
		if turn.Role == memory.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Text})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: transcript})

	start := time.Now()
	reply, err := c.llm.Generate(ctx, messages)
	c.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.Int("history_turns", len(history))),
	)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// synthesize renders the reply to speech and writes it to a scoped WAV file.
func (c *Coordinator) synthesize(ctx context.Context, scope *artifact.Scope, reply string) (string, error) {
	start := time.Now()
	clip, err := c.tts.Synthesize(ctx, reply)
	c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}

	path, err := scope.CreatePath("reply-*.wav")
	if err != nil {
		return "", err
	}
	if err := audio.WriteWAVFile(path, clip.PCM, clip.SampleRate, clip.Channels); err != nil {
		return "", err
	}
	return path, nil
}
