// Package config provides the configuration schema, loader, provider
// registry, and file watcher for the Kalliope voice assistant.
package config

// LogLevel controls log verbosity for the Kalliope server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Kalliope.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discord   DiscordConfig   `yaml:"discord"`
	Capture   CaptureConfig   `yaml:"capture"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Memory    MemoryConfig    `yaml:"memory"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings for the HTTP side of the
// server (health and metrics endpoints).
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// DiscordConfig holds the Discord bot credentials.
type DiscordConfig struct {
	// Token is the bot token. Required to connect.
	Token string `yaml:"token"`

	// GuildID optionally restricts slash-command registration to a single
	// guild. Empty registers the commands globally (propagation can take up
	// to an hour on Discord's side).
	GuildID string `yaml:"guild_id"`
}

// CaptureConfig tunes per-speaker utterance assembly.
type CaptureConfig struct {
	// SilenceMs is the gap (in milliseconds) after a speaker's last frame
	// that closes their utterance. Zero uses the built-in default of 1500.
	SilenceMs int `yaml:"silence_ms"`

	// MinFrames is the minimum frame count below which a capture is
	// discarded as a noise burst. Zero uses the built-in default of 10.
	MinFrames int `yaml:"min_frames"`
}

// PipelineConfig tunes the utterance-to-reply pipeline.
type PipelineConfig struct {
	// SystemPrompt is the persona description injected as the system message
	// of every generation request.
	SystemPrompt string `yaml:"system_prompt"`

	// WakePhrase, when set, gates the pipeline: utterances whose transcript
	// does not open with this phrase (matched phonetically) are dropped.
	// Empty disables wake filtering and every utterance is answered.
	WakePhrase string `yaml:"wake_phrase"`

	// MinTranscriptChars drops transcripts shorter than this as recognition
	// noise. Zero uses the built-in default.
	MinTranscriptChars int `yaml:"min_transcript_chars"`

	// MaxReplyChars truncates generated replies before synthesis. Zero uses
	// the built-in default; negative disables truncation.
	MaxReplyChars int `yaml:"max_reply_chars"`
}

// MemoryConfig bounds the in-process conversation history.
type MemoryConfig struct {
	// MaxTurns bounds the history kept per speaker. Zero uses the built-in
	// default of 10 turns.
	MaxTurns int `yaml:"max_turns"`

	// MaxSpeakers bounds how many distinct speaker identities retain
	// history at once. Zero uses the built-in default of 512.
	MaxSpeakers int `yaml:"max_speakers"`
}

// ArtifactsConfig controls where temporary audio files live.
type ArtifactsConfig struct {
	// Dir is the directory for capture and clip WAV files. Empty places
	// them under the system temp directory.
	Dir string `yaml:"dir"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o",
	// "base.en").
	Model string `yaml:"model"`

	// Voice is the provider-specific voice identifier for TTS providers.
	Voice string `yaml:"voice"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above. Values may be strings, numbers, booleans,
	// or nested maps.
	Options map[string]any `yaml:"options"`
}
