package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is true when any hot-reloadable pipeline field
	// (system prompt, wake phrase, transcript/reply bounds) changed.
	PipelineChanged bool
	NewPipeline     PipelineConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart: log level and
// pipeline tuning. Provider, capture, and Discord changes require a restart
// because they are baked into running goroutines and open connections.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Pipeline != new.Pipeline {
		d.PipelineChanged = true
		d.NewPipeline = new.Pipeline
	}

	return d
}
