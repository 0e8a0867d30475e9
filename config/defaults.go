package config

// DefaultSchedule is the issue schedule used when none is configured.
const DefaultSchedule = "10x5,50x2,100x1"

// DefaultMaxTokens caps the tokens one issue or conversion may mint.
const DefaultMaxTokens = 100_000

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Shape:   ShapeQuota,
		Issue: IssueConfig{
			Schedule:  DefaultSchedule,
			MaxTokens: DefaultMaxTokens,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
