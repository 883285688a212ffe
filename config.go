package streamhost

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// StreamingConfig selects and parameterizes the pipeline streaming mode.
type StreamingConfig struct {
	// Mode is one of "smart_buffering", "passthrough", "placeholders".
	Mode           string `yaml:"mode"`
	MaxBufferChars int    `yaml:"max_buffer_chars"`
	Placeholder    string `yaml:"placeholder"`
}

// LLMConfig selects the generator backend for the CLI.
type LLMConfig struct {
	// Provider is "ollama" or "openai".
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
}

// MCPServerConfig describes a tool-backend child process.
type MCPServerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Config is the full YAML configuration surface used by the CLI.
type Config struct {
	LLM             LLMConfig             `yaml:"llm"`
	MCPServer       MCPServerConfig       `yaml:"mcp_server"`
	Streaming       StreamingConfig       `yaml:"streaming"`
	Retry           RetryStrategy         `yaml:"retry"`
	Safety          SafetyConfig          `yaml:"safety"`
	Instrumentation InstrumentationConfig `yaml:"instrumentation"`

	BaseTemperature  float64 `yaml:"base_temperature"`
	MaxToolRounds    int     `yaml:"max_tool_rounds"`
	MaxContextTokens int     `yaml:"max_context_tokens"`
	SystemPrompt     string  `yaml:"system_prompt"`
	ValidateParams   bool    `yaml:"validate_params"`
}

// DefaultConfig returns a config with every library default filled in.
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "llama3.1",
		},
		Streaming: StreamingConfig{
			Mode:           "smart_buffering",
			MaxBufferChars: DefaultMaxBufferChars,
		},
		Retry:            DefaultRetryStrategy(),
		Safety:           DefaultSafetyConfig(),
		BaseTemperature:  DefaultBaseTemperature,
		MaxToolRounds:    DefaultMaxToolRounds,
		MaxContextTokens: DefaultMaxContextTokens,
	}
}

// LoadConfig reads a YAML config file, applying defaults for absent keys.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations no component could run with.
func (c Config) Validate() error {
	switch c.Streaming.Mode {
	case "smart_buffering", "passthrough", "placeholders", "":
	default:
		return fmt.Errorf("unknown streaming mode %q", c.Streaming.Mode)
	}
	switch c.LLM.Provider {
	case "ollama", "openai", "":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Safety.MaxToolsPerRequest < 0 {
		return fmt.Errorf("safety.max_tools_per_request must be >= 0, got %d", c.Safety.MaxToolsPerRequest)
	}
	return nil
}

// StreamingMode maps the config block onto a pipeline mode value.
func (c Config) StreamingMode() StreamingMode {
	switch c.Streaming.Mode {
	case "passthrough":
		return Passthrough{}
	case "placeholders":
		return WithPlaceholders{Placeholder: c.Streaming.Placeholder}
	default:
		return SmartBuffering{MaxBufferChars: c.Streaming.MaxBufferChars}
	}
}

// HostOptions translates the config into functional options for NewHost.
func (c Config) HostOptions() []HostOption {
	opts := []HostOption{
		WithRetryStrategy(c.Retry),
		WithSafetyConfig(c.Safety),
		WithBaseTemperature(c.BaseTemperature),
		WithModelName(c.LLM.Model),
	}
	if c.MaxToolRounds > 0 {
		opts = append(opts, WithMaxToolRounds(c.MaxToolRounds))
	}
	if c.MaxContextTokens > 0 {
		opts = append(opts, WithMaxContextTokens(c.MaxContextTokens))
	}
	return opts
}
