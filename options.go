package streamhost

import (
	"log/slog"
)

// PipelineOption configures optional Pipeline behavior.
type PipelineOption func(*pipelineOptions)

type pipelineOptions struct {
	inst      *Collector
	validator *SchemaValidator
}

// WithPipelineInstrumentation attaches an event collector to the pipeline.
// A nil collector disables instrumentation.
func WithPipelineInstrumentation(c *Collector) PipelineOption {
	return func(o *pipelineOptions) { o.inst = c }
}

// WithPipelineValidation validates tool parameters against each tool's
// input schema before dispatching to the backend.
func WithPipelineValidation(v *SchemaValidator) PipelineOption {
	return func(o *pipelineOptions) { o.validator = v }
}

// HostOption configures optional Host behavior.
type HostOption func(*hostOptions)

type hostOptions struct {
	retry           RetryStrategy
	safety          SafetyConfig
	maxToolRounds   int
	baseTemperature float64
	maxContext      int
	modelName       string
	template        *PromptTemplate
	injectTools     bool
	continuation    bool
	inst            *Collector
	validator       *SchemaValidator
	logger          *slog.Logger
}

func defaultHostOptions() hostOptions {
	return hostOptions{
		retry:           DefaultRetryStrategy(),
		safety:          DefaultSafetyConfig(),
		maxToolRounds:   DefaultMaxToolRounds,
		baseTemperature: DefaultBaseTemperature,
		maxContext:      DefaultMaxContextTokens,
		injectTools:     true,
		continuation:    true,
		logger:          slog.Default(),
	}
}

// WithRetryStrategy overrides the default retry and temperature
// annealing parameters.
func WithRetryStrategy(s RetryStrategy) HostOption {
	return func(o *hostOptions) { o.retry = s }
}

// WithSafetyConfig overrides the default execution limits.
func WithSafetyConfig(s SafetyConfig) HostOption {
	return func(o *hostOptions) { o.safety = s }
}

// WithMaxToolRounds bounds the number of generate/execute rounds a
// single ProcessMessage call may run.
func WithMaxToolRounds(n int) HostOption {
	return func(o *hostOptions) {
		if n > 0 {
			o.maxToolRounds = n
		}
	}
}

// WithBaseTemperature sets the sampling temperature for the first
// attempt of each turn.
func WithBaseTemperature(t float64) HostOption {
	return func(o *hostOptions) { o.baseTemperature = t }
}

// WithMaxContextTokens bounds the estimated token count of retained
// conversation history.
func WithMaxContextTokens(n int) HostOption {
	return func(o *hostOptions) {
		if n > 0 {
			o.maxContext = n
		}
	}
}

// WithModelName selects the prompt template family by model name.
func WithModelName(name string) HostOption {
	return func(o *hostOptions) { o.modelName = name }
}

// WithPromptTemplate supplies an explicit prompt template, bypassing
// model-name detection.
func WithPromptTemplate(t *PromptTemplate) HostOption {
	return func(o *hostOptions) { o.template = t }
}

// WithToolInjection controls whether tool descriptions are injected
// into prompts. Enabled by default; disable for backends whose models
// receive tool definitions natively.
func WithToolInjection(enabled bool) HostOption {
	return func(o *hostOptions) { o.injectTools = enabled }
}

// WithToolContinuation controls whether tool results are fed back to
// the model for a follow-up response. Enabled by default; when disabled
// the turn ends after the first round and results are appended to the
// assistant's text verbatim.
func WithToolContinuation(enabled bool) HostOption {
	return func(o *hostOptions) { o.continuation = enabled }
}

// WithInstrumentation attaches an event collector to the host.
// A nil collector disables instrumentation.
func WithInstrumentation(c *Collector) HostOption {
	return func(o *hostOptions) { o.inst = c }
}

// WithSchemaValidation validates tool parameters before execution.
func WithSchemaValidation(v *SchemaValidator) HostOption {
	return func(o *hostOptions) { o.validator = v }
}

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) HostOption {
	return func(o *hostOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
