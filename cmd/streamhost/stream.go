package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/skosovsky/streamhost"
)

// continuationTemperature matches the host's fixed re-prompt temperature.
const continuationTemperature = 0.3

// streamingGenerator is implemented by generators that can deliver a
// response as incremental fragments (ollama).
type streamingGenerator interface {
	streamhost.Generator
	Stream(ctx context.Context, req streamhost.GenerateRequest) (<-chan string, <-chan error)
}

// runStreamingChat is the interactive loop for streaming generators.
func runStreamingChat(ctx context.Context, gen streamingGenerator, backend streamhost.ToolBackend,
	cfg streamhost.Config, inst *streamhost.Collector, validator *streamhost.SchemaValidator, logger *slog.Logger) error {
	tools, err := backend.ListTools(ctx)
	if err != nil {
		return err
	}

	sess := newChatSession(gen, backend, cfg, inst, validator, os.Stdout, logger)
	if cfg.SystemPrompt != "" {
		sess.conv.SetSystemMessage(sess.tmpl.EnhanceSystemPrompt(cfg.SystemPrompt, tools))
	}

	fmt.Println("streamhost chat — empty line or Ctrl-D to exit")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			break
		}
		if err := sess.turn(ctx, tools, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		}
	}
	return sc.Err()
}

// chatSession renders streamed responses through the configured pipeline
// mode: display tokens print as they arrive and tool calls execute
// mid-stream, the way the non-streaming path only reports after the fact.
type chatSession struct {
	gen  streamingGenerator
	pipe *streamhost.Pipeline
	tmpl *streamhost.PromptTemplate
	conv *streamhost.ConversationManager
	cfg  streamhost.Config
	out  io.Writer
	log  *slog.Logger
}

func newChatSession(gen streamingGenerator, backend streamhost.ToolBackend, cfg streamhost.Config,
	inst *streamhost.Collector, validator *streamhost.SchemaValidator, out io.Writer, log *slog.Logger) *chatSession {
	popts := []streamhost.PipelineOption{streamhost.WithPipelineInstrumentation(inst)}
	if validator != nil {
		popts = append(popts, streamhost.WithPipelineValidation(validator))
	}
	return &chatSession{
		gen:  gen,
		pipe: streamhost.NewPipeline(backend, cfg.StreamingMode(), popts...),
		tmpl: streamhost.NewPromptTemplate(cfg.LLM.Model),
		conv: streamhost.NewConversationManager(cfg.MaxContextTokens),
		cfg:  cfg,
		out:  out,
		log:  log,
	}
}

// turn streams one user message: the opening generation, then a
// continuation round per batch of executed tools until the model stops
// requesting them.
func (s *chatSession) turn(ctx context.Context, tools []streamhost.ToolInfo, userMessage string) error {
	prompt := s.tmpl.FormatWithTools(tools, s.conv.History(), userMessage)
	temp := s.cfg.BaseTemperature

	var all []streamhost.ExecutedTool
	rounds := 0
	for {
		text, executed, err := s.streamRound(ctx, prompt, temp)
		if err != nil {
			return err
		}
		if len(executed) == 0 {
			s.conv.AddUserMessage(userMessage)
			s.conv.AddAssistantTurn(text, callsOf(all), all)
			return nil
		}
		all = append(all, executed...)
		rounds++
		if rounds >= s.cfg.MaxToolRounds {
			return fmt.Errorf("%w after %d rounds", streamhost.ErrRoundLimit, rounds)
		}
		prompt = s.tmpl.ContinuationPrompt(tools, text, all, userMessage)
		temp = continuationTemperature
	}
}

// streamRound runs one streamed generation through the pipeline, printing
// display tokens and collecting executed tools until both channels close.
func (s *chatSession) streamRound(ctx context.Context, prompt string, temp float64) (string, []streamhost.ExecutedTool, error) {
	frags, errs := s.gen.Stream(ctx, streamhost.GenerateRequest{
		Prompt:      prompt,
		Temperature: temp,
		MaxTokens:   s.cfg.Safety.MaxTokensPerRequest,
	})
	handle := s.pipe.Run(ctx, frags)

	var text strings.Builder
	var executed []streamhost.ExecutedTool
	tokens, tools := handle.Tokens, handle.Tools
	for tokens != nil || tools != nil {
		select {
		case tok, ok := <-tokens:
			if !ok {
				tokens = nil
				continue
			}
			if tok.Class == streamhost.ClassToolCall {
				continue
			}
			fmt.Fprint(s.out, tok.Text)
			text.WriteString(tok.Text)
		case exec, ok := <-tools:
			if !ok {
				tools = nil
				continue
			}
			executed = append(executed, exec)
			s.log.Debug("tool executed",
				slog.String("tool", exec.ToolName),
				slog.Int64("ms", exec.ExecutionTimeMS),
				slog.Bool("failed", exec.Failed()))
		}
	}
	fmt.Fprintln(s.out)

	if err := <-errs; err != nil {
		return "", nil, err
	}
	return text.String(), executed, nil
}

func callsOf(executed []streamhost.ExecutedTool) []streamhost.ToolCall {
	if len(executed) == 0 {
		return nil
	}
	calls := make([]streamhost.ToolCall, len(executed))
	for i, e := range executed {
		calls[i] = streamhost.ToolCall{Tool: e.ToolName, Params: e.Parameters}
	}
	return calls
}
