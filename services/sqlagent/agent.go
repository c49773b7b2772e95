// Package sqlagent answers natural-language questions about a SQL database
// by letting a chat model call schema and query tools until it can reply.
package sqlagent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/analytics-tools/config"
	"github.com/upb/analytics-tools/internal/observability"
	"github.com/upb/analytics-tools/services"
	"github.com/upb/analytics-tools/services/providers"
	"go.uber.org/zap"
)

const (
	defaultModel         = "gpt-3.5-turbo"
	defaultMaxIterations = 15
	defaultTopK          = 10

	// maxLoggedObservation bounds tool output in verbose step logs.
	maxLoggedObservation = 2000
)

// Options configures an Agent
type Options struct {
	Model         string
	Temperature   float64
	MaxIterations int
	TopK          int
	Verbose       bool
}

// OptionsFromConfig maps the agent settings onto Options
func OptionsFromConfig(cfg config.AgentConfig) Options {
	return Options{
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		MaxIterations: cfg.MaxIterations,
		TopK:          cfg.TopK,
		Verbose:       cfg.Verbose,
	}
}

// Step is one tool call and what it returned
type Step struct {
	Iteration   int
	Tool        string
	Input       string
	Observation string
}

// Result is the outcome of one Invoke
type Result struct {
	Question   string
	Answer     string
	Steps      []Step
	Iterations int
	Usage      providers.Usage
	Duration   time.Duration
}

// Agent drives the tool-calling loop against one database
type Agent struct {
	provider providers.Provider
	db       Database
	tools    map[string]Tool
	defs     []providers.Tool
	opts     Options
	logger   *zap.Logger
}

// New creates an agent over db using provider for completions
func New(provider providers.Provider, db Database, opts Options, logger *zap.Logger) *Agent {
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}

	a := &Agent{
		provider: provider,
		db:       db,
		tools:    make(map[string]Tool),
		opts:     opts,
		logger:   logger,
	}
	for _, t := range NewToolkit(db) {
		def := t.Definition()
		a.tools[def.Name] = t
		a.defs = append(a.defs, def)
	}
	return a
}

// Invoke answers question. It stops at the first assistant message that
// requests no tool calls and fails once MaxIterations completions have
// been used without an answer.
func (a *Agent) Invoke(ctx context.Context, question string) (*Result, error) {
	start := time.Now()
	logger := observability.WithRun(ctx, a.logger)

	if question == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "question is required", nil)
	}
	if err := a.provider.ValidateModel(a.opts.Model); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "unsupported model", err).
			WithDetail("model", a.opts.Model)
	}

	messages := []providers.Message{
		{Role: providers.RoleSystem, Content: SystemPrompt(a.db.Dialect(), a.opts.TopK)},
		{Role: providers.RoleUser, Content: question},
	}

	result := &Result{Question: question}
	logger.Info("agent started",
		zap.String("model", a.opts.Model),
		zap.String("dialect", string(a.db.Dialect())),
		zap.String("question", question))

	for i := 1; i <= a.opts.MaxIterations; i++ {
		result.Iterations = i

		resp, err := a.provider.ChatCompletion(ctx, &providers.ChatRequest{
			Model:       a.opts.Model,
			Messages:    messages,
			Temperature: providers.Float64(a.opts.Temperature),
			Tools:       a.defs,
		})
		if err != nil {
			return nil, services.WrapExternal("chat completion failed", err)
		}
		result.Usage.Add(resp.Usage)

		msg, err := resp.Message()
		if err != nil {
			return nil, services.WrapExternal("chat completion returned no message", err)
		}

		if len(msg.ToolCalls) == 0 {
			result.Answer = msg.Content
			result.Duration = time.Since(start)
			a.logFinish(logger, result)
			return result, nil
		}

		msg.Role = providers.RoleAssistant
		messages = append(messages, msg)

		for _, call := range msg.ToolCalls {
			obs := a.call(ctx, call)
			result.Steps = append(result.Steps, Step{
				Iteration:   i,
				Tool:        call.Name,
				Input:       call.Arguments,
				Observation: obs,
			})
			a.logStep(logger, i, call, obs)

			messages = append(messages, providers.Message{
				Role:       providers.RoleTool,
				Content:    obs,
				ToolCallID: call.ID,
			})
		}
	}

	logger.Warn("agent stopped due to iteration limit",
		zap.Int("max_iterations", a.opts.MaxIterations),
		zap.Int("steps", len(result.Steps)))

	return nil, services.NewDomainError(services.ErrorTypeAgent, "agent stopped due to iteration limit", nil).
		WithDetail("iterations", a.opts.MaxIterations)
}

// call runs one tool call and returns its observation. Tool failures are
// reported to the model as "Error: ..." text; database errors show the
// driver message.
func (a *Agent) call(ctx context.Context, call providers.ToolCall) string {
	tool, err := a.lookup(call.Name)
	if err != nil {
		return observation(err)
	}

	out, err := tool.Call(ctx, call.Arguments)
	if err != nil {
		var domainErr *services.DomainError
		if errors.As(err, &domainErr) && domainErr.Err != nil && domainErr.Type == services.ErrorTypeDatabase {
			return observation(domainErr.Err)
		}
		return observation(err)
	}
	return out
}

// lookup returns the tool registered under name or an error wrapping
// services.ErrUnknownTool.
func (a *Agent) lookup(name string) (Tool, error) {
	tool, ok := a.tools[name]
	if !ok {
		return nil, services.NewDomainError(services.ErrorTypeAgent,
			fmt.Sprintf("%s is not a valid tool, try one of [%s, %s, %s]", name, ToolListTables, ToolSchema, ToolQuery),
			services.ErrUnknownTool).WithDetail("tool", name)
	}
	return tool, nil
}

func (a *Agent) logStep(logger *zap.Logger, iteration int, call providers.ToolCall, obs string) {
	if !a.opts.Verbose {
		logger.Debug("agent step", zap.Int("iteration", iteration), zap.String("tool", call.Name))
		return
	}
	if len(obs) > maxLoggedObservation {
		obs = obs[:maxLoggedObservation] + "..."
	}
	logger.Info("agent step",
		zap.Int("iteration", iteration),
		zap.String("tool", call.Name),
		zap.String("tool_input", call.Arguments),
		zap.String("observation", obs))
}

func (a *Agent) logFinish(logger *zap.Logger, result *Result) {
	fields := []observability.Field{
		zap.Int("iterations", result.Iterations),
		zap.Int("tool_calls", len(result.Steps)),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Duration("duration", result.Duration),
	}
	if info, err := a.provider.GetModelInfo(a.opts.Model); err == nil {
		fields = append(fields, zap.Float64("cost_usd", info.Cost(result.Usage)))
	}
	if a.opts.Verbose {
		fields = append(fields, zap.String("answer", result.Answer))
	}
	logger.Info("agent finished", fields...)
}
