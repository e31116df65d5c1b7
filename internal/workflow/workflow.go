// Package workflow implements the prompt-driven agent: a manifest descriptor
// plus a workflow prompt file, executed through the model CLI runtime.
package workflow

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/runtime"
)

// DefaultTimeout bounds one execution's wall clock when no explicit timeout
// is configured.
const DefaultTimeout = 30 * time.Minute

// Stream is the spawned execution's message source plus its teardown.
type Stream interface {
	agent.MessageStream
	Close() error
}

// Spawner starts a model runtime for one execution. Tests substitute a fake;
// production uses runtime.Spawn.
type Spawner func(ctx context.Context, opts runtime.SpawnOpts) (Stream, error)

// Opts holds the shared wiring every workflow agent built by a Factory gets.
type Opts struct {
	Binary  string // model CLI binary, default "claude"
	WorkDir string
	Timeout time.Duration
	// Capture receives the rendered console transcript. Optional.
	Capture *runtime.CaptureBuffer
	// SinkFor returns the per-task log sink, typically backed by the store.
	// Optional.
	SinkFor func(taskID string) agent.LogSink
	Spawner Spawner
	Logger  *zap.Logger
}

// Agent is a BaseAgent whose behavior is entirely the workflow prompt file
// named in its manifest. All agents share one code path; they differ only in
// descriptor and prompt content.
type Agent struct {
	desc         agent.Descriptor
	workflowPath string
	opts         Opts
	logger       *zap.Logger
}

// NewFactory returns the agent constructor the registry calls per manifest.
func NewFactory(opts Opts) func(desc agent.Descriptor, workflowPath string) (agent.BaseAgent, error) {
	if opts.Spawner == nil {
		opts.Spawner = func(ctx context.Context, so runtime.SpawnOpts) (Stream, error) {
			return runtime.Spawn(ctx, so)
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(desc agent.Descriptor, workflowPath string) (agent.BaseAgent, error) {
		if _, err := os.Stat(workflowPath); err != nil {
			return nil, fmt.Errorf("workflow: %s: %w", workflowPath, err)
		}
		return &Agent{
			desc:         desc,
			workflowPath: workflowPath,
			opts:         opts,
			logger:       logger.With(zap.String("agent", desc.ID)),
		}, nil
	}
}

// Descriptor implements agent.BaseAgent.
func (a *Agent) Descriptor() agent.Descriptor { return a.desc }

// Execute runs one task through the workflow. A spawn failure before the
// stream opens is returned as an error; anything after that lands in the
// result with Success=false. Executions are never retried here: the model
// run may have taken effect even when its stream died.
func (a *Agent) Execute(ctx context.Context, ec agent.ExecutionContext) (*agent.ExecutionResult, error) {
	prompt, err := a.buildPrompt(ec)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	model := ec.Model
	if model == "" {
		model = a.desc.DefaultModel
	}

	stream, err := a.opts.Spawner(ctx, runtime.SpawnOpts{
		Binary:     a.opts.Binary,
		Prompt:     prompt,
		Model:      model,
		MaxTurns:   a.desc.MaxTurns,
		WorkDir:    a.opts.WorkDir,
		Credential: ec.Credential,
		BaseURL:    ec.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("workflow: spawn %s: %w", a.desc.ID, err)
	}
	defer stream.Close()

	var console *runtime.ConsoleWriter
	if a.opts.Capture != nil {
		console = runtime.NewConsoleWriter(a.opts.Capture)
		console.Banner(ec.TaskID, a.desc.ID)
	}

	var storeSink agent.LogSink
	if a.opts.SinkFor != nil {
		storeSink = a.opts.SinkFor(ec.TaskID)
	}
	sink := func(e agent.LogEntry) {
		if console != nil {
			console.Entry(e)
		}
		if storeSink != nil {
			storeSink(e)
		}
	}

	session := agent.NewSession(agent.SessionOpts{
		TaskID: ec.TaskID,
		Sink:   sink,
		Logger: a.logger,
	})
	result := session.Run(ctx, stream)

	if console != nil {
		console.Complete(result.Success, result.Metadata.CostUSD, result.Metadata.TokensUsed)
	}
	a.logger.Info("execution finished",
		zap.String("task", ec.TaskID),
		zap.Bool("success", result.Success),
		zap.Float64("cost_usd", result.Metadata.CostUSD),
		zap.Int("tokens", result.Metadata.TokensUsed),
		zap.Duration("duration", result.Metadata.Duration))
	return result, nil
}

// buildPrompt assembles the subprocess prompt: the workflow file with
// {{name}} placeholders substituted from the task parameters, followed by
// the task prompt itself.
func (a *Agent) buildPrompt(ec agent.ExecutionContext) (string, error) {
	content, err := os.ReadFile(a.workflowPath)
	if err != nil {
		return "", fmt.Errorf("workflow: read %s: %w", a.workflowPath, err)
	}
	text := string(content)
	for k, v := range ec.Parameters {
		text = strings.ReplaceAll(text, "{{"+k+"}}", v)
	}
	if ec.Prompt != "" {
		text += "\n\n## Task\n\n" + ec.Prompt
	}
	return text, nil
}
