package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/logparse"
	"github.com/zulandar/roundhouse/internal/pricing"
	"github.com/zulandar/roundhouse/internal/runtime"
)

type fakeStream struct {
	*agent.SliceStream
	closed bool
}

func (f *fakeStream) Close() error {
	f.closed = true
	return nil
}

func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testDescriptor() agent.Descriptor {
	return agent.Descriptor{
		ID:       "echo",
		Name:     "Echo",
		Version:  "1.0.0",
		MaxTurns: 10,
		Workflow: "workflow.md",
	}
}

func TestExecute_Scenario(t *testing.T) {
	stream := &fakeStream{SliceStream: &agent.SliceStream{Messages: []agent.StreamMessage{
		agent.InitMessage{SessionID: "sess-1234abcd", Model: "claude-sonnet-4", ToolCount: 5},
		agent.AssistantMessage{Blocks: []agent.ContentBlock{agent.TextBlock{Text: "hello"}}},
		agent.ResultMessage{Usage: pricing.Usage{InputTokens: 100, OutputTokens: 50}},
	}}}

	var spawned runtime.SpawnOpts
	capture := runtime.NewCaptureBuffer(0)
	var sunk []agent.LogEntry

	factory := NewFactory(Opts{
		Capture: capture,
		SinkFor: func(taskID string) agent.LogSink {
			return func(e agent.LogEntry) { sunk = append(sunk, e) }
		},
		Spawner: func(ctx context.Context, so runtime.SpawnOpts) (Stream, error) {
			spawned = so
			return stream, nil
		},
	})
	a, err := factory(testDescriptor(), writeWorkflow(t, "Do the thing for {{repo}}."))
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	result, err := a.Execute(context.Background(), agent.ExecutionContext{
		TaskID:     "task-1",
		Prompt:     "say hello",
		Parameters: map[string]string{"repo": "octocat/hello"},
		Credential: "sk-test",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !result.Success {
		t.Fatalf("Success = false, errors %v", result.Errors)
	}
	if result.Response != "hello" {
		t.Fatalf("Response = %q", result.Response)
	}
	if got := result.Metadata.CostUSD; got < 0.001049 || got > 0.001051 {
		t.Fatalf("CostUSD = %v, want 0.00105", got)
	}

	if !strings.Contains(spawned.Prompt, "octocat/hello") {
		t.Fatalf("parameter not substituted: %q", spawned.Prompt)
	}
	if !strings.Contains(spawned.Prompt, "say hello") {
		t.Fatalf("task prompt missing: %q", spawned.Prompt)
	}
	if spawned.MaxTurns != 10 {
		t.Fatalf("MaxTurns = %d", spawned.MaxTurns)
	}
	if spawned.Credential != "sk-test" {
		t.Fatalf("Credential = %q", spawned.Credential)
	}
	if !stream.closed {
		t.Fatal("stream not closed")
	}
	if len(sunk) != len(result.Logs) {
		t.Fatalf("sink saw %d entries, timeline has %d", len(sunk), len(result.Logs))
	}

	// The transcript must reconstruct into blocks for this task.
	blocks := logparse.Parse(capture.Snapshot(), "task-1")
	if len(blocks) == 0 {
		t.Fatal("no blocks reconstructed from transcript")
	}
	last := blocks[len(blocks)-1]
	if last.Type != agent.LogCompletion {
		t.Fatalf("last block type = %q, want completion", last.Type)
	}
}

func TestExecute_SpawnFailure(t *testing.T) {
	factory := NewFactory(Opts{
		Spawner: func(ctx context.Context, so runtime.SpawnOpts) (Stream, error) {
			return nil, errors.New("binary not found")
		},
	})
	a, err := factory(testDescriptor(), writeWorkflow(t, "wf"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Execute(context.Background(), agent.ExecutionContext{TaskID: "t"}); err == nil {
		t.Fatal("expected spawn error")
	}
}

func TestExecute_StreamFailureStaysInResult(t *testing.T) {
	stream := &fakeStream{SliceStream: &agent.SliceStream{
		Messages: []agent.StreamMessage{
			agent.InitMessage{SessionID: "sess-dead0000", Model: "claude-sonnet-4"},
		},
		Err: errors.New("subprocess exited 1"),
	}}
	factory := NewFactory(Opts{
		Spawner: func(ctx context.Context, so runtime.SpawnOpts) (Stream, error) {
			return stream, nil
		},
	})
	a, err := factory(testDescriptor(), writeWorkflow(t, "wf"))
	if err != nil {
		t.Fatal(err)
	}
	result, err := a.Execute(context.Background(), agent.ExecutionContext{TaskID: "t"})
	if err != nil {
		t.Fatalf("stream failure must not surface as error: %v", err)
	}
	if result.Success {
		t.Fatal("Success = true after stream failure")
	}
	if len(result.Errors) == 0 {
		t.Fatal("error list empty")
	}
}

func TestExecute_ModelOverride(t *testing.T) {
	var spawned runtime.SpawnOpts
	factory := NewFactory(Opts{
		Spawner: func(ctx context.Context, so runtime.SpawnOpts) (Stream, error) {
			spawned = so
			return &fakeStream{SliceStream: &agent.SliceStream{}}, nil
		},
	})
	desc := testDescriptor()
	desc.DefaultModel = "claude-sonnet-4"
	a, err := factory(desc, writeWorkflow(t, "wf"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.Execute(context.Background(), agent.ExecutionContext{TaskID: "t"}); err != nil {
		t.Fatal(err)
	}
	if spawned.Model != "claude-sonnet-4" {
		t.Fatalf("default model not applied: %q", spawned.Model)
	}

	if _, err := a.Execute(context.Background(), agent.ExecutionContext{TaskID: "t", Model: "claude-opus-4"}); err != nil {
		t.Fatal(err)
	}
	if spawned.Model != "claude-opus-4" {
		t.Fatalf("override not applied: %q", spawned.Model)
	}
}

func TestFactory_MissingWorkflow(t *testing.T) {
	factory := NewFactory(Opts{})
	if _, err := factory(testDescriptor(), filepath.Join(t.TempDir(), "absent.md")); err == nil {
		t.Fatal("expected missing workflow error")
	}
}
