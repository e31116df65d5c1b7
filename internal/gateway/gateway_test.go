package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/models"
	"github.com/zulandar/roundhouse/internal/pricing"
	"github.com/zulandar/roundhouse/internal/registry"
	"github.com/zulandar/roundhouse/internal/runtime"
	"github.com/zulandar/roundhouse/internal/store"
)

// stubAgent returns a canned result for every execution.
type stubAgent struct {
	desc   agent.Descriptor
	result *agent.ExecutionResult
	err    error
}

func (s *stubAgent) Execute(ctx context.Context, ec agent.ExecutionContext) (*agent.ExecutionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubAgent) Descriptor() agent.Descriptor { return s.desc }

func testRegistry(t *testing.T, agents map[string]*stubAgent) *registry.Registry {
	t.Helper()
	root := t.TempDir()
	for id := range agents {
		dir := filepath.Join(root, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		manifest := `{"schema_version": 1, "id": "` + id + `", "name": "` + id + `",
  "version": "1.0.0", "capabilities": ["test"], "max_turns": 5, "workflow": "workflow.md"}`
		if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "workflow.md"), []byte("wf"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r, err := registry.New(registry.Opts{
		Dir: root,
		Factory: func(desc agent.Descriptor, workflowPath string) (agent.BaseAgent, error) {
			a := agents[desc.ID]
			a.desc = desc
			return a, nil
		},
		Logger: zap.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.LoadAll(); err != nil {
		t.Fatal(err)
	}
	return r
}

func fileStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.OpenFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func testServer(t *testing.T, agents map[string]*stubAgent, st store.Store, capture *runtime.CaptureBuffer) *Server {
	t.Helper()
	if st == nil {
		st = fileStore(t)
	}
	s, err := New(Opts{
		Registry: testRegistry(t, agents),
		Store:    st,
		Capture:  capture,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func successResult() *agent.ExecutionResult {
	return &agent.ExecutionResult{
		Success:  true,
		Response: "done",
		Data:     map[string]any{"repository_url": "https://github.com/octocat/hello"},
		Logs: []agent.LogEntry{
			{ID: 1, Type: agent.LogSession, Message: "Session sess-1 started"},
		},
		Metadata: agent.Metadata{
			Duration:   2 * time.Second,
			TokensUsed: 150,
			Usage:      pricing.Usage{InputTokens: 100, OutputTokens: 50},
			CostUSD:    pricing.Cost(pricing.Usage{InputTokens: 100, OutputTokens: 50}, pricing.DefaultTier),
			ToolCalls:  map[string]int{"Read": 1},
		},
	}
}

func TestRun_Success(t *testing.T) {
	st := fileStore(t)
	s := testServer(t, map[string]*stubAgent{"helper": {result: successResult()}}, st, nil)

	body := `{"agentId": "helper", "prompt": "say hello", "taskId": "task-1"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(body))
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		TaskID string                `json:"taskId"`
		Result agent.ExecutionResult `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TaskID != "task-1" || !resp.Result.Success || resp.Result.Response != "done" {
		t.Fatalf("resp = %+v", resp)
	}

	task, err := st.GetTask("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if task.AgentStatus != models.StatusSuccess {
		t.Fatalf("status = %q", task.AgentStatus)
	}
	if task.CostUSD != resp.Result.Metadata.CostUSD {
		t.Fatalf("cost = %v", task.CostUSD)
	}
	if task.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
	if task.InputTokens != 100 || task.OutputTokens != 50 {
		t.Fatalf("token columns = %d/%d, want 100/50", task.InputTokens, task.OutputTokens)
	}

	totals, err := st.TokenTotals("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if totals.TotalTokens != 150 || totals.InputTokens != 100 || totals.OutputTokens != 50 {
		t.Fatalf("TokenTotals = %+v, want 150 total", totals)
	}
}

func TestRun_MissingAgentID(t *testing.T) {
	s := testServer(t, map[string]*stubAgent{"helper": {result: successResult()}}, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"prompt": "hi"}`))
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRun_UnknownAgent(t *testing.T) {
	s := testServer(t, map[string]*stubAgent{"helper": {result: successResult()}}, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run",
		strings.NewReader(`{"agentId": "ghost", "prompt": "hi"}`))
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestRun_ExecutionErrorMarksTask(t *testing.T) {
	st := fileStore(t)
	s := testServer(t, map[string]*stubAgent{"broken": {err: context.DeadlineExceeded}}, st, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run",
		strings.NewReader(`{"agentId": "broken", "prompt": "hi", "taskId": "task-x"}`))
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	task, err := st.GetTask("task-x")
	if err != nil {
		t.Fatal(err)
	}
	if task.AgentStatus != models.StatusError {
		t.Fatalf("status = %q, want error", task.AgentStatus)
	}
	logs, err := st.LogsAfter("task-x", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Type != string(agent.LogError) {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestRun_NotifyFires(t *testing.T) {
	var mu sync.Mutex
	var notified *models.Task
	st := fileStore(t)
	s := testServer(t, map[string]*stubAgent{"helper": {result: successResult()}}, st, nil)
	s.opts.Notify = func(task *models.Task, result *agent.ExecutionResult) {
		mu.Lock()
		notified = task
		mu.Unlock()
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run",
		strings.NewReader(`{"agentId": "helper", "prompt": "hi"}`))
	s.Router().ServeHTTP(w, req)

	mu.Lock()
	defer mu.Unlock()
	if notified == nil || notified.AgentStatus != models.StatusSuccess {
		t.Fatalf("notified = %+v", notified)
	}
}

func TestAgentsAndSearch(t *testing.T) {
	s := testServer(t, map[string]*stubAgent{
		"helper": {result: successResult()},
		"triage": {result: successResult()},
	}, nil, nil)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/agents", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var list struct {
		Agents []agent.Descriptor `json:"agents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(list.Agents))
	}

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/agents/search?q=triage", nil))
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Agents) != 1 || list.Agents[0].ID != "triage" {
		t.Fatalf("search = %+v", list.Agents)
	}
}

func TestLogs_FromCapture(t *testing.T) {
	capture := runtime.NewCaptureBuffer(0)
	console := runtime.NewConsoleWriter(capture)
	console.Banner("task-7", "helper")
	console.Entry(agent.LogEntry{Type: agent.LogSession, Message: "Session sess-7 started"})
	console.Complete(true, 0.001, 150)

	s := testServer(t, map[string]*stubAgent{"helper": {result: successResult()}}, nil, capture)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/agent/logs?taskId=task-7", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		TaskID string `json:"taskId"`
		Blocks []struct {
			Type string `json:"type"`
		} `json:"blocks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Blocks) < 2 {
		t.Fatalf("blocks = %+v", resp.Blocks)
	}

	// Missing taskId is a client error.
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/agent/logs", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestTasks(t *testing.T) {
	st := fileStore(t)
	if err := st.CreateTask(&models.Task{ID: "task-1", AgentStatus: models.StatusPending}); err != nil {
		t.Fatal(err)
	}
	s := testServer(t, map[string]*stubAgent{"helper": {result: successResult()}}, st, nil)

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/task-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestTaskDetail_IncludesTokenTotals(t *testing.T) {
	st := fileStore(t)
	s := testServer(t, map[string]*stubAgent{"helper": {result: successResult()}}, st, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/run",
		strings.NewReader(`{"agentId": "helper", "prompt": "hi", "taskId": "task-tt"}`))
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("run status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/task-tt", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Tokens struct {
			InputTokens  int64   `json:"input_tokens"`
			OutputTokens int64   `json:"output_tokens"`
			TotalTokens  int64   `json:"total_tokens"`
			CostUSD      float64 `json:"cost_usd"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Tokens.TotalTokens != 150 || resp.Tokens.InputTokens != 100 || resp.Tokens.OutputTokens != 50 {
		t.Fatalf("tokens = %+v, want 100/50/150", resp.Tokens)
	}
	if resp.Tokens.CostUSD == 0 {
		t.Fatal("cost_usd = 0 after a costed execution")
	}
}

func TestStream_ReplaysAndClosesOnTerminal(t *testing.T) {
	st := fileStore(t)
	if err := st.CreateTask(&models.Task{ID: "task-1", AgentStatus: models.StatusSuccess}); err != nil {
		t.Fatal(err)
	}
	entries := []agent.LogEntry{
		{ID: 1, Timestamp: time.Now().UTC(), Type: agent.LogSession, Message: "Session started"},
		{ID: 2, Timestamp: time.Now().UTC(), Type: agent.LogCost, Message: "Step cost"},
	}
	if err := st.AppendEntries("task-1", entries); err != nil {
		t.Fatal(err)
	}
	s := testServer(t, map[string]*stubAgent{"helper": {result: successResult()}}, st, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/agent/stream?taskId=task-1", nil)
	s.Router().ServeHTTP(w, req)

	// Terminal task: the handler replays everything and returns immediately.
	body := w.Body.String()
	var events []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	want := []string{"connected", "log", "log", "done"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestStream_DeliversDeltaThenClosesWhenTaskFinishes(t *testing.T) {
	st := fileStore(t)
	if err := st.CreateTask(&models.Task{ID: "task-1", AgentStatus: models.StatusRunning}); err != nil {
		t.Fatal(err)
	}
	first := []agent.LogEntry{
		{ID: 1, Timestamp: time.Now().UTC(), Type: agent.LogSession, Message: "Session started"},
	}
	if err := st.AppendEntries("task-1", first); err != nil {
		t.Fatal(err)
	}
	s := testServer(t, map[string]*stubAgent{"helper": {result: successResult()}}, st, nil)

	// Finish the task while the stream is open; the next poll must deliver
	// the trailing entry and then close.
	timer := time.AfterFunc(100*time.Millisecond, func() {
		last := []agent.LogEntry{
			{ID: 2, Timestamp: time.Now().UTC(), Type: agent.LogCompletion, Message: "Done"},
		}
		if err := st.AppendEntries("task-1", last); err != nil {
			t.Error(err)
		}
		if err := st.SetStatus("task-1", models.StatusSuccess); err != nil {
			t.Error(err)
		}
	})
	defer timer.Stop()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/agent/stream?taskId=task-1", nil)
	s.Router().ServeHTTP(w, req)

	var events []string
	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	want := []string{"connected", "log", "log", "done"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestStream_UnknownTask(t *testing.T) {
	s := testServer(t, map[string]*stubAgent{"helper": {result: successResult()}}, nil, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/agent/stream?taskId=ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
