package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/models"
)

// FileStore is the flat-file Store backend: one directory per task holding
// task.json plus an append-only logs.jsonl. Suited to single-process use;
// shared deployments take the database backend.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// OpenFile creates (if needed) and opens a file store rooted at dir.
func OpenFile(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root %s: %w", dir, err)
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) taskDir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *FileStore) taskPath(id string) string {
	return filepath.Join(s.taskDir(id), "task.json")
}

func (s *FileStore) logsPath(id string) string {
	return filepath.Join(s.taskDir(id), "logs.jsonl")
}

func (s *FileStore) runsPath(id string) string {
	return filepath.Join(s.taskDir(id), "runs.jsonl")
}

func (s *FileStore) writeTask(task *models.Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal task %s: %w", task.ID, err)
	}
	if err := os.WriteFile(s.taskPath(task.ID), data, 0o644); err != nil {
		return fmt.Errorf("store: write task %s: %w", task.ID, err)
	}
	return nil
}

func (s *FileStore) readTask(id string) (*models.Task, error) {
	data, err := os.ReadFile(s.taskPath(id))
	if os.IsNotExist(err) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read task %s: %w", id, err)
	}
	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("store: decode task %s: %w", id, err)
	}
	return &task, nil
}

func (s *FileStore) CreateTask(task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	task.UpdatedAt = time.Now().UTC()
	if err := os.MkdirAll(s.taskDir(task.ID), 0o755); err != nil {
		return fmt.Errorf("store: create task dir %s: %w", task.ID, err)
	}
	return s.writeTask(task)
}

func (s *FileStore) GetTask(id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readTask(id)
}

func (s *FileStore) ListTasks() ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	var tasks []models.Task
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		task, err := s.readTask(entry.Name())
		if err != nil {
			continue
		}
		tasks = append(tasks, *task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (s *FileStore) UpdateTask(task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.UpdatedAt = time.Now().UTC()
	return s.writeTask(task)
}

func (s *FileStore) SetStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, err := s.readTask(id)
	if err != nil {
		return err
	}
	task.AgentStatus = status
	task.UpdatedAt = time.Now().UTC()
	return s.writeTask(task)
}

func (s *FileStore) AppendEntries(taskID string, entries []agent.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.taskDir(taskID), 0o755); err != nil {
		return fmt.Errorf("store: create task dir %s: %w", taskID, err)
	}
	f, err := os.OpenFile(s.logsPath(taskID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("store: open logs for %s: %w", taskID, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(EntryToLog(taskID, e)); err != nil {
			return fmt.Errorf("store: append log for %s: %w", taskID, err)
		}
	}
	return nil
}

func (s *FileStore) LogsAfter(taskID string, afterSeq int) ([]models.TaskLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.logsPath(taskID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: open logs for %s: %w", taskID, err)
	}
	defer f.Close()

	var rows []models.TaskLog
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var row models.TaskLog
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			continue
		}
		if row.Seq > afterSeq {
			rows = append(rows, row)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: scan logs for %s: %w", taskID, err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	return rows, nil
}

func (s *FileStore) RecordRun(run *models.AgentRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.taskDir(run.TaskID), 0o755); err != nil {
		return fmt.Errorf("store: create task dir %s: %w", run.TaskID, err)
	}
	f, err := os.OpenFile(s.runsPath(run.TaskID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("store: open runs for %s: %w", run.TaskID, err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(run); err != nil {
		return fmt.Errorf("store: record run for %s: %w", run.TaskID, err)
	}
	return nil
}

func (s *FileStore) TokenTotals(taskID string) (TokenTotals, error) {
	task, err := s.GetTask(taskID)
	if err != nil {
		return TokenTotals{}, err
	}
	return TokenTotals{
		InputTokens:  int64(task.InputTokens),
		OutputTokens: int64(task.OutputTokens),
		TotalTokens: int64(task.InputTokens + task.OutputTokens +
			task.CacheCreationTokens + task.CacheReadTokens),
		CostUSD: task.CostUSD,
	}, nil
}

func (s *FileStore) StaleRunning(cutoff time.Time) ([]models.Task, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}
	var stale []models.Task
	for _, task := range tasks {
		if task.AgentStatus == models.StatusRunning && task.UpdatedAt.Before(cutoff) {
			stale = append(stale, task)
		}
	}
	return stale, nil
}
