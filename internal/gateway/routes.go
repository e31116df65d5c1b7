package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/logparse"
	"github.com/zulandar/roundhouse/internal/models"
	"github.com/zulandar/roundhouse/internal/store"
)

func (s *Server) registerRoutes() {
	s.router.POST("/run", s.handleRun)
	s.router.GET("/agents", s.handleAgents)
	s.router.GET("/agents/search", s.handleAgentsSearch)
	s.router.GET("/agent/logs", s.handleLogs)
	s.router.GET("/agent/stream", s.handleStream)
	s.router.GET("/tasks", s.handleTasks)
	s.router.GET("/tasks/:id", s.handleTask)
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// runRequest is the POST /run body.
type runRequest struct {
	Prompt     string            `json:"prompt"`
	AgentID    string            `json:"agentId"`
	TaskID     string            `json:"taskId"`
	Parameters map[string]string `json:"parameters"`
	Model      string            `json:"model"`
}

// handleRun executes one task synchronously and returns its result. Routing
// a prompt without an agent is not supported; the agent ID is mandatory.
func (s *Server) handleRun(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.AgentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agentId is required"})
		return
	}
	if req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	a, ok := s.opts.Registry.Get(req.AgentID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent: " + req.AgentID})
		return
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:          taskID,
		Prompt:      req.Prompt,
		AgentID:     req.AgentID,
		AgentStatus: models.StatusRunning,
		StartedAt:   &now,
	}
	if err := s.opts.Store.CreateTask(task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	result, err := a.Execute(c.Request.Context(), agent.ExecutionContext{
		TaskID:     taskID,
		Prompt:     req.Prompt,
		Parameters: req.Parameters,
		Model:      req.Model,
		Credential: s.opts.Credential,
		BaseURL:    s.opts.BaseURL,
	})
	if err != nil {
		s.finishTask(task, nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  err.Error(),
			"taskId": taskID,
		})
		return
	}

	s.finishTask(task, result, nil)
	s.checkRepository(c.Request.Context(), result)

	c.JSON(http.StatusOK, gin.H{
		"taskId": taskID,
		"result": result,
	})
}

// finishTask persists the terminal task state and fires accounting and
// notifications. A pre-flight execution error and a failed result both land
// on status error.
func (s *Server) finishTask(task *models.Task, result *agent.ExecutionResult, execErr error) {
	now := time.Now().UTC()
	task.CompletedAt = &now
	task.AgentStatus = models.StatusError

	if result != nil {
		if result.Success {
			task.AgentStatus = models.StatusSuccess
		}
		task.Response = result.Response
		if len(result.Data) > 0 {
			if data, err := json.Marshal(result.Data); err == nil {
				task.Data = string(data)
			}
		}
		task.CostUSD = result.Metadata.CostUSD
		task.InputTokens = result.Metadata.Usage.InputTokens
		task.OutputTokens = result.Metadata.Usage.OutputTokens
		task.CacheCreationTokens = result.Metadata.Usage.CacheCreationTokens
		task.CacheReadTokens = result.Metadata.Usage.CacheReadTokens
		task.DurationMs = result.Metadata.Duration.Milliseconds()
	}

	if err := s.opts.Store.UpdateTask(task); err != nil {
		s.logger.Error("update task failed", zap.String("task", task.ID), zap.Error(err))
	}
	if execErr != nil {
		entry := agent.LogEntry{
			ID:        1,
			Timestamp: now,
			Type:      agent.LogError,
			Message:   "Execution failed: " + execErr.Error(),
		}
		if err := s.opts.Store.AppendEntries(task.ID, []agent.LogEntry{entry}); err != nil {
			s.logger.Error("append error entry failed", zap.String("task", task.ID), zap.Error(err))
		}
	}
	if result != nil {
		tools := ""
		if len(result.Metadata.ToolCalls) > 0 {
			if data, err := json.Marshal(result.Metadata.ToolCalls); err == nil {
				tools = string(data)
			}
		}
		run := &models.AgentRun{
			TaskID:     task.ID,
			AgentID:    task.AgentID,
			Success:    result.Success,
			CostUSD:    result.Metadata.CostUSD,
			TokensUsed: result.Metadata.TokensUsed,
			ToolCalls:  tools,
			StartedAt:  now.Add(-result.Metadata.Duration),
			FinishedAt: now,
		}
		if err := s.opts.Store.RecordRun(run); err != nil {
			s.logger.Error("record run failed", zap.String("task", task.ID), zap.Error(err))
		}
	}

	if s.opts.Notify != nil {
		s.opts.Notify(task, result)
	}
}

// checkRepository verifies an extracted repository URL best-effort.
func (s *Server) checkRepository(ctx context.Context, result *agent.ExecutionResult) {
	if s.opts.RepoCheck == nil || result == nil {
		return
	}
	url, _ := result.Data["repository_url"].(string)
	if url == "" {
		return
	}
	if err := s.opts.RepoCheck(ctx, url); err != nil {
		s.logger.Warn("repository check failed", zap.String("url", url), zap.Error(err))
	}
}

func (s *Server) handleAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.opts.Registry.List()})
}

func (s *Server) handleAgentsSearch(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.opts.Registry.Search(c.Query("q"))})
}

// handleLogs reconstructs log blocks for one task from the console capture.
func (s *Server) handleLogs(c *gin.Context) {
	taskID := c.Query("taskId")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "taskId is required"})
		return
	}
	var buffer string
	if s.opts.Capture != nil {
		buffer = s.opts.Capture.Snapshot()
	}
	blocks := logparse.Parse(buffer, taskID)
	c.JSON(http.StatusOK, gin.H{
		"taskId": taskID,
		"blocks": blocks,
	})
}

func (s *Server) handleTasks(c *gin.Context) {
	tasks, err := s.opts.Store.ListTasks()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) handleTask(c *gin.Context) {
	task, err := s.opts.Store.GetTask(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	totals, err := s.opts.Store.TokenTotals(task.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task": task,
		"tokens": gin.H{
			"input_tokens":  totals.InputTokens,
			"output_tokens": totals.OutputTokens,
			"total_tokens":  totals.TotalTokens,
			"cost_usd":      totals.CostUSD,
		},
	})
}
