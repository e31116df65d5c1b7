package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/roundhouse/internal/models"
	"github.com/zulandar/roundhouse/internal/store"
)

const (
	ssePollInterval      = time.Second
	sseHeartbeatInterval = 15 * time.Second
)

// handleStream streams one task's log entries over SSE. Persisted entries
// replay first; the poll loop then delivers each entry exactly once, in Seq
// order. The stream closes when the task reaches a terminal status or the
// client disconnects.
func (s *Server) handleStream(c *gin.Context) {
	taskID := c.Query("taskId")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "taskId is required"})
		return
	}
	task, err := s.opts.Store.GetTask(taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "connected", gin.H{"taskId": taskID, "status": task.AgentStatus})
	c.Writer.Flush()

	lastSeq := s.sendDelta(c, taskID, 0)
	if models.Terminal(task.AgentStatus) {
		writeSSE(c.Writer, "done", gin.H{"status": task.AgentStatus})
		c.Writer.Flush()
		return
	}

	ctx := c.Request.Context()
	poll := time.NewTicker(ssePollInterval)
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer poll.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", gin.H{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-poll.C:
			lastSeq = s.sendDelta(c, taskID, lastSeq)

			current, err := s.opts.Store.GetTask(taskID)
			if err != nil {
				continue
			}
			if models.Terminal(current.AgentStatus) {
				// Drain anything appended between the delta and the status read.
				s.sendDelta(c, taskID, lastSeq)
				writeSSE(c.Writer, "done", gin.H{"status": current.AgentStatus})
				c.Writer.Flush()
				return
			}
		}
	}
}

// sendDelta emits all entries with Seq > afterSeq and returns the new high
// water mark.
func (s *Server) sendDelta(c *gin.Context, taskID string, afterSeq int) int {
	logs, err := s.opts.Store.LogsAfter(taskID, afterSeq)
	if err != nil || len(logs) == 0 {
		return afterSeq
	}
	for _, l := range logs {
		writeSSE(c.Writer, "log", store.LogToEntry(l))
	}
	c.Writer.Flush()
	return logs[len(logs)-1].Seq
}

func writeSSE(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
