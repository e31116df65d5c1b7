// Package notify delivers completion notifications to chat platforms.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/models"
)

const (
	// sendRetries is the fixed retry budget per notification. Notification
	// delivery is idempotent from the platform's view, unlike executions.
	sendRetries = 3
	// retryBackoff is the linear backoff unit between attempts.
	retryBackoff = 2 * time.Second
)

// Message is one completion notification.
type Message struct {
	TaskID   string
	AgentID  string
	Status   string
	CostUSD  float64
	Tokens   int
	Duration time.Duration
	Response string
	Errors   []string
}

// Adapter is a platform-specific notification transport.
type Adapter interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Notifier fans one completion out to every configured adapter, retrying
// transport errors a fixed number of times with linear backoff.
type Notifier struct {
	adapters []Adapter
	logger   *zap.Logger
	backoff  time.Duration
}

// New creates a notifier over the given adapters.
func New(logger *zap.Logger, adapters ...Adapter) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{adapters: adapters, logger: logger, backoff: retryBackoff}
}

// Connect brings up every adapter. An adapter that fails to connect is
// dropped with a logged error; the rest keep working.
func (n *Notifier) Connect(ctx context.Context) {
	alive := n.adapters[:0]
	for _, a := range n.adapters {
		if err := a.Connect(ctx); err != nil {
			n.logger.Error("notify adapter connect failed", zap.Error(err))
			continue
		}
		alive = append(alive, a)
	}
	n.adapters = alive
}

// Close shuts down every adapter.
func (n *Notifier) Close() {
	for _, a := range n.adapters {
		if err := a.Close(); err != nil {
			n.logger.Warn("notify adapter close failed", zap.Error(err))
		}
	}
}

// TaskFinished reports one terminal task transition. Safe to pass as the
// gateway's Notify hook.
func (n *Notifier) TaskFinished(task *models.Task, result *agent.ExecutionResult) {
	msg := Message{
		TaskID:  task.ID,
		AgentID: task.AgentID,
		Status:  task.AgentStatus,
		CostUSD: task.CostUSD,
	}
	if result != nil {
		msg.Tokens = result.Metadata.TokensUsed
		msg.Duration = result.Metadata.Duration
		msg.Response = result.Response
		msg.Errors = result.Errors
	}
	n.send(context.Background(), msg)
}

// send delivers msg to every adapter with retry. Exhaustion is a logged,
// user-visible failure; it never propagates.
func (n *Notifier) send(ctx context.Context, msg Message) {
	for _, a := range n.adapters {
		var lastErr error
		for attempt := 1; attempt <= sendRetries; attempt++ {
			if lastErr = a.Send(ctx, msg); lastErr == nil {
				break
			}
			if attempt < sendRetries {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Duration(attempt) * n.backoff):
				}
			}
		}
		if lastErr != nil {
			n.logger.Error("notification delivery failed",
				zap.String("task", msg.TaskID),
				zap.Int("attempts", sendRetries),
				zap.Error(lastErr))
		}
	}
}

// summary renders the shared notification text.
func summary(msg Message) string {
	verb := "completed"
	if msg.Status != models.StatusSuccess {
		verb = "failed"
	}
	return fmt.Sprintf("Task %s (%s) %s: $%.4f, %d tokens, %s",
		msg.TaskID, msg.AgentID, verb, msg.CostUSD, msg.Tokens,
		msg.Duration.Round(time.Second))
}
