// Package janitor sweeps tasks stuck in running and fails them. An execution
// that outlives its subprocess leaves a running row behind; the sweep is the
// backstop that makes those visible instead of eternally in-flight.
package janitor

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/models"
	"github.com/zulandar/roundhouse/internal/store"
)

// cronParser accepts standard 5-field cron expressions (minute, hour, dom,
// month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Opts holds parameters for creating a Janitor.
type Opts struct {
	Store store.Store
	// Schedule is a 5-field cron expression.
	Schedule string
	// Cutoff is how long a task may sit in running before it is stale.
	Cutoff time.Duration
	Logger *zap.Logger
}

// Janitor periodically marks stale running tasks as failed.
type Janitor struct {
	store  store.Store
	cutoff time.Duration
	logger *zap.Logger
	cron   *cron.Cron
	sched  cron.Schedule
}

// New creates a janitor. The schedule is validated here; Start never fails.
func New(opts Opts) (*Janitor, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("janitor: store is required")
	}
	if opts.Cutoff <= 0 {
		return nil, fmt.Errorf("janitor: cutoff must be positive")
	}
	sched, err := cronParser.Parse(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("janitor: schedule %q: %w", opts.Schedule, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		store:  opts.Store,
		cutoff: opts.Cutoff,
		logger: logger,
		cron:   cron.New(cron.WithParser(cronParser)),
		sched:  sched,
	}, nil
}

// Start begins the background sweep loop.
func (j *Janitor) Start() {
	j.cron.Schedule(j.sched, cron.FuncJob(func() {
		if err := j.Sweep(); err != nil {
			j.logger.Error("sweep failed", zap.Error(err))
		}
	}))
	j.cron.Start()
}

// Stop halts the sweep loop, waiting for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep marks every stale running task as failed and appends an error entry
// to its timeline. Exported so serve can run one sweep at startup.
func (j *Janitor) Sweep() error {
	cutoff := time.Now().Add(-j.cutoff)
	stale, err := j.store.StaleRunning(cutoff)
	if err != nil {
		return fmt.Errorf("janitor: list stale: %w", err)
	}
	for _, task := range stale {
		age := time.Since(task.UpdatedAt).Round(time.Second)
		if err := j.store.SetStatus(task.ID, models.StatusError); err != nil {
			j.logger.Error("mark stale task failed",
				zap.String("task", task.ID), zap.Error(err))
			continue
		}
		entry := agent.LogEntry{
			ID:        j.nextSeq(task.ID),
			Timestamp: time.Now().UTC(),
			Type:      agent.LogError,
			Message:   fmt.Sprintf("Execution abandoned: no progress for %s", age),
		}
		if err := j.store.AppendEntries(task.ID, []agent.LogEntry{entry}); err != nil {
			j.logger.Error("append stale entry failed",
				zap.String("task", task.ID), zap.Error(err))
		}
		j.logger.Warn("stale task failed",
			zap.String("task", task.ID),
			zap.Duration("age", age))
	}
	return nil
}

// nextSeq continues the task's timeline after whatever the dead execution
// already wrote.
func (j *Janitor) nextSeq(taskID string) int {
	logs, err := j.store.LogsAfter(taskID, 0)
	if err != nil || len(logs) == 0 {
		return 1
	}
	return logs[len(logs)-1].Seq + 1
}
