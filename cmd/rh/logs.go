package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zulandar/roundhouse/internal/models"
	"github.com/zulandar/roundhouse/internal/store"
)

const followInterval = 2 * time.Second

func newLogsCmd() *cobra.Command {
	var (
		configPath string
		taskID     string
		follow     bool
		raw        bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View a task's log timeline",
		Long:  "Prints the persisted log entries for one task. With --follow, polls for new entries until the task reaches a terminal status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID == "" {
				return fmt.Errorf("--task is required")
			}
			return runTaskLogs(cmd, configPath, taskID, follow, raw)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&taskID, "task", "", "task ID")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "poll for new entries every 2s")
	cmd.Flags().BoolVar(&raw, "raw", false, "never truncate messages to the terminal width")
	return cmd
}

func runTaskLogs(cmd *cobra.Command, configPath, taskID string, follow, raw bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if _, err := st.GetTask(taskID); err != nil {
		return err
	}

	width := 0
	if !raw {
		width = terminalWidth()
	}

	out := cmd.OutOrStdout()
	lastSeq := printLogs(out, st, taskID, 0, width)
	if !follow {
		return nil
	}

	ticker := time.NewTicker(followInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
			lastSeq = printLogs(out, st, taskID, lastSeq, width)
			task, err := st.GetTask(taskID)
			if err != nil {
				return err
			}
			if models.Terminal(task.AgentStatus) {
				printLogs(out, st, taskID, lastSeq, width)
				fmt.Fprintf(out, "task %s: %s\n", taskID, task.AgentStatus)
				return nil
			}
		}
	}
}

// printLogs renders entries with Seq > afterSeq and returns the new high
// water mark.
func printLogs(out io.Writer, st store.Store, taskID string, afterSeq, width int) int {
	logs, err := st.LogsAfter(taskID, afterSeq)
	if err != nil || len(logs) == 0 {
		return afterSeq
	}
	for _, l := range logs {
		line := fmt.Sprintf("%s [%s] %s",
			l.CreatedAt.Format("15:04:05"), l.Type, l.Message)
		if width > 0 && len(line) > width {
			line = line[:width-1] + "…"
		}
		fmt.Fprintln(out, line)
	}
	return logs[len(logs)-1].Seq
}

// terminalWidth reports the stdout width, or 0 when stdout is not a TTY
// (piped output gets full lines).
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return 0
	}
	return width
}
