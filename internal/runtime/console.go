package runtime

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/logparse"
)

const consoleBannerWidth = 80

// ConsoleWriter renders a human-readable execution transcript in the exact
// line format logparse reconstructs blocks from. One writer serves one
// execution; writes typically land in the shared CaptureBuffer.
type ConsoleWriter struct {
	w        io.Writer
	messages int
}

// NewConsoleWriter creates a transcript writer.
func NewConsoleWriter(w io.Writer) *ConsoleWriter {
	return &ConsoleWriter{w: w}
}

// Banner opens the transcript for one execution. The start line carries the
// task marker logparse anchors its window on.
func (c *ConsoleWriter) Banner(taskID, agentID string) {
	sep := strings.Repeat("=", consoleBannerWidth)
	fmt.Fprintln(c.w, sep)
	fmt.Fprintf(c.w, "%s %s %s agent=%s\n",
		stamp(time.Now()), logparse.ExecStartMarker, logparse.TaskMarker(taskID), agentID)
	fmt.Fprintln(c.w, sep)
}

// Entry renders one structured log entry.
func (c *ConsoleWriter) Entry(e agent.LogEntry) {
	ts := stamp(e.Timestamp)
	switch e.Type {
	case agent.LogSession:
		fmt.Fprintf(c.w, "%s %s %s\n", ts, logparse.SessionMarker, e.Message)
	case agent.LogMessage:
		c.messages++
		fmt.Fprintf(c.w, "%s %s #%d]\n", ts, logparse.MessageMarker, c.messages)
		for _, line := range strings.Split(e.Message, "\n") {
			fmt.Fprintln(c.w, line)
		}
	case agent.LogTool:
		fmt.Fprintf(c.w, "%s %s %s\n", ts, logparse.ToolMarker, e.Message)
		if input, ok := e.Payload["input"].(string); ok && input != "" {
			fmt.Fprintf(c.w, "input: %s\n", input)
		}
	case agent.LogCost:
		fmt.Fprintf(c.w, "%s %s %s\n", ts, logparse.CostMarker, e.Message)
	case agent.LogCompletion:
		fmt.Fprintf(c.w, "%s %s %s\n", ts, logparse.CompletionMarker, e.Message)
	case agent.LogError:
		fmt.Fprintf(c.w, "%s ERROR: %s\n", ts, e.Message)
	default:
		fmt.Fprintf(c.w, "%s %s\n", ts, e.Message)
	}
}

// Complete closes the transcript with the execution outcome.
func (c *ConsoleWriter) Complete(success bool, costUSD float64, tokens int) {
	outcome := "success"
	if !success {
		outcome = "failed"
	}
	fmt.Fprintf(c.w, "%s %s %s cost=$%.6f tokens=%d\n",
		stamp(time.Now()), logparse.CompletionMarker, outcome, costUSD, tokens)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}
