// Package logparse reconstructs a structured log timeline from raw captured
// console text. It is a compatibility shim for out-of-process observation:
// when the structured entry stream is available in-process, that is persisted
// and served directly instead.
package logparse

import (
	"strings"
	"time"

	"github.com/zulandar/roundhouse/internal/agent"
)

// Console markers. These are the exact prefixes the runtime console
// transcript emits; the parser and the writer share them.
const (
	// ExecStartMarker opens every execution transcript. The line also
	// carries "task=<id>", which is the per-task window marker.
	ExecStartMarker = ">>> Agent execution start"

	SessionMarker    = "[SESSION]"
	MessageMarker    = "[MESSAGE"
	ToolMarker       = "[TOOL]"
	CostMarker       = "[COST]"
	CompletionMarker = "[COMPLETE]"

	bannerRune = '='
	bannerMin  = 8
)

// TaskMarker returns the unique in-transcript marker for a task.
func TaskMarker(taskID string) string {
	return "task=" + taskID
}

// LogBlock is one reconstructed timeline unit. Computed fresh on every
// parse; never persisted.
type LogBlock struct {
	ID        int           `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Type      agent.LogType `json:"type"`
	Message   string        `json:"message"`
}

// blockKind distinguishes marker classes that share a LogType but carry
// different line caps.
type blockKind int

const (
	kindNone blockKind = iota
	kindBanner
	kindSession
	kindMessage
	kindTool
	kindCost
	kindCompletion
)

// lineCaps bounds how many lines one block of each kind may absorb.
var lineCaps = map[blockKind]int{
	kindBanner:     20,
	kindSession:    10,
	kindMessage:    20,
	kindTool:       15,
	kindCost:       25,
	kindCompletion: 30,
}

var kindTypes = map[blockKind]agent.LogType{
	kindBanner:     agent.LogInfo,
	kindSession:    agent.LogSession,
	kindMessage:    agent.LogMessage,
	kindTool:       agent.LogTool,
	kindCost:       agent.LogCost,
	kindCompletion: agent.LogCompletion,
}

// Parse segments the raw buffer into the task's LogBlock timeline. It is a
// pure function of (buffer, taskID): repeated calls yield identical output.
// A missing task marker yields an empty list, not an error; a buffer
// truncated mid-block yields a short final block.
//
// The task window is the half-open interval from the line just before the
// task's last ExecStartMarker line through the line before the next
// ExecStartMarker (or end of buffer). Tasks are assumed to execute
// sequentially — one task's raw output is contiguous.
func Parse(buffer, taskID string) []LogBlock {
	lines := strings.Split(buffer, "\n")
	marker := TaskMarker(taskID)

	start := -1
	for i, line := range lines {
		if strings.Contains(line, marker) {
			start = i
		}
	}
	if start < 0 {
		return []LogBlock{}
	}

	// One line earlier captures the banner that precedes the start line.
	winStart := start
	if winStart > 0 {
		winStart--
	}
	winEnd := len(lines)
	for j := start + 1; j < len(lines); j++ {
		if strings.Contains(lines[j], ExecStartMarker) {
			winEnd = j
			break
		}
	}

	return segment(lines[winStart:winEnd])
}

// segment walks the window once with an explicit cursor, opening a block at
// every start marker and appending continuation lines up to the kind's cap.
func segment(lines []string) []LogBlock {
	blocks := []LogBlock{}

	var cur *LogBlock
	var curKind blockKind
	curLines := 0

	flush := func() {
		if cur != nil {
			blocks = append(blocks, *cur)
			cur = nil
		}
	}

	for _, raw := range lines {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		ts, rest := splitTimestamp(raw)
		kind := markerKind(rest)

		if kind != kindNone {
			flush()
			cur = &LogBlock{
				ID:        len(blocks) + 1,
				Timestamp: ts,
				Type:      kindTypes[kind],
				Message:   rest,
			}
			curKind = kind
			curLines = 1
			continue
		}

		if cur != nil && curLines < lineCaps[curKind] {
			cur.Message += "\n" + rest
			curLines++
			continue
		}

		// Orphan line: single info block, re-classified by keyword.
		flush()
		blocks = append(blocks, LogBlock{
			ID:        len(blocks) + 1,
			Timestamp: ts,
			Type:      classifyOrphan(rest),
			Message:   rest,
		})
	}
	flush()

	// Renumber: flush order and slice order are the same, but the final
	// flush happens after orphan appends shifted IDs.
	for i := range blocks {
		blocks[i].ID = i + 1
	}
	return blocks
}

// splitTimestamp peels a leading RFC3339 token off a console line. Lines
// without one get the zero time, keeping parsing deterministic.
func splitTimestamp(line string) (time.Time, string) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) == 2 {
		if ts, err := time.Parse(time.RFC3339, fields[0]); err == nil {
			return ts.UTC(), fields[1]
		}
	}
	return time.Time{}, line
}

// markerKind classifies a line as a block start, or kindNone.
func markerKind(line string) blockKind {
	trimmed := strings.TrimSpace(line)
	switch {
	case isBanner(trimmed):
		return kindBanner
	case strings.HasPrefix(trimmed, ExecStartMarker):
		return kindBanner
	case strings.HasPrefix(trimmed, SessionMarker):
		return kindSession
	case strings.HasPrefix(trimmed, MessageMarker):
		return kindMessage
	case strings.HasPrefix(trimmed, ToolMarker):
		return kindTool
	case strings.HasPrefix(trimmed, CostMarker):
		return kindCost
	case strings.HasPrefix(trimmed, CompletionMarker):
		return kindCompletion
	}
	return kindNone
}

// isBanner reports whether the line is a separator of '=' runes.
func isBanner(trimmed string) bool {
	if len(trimmed) < bannerMin {
		return false
	}
	for _, r := range trimmed {
		if r != bannerRune {
			return false
		}
	}
	return true
}

// classifyOrphan sniffs keywords in a line that matched no start marker.
func classifyOrphan(line string) agent.LogType {
	upper := strings.ToUpper(line)
	switch {
	case strings.Contains(upper, "ERROR"):
		return agent.LogError
	case strings.Contains(upper, "COMPLETE"), strings.Contains(upper, "SUMMARY"):
		return agent.LogCompletion
	}
	return agent.LogInfo
}
