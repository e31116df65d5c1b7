// Package agent defines the agent contract and the execution session that
// turns a model message stream into a cost-accounted result and log timeline.
package agent

import (
	"context"
	"time"

	"github.com/zulandar/roundhouse/internal/pricing"
)

// Descriptor describes one registered agent. Loaded once from its manifest
// at startup and treated as immutable afterwards.
type Descriptor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	Tags         []string `json:"tags,omitempty"`
	MaxTurns     int      `json:"max_turns"`
	DefaultModel string   `json:"default_model,omitempty"`
	RequiresMCP  bool     `json:"requires_mcp,omitempty"`
	MCPServers   []string `json:"mcp_servers,omitempty"`
	Workflow     string   `json:"workflow"`
}

// ExecutionContext carries everything one invocation needs. Created per run,
// discarded after.
type ExecutionContext struct {
	TaskID     string
	Prompt     string
	Parameters map[string]string
	Credential string
	Model      string // optional override of the agent's default model
	BaseURL    string // optional API endpoint override
}

// Metadata summarizes one finished execution.
type Metadata struct {
	Duration   time.Duration  `json:"duration_ms"`
	TokensUsed int            `json:"tokens_used"`
	Usage      pricing.Usage  `json:"usage"`
	CostUSD    float64        `json:"cost_usd"`
	ToolCalls  map[string]int `json:"tool_calls"`
}

// ExecutionResult is the uniform result every execution produces, successful
// or not. Built once, immutable; the caller owns persistence.
type ExecutionResult struct {
	Success  bool           `json:"success"`
	Response string         `json:"response"`
	Data     map[string]any `json:"data,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
	Logs     []LogEntry     `json:"logs"`
	Metadata Metadata       `json:"metadata"`
}

// BaseAgent is the sole boundary to agent-specific workflow content. The
// error return is reserved for pre-flight failures (bad context, spawn
// failure); anything that happens after the stream opens is reported inside
// the result with Success=false. There is no cancellation primitive beyond
// the context deadline.
type BaseAgent interface {
	Execute(ctx context.Context, ec ExecutionContext) (*ExecutionResult, error)
	Descriptor() Descriptor
}

// CostAccumulator holds running token and USD totals for one session.
// Fields never decrease; exclusively owned by that session, so no locking.
type CostAccumulator struct {
	Usage    pricing.Usage
	TotalUSD float64
}

// Add folds one result step into the running totals and returns the step
// cost under the given tier.
func (c *CostAccumulator) Add(u pricing.Usage, tier pricing.Tier) float64 {
	c.Usage.InputTokens += u.InputTokens
	c.Usage.OutputTokens += u.OutputTokens
	c.Usage.CacheCreationTokens += u.CacheCreationTokens
	c.Usage.CacheReadTokens += u.CacheReadTokens
	step := pricing.Cost(u, tier)
	c.TotalUSD += step
	return step
}
