package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/models"
	"github.com/zulandar/roundhouse/internal/runtime"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		taskID     string
		model      string
		params     []string
	)

	cmd := &cobra.Command{
		Use:   "run <agent-id> <prompt>",
		Short: "Execute one task and print the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, configPath, args[0], args[1], taskID, model, params)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&taskID, "task", "", "task ID (generated when empty)")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().StringSliceVar(&params, "param", nil, "workflow parameter key=value (repeatable)")
	return cmd
}

func runOnce(cmd *cobra.Command, configPath, agentID, prompt, taskID, model string, params []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	capture := runtime.NewCaptureBuffer(0)
	reg, err := buildRegistry(cfg, st, capture, logger)
	if err != nil {
		return err
	}
	a, ok := reg.Get(agentID)
	if !ok {
		return fmt.Errorf("unknown agent %q (have: %d registered)", agentID, len(reg.List()))
	}

	parameters, err := parseParams(params)
	if err != nil {
		return err
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:          taskID,
		Prompt:      prompt,
		AgentID:     agentID,
		AgentStatus: models.StatusRunning,
		StartedAt:   &now,
	}
	if err := st.CreateTask(task); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running %s as task %s\n", agentID, taskID)

	result, err := a.Execute(cmd.Context(), agent.ExecutionContext{
		TaskID:     taskID,
		Prompt:     prompt,
		Parameters: parameters,
		Model:      model,
	})
	if err != nil {
		if serr := st.SetStatus(taskID, models.StatusError); serr != nil {
			logger.Error("mark task failed", zap.String("task", taskID), zap.Error(serr))
		}
		return fmt.Errorf("execute: %w", err)
	}

	status := models.StatusSuccess
	if !result.Success {
		status = models.StatusError
	}
	task.AgentStatus = status
	task.Response = result.Response
	task.CostUSD = result.Metadata.CostUSD
	task.InputTokens = result.Metadata.Usage.InputTokens
	task.OutputTokens = result.Metadata.Usage.OutputTokens
	task.CacheCreationTokens = result.Metadata.Usage.CacheCreationTokens
	task.CacheReadTokens = result.Metadata.Usage.CacheReadTokens
	task.DurationMs = result.Metadata.Duration.Milliseconds()
	done := time.Now().UTC()
	task.CompletedAt = &done
	if err := st.UpdateTask(task); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nStatus:   %s\n", status)
	fmt.Fprintf(out, "Cost:     $%.6f\n", result.Metadata.CostUSD)
	fmt.Fprintf(out, "Tokens:   %d\n", result.Metadata.TokensUsed)
	fmt.Fprintf(out, "Duration: %s\n", result.Metadata.Duration.Round(time.Millisecond))
	if len(result.Metadata.ToolCalls) > 0 {
		fmt.Fprintf(out, "Tools:")
		for name, count := range result.Metadata.ToolCalls {
			fmt.Fprintf(out, " %s×%d", name, count)
		}
		fmt.Fprintln(out)
	}
	if result.Response != "" {
		fmt.Fprintf(out, "\n%s\n", result.Response)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(out, "error: %s\n", e)
	}
	if !result.Success {
		return fmt.Errorf("task %s failed", taskID)
	}
	return nil
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
