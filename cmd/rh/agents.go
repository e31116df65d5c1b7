package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/runtime"
)

func newAgentsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgents(cmd, configPath, "")
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search agents by id, name, capability, or tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgents(cmd, configPath, args[0])
		},
	}
	cmd.AddCommand(search)
	return cmd
}

func runAgents(cmd *cobra.Command, configPath, query string) error {
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
	reg, err := buildRegistry(cfg, st, runtime.NewCaptureBuffer(0), logger)
	if err != nil {
		return err
	}

	var list []agent.Descriptor
	if query == "" {
		list = reg.List()
	} else {
		list = reg.Search(query)
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No agents found.")
		return nil
	}
	for _, d := range list {
		fmt.Fprintf(out, "%-20s %-10s %s\n", d.ID, d.Version, d.Name)
		if len(d.Capabilities) > 0 {
			fmt.Fprintf(out, "%-20s %-10s capabilities: %s\n", "", "",
				strings.Join(d.Capabilities, ", "))
		}
	}
	return nil
}
