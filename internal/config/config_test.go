package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
port: 9090
agents_dir: /opt/roundhouse/agents
claude_binary: /usr/local/bin/claude
work_dir: /tmp/work
exec_timeout: 15m

store:
  backend: mysql
  mysql_host: 10.0.0.5
  mysql_port: 3307
  mysql_user: rh
  mysql_database: roundhouse_prod

notify:
  slack_bot_token: xoxb-test
  slack_channel: C123
  discord_token: abc
  discord_channel: "456"

janitor:
  schedule: "*/5 * * * *"
  stale_cutoff: 1h

github:
  token: ghp_test
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.AgentsDir != "/opt/roundhouse/agents" {
		t.Errorf("AgentsDir = %q", cfg.AgentsDir)
	}
	if cfg.ClaudeBinary != "/usr/local/bin/claude" {
		t.Errorf("ClaudeBinary = %q", cfg.ClaudeBinary)
	}
	if cfg.ExecTimeout != 15*time.Minute {
		t.Errorf("ExecTimeout = %v, want 15m", cfg.ExecTimeout)
	}
	if cfg.Store.Backend != "mysql" {
		t.Errorf("Store.Backend = %q, want mysql", cfg.Store.Backend)
	}
	if cfg.Store.MySQLHost != "10.0.0.5" || cfg.Store.MySQLPort != 3307 {
		t.Errorf("mysql = %s:%d", cfg.Store.MySQLHost, cfg.Store.MySQLPort)
	}
	if cfg.Store.MySQLDatabase != "roundhouse_prod" {
		t.Errorf("MySQLDatabase = %q", cfg.Store.MySQLDatabase)
	}
	if cfg.Notify.SlackChannel != "C123" {
		t.Errorf("SlackChannel = %q", cfg.Notify.SlackChannel)
	}
	if cfg.Janitor.Schedule != "*/5 * * * *" {
		t.Errorf("Janitor.Schedule = %q", cfg.Janitor.Schedule)
	}
	if cfg.Janitor.StaleCutoff != time.Hour {
		t.Errorf("StaleCutoff = %v, want 1h", cfg.Janitor.StaleCutoff)
	}
	if cfg.GitHub.Token != "ghp_test" {
		t.Errorf("GitHub.Token = %q", cfg.GitHub.Token)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.AgentsDir != "agents" {
		t.Errorf("AgentsDir = %q, want agents", cfg.AgentsDir)
	}
	if cfg.ClaudeBinary != "claude" {
		t.Errorf("ClaudeBinary = %q, want claude", cfg.ClaudeBinary)
	}
	if cfg.ExecTimeout != 30*time.Minute {
		t.Errorf("ExecTimeout = %v, want 30m", cfg.ExecTimeout)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want sqlite", cfg.Store.Backend)
	}
	if cfg.Store.SQLitePath != "roundhouse.db" {
		t.Errorf("SQLitePath = %q", cfg.Store.SQLitePath)
	}
	if cfg.Janitor.Schedule != "*/10 * * * *" {
		t.Errorf("Janitor.Schedule = %q", cfg.Janitor.Schedule)
	}
	if cfg.Janitor.StaleCutoff != 2*time.Hour {
		t.Errorf("StaleCutoff = %v, want 2h", cfg.Janitor.StaleCutoff)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad backend":             "store:\n  backend: postgres\n",
		"port out of range":       "port: 99999\n",
		"slack without channel":   "notify:\n  slack_bot_token: xoxb-x\n",
		"discord without channel": "notify:\n  discord_token: abc\n",
		"not yaml":                ":\n  - {",
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(yml)); err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", yml)
			}
		})
	}
}

func TestParse_InvalidMessageNamesFields(t *testing.T) {
	_, err := Parse([]byte("port: 99999\nstore:\n  backend: postgres\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "port") || !strings.Contains(msg, "store.backend") {
		t.Fatalf("error %q should name both offending fields", msg)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Port != 8080 || cfg.Store.Backend != "sqlite" {
		t.Fatalf("Default = %+v", cfg)
	}
}
