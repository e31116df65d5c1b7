package models

import "testing"

func TestTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusSuccess, true},
		{StatusError, true},
		{"", false},
		{"weird", false},
	}
	for _, tt := range tests {
		if got := Terminal(tt.status); got != tt.want {
			t.Errorf("Terminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestTask_ZeroValue(t *testing.T) {
	var task Task
	if task.AgentStatus != "" || task.CostUSD != 0 {
		t.Error("zero-value Task should have empty status and zero cost")
	}
	if task.StartedAt != nil || task.CompletedAt != nil {
		t.Error("zero-value Task should have nil timestamps")
	}
}
