package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigParser_Defaults(t *testing.T) {
	result, err := LoadFrom("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("expected no error for missing config file, got: %v", err)
	}

	cfg := result.Config

	if cfg.Monitor.PollIntervalMS != 1500 {
		t.Errorf("default poll_interval_ms: want 1500, got %d", cfg.Monitor.PollIntervalMS)
	}
	if cfg.Dedup.WindowSeconds != 300 {
		t.Errorf("default window_seconds: want 300, got %d", cfg.Dedup.WindowSeconds)
	}
	if cfg.Dedup.SimilarityThreshold != 0.8 {
		t.Errorf("default similarity_threshold: want 0.8, got %f", cfg.Dedup.SimilarityThreshold)
	}
	if cfg.Limits.SessionLimitSeconds != 18000 {
		t.Errorf("default session_limit_seconds: want 18000, got %d", cfg.Limits.SessionLimitSeconds)
	}
	if len(cfg.Limits.WarningThresholds) != 3 {
		t.Errorf("default warning_thresholds: want 3 entries, got %v", cfg.Limits.WarningThresholds)
	}
	if cfg.Tokens.DailyWarning != 50000 {
		t.Errorf("default daily_warning: want 50000, got %d", cfg.Tokens.DailyWarning)
	}
	if cfg.Tokens.DailyCritical != 80000 {
		t.Errorf("default daily_critical: want 80000, got %d", cfg.Tokens.DailyCritical)
	}
	if cfg.Scheduler.DispatchTimeoutSeconds != 30 {
		t.Errorf("default dispatch_timeout_seconds: want 30, got %d", cfg.Scheduler.DispatchTimeoutSeconds)
	}
	if cfg.Dispatch.Command != "claude" {
		t.Errorf("default dispatch command: want claude, got %q", cfg.Dispatch.Command)
	}
	if cfg.Receiver.Enabled {
		t.Error("default receiver enabled: want false, got true")
	}
	if cfg.Receiver.GRPCPort != 4317 {
		t.Errorf("default grpc_port: want 4317, got %d", cfg.Receiver.GRPCPort)
	}
	if !cfg.Alerts.SystemNotify {
		t.Error("default system_notify: want true, got false")
	}

	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings for missing file, got %v", result.Warnings)
	}
}

func TestConfigParser_PartialOverride(t *testing.T) {
	tomlData := `
[dedup]
window_seconds = 120

[limits]
warning_thresholds = [0.5, 0.75]
`
	result, err := LoadFromString(tomlData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := result.Config
	if cfg.Dedup.WindowSeconds != 120 {
		t.Errorf("window_seconds: want 120, got %d", cfg.Dedup.WindowSeconds)
	}
	if cfg.Dedup.SimilarityThreshold != 0.8 {
		t.Errorf("default similarity_threshold should be preserved: want 0.8, got %f", cfg.Dedup.SimilarityThreshold)
	}
	if cfg.Dedup.HistorySize != 50 {
		t.Errorf("default history_size should be preserved: want 50, got %d", cfg.Dedup.HistorySize)
	}
	if len(cfg.Limits.WarningThresholds) != 2 || cfg.Limits.WarningThresholds[0] != 0.5 {
		t.Errorf("warning_thresholds: want [0.5 0.75], got %v", cfg.Limits.WarningThresholds)
	}
	if cfg.Limits.SessionLimitSeconds != 18000 {
		t.Errorf("default session_limit_seconds should be preserved: want 18000, got %d", cfg.Limits.SessionLimitSeconds)
	}
}

func TestConfigParser_Sources(t *testing.T) {
	tomlData := `
[[monitor.sources]]
name = "main"
kind = "tmux"
target = "main:0.1"

[[monitor.sources]]
name = "log"
kind = "file"
target = "/tmp/claude.log"
`
	result, err := LoadFromString(tomlData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sources := result.Config.Monitor.Sources
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Kind != "tmux" || sources[0].Target != "main:0.1" {
		t.Errorf("source 0: got %+v", sources[0])
	}
	if sources[1].Name != "log" {
		t.Errorf("source 1 name: want log, got %q", sources[1].Name)
	}
	if result.Config.Monitor.PollIntervalMS != 1500 {
		t.Errorf("default poll_interval_ms should be preserved, got %d", result.Config.Monitor.PollIntervalMS)
	}
}

func TestConfigParser_NestedAlerts(t *testing.T) {
	tomlData := `
[alerts]
console = false

[alerts.telegram]
bot_token = "123:abc"
chat_id = 42

[alerts.websocket]
enabled = true
`
	result, err := LoadFromString(tomlData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := result.Config.Alerts
	if a.Console {
		t.Error("console: want false, got true")
	}
	if !a.SystemNotify {
		t.Error("default system_notify should be preserved")
	}
	if a.Telegram.BotToken != "123:abc" || a.Telegram.ChatID != 42 {
		t.Errorf("telegram: got %+v", a.Telegram)
	}
	if !a.WebSocket.Enabled {
		t.Error("websocket enabled: want true")
	}
	if a.WebSocket.Addr != "127.0.0.1:7878" {
		t.Errorf("default websocket addr should be preserved, got %q", a.WebSocket.Addr)
	}
}

func TestConfigParser_UnknownKeys(t *testing.T) {
	tomlData := `
[display]
refresh_rate_ms = 100

[scanner]
interval_seconds = 5
`
	result, err := LoadFromString(tomlData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "display") {
		t.Errorf("expected sorted warning for display first, got %q", result.Warnings[0])
	}
}

func TestConfigParser_Validation(t *testing.T) {
	tests := []struct {
		name    string
		toml    string
		wantErr string
	}{
		{
			name:    "zero poll interval",
			toml:    "[monitor]\npoll_interval_ms = 0",
			wantErr: "poll_interval_ms must be positive",
		},
		{
			name:    "threshold above one",
			toml:    "[dedup]\nsimilarity_threshold = 1.5",
			wantErr: "similarity_threshold must be in (0, 1]",
		},
		{
			name:    "warning threshold out of range",
			toml:    "[limits]\nwarning_thresholds = [0.8, 1.2]",
			wantErr: "warning threshold must be in (0, 1)",
		},
		{
			name:    "critical not above warning",
			toml:    "[tokens]\ndaily_warning = 1000\ndaily_critical = 500",
			wantErr: "daily_critical (500) must exceed daily_warning (1000)",
		},
		{
			name:    "bad source kind",
			toml:    "[[monitor.sources]]\nkind = \"x11\"\ntarget = \"w1\"",
			wantErr: "kind must be \"tmux\" or \"file\"",
		},
		{
			name:    "telegram without chat",
			toml:    "[alerts.telegram]\nbot_token = \"t\"",
			wantErr: "chat_id is required",
		},
		{
			name:    "empty dispatch command",
			toml:    "[dispatch]\ncommand = \"  \"",
			wantErr: "dispatch command must not be empty",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromString(tc.toml)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), "config validation error:") {
				t.Errorf("expected validation prefix, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestConfigParser_MultipleErrorsJoined(t *testing.T) {
	_, err := LoadFromString("[scheduler]\ntick_interval_ms = 0\nsummary_length = 0")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("expected joined errors, got %v", err)
	}
}

func TestConfigParser_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := "[scheduler]\ndispatch_timeout_seconds = 45\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	result, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Config.Scheduler.DispatchTimeoutSeconds != 45 {
		t.Errorf("dispatch_timeout_seconds: want 45, got %d", result.Config.Scheduler.DispatchTimeoutSeconds)
	}
}

func TestConfigParser_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[monitor\npoll = "), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected parse error for malformed file")
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandTilde("~/data"); got != filepath.Join(home, "data") {
		t.Errorf("ExpandTilde(~/data) = %q", got)
	}
	if got := ExpandTilde("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandTilde(/abs/path) = %q", got)
	}
}
