package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Monitor   MonitorConfig
	Dedup     DedupConfig
	Limits    LimitsConfig
	Tokens    TokensConfig
	Scheduler SchedulerConfig
	Dispatch  DispatchConfig
	Storage   StorageConfig
	Receiver  ReceiverConfig
	Alerts    AlertsConfig
}

type MonitorConfig struct {
	PollIntervalMS  int            `toml:"poll_interval_ms"`
	ContextRadius   int            `toml:"context_radius"`
	EventBufferSize int            `toml:"event_buffer_size"`
	Sources         []SourceConfig `toml:"sources"`
	Command         []string       `toml:"command"`
}

// SourceConfig names one observed conversation. Kind is "tmux" (Target is a
// pane id such as "main:0.1") or "file" (Target is a path to a transcript).
type SourceConfig struct {
	Name   string `toml:"name"`
	Kind   string `toml:"kind"`
	Target string `toml:"target"`
}

type DedupConfig struct {
	WindowSeconds       int     `toml:"window_seconds"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	HistorySize         int     `toml:"history_size"`
}

type LimitsConfig struct {
	SessionLimitSeconds  int       `toml:"session_limit_seconds"`
	WarningThresholds    []float64 `toml:"warning_thresholds"`
	CheckIntervalSeconds int       `toml:"check_interval_seconds"`
}

type TokensConfig struct {
	DailyWarning         int `toml:"daily_warning"`
	DailyCritical        int `toml:"daily_critical"`
	CheckIntervalSeconds int `toml:"check_interval_seconds"`
	AlertCooldownMinutes int `toml:"alert_cooldown_minutes"`
}

type SchedulerConfig struct {
	TickIntervalMS         int `toml:"tick_interval_ms"`
	DispatchTimeoutSeconds int `toml:"dispatch_timeout_seconds"`
	SummaryLength          int `toml:"summary_length"`
}

type DispatchConfig struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

type StorageConfig struct {
	DataDir       string `toml:"data_dir"`
	DBPath        string `toml:"db_path"`
	RetentionDays int    `toml:"retention_days"`
}

type ReceiverConfig struct {
	Enabled  bool   `toml:"enabled"`
	GRPCPort int    `toml:"grpc_port"`
	HTTPPort int    `toml:"http_port"`
	Bind     string `toml:"bind"`
}

type AlertsConfig struct {
	SystemNotify bool            `toml:"system_notify"`
	Console      bool            `toml:"console"`
	Telegram     TelegramConfig  `toml:"telegram"`
	WebSocket    WebSocketConfig `toml:"websocket"`
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	ChatID   int64  `toml:"chat_id"`
}

type WebSocketConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cc-sentinel", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(defaultConfigPath())
}

func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	result, err := decode(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

func LoadFromString(data string) (*LoadResult, error) {
	if data == "" {
		return &LoadResult{Config: DefaultConfig()}, nil
	}

	result, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

var knownTopLevel = map[string]bool{
	"monitor":   true,
	"dedup":     true,
	"limits":    true,
	"tokens":    true,
	"scheduler": true,
	"dispatch":  true,
	"storage":   true,
	"receiver":  true,
	"alerts":    true,
}

func decode(data string) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}

	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, err
	}

	var unknown []string
	for key := range raw {
		if !knownTopLevel[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
	}

	var tf tomlFile
	if _, err := toml.Decode(data, &tf); err != nil {
		return nil, err
	}

	mergeFromRaw(&result.Config, &tf, raw)
	return result, nil
}

type tomlFile struct {
	Monitor   *MonitorConfig   `toml:"monitor"`
	Dedup     *DedupConfig     `toml:"dedup"`
	Limits    *LimitsConfig    `toml:"limits"`
	Tokens    *TokensConfig    `toml:"tokens"`
	Scheduler *SchedulerConfig `toml:"scheduler"`
	Dispatch  *DispatchConfig  `toml:"dispatch"`
	Storage   *StorageConfig   `toml:"storage"`
	Receiver  *ReceiverConfig  `toml:"receiver"`
	Alerts    *AlertsConfig    `toml:"alerts"`
}

// mergeFromRaw copies only the keys present in the file so that absent keys
// keep their defaults.
func mergeFromRaw(cfg *Config, tf *tomlFile, raw map[string]any) {
	if tf.Monitor != nil {
		if section, ok := rawSection(raw, "monitor"); ok {
			if _, exists := section["poll_interval_ms"]; exists {
				cfg.Monitor.PollIntervalMS = tf.Monitor.PollIntervalMS
			}
			if _, exists := section["context_radius"]; exists {
				cfg.Monitor.ContextRadius = tf.Monitor.ContextRadius
			}
			if _, exists := section["event_buffer_size"]; exists {
				cfg.Monitor.EventBufferSize = tf.Monitor.EventBufferSize
			}
			if _, exists := section["sources"]; exists {
				cfg.Monitor.Sources = tf.Monitor.Sources
			}
			if _, exists := section["command"]; exists {
				cfg.Monitor.Command = tf.Monitor.Command
			}
		}
	}
	if tf.Dedup != nil {
		if section, ok := rawSection(raw, "dedup"); ok {
			if _, exists := section["window_seconds"]; exists {
				cfg.Dedup.WindowSeconds = tf.Dedup.WindowSeconds
			}
			if _, exists := section["similarity_threshold"]; exists {
				cfg.Dedup.SimilarityThreshold = tf.Dedup.SimilarityThreshold
			}
			if _, exists := section["history_size"]; exists {
				cfg.Dedup.HistorySize = tf.Dedup.HistorySize
			}
		}
	}
	if tf.Limits != nil {
		if section, ok := rawSection(raw, "limits"); ok {
			if _, exists := section["session_limit_seconds"]; exists {
				cfg.Limits.SessionLimitSeconds = tf.Limits.SessionLimitSeconds
			}
			if _, exists := section["warning_thresholds"]; exists {
				cfg.Limits.WarningThresholds = tf.Limits.WarningThresholds
			}
			if _, exists := section["check_interval_seconds"]; exists {
				cfg.Limits.CheckIntervalSeconds = tf.Limits.CheckIntervalSeconds
			}
		}
	}
	if tf.Tokens != nil {
		if section, ok := rawSection(raw, "tokens"); ok {
			if _, exists := section["daily_warning"]; exists {
				cfg.Tokens.DailyWarning = tf.Tokens.DailyWarning
			}
			if _, exists := section["daily_critical"]; exists {
				cfg.Tokens.DailyCritical = tf.Tokens.DailyCritical
			}
			if _, exists := section["check_interval_seconds"]; exists {
				cfg.Tokens.CheckIntervalSeconds = tf.Tokens.CheckIntervalSeconds
			}
			if _, exists := section["alert_cooldown_minutes"]; exists {
				cfg.Tokens.AlertCooldownMinutes = tf.Tokens.AlertCooldownMinutes
			}
		}
	}
	if tf.Scheduler != nil {
		if section, ok := rawSection(raw, "scheduler"); ok {
			if _, exists := section["tick_interval_ms"]; exists {
				cfg.Scheduler.TickIntervalMS = tf.Scheduler.TickIntervalMS
			}
			if _, exists := section["dispatch_timeout_seconds"]; exists {
				cfg.Scheduler.DispatchTimeoutSeconds = tf.Scheduler.DispatchTimeoutSeconds
			}
			if _, exists := section["summary_length"]; exists {
				cfg.Scheduler.SummaryLength = tf.Scheduler.SummaryLength
			}
		}
	}
	if tf.Dispatch != nil {
		if section, ok := rawSection(raw, "dispatch"); ok {
			if _, exists := section["command"]; exists {
				cfg.Dispatch.Command = tf.Dispatch.Command
			}
			if _, exists := section["args"]; exists {
				cfg.Dispatch.Args = tf.Dispatch.Args
			}
		}
	}
	if tf.Storage != nil {
		if section, ok := rawSection(raw, "storage"); ok {
			if _, exists := section["data_dir"]; exists {
				cfg.Storage.DataDir = tf.Storage.DataDir
			}
			if _, exists := section["db_path"]; exists {
				cfg.Storage.DBPath = tf.Storage.DBPath
			}
			if _, exists := section["retention_days"]; exists {
				cfg.Storage.RetentionDays = tf.Storage.RetentionDays
			}
		}
	}
	if tf.Receiver != nil {
		if section, ok := rawSection(raw, "receiver"); ok {
			if _, exists := section["enabled"]; exists {
				cfg.Receiver.Enabled = tf.Receiver.Enabled
			}
			if _, exists := section["grpc_port"]; exists {
				cfg.Receiver.GRPCPort = tf.Receiver.GRPCPort
			}
			if _, exists := section["http_port"]; exists {
				cfg.Receiver.HTTPPort = tf.Receiver.HTTPPort
			}
			if _, exists := section["bind"]; exists {
				cfg.Receiver.Bind = tf.Receiver.Bind
			}
		}
	}
	if tf.Alerts != nil {
		if section, ok := rawSection(raw, "alerts"); ok {
			if _, exists := section["system_notify"]; exists {
				cfg.Alerts.SystemNotify = tf.Alerts.SystemNotify
			}
			if _, exists := section["console"]; exists {
				cfg.Alerts.Console = tf.Alerts.Console
			}
			if tg, ok := rawSection(section, "telegram"); ok {
				if _, exists := tg["bot_token"]; exists {
					cfg.Alerts.Telegram.BotToken = tf.Alerts.Telegram.BotToken
				}
				if _, exists := tg["chat_id"]; exists {
					cfg.Alerts.Telegram.ChatID = tf.Alerts.Telegram.ChatID
				}
			}
			if ws, ok := rawSection(section, "websocket"); ok {
				if _, exists := ws["enabled"]; exists {
					cfg.Alerts.WebSocket.Enabled = tf.Alerts.WebSocket.Enabled
				}
				if _, exists := ws["addr"]; exists {
					cfg.Alerts.WebSocket.Addr = tf.Alerts.WebSocket.Addr
				}
			}
		}
	}
}

func rawSection(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Monitor.PollIntervalMS < 1 {
		errs = append(errs, fmt.Sprintf("poll_interval_ms must be positive, got %d", cfg.Monitor.PollIntervalMS))
	}
	if cfg.Monitor.ContextRadius < 1 {
		errs = append(errs, fmt.Sprintf("context_radius must be positive, got %d", cfg.Monitor.ContextRadius))
	}
	if cfg.Monitor.EventBufferSize < 1 {
		errs = append(errs, fmt.Sprintf("event_buffer_size must be positive, got %d", cfg.Monitor.EventBufferSize))
	}
	for i, src := range cfg.Monitor.Sources {
		if src.Kind != "tmux" && src.Kind != "file" {
			errs = append(errs, fmt.Sprintf("monitor source %d: kind must be \"tmux\" or \"file\", got %q", i, src.Kind))
		}
		if src.Target == "" {
			errs = append(errs, fmt.Sprintf("monitor source %d: target must not be empty", i))
		}
	}

	if cfg.Dedup.WindowSeconds < 1 {
		errs = append(errs, fmt.Sprintf("dedup window_seconds must be positive, got %d", cfg.Dedup.WindowSeconds))
	}
	if cfg.Dedup.SimilarityThreshold <= 0 || cfg.Dedup.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Sprintf("similarity_threshold must be in (0, 1], got %f", cfg.Dedup.SimilarityThreshold))
	}
	if cfg.Dedup.HistorySize < 1 {
		errs = append(errs, fmt.Sprintf("dedup history_size must be positive, got %d", cfg.Dedup.HistorySize))
	}

	if cfg.Limits.SessionLimitSeconds < 1 {
		errs = append(errs, fmt.Sprintf("session_limit_seconds must be positive, got %d", cfg.Limits.SessionLimitSeconds))
	}
	for _, th := range cfg.Limits.WarningThresholds {
		if th <= 0 || th >= 1 {
			errs = append(errs, fmt.Sprintf("warning threshold must be in (0, 1), got %f", th))
		}
	}
	if cfg.Limits.CheckIntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("limits check_interval_seconds must be positive, got %d", cfg.Limits.CheckIntervalSeconds))
	}

	if cfg.Tokens.DailyWarning < 1 {
		errs = append(errs, fmt.Sprintf("daily_warning must be positive, got %d", cfg.Tokens.DailyWarning))
	}
	if cfg.Tokens.DailyCritical <= cfg.Tokens.DailyWarning {
		errs = append(errs, fmt.Sprintf("daily_critical (%d) must exceed daily_warning (%d)", cfg.Tokens.DailyCritical, cfg.Tokens.DailyWarning))
	}
	if cfg.Tokens.CheckIntervalSeconds < 1 {
		errs = append(errs, fmt.Sprintf("tokens check_interval_seconds must be positive, got %d", cfg.Tokens.CheckIntervalSeconds))
	}
	if cfg.Tokens.AlertCooldownMinutes < 0 {
		errs = append(errs, fmt.Sprintf("alert_cooldown_minutes must not be negative, got %d", cfg.Tokens.AlertCooldownMinutes))
	}

	if cfg.Scheduler.TickIntervalMS < 1 {
		errs = append(errs, fmt.Sprintf("tick_interval_ms must be positive, got %d", cfg.Scheduler.TickIntervalMS))
	}
	if cfg.Scheduler.DispatchTimeoutSeconds < 1 {
		errs = append(errs, fmt.Sprintf("dispatch_timeout_seconds must be positive, got %d", cfg.Scheduler.DispatchTimeoutSeconds))
	}
	if cfg.Scheduler.SummaryLength < 1 {
		errs = append(errs, fmt.Sprintf("summary_length must be positive, got %d", cfg.Scheduler.SummaryLength))
	}

	if strings.TrimSpace(cfg.Dispatch.Command) == "" {
		errs = append(errs, "dispatch command must not be empty")
	}

	if cfg.Storage.DataDir == "" {
		errs = append(errs, "storage data_dir must not be empty")
	}
	if cfg.Storage.RetentionDays <= 0 {
		errs = append(errs, fmt.Sprintf("storage retention_days must be positive, got %d", cfg.Storage.RetentionDays))
	}

	if cfg.Receiver.GRPCPort < 1 || cfg.Receiver.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("grpc_port must be 1-65535, got %d", cfg.Receiver.GRPCPort))
	}
	if cfg.Receiver.HTTPPort < 1 || cfg.Receiver.HTTPPort > 65535 {
		errs = append(errs, fmt.Sprintf("http_port must be 1-65535, got %d", cfg.Receiver.HTTPPort))
	}

	if cfg.Alerts.Telegram.BotToken != "" && cfg.Alerts.Telegram.ChatID == 0 {
		errs = append(errs, "alerts.telegram chat_id is required when bot_token is set")
	}
	if cfg.Alerts.WebSocket.Enabled && cfg.Alerts.WebSocket.Addr == "" {
		errs = append(errs, "alerts.websocket addr is required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ExpandTilde resolves a leading "~/" against the user's home directory.
func ExpandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
