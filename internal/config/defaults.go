package config

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Monitor: MonitorConfig{
			PollIntervalMS:  1500,
			ContextRadius:   150,
			EventBufferSize: 500,
		},
		Dedup: DedupConfig{
			WindowSeconds:       300,
			SimilarityThreshold: 0.8,
			HistorySize:         50,
		},
		Limits: LimitsConfig{
			SessionLimitSeconds:  18000,
			WarningThresholds:    []float64{0.8, 0.9, 0.95},
			CheckIntervalSeconds: 30,
		},
		Tokens: TokensConfig{
			DailyWarning:         50000,
			DailyCritical:        80000,
			CheckIntervalSeconds: 60,
			AlertCooldownMinutes: 10,
		},
		Scheduler: SchedulerConfig{
			TickIntervalMS:         1000,
			DispatchTimeoutSeconds: 30,
			SummaryLength:          200,
		},
		Dispatch: DispatchConfig{
			Command: "claude",
			Args:    []string{"--print", "{prompt}"},
		},
		Storage: StorageConfig{
			DataDir:       "~/.local/share/cc-sentinel",
			RetentionDays: 30,
		},
		Receiver: ReceiverConfig{
			GRPCPort: 4317,
			HTTPPort: 4318,
			Bind:     "127.0.0.1",
		},
		Alerts: AlertsConfig{
			SystemNotify: true,
			Console:      true,
			WebSocket: WebSocketConfig{
				Addr: "127.0.0.1:7878",
			},
		},
	}
}
