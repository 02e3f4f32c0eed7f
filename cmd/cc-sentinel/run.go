package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/classifier"
	"github.com/nixlim/cc-sentinel/internal/config"
	"github.com/nixlim/cc-sentinel/internal/dedup"
	"github.com/nixlim/cc-sentinel/internal/dispatch"
	"github.com/nixlim/cc-sentinel/internal/limits"
	"github.com/nixlim/cc-sentinel/internal/monitor"
	"github.com/nixlim/cc-sentinel/internal/receiver"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
	"github.com/nixlim/cc-sentinel/internal/source"
	"github.com/nixlim/cc-sentinel/internal/storage"
	"github.com/nixlim/cc-sentinel/internal/tmux"
	"github.com/nixlim/cc-sentinel/internal/tokens"
)

const pruneInterval = 6 * time.Hour

func newRunCmd(a *app) *cobra.Command {
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the configured sessions and send scheduled prompts until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd.OutOrStdout(), !noSchedule)
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "monitor only, do not send scheduled prompts")
	return cmd
}

// run wires every component and blocks until ctx is cancelled. Shutdown
// order: receivers stop accepting, then the loops drain, then the sinks
// close.
func (a *app) run(ctx context.Context, out io.Writer, schedule bool) error {
	cfg := a.cfg
	stores, err := a.openStores()
	if err != nil {
		return err
	}
	if !a.persistent {
		log.Printf("WARNING: running without persistence; jobs and usage are lost on exit")
	}

	sink, closeSinks, err := buildSinks(ctx, cfg.Alerts, stores, out)
	if err != nil {
		return err
	}
	defer closeSinks()

	tracker := limits.NewTracker(cfg.Limits.SessionLimitSeconds, cfg.Limits.WarningThresholds, sink, stores.Warnings)
	// Daily token alerts repeat on every check while usage stays high.
	tokenSink := alerts.NewThrottle(sink, time.Duration(cfg.Tokens.AlertCooldownMinutes)*time.Minute)
	ledger := tokens.NewLedger(int64(cfg.Tokens.DailyWarning), int64(cfg.Tokens.DailyCritical), tokenSink, stores.Ledger)
	if err := ledger.Restore(tokens.DateKey(time.Now())); err != nil {
		log.Printf("WARNING: %v", err)
	}

	opts := []monitor.Option{
		monitor.WithLimitSeconds(cfg.Limits.SessionLimitSeconds),
		monitor.WithBufferSize(cfg.Monitor.EventBufferSize),
		monitor.WithCheckSink(tokenSink),
	}
	var debugLog *receiver.FileLogger
	if a.debug != nil {
		debugLog = receiver.NewFileLogger(a.debug)
		opts = append(opts, monitor.WithLogger(debugLog))
	}
	mon := monitor.New(
		classifier.New(classifier.WithRadius(cfg.Monitor.ContextRadius)),
		dedup.NewSuppressor(time.Duration(cfg.Dedup.WindowSeconds)*time.Second, cfg.Dedup.SimilarityThreshold, cfg.Dedup.HistorySize),
		tracker, ledger, sink, opts...,
	)

	poller := buildPoller(cfg.Monitor)
	a.router = dispatch.New(cfg.Dispatch)
	var term *source.Terminal
	if len(cfg.Monitor.Command) > 0 {
		term, err = source.StartTerminal(cfg.Monitor.Command, 0, 0, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err := term.Close(); err != nil {
				log.Printf("WARNING: closing %s: %v", cfg.Monitor.Command[0], err)
			}
		}()
		poller.Add(source.Named{Name: dispatch.TerminalTarget, Capturer: term})
		a.router.Terminal = &dispatch.TerminalDispatcher{Screen: term}
	}

	var recv *receiver.Receiver
	if cfg.Receiver.Enabled {
		var rlog receiver.Logger
		if debugLog != nil {
			rlog = debugLog
		}
		recv = receiver.New(cfg.Receiver, &receiver.UsageHandler{Ledger: ledger, Tracker: tracker}, rlog)
		if err := recv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start receivers: %w", err)
		}
		defer recv.Stop()
		log.Printf("OTLP receiver listening on %s (gRPC) and %s (HTTP)", recv.GRPC.Addr(), recv.HTTP.Addr())
	}

	var eng *scheduler.Engine
	if schedule {
		a.scheduling = true
		if eng, err = a.newEngine(sink); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if poller.Len() > 0 {
		g.Go(func() error { return ignoreCanceled(mon.Run(gctx, poller)) })
	} else if recv == nil {
		log.Printf("WARNING: no monitor sources configured and the receiver is disabled")
	}
	if term != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-term.Done():
				log.Printf("WARNING: %s exited (%v); its screen is no longer updated", cfg.Monitor.Command[0], term.Err())
			}
			return nil
		})
	}
	g.Go(func() error {
		return ignoreCanceled(mon.RunChecks(gctx,
			time.Duration(cfg.Limits.CheckIntervalSeconds)*time.Second,
			time.Duration(cfg.Tokens.CheckIntervalSeconds)*time.Second))
	})

	if eng != nil {
		g.Go(func() error {
			return eng.Run(gctx, time.Duration(cfg.Scheduler.TickIntervalMS)*time.Millisecond)
		})
	}

	g.Go(func() error {
		stores.Prune(time.Now())
		t := time.NewTicker(pruneInterval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-t.C:
				stores.Prune(now)
			}
		}
	})

	err = g.Wait()
	log.Printf("cc-sentinel stopped")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildPoller registers the configured tmux panes and transcript files.
func buildPoller(cfg config.MonitorConfig) *source.Poller {
	p := source.NewPoller(time.Duration(cfg.PollIntervalMS) * time.Millisecond)
	var client *tmux.Client
	for _, sc := range cfg.Sources {
		name := sc.Name
		if name == "" {
			name = sc.Kind + ":" + sc.Target
		}
		switch sc.Kind {
		case "tmux":
			if client == nil {
				client = tmux.New(nil)
			}
			p.Add(source.Named{Name: name, Capturer: &source.TmuxPane{Client: client, Target: sc.Target}})
		case "file":
			p.Add(source.Named{Name: name, Capturer: &source.File{Path: config.ExpandTilde(sc.Target)}})
		}
	}
	return p
}

// buildSinks fans alerts out to every configured channel. The returned
// func releases them.
func buildSinks(ctx context.Context, cfg config.AlertsConfig, stores *storage.Stores, out io.Writer) (alerts.Sink, func(), error) {
	multi := alerts.NewMulti()
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Console {
		multi.Add(alerts.NewConsoleNotifier(out))
	}
	multi.Add(alerts.NewPlatformNotifier(cfg.SystemNotify))
	if stores.Alerts != nil {
		multi.Add(alerts.PersistSink{P: stores.Alerts})
	}

	if cfg.Telegram.BotToken != "" {
		tg, err := alerts.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Printf("WARNING: telegram alerts disabled: %v", err)
		} else {
			multi.Add(tg)
			closers = append(closers, tg.Close)
		}
	}

	if cfg.WebSocket.Enabled {
		hub := alerts.NewHub()
		lis, err := net.Listen("tcp", cfg.WebSocket.Addr)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("websocket alerts: listening on %s: %w", cfg.WebSocket.Addr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("/alerts", hub)
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("ERROR: websocket server stopped: %v", err)
			}
		}()
		log.Printf("websocket alerts on ws://%s/alerts", lis.Addr())
		multi.Add(hub)
		closers = append(closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			hub.Close()
		})
	}

	return multi, closeAll, nil
}
