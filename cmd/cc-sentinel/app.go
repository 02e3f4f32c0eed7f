package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nixlim/cc-sentinel/internal/alerts"
	"github.com/nixlim/cc-sentinel/internal/config"
	"github.com/nixlim/cc-sentinel/internal/dispatch"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
	"github.com/nixlim/cc-sentinel/internal/storage"
)

// app holds what the subcommands share: the loaded configuration and the
// lazily opened stores.
type app struct {
	cfg        config.Config
	stores     *storage.Stores
	persistent bool
	debug      io.Writer
	// router overrides the default dispatcher when set.
	router *dispatch.Router
	// scheduling is set by run, whose engine owns the job slots.
	scheduling bool

	closers []func() error
}

func (a *app) init(cmd *cobra.Command, flags globalFlags) error {
	var (
		res *config.LoadResult
		err error
	)
	if flags.configPath != "" {
		res, err = config.LoadFrom(config.ExpandTilde(flags.configPath))
	} else {
		res, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	a.cfg = res.Config
	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "cc-sentinel: config warning: %s\n", w)
	}

	if flags.logFile != "" {
		f, err := openAppend(flags.logFile)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		log.SetOutput(f)
		a.closers = append(a.closers, func() error {
			log.SetOutput(os.Stderr)
			return f.Close()
		})
	}
	if flags.debugPath != "" {
		f, err := openAppend(flags.debugPath)
		if err != nil {
			return fmt.Errorf("opening debug log %q: %w", flags.debugPath, err)
		}
		a.debug = f
		a.closers = append(a.closers, f.Close)
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(config.ExpandTilde(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// openStores opens the persistence backends once per invocation.
func (a *app) openStores() (*storage.Stores, error) {
	if a.stores != nil {
		return a.stores, nil
	}
	s, persistent, err := storage.Open(a.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage error: %w", err)
	}
	a.stores, a.persistent = s, persistent
	a.closers = append(a.closers, s.Close)
	return s, nil
}

// newEngine builds and loads the scheduler over the configured stores. Only
// the run loop refreshes slots on load; other commands edit the persisted
// jobs as they are.
func (a *app) newEngine(sink alerts.Sink) (*scheduler.Engine, error) {
	s, err := a.openStores()
	if err != nil {
		return nil, err
	}
	if sink == nil && s.Alerts != nil {
		sink = alerts.PersistSink{P: s.Alerts}
	}
	router := a.router
	if router == nil {
		router = dispatch.New(a.cfg.Dispatch)
	}
	e := scheduler.NewEngine(s.Jobs, s.Runs, router,
		scheduler.WithTimeout(time.Duration(a.cfg.Scheduler.DispatchTimeoutSeconds)*time.Second),
		scheduler.WithSummaryLength(a.cfg.Scheduler.SummaryLength),
		scheduler.WithSink(sink),
	)
	load := e.Open
	if a.scheduling {
		load = e.Load
	}
	if err := load(); err != nil {
		return nil, fmt.Errorf("loading jobs: %w", err)
	}
	return e, nil
}

// close runs the closers in reverse order.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
