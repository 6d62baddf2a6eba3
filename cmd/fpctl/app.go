package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/fpctl/internal/device"
	goble "github.com/srg/fpctl/internal/device/go-ble"
	"github.com/srg/fpctl/internal/session"
	"github.com/srg/fpctl/internal/store"
	"github.com/srg/fpctl/pkg/config"
)

// newTransport opens the BLE transport (can be overridden in tests)
var newTransport = func(logger *logrus.Logger) (device.Scanner, error) {
	t, err := goble.NewTransport(logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// openStore opens the process log and sample archive (can be overridden in tests)
var openStore = store.Open

// app holds what every command needs: config, logger, store and transport
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	store     store.Store
	transport device.Scanner
	console   *console
	out       io.Writer
	sessions  []*session.Session
}

// newApp loads config, configures logging and opens the store.
// withTransport also opens the BLE transport.
func newApp(cmd *cobra.Command, withTransport bool) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg, "verbose")
	if err != nil {
		return nil, err
	}
	exitLogger = logger

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	st, err := openStore(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	noColor, _ := cmd.Flags().GetBool("no-color")
	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		out:     cmd.OutOrStdout(),
		console: newConsole(cmd.OutOrStdout(), !noColor),
	}

	if withTransport {
		a.transport, err = newTransport(logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to open BLE transport: %w", err)
		}
	}
	return a, nil
}

// close waits for pending status writes, then closes the store
func (a *app) close() {
	for _, s := range a.sessions {
		s.Flush()
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close store")
	}
}

// sessionOptions maps config onto session options
func (a *app) sessionOptions() *session.Options {
	return &session.Options{
		Logger:         a.logger,
		Sink:           a.store,
		Scanner:        a.transport,
		SearchTimeout:  a.cfg.Search.Timeout,
		SearchAttempts: a.cfg.Search.Attempts,
		SearchInterval: a.cfg.Search.Interval,
		ConnectTimeout: a.cfg.Connect.Timeout,
		LiveBufferSize: a.cfg.Live.BufferSize,
	}
}

// newSession creates a session whose status changes are printed to the console
func (a *app) newSession(identifier string) *session.Session {
	return a.track(session.New(identifier, a.sessionOptions()))
}

// track prints the status changes of s and flushes it on close
func (a *app) track(s *session.Session) *session.Session {
	s.Subscribe(a.console.observe)
	a.sessions = append(a.sessions, s)
	return s
}

// interruptible returns a context cancelled by Ctrl+C or SIGTERM
func interruptible(parent context.Context, out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Fprintln(out, "\nCtrl+C pressed, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// withSession finds and connects the sensor, runs fn and always disconnects
func (a *app) withSession(ctx context.Context, s *session.Session, fn func(context.Context) error) error {
	if err := s.FindAndConnect(ctx); err != nil {
		return err
	}
	defer func() {
		// disconnect even when ctx was cancelled mid-operation
		_ = s.Disconnect(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

// sensorID validates a command-line identifier and returns its normalized form
func sensorID(arg string) (string, error) {
	ids, err := device.ValidateIDs(arg)
	if err != nil {
		return "", err
	}
	return ids[0], nil
}
