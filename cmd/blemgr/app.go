package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blemgr/internal/device"
	goble "github.com/srg/blemgr/internal/device/go-ble"
	"github.com/srg/blemgr/internal/eventlog"
	"github.com/srg/blemgr/internal/events"
	"github.com/srg/blemgr/internal/manager"
	"github.com/srg/blemgr/internal/registry"
	"github.com/srg/blemgr/pkg/config"
	"golang.org/x/term"
)

// TransportFactory builds the BLE transport (can be overridden in tests)
//
//nolint:revive // TransportFactory name is intentional for test mocking
var TransportFactory = func(opts goble.Options, logger *logrus.Logger) device.Transport {
	return goble.New(opts, logger)
}

// app is the per-invocation composition root.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	bus     *events.Bus
	mgr     *manager.Manager
	history *eventlog.Log

	cmd         *cobra.Command
	release     func()
	scanTimeout time.Duration
}

// newApp loads the config and the device registry and wires the manager.
// scan narrows device selection for scan and pair; other commands pass the zero value.
func newApp(cmd *cobra.Command, scan goble.Options) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	registryPath := cfg.RegistryPath
	if override, _ := cmd.Flags().GetString("registry"); override != "" {
		registryPath = override
	}
	store, err := registry.NewFileStore(registryPath)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	if f, ok := cmd.OutOrStdout().(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		color.NoColor = true
	}

	if scan.ScanTimeout <= 0 {
		scan.ScanTimeout = cfg.ScanTimeout
	}

	bus := events.NewBus(logger)
	history := eventlog.New(cfg.EventHistory, logger)
	history.Attach(bus)

	mgr, err := manager.New(manager.Options{
		Transport:        TransportFactory(scan, logger),
		Store:            store,
		Bus:              bus,
		Logger:           logger,
		Retry:            cfg.Retry,
		ReadAllOnConnect: cfg.ReadAllOnConnect,
		ConnectTimeout:   cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}

	customs, release, err := cfg.CompileCustomCharacteristics(logger)
	if err != nil {
		return nil, err
	}
	for _, c := range customs {
		mgr.RegisterCustomCharacteristic(c)
	}

	if err := mgr.Load(); err != nil {
		release()
		return nil, fmt.Errorf("failed to load device registry %s: %w", registryPath, err)
	}

	logger.WithFields(logrus.Fields{
		"registry": registryPath,
		"devices":  len(mgr.Devices()),
	}).Debug("Device registry loaded")

	return &app{
		cfg:         cfg,
		logger:      logger,
		bus:         bus,
		mgr:         mgr,
		history:     history,
		cmd:         cmd,
		release:     release,
		scanTimeout: scan.ScanTimeout,
	}, nil
}

// Close disconnects whatever the command connected and prints the event
// history when --events is set.
func (a *app) Close() {
	if err := a.mgr.Close(); err != nil {
		a.logger.WithField("error", err).Warn("Failed to disconnect cleanly")
	}
	a.history.Detach(a.bus)
	a.release()

	if show, _ := a.cmd.Flags().GetBool("events"); show {
		out := a.cmd.OutOrStdout()
		fmt.Fprintln(out, "Events:")
		for _, e := range a.history.Drain() {
			fmt.Fprintf(out, "  %s\n", e)
		}
	}
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
