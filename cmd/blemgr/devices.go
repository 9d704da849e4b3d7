package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	goble "github.com/srg/blemgr/internal/device/go-ble"
	"github.com/srg/blemgr/internal/registry"
)

func addSelectionFlags(cmd *cobra.Command, opts *goble.Options) {
	cmd.Flags().DurationVarP(&opts.ScanTimeout, "duration", "d", 0, "Scan timeout (defaults to scan_timeout from the config)")
	cmd.Flags().StringVar(&opts.NamePrefix, "name", "", "Only select devices whose name starts with this prefix")
	cmd.Flags().StringVarP(&opts.ServiceUUID, "service", "s", "", "Only select devices advertising this service UUID")
}

func newScanCmd() *cobra.Command {
	var opts goble.Options
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Select a nearby device, remember it and connect",
		Long: `Scans for the first connectable advertisement matching the filters, adds the
device to the registry and connects to it to discover its services.

A device that is found but fails to connect stays in the registry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			progress := startProgress(cmd.OutOrStdout(), "Scanning", a.scanTimeout)
			d, err := a.mgr.Scan(ctx)
			progress.Stop()
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), d)
			}
			printDevice(cmd.OutOrStdout(), d)
			return nil
		},
	}
	addSelectionFlags(cmd, &opts)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newPairCmd() *cobra.Command {
	var opts goble.Options

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Select a nearby device and remember it as paired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			progress := startProgress(cmd.OutOrStdout(), "Pairing", a.scanTimeout)
			d, err := a.mgr.Pair(ctx)
			progress.Stop()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paired with %s (%s)\n", d.DisplayName(), d.ID)
			return nil
		},
	}
	addSelectionFlags(cmd, &opts)
	return cmd
}

func newListCmd() *cobra.Command {
	var filter string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := registry.ParseFilter(filter)
			if err != nil {
				return err
			}
			a, err := newApp(cmd, goble.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			devices := a.mgr.Filter(f)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), devices)
			}
			printDeviceTable(cmd.OutOrStdout(), devices)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "all", "Which devices to list (all, connected, disconnected)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <device-id>",
		Short: "Forget a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, goble.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			d, ok := a.mgr.Remove(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("device %s is not known", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", d.DisplayName(), d.ID)
			return nil
		},
	}
}

func newRefreshCmd() *cobra.Command {
	var connect bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "refresh [device-id]",
		Short: "Reload the registry and probe connected devices",
		Long: `Reloads the device registry and probes the sessions in scope, dropping the ones
that no longer answer. With --connect the devices are connected first, so the
probe reports whether they are reachable right now.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, goble.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			if connect {
				for _, d := range a.mgr.Devices() {
					if id != "" && d.ID != id {
						continue
					}
					if _, err := a.mgr.Connect(ctx, d.ID); err != nil {
						a.logger.WithField("device", d.ID).WithError(err).Warn("Device not reachable")
					}
				}
			}

			if err := a.mgr.Refresh(ctx, id); err != nil {
				return err
			}
			printDeviceTable(cmd.OutOrStdout(), a.mgr.Devices())
			return nil
		},
	}
	cmd.Flags().BoolVar(&connect, "connect", false, "Connect devices before probing them")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall timeout (0 for none)")
	return cmd
}
