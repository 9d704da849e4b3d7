package main

import (
	"fmt"

	"github.com/spf13/cobra"
	goble "github.com/srg/blemgr/internal/device/go-ble"
)

func newConnectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "connect <device-id>",
		Short: "Connect to a known device and show its attribute tree",
		Long: `Connects to a known device, discovers its services and characteristics and
stores them in the registry. The session ends when the command exits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, goble.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			d, err := a.mgr.Connect(ctx, args[0])
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
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <device-id>",
		Short: "Disconnect a device and mark it disconnected in the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, goble.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.mgr.Disconnect(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Disconnected %s\n", args[0])
			return nil
		},
	}
}
