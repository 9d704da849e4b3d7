package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "blemgr",
		Short: "Bluetooth Low Energy device manager",
		Long: `Bluetooth Low Energy (BLE) device manager that provides:

- Discover, pair and remember peripherals across runs
- Connect, disconnect and probe the liveness of known devices
- Read and write characteristics, battery level and device information
- Subscribe to characteristic notifications with Lua value formatters
- Watch the manager's event stream

Known devices are kept in a registry file (YAML, JSON or CBOR by extension).`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", formatVersion(version), commit, date),
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "blemgr.yaml", "Configuration file; missing file means defaults")
	flags.String("registry", "", "Device registry file, overrides registry_path from the config")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("verbose", false, "Enable debug logging")
	flags.Bool("events", false, "Print the recorded event history when the command finishes")

	root.AddCommand(
		newScanCmd(),
		newPairCmd(),
		newListCmd(),
		newConnectCmd(),
		newDisconnectCmd(),
		newRemoveCmd(),
		newRefreshCmd(),
		newReadCmd(),
		newWriteCmd(),
		newBatteryCmd(),
		newInfoCmd(),
		newSubscribeCmd(),
		newResolveCmd(),
		newMonitorCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
