package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/blemgr/internal/device"
	goble "github.com/srg/blemgr/internal/device/go-ble"
)

// resolveService finds the service holding charUUID. An explicit service must
// contain it; otherwise the characteristic must be unique across services.
func resolveService(d device.Device, serviceUUID, charUUID string) (string, error) {
	if serviceUUID != "" {
		svc := d.FindService(serviceUUID)
		if svc == nil {
			return "", &device.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
		}
		if svc.FindCharacteristic(charUUID) < 0 {
			return "", &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
		}
		return svc.UUID, nil
	}

	var matches []string
	for _, svc := range d.Services {
		if svc.FindCharacteristic(charUUID) >= 0 {
			matches = append(matches, svc.UUID)
		}
	}
	switch len(matches) {
	case 0:
		return "", &device.NotFoundError{Resource: "characteristic", UUIDs: []string{charUUID}}
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("characteristic %s is provided by %d services (%s); use --service",
			charUUID, len(matches), strings.Join(matches, ", "))
	}
}

func newReadCmd() *cobra.Command {
	var serviceUUID string
	var asText, all bool

	cmd := &cobra.Command{
		Use:   "read <device-id> [char-uuid]",
		Short: "Read a characteristic value",
		Long: `Reads one characteristic, or every readable characteristic with --all.

Examples:
  # Read Battery Level
  blemgr read AA:BB:CC:DD:EE:FF 2a19

  # Disambiguate with the service
  blemgr read AA:BB:CC:DD:EE:FF 2a19 --service 180f

  # Read everything readable and show the attribute tree
  blemgr read AA:BB:CC:DD:EE:FF --all`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) != 2 {
				return fmt.Errorf("characteristic UUID required unless --all is set")
			}
			a, err := newApp(cmd, goble.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			out := cmd.OutOrStdout()

			d, err := a.mgr.Connect(ctx, args[0])
			if err != nil {
				return err
			}

			if all {
				if err := a.mgr.ReadAllCharacteristics(ctx, d.ID); err != nil {
					return err
				}
				d, _ = a.mgr.Device(d.ID)
				printDevice(out, d)
				return nil
			}

			svc, err := resolveService(d, serviceUUID, args[1])
			if err != nil {
				return err
			}
			value, err := a.mgr.ReadCharacteristic(ctx, d.ID, svc, args[1])
			if err != nil {
				return err
			}

			if asText {
				fmt.Fprintln(out, strings.ToValidUTF8(string(value), "�"))
				return nil
			}
			fmt.Fprintf(out, "%s %s: %s\n", device.ShortenUUID(device.CanonicalUUID(args[1])),
				a.mgr.CharacteristicName(args[1]), hex.EncodeToString(value))
			return nil
		},
	}
	cmd.Flags().StringVar(&serviceUUID, "service", "", "Service UUID (required if the characteristic UUID is ambiguous)")
	cmd.Flags().BoolVar(&asText, "text", false, "Print the value as UTF-8 text instead of hex")
	cmd.Flags().BoolVar(&all, "all", false, "Read every readable characteristic")
	return cmd
}

func newWriteCmd() *cobra.Command {
	var serviceUUID string
	var noResponse bool

	cmd := &cobra.Command{
		Use:   "write <device-id> <char-uuid> <hex-value>",
		Short: "Write a characteristic value",
		Long: `Writes a hex encoded value to a characteristic.

Examples:
  blemgr write AA:BB:CC:DD:EE:FF 2a06 01
  blemgr write AA:BB:CC:DD:EE:FF ff01 "de ad be ef" --no-response`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseHexInput(args[2])
			if err != nil {
				return err
			}
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
			svc, err := resolveService(d, serviceUUID, args[1])
			if err != nil {
				return err
			}
			if err := a.mgr.WriteCharacteristic(ctx, d.ID, svc, args[1], data, !noResponse); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d byte(s) to %s\n", len(data), device.ShortenUUID(device.CanonicalUUID(args[1])))
			return nil
		},
	}
	cmd.Flags().StringVar(&serviceUUID, "service", "", "Service UUID (required if the characteristic UUID is ambiguous)")
	cmd.Flags().BoolVar(&noResponse, "no-response", false, "Write without response")
	return cmd
}

func newBatteryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "battery <device-id>",
		Short: "Read the battery level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, goble.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if _, err := a.mgr.Connect(ctx, args[0]); err != nil {
				return err
			}
			level, err := a.mgr.ReadBatteryLevel(ctx, args[0])
			if err != nil {
				return err
			}
			if level == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Battery level not available")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Battery: %s\n", batteryLabel(level))
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	var asJSON, refresh bool

	cmd := &cobra.Command{
		Use:   "info <device-id>",
		Short: "Read the Device Information Service",
		Long: `Reads the Device Information Service and every configured custom
characteristic. With --refresh the result is also stored in the registry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, goble.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			if _, err := a.mgr.Connect(ctx, args[0]); err != nil {
				return err
			}

			var info *device.Information
			if refresh {
				d, err := a.mgr.RefreshDeviceInformation(ctx, args[0])
				if err != nil {
					return err
				}
				info = d.Info
			} else {
				info, err = a.mgr.ReadDeviceInformation(ctx, args[0])
				if err != nil {
					return err
				}
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), info)
			}
			printInformation(cmd.OutOrStdout(), info)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Store the result on the device")
	return cmd
}
