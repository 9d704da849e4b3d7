package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/srg/blemgr/internal/device"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

func printJSON(w io.Writer, v any) error {
	data, err := jsonAPI.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func connectionLabel(d device.Device) string {
	if d.Connected {
		return okColor.Sprint("connected")
	}
	return dimColor.Sprint("disconnected")
}

func formatLastSeen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func batteryLabel(level *int) string {
	if level == nil {
		return "-"
	}
	s := fmt.Sprintf("%d%%", *level)
	if *level <= 20 {
		return warnColor.Sprint(s)
	}
	return s
}

// printDeviceTable prints one row per device, sorted by id.
func printDeviceTable(w io.Writer, devices []device.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices")
		return
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPAIRED\tBATTERY\tLAST SEEN")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
			d.ID, d.Name, connectionLabel(d), d.Paired, batteryLabel(d.Battery), formatLastSeen(d.LastSeen))
	}
	_ = tw.Flush()
}

// printDevice prints a device with its attribute tree.
func printDevice(w io.Writer, d device.Device) {
	fmt.Fprintf(w, "Device %s (%s)\n", d.DisplayName(), d.ID)
	fmt.Fprintf(w, "  Status:    %s\n", connectionLabel(d))
	fmt.Fprintf(w, "  Paired:    %t\n", d.Paired)
	fmt.Fprintf(w, "  Battery:   %s\n", batteryLabel(d.Battery))
	fmt.Fprintf(w, "  Last seen: %s\n", formatLastSeen(d.LastSeen))

	if len(d.Services) == 0 {
		return
	}
	fmt.Fprintln(w, "  Services:")
	for _, svc := range d.Services {
		fmt.Fprintf(w, "    %s %s\n", svc.UUID, svc.Name)
		for _, c := range svc.Characteristics {
			line := fmt.Sprintf("      %s %s [%s]", c.UUID, c.Name, c.Properties)
			if len(c.Value) > 0 {
				line += " = " + hex.EncodeToString(c.Value)
			}
			fmt.Fprintln(w, line)
		}
	}
}

// printInformation prints the set fields of a device information record.
func printInformation(w io.Writer, info *device.Information) {
	if info == nil {
		fmt.Fprintln(w, "No device information")
		return
	}
	rows := []struct{ label, value string }{
		{"Manufacturer", info.ManufacturerName},
		{"Model", info.ModelNumber},
		{"Serial", info.SerialNumber},
		{"Hardware", info.HardwareRevision},
		{"Firmware", info.FirmwareRevision},
		{"Software", info.SoftwareRevision},
		{"System ID", info.SystemID},
		{"IEEE 11073", info.IEEE11073},
		{"PnP ID", info.PnPID},
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		if r.value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", r.label, r.value)
		}
	}
	keys := make([]string, 0, len(info.Custom))
	for k := range info.Custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s:\t%s\n", k, info.Custom[k])
	}
	_ = tw.Flush()
}

// parseHexInput accepts "0a0b", "0a 0b", "0a:0b" and an optional 0x prefix.
func parseHexInput(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	return data, nil
}
