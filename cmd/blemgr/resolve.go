package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/srg/blemgr/internal/bledb"
	"github.com/srg/blemgr/internal/device"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <uuid>...",
		Short: "Show the Bluetooth SIG names of service and characteristic UUIDs",
		Long: `Prints the canonical form of each UUID with the matching service or
characteristic name. Short (180f), 0x-prefixed and full 128-bit forms are accepted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver := bledb.New()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "UUID\tKIND\tNAME")
			for _, id := range args {
				canonical := device.CanonicalUUID(id)
				kind, name := "unknown", "-"
				if n, ok := resolver.LookupService(id); ok {
					kind, name = "service", n
				} else if n, ok := resolver.LookupCharacteristic(id); ok {
					kind, name = "characteristic", n
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", canonical, kind, name)
			}
			return tw.Flush()
		},
	}
}
