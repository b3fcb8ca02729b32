package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/holefill/internal/gpubackend"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List OpenCL platforms and devices available to the gpu backend",
	RunE:  listDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func listDevices(cmd *cobra.Command, args []string) error {
	platforms, err := gpubackend.EnumerateDevices()
	if err != nil {
		if errors.Is(err, gpubackend.ErrBackendUnavailable) {
			fmt.Println("gpu backend unavailable: built without the 'gpu' tag, or no OpenCL device was found")
			return nil
		}
		return fmt.Errorf("enumerate devices: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tDEVICE\tTYPE\tVENDOR\tCOMPUTE UNITS")
	for _, p := range platforms {
		for _, d := range p.Devices {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.Name, d.Name, d.Type, d.Vendor, d.MaxComputeUnits)
		}
	}
	return w.Flush()
}
