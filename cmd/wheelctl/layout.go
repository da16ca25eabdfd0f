package main

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sqwishy/memorywheel/wheel"
)

// layoutFileConfig is the shape of an optional --config override file. Any
// field left zero falls back to the flag value, matching the layering the
// pack's own services use between flags and a config file.
type layoutFileConfig struct {
	Size datasize.ByteSize `yaml:"size"`
}

func newLayoutCmd() *cobra.Command {
	var sizeFlag string
	var configPath string

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Validate a candidate wheel size and print its slice-quantum budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			var size datasize.ByteSize
			if err := size.UnmarshalText([]byte(sizeFlag)); err != nil {
				return fmt.Errorf("--size: %w", err)
			}

			if configPath != "" {
				raw, err := os.ReadFile(configPath)
				if err != nil {
					return fmt.Errorf("--config: %w", err)
				}
				var fc layoutFileConfig
				if err := yaml.Unmarshal(raw, &fc); err != nil {
					return fmt.Errorf("--config: %w", err)
				}
				if fc.Size != 0 {
					size = fc.Size
				}
			}

			return runLayout(cmd, size)
		},
	}

	cmd.Flags().StringVar(&sizeFlag, "size", wheel.DefaultSize.HumanReadable(), "total wheel region size, header quantum included")
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML file overriding --size")
	return cmd
}

func runLayout(cmd *cobra.Command, size datasize.ByteSize) error {
	if err := wheel.ValidateSize(uint64(size.Bytes())); err != nil {
		return fmt.Errorf("invalid wheel size %s: %w", size.HumanReadable(), err)
	}

	alignedSize := wheel.AlignedSize(uint64(size.Bytes()))
	payload := datasize.ByteSize(alignedSize) * datasize.ByteSize(wheel.Align)
	maxSlices := alignedSize // smallest possible slice is one Align quantum

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "total size:       %s\n", size.HumanReadable())
	fmt.Fprintf(out, "header quantum:   %d bytes\n", wheel.Align)
	fmt.Fprintf(out, "payload area:     %s (%d quanta of %d bytes)\n", payload.HumanReadable(), alignedSize, wheel.Align)
	fmt.Fprintf(out, "max slice count:  %d (all minimum-sized)\n", maxSlices)
	return nil
}
